package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fastygo/taskpilot/domain"
	"github.com/fastygo/taskpilot/usecase/agent"
)

// ErrRunInProgress is returned by RunNow while another run holds the scheduler.
var ErrRunInProgress = domain.NewError(domain.ErrCodeConflict, "agent run already in progress")

// AgentRunner is the batch job driven by the scheduler.
type AgentRunner interface {
	Run(ctx context.Context) (agent.RunSummary, error)
}

// AgentScheduler triggers the overdue agent on a cron schedule and on demand. At most one
// run is active at a time; overlapping ticks are skipped.
type AgentScheduler struct {
	runner  AgentRunner
	timeout time.Duration
	logger  *zap.Logger
	cron    *cron.Cron

	running sync.Mutex
	mu      sync.RWMutex
	last    *LastRun
}

// LastRun describes the most recent finished run.
type LastRun struct {
	FinishedAt time.Time        `json:"finished_at"`
	Summary    agent.RunSummary `json:"summary"`
	DurationMS int64            `json:"duration_ms"`
	Error      string           `json:"error,omitempty"`
	ErrorCode  domain.ErrorCode `json:"error_code,omitempty"`
}

func NewAgentScheduler(runner AgentRunner, schedule string, timeout time.Duration, logger *zap.Logger) (*AgentScheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	logger = logger.Named("agent_scheduler")

	s := &AgentScheduler{
		runner:  runner,
		timeout: timeout,
		logger:  logger,
		cron: cron.New(
			cron.WithLogger(newCronLogger(logger)),
			cron.WithChain(cron.Recover(newCronLogger(logger)), cron.SkipIfStillRunning(newCronLogger(logger))),
		),
	}
	if _, err := s.cron.AddFunc(schedule, s.tick); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *AgentScheduler) Start() {
	s.cron.Start()
	s.logger.Info("agent scheduler started", zap.Int("entries", len(s.cron.Entries())))
}

// Stop stops scheduling and waits for a running job or ctx expiry.
func (s *AgentScheduler) Stop(ctx context.Context) {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	s.logger.Info("agent scheduler stopped")
}

// RunNow executes a run synchronously unless one is already active.
func (s *AgentScheduler) RunNow(ctx context.Context) (agent.RunSummary, error) {
	if !s.running.TryLock() {
		return agent.RunSummary{}, ErrRunInProgress
	}
	defer s.running.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	summary, err := s.runner.Run(ctx)
	s.record(summary, err)
	return summary, err
}

// Last returns the most recent finished run, or nil before the first one.
func (s *AgentScheduler) Last() *LastRun {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return nil
	}
	last := *s.last
	return &last
}

func (s *AgentScheduler) tick() {
	if _, err := s.RunNow(context.Background()); err != nil && !errors.Is(err, ErrRunInProgress) {
		s.logger.Warn("scheduled agent run ended with error", zap.Error(err))
	}
}

func (s *AgentScheduler) record(summary agent.RunSummary, err error) {
	last := &LastRun{
		FinishedAt: time.Now(),
		Summary:    summary,
		DurationMS: summary.Duration.Milliseconds(),
	}
	if err != nil {
		last.Error = err.Error()
		var dErr *domain.Error
		if errors.As(err, &dErr) {
			last.ErrorCode = dErr.Code
		}
	}
	s.mu.Lock()
	s.last = last
	s.mu.Unlock()
}
