// Package agent implements the overdue-suggestion batch run: for every identity that opted
// into autonomous agents and passes the rate gate, it reminds the owner of tasks that are
// at least one full day overdue.
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/fastygo/taskpilot/domain"
	"github.com/fastygo/taskpilot/pkg/logger"
)

// DefaultBatchSize caps the overdue tasks examined per identity per run.
const DefaultBatchSize = 100

// RunSummary reports what a run did. It is returned even when the run aborts.
// UsersProcessed counts only identities that passed the rate gate; gated ones land in
// UsersSkipped, so the two together cover every enabled identity the run reached.
type RunSummary struct {
	Duration           time.Duration `json:"-"`
	ProcessedTasks     int           `json:"processed_tasks"`
	SuggestionsCreated int           `json:"suggestions_created"`
	UsersProcessed     int           `json:"users_processed"`
	UsersSkipped       int           `json:"users_skipped"`
}

type Config struct {
	BatchSize int
	// Concurrency > 1 processes that many identities in parallel.
	Concurrency int
}

type Agent struct {
	identities IdentityDirectory
	gate       RateGate
	tasks      TaskStore
	sink       SuggestionSink
	reporter   Reporter
	cfg        Config
	now        func() time.Time
}

type Option func(*Agent)

// WithClock overrides the time source used for "now" and for the run duration.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) { a.now = now }
}

// WithReporter replaces the default no-op reporter.
func WithReporter(r Reporter) Option {
	return func(a *Agent) { a.reporter = r }
}

func New(identities IdentityDirectory, gate RateGate, tasks TaskStore, sink SuggestionSink, cfg Config, opts ...Option) *Agent {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	a := &Agent{
		identities: identities,
		gate:       gate,
		tasks:      tasks,
		sink:       sink,
		cfg:        cfg,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.reporter == nil {
		a.reporter = NewZapReporter(nil)
	}
	return a
}

// tally accumulates counters from concurrent identity workers.
type tally struct {
	mu sync.Mutex
	s  RunSummary
}

func (t *tally) add(r identityResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.ProcessedTasks += r.processed
	t.s.SuggestionsCreated += r.created
	if r.skipped {
		t.s.UsersSkipped++
	} else if r.passed {
		t.s.UsersProcessed++
	}
}

type identityResult struct {
	processed int
	created   int
	passed    bool
	skipped   bool
}

// Run executes one pass over all agent-enabled identities. Any failure other than a
// rate-gate rejection or a duplicate suggestion aborts the run; the returned summary then
// holds the work done so far and the error carries ErrCodeRunAborted.
func (a *Agent) Run(ctx context.Context) (RunSummary, error) {
	start := a.now()
	ctx = logger.ContextWithRunID(ctx, uuid.NewString())
	var t tally

	finish := func(err error) (RunSummary, error) {
		t.mu.Lock()
		summary := t.s
		t.mu.Unlock()
		summary.Duration = a.now().Sub(start)
		if err != nil {
			err = domain.WrapError(domain.ErrCodeRunAborted, "overdue agent run aborted", err)
			a.reporter.RunFailed(ctx, summary, err)
			return summary, err
		}
		a.reporter.RunCompleted(ctx, summary)
		return summary, nil
	}

	ids, err := a.identities.ListAgentEnabled(ctx)
	if err != nil {
		return finish(fmt.Errorf("list identities: %w", err))
	}
	a.reporter.RunStarted(ctx, len(ids))
	if len(ids) == 0 {
		return finish(nil)
	}

	if a.cfg.Concurrency == 1 {
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return finish(err)
			}
			res, err := a.processIdentity(ctx, id, start)
			t.add(res)
			if err != nil {
				return finish(err)
			}
		}
		return finish(nil)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Concurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := a.processIdentity(gctx, id, start)
			t.add(res)
			return err
		})
	}
	return finish(g.Wait())
}

func (a *Agent) processIdentity(ctx context.Context, identityID string, now time.Time) (identityResult, error) {
	var res identityResult

	ok, err := a.gate.Check(ctx, identityID)
	if err != nil {
		return res, fmt.Errorf("rate gate %s: %w", identityID, err)
	}
	if !ok {
		res.skipped = true
		a.reporter.IdentitySkipped(ctx, identityID, SkipRateLimited)
		return res, nil
	}
	res.passed = true

	overdue, err := a.tasks.FindOverdue(ctx, identityID, now, a.cfg.BatchSize)
	if err != nil {
		return res, fmt.Errorf("find overdue tasks of %s: %w", identityID, err)
	}

	for _, task := range overdue {
		res.processed++
		if task.DueDate == nil {
			continue
		}
		days := DaysOverdue(*task.DueDate, now)
		if days < 1 {
			continue
		}
		created, err := a.sink.Create(ctx, OverdueDraft(task, days))
		if err != nil {
			return res, fmt.Errorf("create suggestion for task %s: %w", task.ID, err)
		}
		if created {
			res.created++
		}
	}
	return res, nil
}
