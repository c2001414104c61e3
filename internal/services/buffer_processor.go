package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fastygo/taskpilot/domain"
	"github.com/fastygo/taskpilot/internal/infrastructure/buffer"
	"github.com/fastygo/taskpilot/repository"
)

// ConnectionHealth abstracts the connection monitor functionality.
type ConnectionHealth interface {
	IsOnline() bool
}

// ProcessorConfig controls how frequently pending spawns are replayed.
type ProcessorConfig struct {
	Interval   time.Duration
	BatchSize  int
	MaxRetries int
}

// SpawnProcessor replays recurring spawns that failed to persist. Items carry the
// deterministic id of the task to create, so a replay that races a late original write
// lands on the existing row.
type SpawnProcessor struct {
	store   *buffer.Store
	monitor ConnectionHealth
	tasks   repository.TaskRepository
	logger  *zap.Logger
	cron    *cron.Cron
	cfg     ProcessorConfig
}

func NewSpawnProcessor(
	store *buffer.Store,
	monitor ConnectionHealth,
	tasks repository.TaskRepository,
	logger *zap.Logger,
	cfg ProcessorConfig,
) (*SpawnProcessor, error) {
	if cfg.Interval < time.Second {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("spawn_processor")

	sp := &SpawnProcessor{
		store:   store,
		monitor: monitor,
		tasks:   tasks,
		logger:  logger,
		cfg:     cfg,
		cron: cron.New(
			cron.WithLogger(newCronLogger(logger)),
			cron.WithChain(cron.SkipIfStillRunning(newCronLogger(logger))),
		),
	}

	schedule := fmt.Sprintf("@every %s", cfg.Interval)
	if _, err := sp.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Interval)
		defer cancel()
		if err := sp.Drain(ctx); err != nil {
			sp.logger.Error("spawn drain failed", zap.Error(err))
		}
	}); err != nil {
		return nil, err
	}

	return sp, nil
}

// Start launches the cron scheduler.
func (sp *SpawnProcessor) Start() {
	if sp == nil || sp.cron == nil {
		return
	}
	sp.cron.Start()
	sp.logger.Info("spawn processor started", zap.Duration("interval", sp.cfg.Interval))
}

// Stop waits for a running drain to finish or ctx to expire.
func (sp *SpawnProcessor) Stop(ctx context.Context) {
	if sp == nil || sp.cron == nil {
		return
	}
	stopCtx := sp.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	sp.logger.Info("spawn processor stopped")
}

// Drain replays one batch of pending spawns. It does nothing while storage is offline.
func (sp *SpawnProcessor) Drain(ctx context.Context) error {
	if sp == nil || sp.store == nil {
		return nil
	}
	if sp.monitor != nil && !sp.monitor.IsOnline() {
		sp.logger.Debug("skipping spawn drain (offline)")
		return nil
	}

	items, err := sp.store.Peek(sp.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		log := sp.logger.With(
			zap.String("spawn_id", item.ID),
			zap.String("parent_id", item.ParentID),
			zap.Int("attempts", item.Attempts),
		)

		err := sp.replay(ctx, item)
		if err == nil {
			log.Info("buffered spawn persisted")
			if err := sp.store.Remove(item.ID); err != nil {
				log.Warn("failed to purge replayed spawn", zap.Error(err))
			}
			continue
		}

		if item.Attempts+1 >= sp.cfg.MaxRetries || isPermanent(err) {
			log.Warn("dropping buffered spawn", zap.Error(err))
			_ = sp.store.Remove(item.ID)
			continue
		}
		log.Error("buffered spawn failed", zap.Error(err))
		if err := sp.store.Retry(item, err); err != nil {
			log.Error("failed to requeue spawn", zap.Error(err))
		}
	}
	return nil
}

// Pending returns the number of buffered spawns.
func (sp *SpawnProcessor) Pending() int {
	if sp == nil || sp.store == nil {
		return 0
	}
	size, err := sp.store.Size()
	if err != nil {
		return 0
	}
	return size
}

func (sp *SpawnProcessor) replay(ctx context.Context, item buffer.Item) error {
	var draft domain.TaskDraft
	if err := json.Unmarshal(item.Draft, &draft); err != nil {
		return domain.WrapError(domain.ErrCodeInvalid, "corrupt buffered spawn", err)
	}
	draft.ID = item.ID
	_, err := sp.tasks.Create(ctx, item.OwnerID, draft)
	return err
}

// isPermanent reports failures that retrying cannot fix.
func isPermanent(err error) bool {
	return domain.IsDomainError(err, domain.ErrCodeInvalid) ||
		domain.IsDomainError(err, domain.ErrCodeInvalidPattern) ||
		domain.IsNotFound(err)
}
