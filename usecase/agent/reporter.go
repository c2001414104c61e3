package agent

import (
	"context"

	"go.uber.org/zap"

	"github.com/fastygo/taskpilot/pkg/logger"
)

// Reporter receives the observable events of a run. Implementations must not block.
type Reporter interface {
	RunStarted(ctx context.Context, identities int)
	IdentitySkipped(ctx context.Context, identityID, reason string)
	RunCompleted(ctx context.Context, summary RunSummary)
	RunFailed(ctx context.Context, summary RunSummary, err error)
}

// Skip reasons passed to Reporter.IdentitySkipped.
const (
	SkipRateLimited = "rate_limited"
)

type zapReporter struct {
	logger *zap.Logger
}

// NewZapReporter logs run events through zap, tagged with the run id.
func NewZapReporter(log *zap.Logger) Reporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &zapReporter{logger: log.Named("overdue_agent")}
}

func (r *zapReporter) RunStarted(ctx context.Context, identities int) {
	logger.WithRunID(ctx, r.logger).Info("overdue agent run started", zap.Int("identities", identities))
}

func (r *zapReporter) IdentitySkipped(ctx context.Context, identityID, reason string) {
	logger.WithRunID(ctx, r.logger).Debug("identity skipped",
		zap.String("identity_id", identityID),
		zap.String("reason", reason))
}

func (r *zapReporter) RunCompleted(ctx context.Context, s RunSummary) {
	logger.WithRunID(ctx, r.logger).Info("overdue agent run completed", summaryFields(s)...)
}

func (r *zapReporter) RunFailed(ctx context.Context, s RunSummary, err error) {
	logger.WithRunID(ctx, r.logger).Error("overdue agent run failed", append(summaryFields(s), zap.Error(err))...)
}

func summaryFields(s RunSummary) []zap.Field {
	return []zap.Field{
		zap.Duration("duration", s.Duration),
		zap.Int("processed_tasks", s.ProcessedTasks),
		zap.Int("suggestions_created", s.SuggestionsCreated),
		zap.Int("users_processed", s.UsersProcessed),
		zap.Int("users_skipped", s.UsersSkipped),
	}
}
