package agent

import (
	"context"
	"time"

	"github.com/fastygo/taskpilot/domain"
)

// IdentityDirectory lists the identities that opted into autonomous agents.
type IdentityDirectory interface {
	ListAgentEnabled(ctx context.Context) ([]string, error)
}

// RateGate decides whether an identity may be processed in this run. false is a normal
// outcome; an error aborts the run.
type RateGate interface {
	Check(ctx context.Context, identityID string) (bool, error)
}

// TaskStore returns incomplete tasks of owner due strictly before now, oldest first.
type TaskStore interface {
	FindOverdue(ctx context.Context, ownerID string, now time.Time, limit int) ([]domain.Task, error)
}

// SuggestionSink persists a suggestion unless one already exists for the same task
// occurrence. created is false for a duplicate.
type SuggestionSink interface {
	Create(ctx context.Context, draft domain.SuggestionDraft) (created bool, err error)
}
