package repository

import (
	"context"

	"github.com/fastygo/taskpilot/domain"
)

type SuggestionFilter struct {
	OwnerID   string
	Type      domain.SuggestionType
	Dismissed *bool
	Limit     int
	Offset    int
}

type SuggestionRepository interface {
	// Create persists draft unless a suggestion for the same task occurrence and type already
	// exists. created reports whether a new row was written. Uniqueness is enforced by storage.
	Create(ctx context.Context, draft domain.SuggestionDraft) (created bool, err error)
	List(ctx context.Context, filter SuggestionFilter) (items []domain.Suggestion, total int, err error)
	Counts(ctx context.Context, ownerID string) (domain.SuggestionCounts, error)
	Dismiss(ctx context.Context, id, ownerID string) (*domain.Suggestion, error)
	Delete(ctx context.Context, id, ownerID string) error
}
