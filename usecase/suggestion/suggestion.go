package suggestion

import (
	"context"

	"go.uber.org/zap"

	"github.com/fastygo/taskpilot/domain"
	"github.com/fastygo/taskpilot/repository"
)

// UseCase serves the owner-facing side of suggestions. Producers write through
// repository.SuggestionRepository directly.
type UseCase struct {
	suggestions repository.SuggestionRepository
	logger      *zap.Logger
}

func New(suggestions repository.SuggestionRepository, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{suggestions: suggestions, logger: logger}
}

func (uc *UseCase) List(ctx context.Context, filter repository.SuggestionFilter) ([]domain.Suggestion, int, error) {
	if filter.OwnerID == "" {
		return nil, 0, domain.ErrUnauthorized
	}
	items, total, err := uc.suggestions.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	if items == nil {
		items = []domain.Suggestion{}
	}
	return items, total, nil
}

func (uc *UseCase) Counts(ctx context.Context, ownerID string) (domain.SuggestionCounts, error) {
	return uc.suggestions.Counts(ctx, ownerID)
}

func (uc *UseCase) Dismiss(ctx context.Context, id, ownerID string) (*domain.Suggestion, error) {
	return uc.suggestions.Dismiss(ctx, id, ownerID)
}

func (uc *UseCase) Delete(ctx context.Context, id, ownerID string) error {
	if err := uc.suggestions.Delete(ctx, id, ownerID); err != nil {
		return err
	}
	uc.logger.Debug("suggestion deleted", zap.String("suggestion_id", id), zap.String("owner_id", ownerID))
	return nil
}
