package usecase

import (
	"context"

	"github.com/fastygo/taskpilot/domain"
)

// SpawnBuffer takes over a recurring spawn that could not be persisted so it can be
// replayed later. draft.ID is always set, which keeps replays idempotent.
type SpawnBuffer interface {
	BufferSpawn(ctx context.Context, ownerID, parentID string, draft domain.TaskDraft, cause error) error
}
