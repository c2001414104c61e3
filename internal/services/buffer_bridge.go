package services

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/fastygo/taskpilot/domain"
	"github.com/fastygo/taskpilot/internal/infrastructure/buffer"
	"github.com/fastygo/taskpilot/usecase"
)

// BufferSpawn parks a failed spawn in the bolt buffer for the next drain.
func (sp *SpawnProcessor) BufferSpawn(ctx context.Context, ownerID, parentID string, draft domain.TaskDraft, cause error) error {
	if sp == nil || sp.store == nil || draft.ID == "" {
		return domain.ErrInvalidPayload
	}
	payload, err := json.Marshal(draft)
	if err != nil {
		return err
	}
	item := buffer.Item{
		ID:       draft.ID,
		OwnerID:  ownerID,
		ParentID: parentID,
		Draft:    payload,
	}
	if cause != nil {
		item.LastError = cause.Error()
	}
	added, err := sp.store.Enqueue(item)
	if err != nil {
		return err
	}
	if !added {
		sp.logger.Debug("spawn already buffered", zap.String("spawn_id", draft.ID))
	}
	return nil
}

var _ usecase.SpawnBuffer = (*SpawnProcessor)(nil)
