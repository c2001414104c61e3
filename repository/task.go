package repository

import (
	"context"
	"time"

	"github.com/fastygo/taskpilot/domain"
)

type TaskFilter struct {
	OwnerID   string
	Completed *bool
	Tag       string
	Limit     int
	Offset    int
}

// TaskRepository persists tasks. Every owner-scoped method treats a task owned by someone
// else exactly like a missing one and returns domain.ErrTaskNotFound.
type TaskRepository interface {
	GetByID(ctx context.Context, id, ownerID string) (*domain.Task, error)
	List(ctx context.Context, filter TaskFilter) ([]domain.Task, error)
	// Create inserts a task built from draft. When draft.ID is set and already exists the
	// existing row is returned unchanged.
	Create(ctx context.Context, ownerID string, draft domain.TaskDraft) (*domain.Task, error)
	Update(ctx context.Context, task *domain.Task) error
	Delete(ctx context.Context, id, ownerID string) error

	// MarkComplete sets completed=true. transitioned is false when the task was already complete.
	MarkComplete(ctx context.Context, id, ownerID string) (task *domain.Task, transitioned bool, err error)
	// MarkIncomplete sets completed=false.
	MarkIncomplete(ctx context.Context, id, ownerID string) (*domain.Task, error)

	// FindOverdue returns up to limit incomplete tasks of owner with due_date < now, oldest first.
	FindOverdue(ctx context.Context, ownerID string, now time.Time, limit int) ([]domain.Task, error)
}
