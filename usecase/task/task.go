package task

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fastygo/taskpilot/domain"
	"github.com/fastygo/taskpilot/repository"
	"github.com/fastygo/taskpilot/usecase"
)

// spawnNamespace scopes the name-based ids given to spawned occurrences.
var spawnNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("taskpilot:recurrence-spawn"))

// SpawnID derives the id of the occurrence that follows parentID at next. The same inputs
// always give the same id, so a retried spawn cannot create a duplicate.
func SpawnID(parentID string, next time.Time) string {
	return uuid.NewSHA1(spawnNamespace, []byte(parentID+"|"+next.UTC().Format(time.RFC3339Nano))).String()
}

// UseCase drives the task lifecycle: CRUD plus the completion transitions that spawn the
// next occurrence of a recurring task.
type UseCase struct {
	tasks  repository.TaskRepository
	spawns usecase.SpawnBuffer
	logger *zap.Logger
}

func New(tasks repository.TaskRepository, spawns usecase.SpawnBuffer, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{
		tasks:  tasks,
		spawns: spawns,
		logger: logger,
	}
}

// CompleteTask marks the task complete. found is false, with a nil error, when the task
// does not exist or belongs to someone else. When the task recurs and actually changed
// state, the next occurrence is created; a failure to do so is logged and buffered but
// never fails the completion.
func (uc *UseCase) CompleteTask(ctx context.Context, taskID, ownerID string) (task *domain.Task, found bool, err error) {
	if _, err := uc.tasks.GetByID(ctx, taskID, ownerID); err != nil {
		if domain.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	completed, transitioned, err := uc.tasks.MarkComplete(ctx, taskID, ownerID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	if transitioned && domain.ShouldSpawnNextInstance(completed.Recurrence, completed.DueDate) {
		uc.spawnNext(ctx, completed)
	}
	return completed, true, nil
}

// UncompleteTask reverts a completed task. It never spawns nor removes occurrences.
func (uc *UseCase) UncompleteTask(ctx context.Context, taskID, ownerID string) (*domain.Task, bool, error) {
	if _, err := uc.tasks.GetByID(ctx, taskID, ownerID); err != nil {
		if domain.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	task, err := uc.tasks.MarkIncomplete(ctx, taskID, ownerID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return task, true, nil
}

func (uc *UseCase) spawnNext(ctx context.Context, parent *domain.Task) {
	log := uc.logger.With(
		zap.String("task_id", parent.ID),
		zap.String("owner_id", parent.OwnerID),
		zap.String("recurrence", string(parent.Recurrence)),
	)

	next, err := domain.NextDueDate(*parent.DueDate, parent.Recurrence)
	if err != nil {
		log.Error("cannot compute next occurrence", zap.Error(err))
		return
	}

	draft := parent.Draft()
	draft.ID = SpawnID(parent.ID, next)
	draft.DueDate = &next

	spawned, err := uc.tasks.Create(ctx, parent.OwnerID, draft)
	if err == nil {
		log.Info("recurring task spawned", zap.String("spawn_id", spawned.ID), zap.Time("due_date", next))
		return
	}

	log.Error("failed to spawn next occurrence", zap.String("spawn_id", draft.ID), zap.Error(err))
	if uc.spawns == nil {
		return
	}
	if bufErr := uc.spawns.BufferSpawn(ctx, parent.OwnerID, parent.ID, draft, err); bufErr != nil {
		log.Error("failed to buffer spawn", zap.String("spawn_id", draft.ID), zap.Error(bufErr))
		return
	}
	log.Warn("spawn buffered for retry", zap.String("spawn_id", draft.ID))
}

func (uc *UseCase) ListTasks(ctx context.Context, filter repository.TaskFilter) ([]domain.Task, error) {
	return uc.tasks.List(ctx, filter)
}

func (uc *UseCase) GetTask(ctx context.Context, id, ownerID string) (*domain.Task, error) {
	return uc.tasks.GetByID(ctx, id, ownerID)
}

func (uc *UseCase) CreateTask(ctx context.Context, ownerID string, draft domain.TaskDraft) (*domain.Task, error) {
	// callers may not pick ids; those are reserved for spawns
	draft.ID = ""
	return uc.tasks.Create(ctx, ownerID, draft)
}

// UpdateTask replaces the descriptive fields of a task. Completion state is only changed
// through CompleteTask and UncompleteTask.
func (uc *UseCase) UpdateTask(ctx context.Context, id, ownerID string, draft domain.TaskDraft) (*domain.Task, error) {
	draft.Normalize()
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	task, err := uc.tasks.GetByID(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	task.Title = draft.Title
	task.Description = draft.Description
	task.Priority = draft.Priority
	task.Tags = draft.Tags
	task.Category = draft.Category
	task.DueDate = draft.DueDate
	task.Recurrence = draft.Recurrence
	task.ReminderEnabled = draft.ReminderEnabled
	task.ReminderOffsetMinutes = draft.ReminderOffsetMinutes

	if err := uc.tasks.Update(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (uc *UseCase) DeleteTask(ctx context.Context, id, ownerID string) error {
	return uc.tasks.Delete(ctx, id, ownerID)
}
