package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fastygo/taskpilot/domain"
	"github.com/fastygo/taskpilot/repository"
	"github.com/fastygo/taskpilot/repository/memory"
)

type bufferedSpawn struct {
	ownerID  string
	parentID string
	draft    domain.TaskDraft
	cause    error
}

type fakeSpawnBuffer struct {
	calls []bufferedSpawn
	err   error
}

func (f *fakeSpawnBuffer) BufferSpawn(_ context.Context, ownerID, parentID string, draft domain.TaskDraft, cause error) error {
	f.calls = append(f.calls, bufferedSpawn{ownerID: ownerID, parentID: parentID, draft: draft, cause: cause})
	return f.err
}

// flakyTasks fails selected operations of an otherwise working repository.
type flakyTasks struct {
	repository.TaskRepository
	createErr   error
	completeErr error
}

func (f *flakyTasks) Create(ctx context.Context, ownerID string, draft domain.TaskDraft) (*domain.Task, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.TaskRepository.Create(ctx, ownerID, draft)
}

func (f *flakyTasks) MarkComplete(ctx context.Context, id, ownerID string) (*domain.Task, bool, error) {
	if f.completeErr != nil {
		return nil, false, f.completeErr
	}
	return f.TaskRepository.MarkComplete(ctx, id, ownerID)
}

func seed(t *testing.T, tasks repository.TaskRepository, draft domain.TaskDraft) *domain.Task {
	t.Helper()
	created, err := tasks.Create(context.Background(), "u1", draft)
	require.NoError(t, err)
	return created
}

func dueOn(y int, m time.Month, d int) *time.Time {
	v := time.Date(y, m, d, 9, 0, 0, 0, time.UTC)
	return &v
}

func allTasks(t *testing.T, tasks repository.TaskRepository) []domain.Task {
	t.Helper()
	items, err := tasks.List(context.Background(), repository.TaskFilter{OwnerID: "u1"})
	require.NoError(t, err)
	return items
}

func TestCompleteTask_SpawnsNextMonthlyOccurrence(t *testing.T) {
	ctx := context.Background()
	tasks := memory.NewStore().Tasks()
	uc := New(tasks, nil, nil)

	desc := "landlord"
	rent := seed(t, tasks, domain.TaskDraft{
		Title:       "Pay rent",
		Description: &desc,
		Priority:    domain.PriorityHigh,
		Tags:        []string{"home", "bills"},
		DueDate:     dueOn(2024, 1, 1),
		Recurrence:  domain.RecurrenceMonthly,
	})

	got, found, err := uc.CompleteTask(ctx, rent.ID, "u1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, rent.ID, got.ID)
	assert.True(t, got.Completed)
	assert.Equal(t, *dueOn(2024, 1, 1), *got.DueDate, "the completed task keeps its due date")

	items := allTasks(t, tasks)
	require.Len(t, items, 2)

	var spawned *domain.Task
	for i := range items {
		if items[i].ID != rent.ID {
			spawned = &items[i]
		}
	}
	require.NotNil(t, spawned)
	assert.False(t, spawned.Completed)
	assert.Equal(t, *dueOn(2024, 2, 1), *spawned.DueDate)
	assert.Equal(t, "Pay rent", spawned.Title)
	assert.Equal(t, "landlord", *spawned.Description)
	assert.Equal(t, domain.PriorityHigh, spawned.Priority)
	assert.Equal(t, []string{"home", "bills"}, spawned.Tags)
	assert.Equal(t, domain.RecurrenceMonthly, spawned.Recurrence)
	assert.Equal(t, SpawnID(rent.ID, *dueOn(2024, 2, 1)), spawned.ID)
}

func TestCompleteTask_NoSpawnCases(t *testing.T) {
	testCases := []struct {
		name  string
		draft domain.TaskDraft
	}{
		{"not recurring", domain.TaskDraft{Title: "once", DueDate: dueOn(2024, 1, 1)}},
		{"recurring without due date", domain.TaskDraft{Title: "someday", Recurrence: domain.RecurrenceWeekly}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tasks := memory.NewStore().Tasks()
			uc := New(tasks, nil, nil)
			task := seed(t, tasks, tc.draft)

			_, found, err := uc.CompleteTask(context.Background(), task.ID, "u1")
			require.NoError(t, err)
			assert.True(t, found)
			assert.Len(t, allTasks(t, tasks), 1)
		})
	}
}

func TestCompleteTask_NotFound(t *testing.T) {
	tasks := memory.NewStore().Tasks()
	uc := New(tasks, nil, nil)
	task := seed(t, tasks, domain.TaskDraft{Title: "mine"})

	got, found, err := uc.CompleteTask(context.Background(), "missing", "u1")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, got)

	got, found, err = uc.CompleteTask(context.Background(), task.ID, "someone-else")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, got)
}

func TestCompleteTask_AlreadyCompletedDoesNotSpawnAgain(t *testing.T) {
	ctx := context.Background()
	tasks := memory.NewStore().Tasks()
	uc := New(tasks, nil, nil)
	task := seed(t, tasks, domain.TaskDraft{Title: "standup", DueDate: dueOn(2024, 5, 6), Recurrence: domain.RecurrenceDaily})

	_, _, err := uc.CompleteTask(ctx, task.ID, "u1")
	require.NoError(t, err)
	got, found, err := uc.CompleteTask(ctx, task.ID, "u1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, got.Completed)

	assert.Len(t, allTasks(t, tasks), 2)
}

func TestCompleteTask_RecompleteAfterUndoReusesSpawn(t *testing.T) {
	ctx := context.Background()
	tasks := memory.NewStore().Tasks()
	uc := New(tasks, nil, nil)
	task := seed(t, tasks, domain.TaskDraft{Title: "water plants", DueDate: dueOn(2024, 5, 6), Recurrence: domain.CustomRecurrence(3, domain.UnitDay)})

	_, _, err := uc.CompleteTask(ctx, task.ID, "u1")
	require.NoError(t, err)
	_, found, err := uc.UncompleteTask(ctx, task.ID, "u1")
	require.NoError(t, err)
	require.True(t, found)
	_, _, err = uc.CompleteTask(ctx, task.ID, "u1")
	require.NoError(t, err)

	assert.Len(t, allTasks(t, tasks), 2, "the deterministic spawn id absorbs the second spawn")
}

func TestCompleteTask_SpawnFailureIsBufferedNotReturned(t *testing.T) {
	ctx := context.Background()
	base := memory.NewStore().Tasks()
	task := seed(t, base, domain.TaskDraft{Title: "invoice", DueDate: dueOn(2024, 1, 31), Recurrence: domain.RecurrenceMonthly})

	core, logs := observer.New(zapcore.InfoLevel)
	spawnErr := domain.WrapError(domain.ErrCodeUnavailable, "postgres unavailable", errors.New("connection refused"))
	flaky := &flakyTasks{TaskRepository: base, createErr: spawnErr}
	buf := &fakeSpawnBuffer{}
	uc := New(flaky, buf, zap.New(core))

	got, found, err := uc.CompleteTask(ctx, task.ID, "u1")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, got.Completed)

	require.Len(t, buf.calls, 1)
	call := buf.calls[0]
	assert.Equal(t, "u1", call.ownerID)
	assert.Equal(t, task.ID, call.parentID)
	assert.Equal(t, SpawnID(task.ID, *dueOn(2024, 2, 29)), call.draft.ID)
	assert.Equal(t, *dueOn(2024, 2, 29), *call.draft.DueDate)
	assert.ErrorIs(t, call.cause, spawnErr)

	assert.Equal(t, 1, logs.FilterMessage("failed to spawn next occurrence").Len())
	assert.Equal(t, 1, logs.FilterMessage("spawn buffered for retry").Len())

	stored, err := base.GetByID(ctx, task.ID, "u1")
	require.NoError(t, err)
	assert.True(t, stored.Completed, "completion survives the failed spawn")
}

func TestCompleteTask_SpawnFailureWithoutBuffer(t *testing.T) {
	base := memory.NewStore().Tasks()
	task := seed(t, base, domain.TaskDraft{Title: "invoice", DueDate: dueOn(2024, 1, 31), Recurrence: domain.RecurrenceWeekly})
	uc := New(&flakyTasks{TaskRepository: base, createErr: errors.New("boom")}, nil, nil)

	_, found, err := uc.CompleteTask(context.Background(), task.ID, "u1")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestCompleteTask_StoreFailureIsReturned(t *testing.T) {
	base := memory.NewStore().Tasks()
	task := seed(t, base, domain.TaskDraft{Title: "invoice", DueDate: dueOn(2024, 1, 31), Recurrence: domain.RecurrenceWeekly})
	storeErr := errors.New("write failed")
	uc := New(&flakyTasks{TaskRepository: base, completeErr: storeErr}, nil, nil)

	got, found, err := uc.CompleteTask(context.Background(), task.ID, "u1")
	assert.ErrorIs(t, err, storeErr)
	assert.False(t, found)
	assert.Nil(t, got)
	assert.Len(t, allTasks(t, base), 1)
}

func TestUncompleteTask(t *testing.T) {
	ctx := context.Background()
	tasks := memory.NewStore().Tasks()
	uc := New(tasks, nil, nil)
	task := seed(t, tasks, domain.TaskDraft{Title: "gym", DueDate: dueOn(2024, 1, 1), Recurrence: domain.RecurrenceDaily})
	_, _, err := tasks.MarkComplete(ctx, task.ID, "u1")
	require.NoError(t, err)

	got, found, err := uc.UncompleteTask(ctx, task.ID, "u1")
	require.NoError(t, err)
	require.True(t, found)
	assert.False(t, got.Completed)
	assert.Len(t, allTasks(t, tasks), 1, "uncompleting never spawns")

	_, found, err = uc.UncompleteTask(ctx, task.ID, "u2")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestUpdateTask_KeepsCompletion(t *testing.T) {
	ctx := context.Background()
	tasks := memory.NewStore().Tasks()
	uc := New(tasks, nil, nil)
	task := seed(t, tasks, domain.TaskDraft{Title: "draft"})
	_, _, err := tasks.MarkComplete(ctx, task.ID, "u1")
	require.NoError(t, err)

	updated, err := uc.UpdateTask(ctx, task.ID, "u1", domain.TaskDraft{Title: "final", Priority: domain.PriorityLow})
	require.NoError(t, err)
	assert.Equal(t, "final", updated.Title)
	assert.True(t, updated.Completed)

	_, err = uc.UpdateTask(ctx, task.ID, "u1", domain.TaskDraft{Title: "x", Recurrence: "hourly"})
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalidPattern))

	_, err = uc.UpdateTask(ctx, "missing", "u1", domain.TaskDraft{Title: "x"})
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
}

func TestCreateTask_IgnoresCallerID(t *testing.T) {
	uc := New(memory.NewStore().Tasks(), nil, nil)
	created, err := uc.CreateTask(context.Background(), "u1", domain.TaskDraft{ID: "chosen", Title: "x"})
	require.NoError(t, err)
	assert.NotEqual(t, "chosen", created.ID)
}

func TestSpawnID_Deterministic(t *testing.T) {
	next := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, SpawnID("t1", next), SpawnID("t1", next))
	assert.Equal(t, SpawnID("t1", next), SpawnID("t1", next.In(time.FixedZone("x", 3600))))
	assert.NotEqual(t, SpawnID("t1", next), SpawnID("t2", next))
	assert.NotEqual(t, SpawnID("t1", next), SpawnID("t1", next.AddDate(0, 1, 0)))
}
