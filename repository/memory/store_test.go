package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/taskpilot/domain"
	"github.com/fastygo/taskpilot/repository"
)

func TestTasks_OwnerScopingAndTransitions(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	tasks := store.Tasks()

	created, err := tasks.Create(ctx, "u1", domain.TaskDraft{Title: " Pay rent "})
	require.NoError(t, err)
	assert.Equal(t, "Pay rent", created.Title)
	assert.Equal(t, domain.PriorityMedium, created.Priority)

	_, err = tasks.GetByID(ctx, created.ID, "u2")
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)

	_, _, err = tasks.MarkComplete(ctx, created.ID, "u2")
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)

	done, transitioned, err := tasks.MarkComplete(ctx, created.ID, "u1")
	require.NoError(t, err)
	assert.True(t, done.Completed)
	assert.True(t, transitioned)

	_, transitioned, err = tasks.MarkComplete(ctx, created.ID, "u1")
	require.NoError(t, err)
	assert.False(t, transitioned)

	undone, err := tasks.MarkIncomplete(ctx, created.ID, "u1")
	require.NoError(t, err)
	assert.False(t, undone.Completed)
}

func TestTasks_CreateWithIDIsIdempotent(t *testing.T) {
	ctx := context.Background()
	tasks := NewStore().Tasks()

	first, err := tasks.Create(ctx, "u1", domain.TaskDraft{ID: "spawn-1", Title: "a"})
	require.NoError(t, err)
	again, err := tasks.Create(ctx, "u1", domain.TaskDraft{ID: "spawn-1", Title: "b"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "a", again.Title)

	all, err := tasks.List(ctx, repository.TaskFilter{OwnerID: "u1"})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestTasks_FindOverdueOrdering(t *testing.T) {
	ctx := context.Background()
	tasks := NewStore().Tasks()
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	mk := func(title string, due time.Time) {
		_, err := tasks.Create(ctx, "u1", domain.TaskDraft{Title: title, DueDate: &due})
		require.NoError(t, err)
	}
	mk("newer", now.Add(-time.Hour))
	mk("oldest", now.Add(-72*time.Hour))
	mk("future", now.Add(time.Hour))
	mk("exact", now)

	overdue, err := tasks.FindOverdue(ctx, "u1", now, 10)
	require.NoError(t, err)
	require.Len(t, overdue, 2)
	assert.Equal(t, "oldest", overdue[0].Title)
	assert.Equal(t, "newer", overdue[1].Title)

	limited, err := tasks.FindOverdue(ctx, "u1", now, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSuggestions_DedupAndConsumerOps(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	suggestions := store.Suggestions()
	due := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	draft := domain.SuggestionDraft{OwnerID: "u1", TaskID: "t1", Type: domain.SuggestionOverdueReminder, Message: "m", Occurrence: due}
	created, err := suggestions.Create(ctx, draft)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = suggestions.Create(ctx, draft)
	require.NoError(t, err)
	assert.False(t, created)

	draft.Occurrence = due.AddDate(0, 1, 0)
	created, err = suggestions.Create(ctx, draft)
	require.NoError(t, err)
	assert.True(t, created, "a new occurrence of the same task is a new suggestion")

	items, total, err := suggestions.List(ctx, repository.SuggestionFilter{OwnerID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, items, 2)

	dismissed, err := suggestions.Dismiss(ctx, items[0].ID, "u1")
	require.NoError(t, err)
	assert.True(t, dismissed.Dismissed)

	_, err = suggestions.Dismiss(ctx, items[0].ID, "u2")
	assert.ErrorIs(t, err, domain.ErrSuggestionNotFound)

	counts, err := suggestions.Counts(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Total)
	assert.Equal(t, 1, counts.Active)
	assert.Equal(t, 1, counts.Dismissed)
	assert.Equal(t, 1, counts.ByType[domain.SuggestionOverdueReminder])

	active := false
	items, total, err = suggestions.List(ctx, repository.SuggestionFilter{OwnerID: "u1", Dismissed: &active})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)

	require.NoError(t, suggestions.Delete(ctx, items[0].ID, "u1"))
	assert.ErrorIs(t, suggestions.Delete(ctx, items[0].ID, "u1"), domain.ErrSuggestionNotFound)
}

func TestUsers_ListAgentEnabledSorted(t *testing.T) {
	ctx := context.Background()
	users := NewStore().Users()

	for _, u := range []domain.User{{ID: "c", AgentsEnabled: true}, {ID: "a", AgentsEnabled: true}, {ID: "b"}} {
		u := u
		require.NoError(t, users.Upsert(ctx, &u))
	}

	ids, err := users.ListAgentEnabled(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, ids)

	got, err := users.GetByID(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "active", got.Status)

	_, err = users.GetByID(ctx, "zzz")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestTasks_ReturnedCopiesAreDetached(t *testing.T) {
	ctx := context.Background()
	tasks := NewStore().Tasks()

	desc, category, offset := "original", "home", 30
	due := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	created, err := tasks.Create(ctx, "u1", domain.TaskDraft{
		Title:                 "a",
		Description:           &desc,
		Category:              &category,
		DueDate:               &due,
		Tags:                  []string{"x"},
		ReminderOffsetMinutes: &offset,
	})
	require.NoError(t, err)

	// writes through the draft's pointers must not reach the stored row
	desc, category, offset = "draft-edit", "draft-edit", 1
	due = due.AddDate(1, 0, 0)

	// nor writes through a returned task
	*created.Description = "edited"
	*created.Category = "edited"
	*created.ReminderOffsetMinutes = 999
	*created.DueDate = time.Time{}
	created.Tags[0] = "edited"

	got, err := tasks.GetByID(ctx, created.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, "original", *got.Description)
	assert.Equal(t, "home", *got.Category)
	assert.Equal(t, 30, *got.ReminderOffsetMinutes)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *got.DueDate)
	assert.Equal(t, []string{"x"}, got.Tags)
}
