package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
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

var now = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

type gateFunc func(identityID string) (bool, error)

func (f gateFunc) Check(_ context.Context, identityID string) (bool, error) { return f(identityID) }

func allowAll() RateGate { return gateFunc(func(string) (bool, error) { return true, nil }) }

// countingSink fails once calls reaches failAt (1-based); zero never fails.
type countingSink struct {
	SuggestionSink
	mu     sync.Mutex
	calls  int
	failAt int
	err    error
}

func (s *countingSink) Create(ctx context.Context, draft domain.SuggestionDraft) (bool, error) {
	s.mu.Lock()
	s.calls++
	fail := s.failAt > 0 && s.calls >= s.failAt
	s.mu.Unlock()
	if fail {
		return false, s.err
	}
	return s.SuggestionSink.Create(ctx, draft)
}

type fixture struct {
	store *memory.Store
	users repository.UserRepository
	tasks repository.TaskRepository
	sugg  repository.SuggestionRepository
}

func newFixture(t *testing.T, identities ...string) *fixture {
	t.Helper()
	store := memory.NewStore()
	f := &fixture{store: store, users: store.Users(), tasks: store.Tasks(), sugg: store.Suggestions()}
	for _, id := range identities {
		require.NoError(t, f.users.Upsert(context.Background(), &domain.User{ID: id, AgentsEnabled: true}))
	}
	return f
}

func (f *fixture) overdue(t *testing.T, owner, title string, age time.Duration) *domain.Task {
	t.Helper()
	due := now.Add(-age)
	task, err := f.tasks.Create(context.Background(), owner, domain.TaskDraft{Title: title, Priority: domain.PriorityHigh, DueDate: &due})
	require.NoError(t, err)
	return task
}

func (f *fixture) agent(gate RateGate, cfg Config, opts ...Option) *Agent {
	opts = append([]Option{WithClock(func() time.Time { return now })}, opts...)
	return New(f.users, gate, f.tasks, f.sugg, cfg, opts...)
}

func (f *fixture) suggestions(t *testing.T, owner string) []domain.Suggestion {
	t.Helper()
	items, _, err := f.sugg.List(context.Background(), repository.SuggestionFilter{OwnerID: owner, Limit: 100})
	require.NoError(t, err)
	return items
}

func byTask(items []domain.Suggestion) map[string]domain.Suggestion {
	out := make(map[string]domain.Suggestion, len(items))
	for _, s := range items {
		out[s.TaskID] = s
	}
	return out
}

func TestRun_DayBoundaries(t *testing.T) {
	f := newFixture(t, "u1")
	almost := f.overdue(t, "u1", "almost", 23*time.Hour+59*time.Minute)
	oneDay := f.overdue(t, "u1", "one day", 24*time.Hour)
	stillOne := f.overdue(t, "u1", "still one", 47*time.Hour+59*time.Minute)
	twoDays := f.overdue(t, "u1", "two days", 48*time.Hour)

	summary, err := f.agent(allowAll(), Config{}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, summary.ProcessedTasks, "skipped tasks still count as processed")
	assert.Equal(t, 3, summary.SuggestionsCreated)
	assert.Equal(t, 1, summary.UsersProcessed)
	assert.Zero(t, summary.UsersSkipped)

	got := byTask(f.suggestions(t, "u1"))
	require.Len(t, got, 3)
	assert.NotContains(t, got, almost.ID)
	assert.Equal(t, `Task "one day" is 1 day overdue. Consider updating its due date or marking it complete.`, got[oneDay.ID].Message)
	assert.Equal(t, `Task "still one" is 1 day overdue. Consider updating its due date or marking it complete.`, got[stillOne.ID].Message)
	assert.Equal(t, `Task "two days" is 2 days overdue. Consider updating its due date or marking it complete.`, got[twoDays.ID].Message)

	meta := got[twoDays.ID].Metadata
	assert.Equal(t, 2, meta["daysOverdue"])
	assert.Equal(t, "two days", meta["taskTitle"])
	assert.Equal(t, "high", meta["taskPriority"])
	assert.Equal(t, "2024-03-08T12:00:00.000Z", meta["dueDate"])
	assert.Equal(t, domain.SuggestionOverdueReminder, got[twoDays.ID].Type)
	assert.False(t, got[twoDays.ID].Dismissed)
}

func TestRun_SecondRunIsIdempotent(t *testing.T) {
	f := newFixture(t, "u1")
	f.overdue(t, "u1", "a", 72*time.Hour)
	f.overdue(t, "u1", "b", 30*time.Hour)
	agent := f.agent(allowAll(), Config{})

	first, err := agent.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, first.SuggestionsCreated)

	second, err := agent.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, second.ProcessedTasks)
	assert.Zero(t, second.SuggestionsCreated)
	assert.Len(t, f.suggestions(t, "u1"), 2)
}

func TestRun_RateGatedIdentityContributesNothing(t *testing.T) {
	f := newFixture(t, "u1", "u2")
	f.overdue(t, "u1", "a", 72*time.Hour)
	f.overdue(t, "u2", "b", 72*time.Hour)

	gate := gateFunc(func(id string) (bool, error) { return id != "u2", nil })
	summary, err := f.agent(gate, Config{}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.UsersProcessed)
	assert.Equal(t, 1, summary.UsersSkipped)
	// every enabled identity is accounted for exactly once
	assert.Equal(t, 2, summary.UsersProcessed+summary.UsersSkipped)
	assert.Equal(t, 1, summary.ProcessedTasks)
	assert.Equal(t, 1, summary.SuggestionsCreated)
	assert.Empty(t, f.suggestions(t, "u2"))
}

func TestRun_BatchCapOldestFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "u1")
	var tasks []*domain.Task
	for i := 0; i < 120; i++ {
		// i=0 is the oldest
		tasks = append(tasks, f.overdue(t, "u1", fmt.Sprintf("task-%03d", i), time.Duration(240-i)*time.Hour))
	}
	agent := f.agent(allowAll(), Config{})

	first, err := agent.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100, first.ProcessedTasks)
	assert.Equal(t, 100, first.SuggestionsCreated)

	items, total, err := f.sugg.List(ctx, repository.SuggestionFilter{OwnerID: "u1", Limit: 100})
	require.NoError(t, err)
	assert.Equal(t, 100, total)
	got := byTask(items)
	for i, task := range tasks {
		_, ok := got[task.ID]
		assert.Equal(t, i < 100, ok, "task %d", i)
	}

	// the owner deals with the oldest hundred
	for _, task := range tasks[:100] {
		_, _, err := f.tasks.MarkComplete(ctx, task.ID, "u1")
		require.NoError(t, err)
	}

	second, err := agent.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, second.ProcessedTasks)
	assert.Equal(t, 20, second.SuggestionsCreated)
}

func TestRun_NoIdentities(t *testing.T) {
	f := newFixture(t)
	summary, err := f.agent(allowAll(), Config{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunSummary{}, summary)
}

func TestRun_CompletedAndFutureTasksIgnored(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "u1")
	done := f.overdue(t, "u1", "done", 72*time.Hour)
	_, _, err := f.tasks.MarkComplete(ctx, done.ID, "u1")
	require.NoError(t, err)
	f.overdue(t, "u1", "future", -time.Hour)
	_, err = f.tasks.Create(ctx, "u1", domain.TaskDraft{Title: "undated"})
	require.NoError(t, err)

	summary, err := f.agent(allowAll(), Config{}).Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.ProcessedTasks)
	assert.Zero(t, summary.SuggestionsCreated)
	assert.Equal(t, 1, summary.UsersProcessed)
}

func TestRun_SinkFailureAbortsWithPartialSummary(t *testing.T) {
	f := newFixture(t, "u1", "u2")
	f.overdue(t, "u1", "a", 72*time.Hour)
	f.overdue(t, "u1", "b", 48*time.Hour)
	f.overdue(t, "u2", "c", 48*time.Hour)

	sinkErr := domain.WrapError(domain.ErrCodeUnavailable, "postgres unavailable", errors.New("reset"))
	sink := &countingSink{SuggestionSink: f.sugg, failAt: 2, err: sinkErr}

	core, logs := observer.New(zapcore.InfoLevel)
	agent := New(f.users, allowAll(), f.tasks, sink, Config{},
		WithClock(func() time.Time { return now }),
		WithReporter(NewZapReporter(zap.New(core))))

	summary, err := agent.Run(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeRunAborted))
	assert.ErrorIs(t, err, sinkErr)

	assert.Equal(t, 1, summary.SuggestionsCreated)
	assert.Equal(t, 2, summary.ProcessedTasks)
	assert.Equal(t, 1, summary.UsersProcessed)
	assert.Empty(t, f.suggestions(t, "u2"), "no identity is touched after the failure")

	failed := logs.FilterMessage("overdue agent run failed").All()
	require.Len(t, failed, 1)
	assert.NotEmpty(t, failed[0].ContextMap()["run_id"])
	assert.Equal(t, int64(1), failed[0].ContextMap()["suggestions_created"])
}

func TestRun_GateAndDirectoryFailuresAbort(t *testing.T) {
	gateErr := errors.New("redis down")
	f := newFixture(t, "u1")
	_, err := f.agent(gateFunc(func(string) (bool, error) { return false, gateErr }), Config{}).Run(context.Background())
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeRunAborted))
	assert.ErrorIs(t, err, gateErr)

	dirErr := errors.New("directory offline")
	agent := New(directoryFunc(func() ([]string, error) { return nil, dirErr }), allowAll(), f.tasks, f.sugg, Config{})
	_, err = agent.Run(context.Background())
	assert.ErrorIs(t, err, dirErr)
}

type directoryFunc func() ([]string, error)

func (f directoryFunc) ListAgentEnabled(context.Context) ([]string, error) { return f() }

func TestRun_CancelledContext(t *testing.T) {
	f := newFixture(t, "u1")
	f.overdue(t, "u1", "a", 72*time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary, err := f.agent(allowAll(), Config{}).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, summary.SuggestionsCreated)
}

func TestRun_WorkerPool(t *testing.T) {
	ids := []string{"u1", "u2", "u3", "u4", "u5"}
	f := newFixture(t, ids...)
	for _, id := range ids {
		f.overdue(t, id, "a", 72*time.Hour)
		f.overdue(t, id, "b", 26*time.Hour)
		f.overdue(t, id, "fresh", time.Hour)
	}
	gate := gateFunc(func(id string) (bool, error) { return id != "u3", nil })

	summary, err := f.agent(gate, Config{Concurrency: 3}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, summary.UsersProcessed)
	assert.Equal(t, 1, summary.UsersSkipped)
	assert.Equal(t, 12, summary.ProcessedTasks)
	assert.Equal(t, 8, summary.SuggestionsCreated)

	again, err := f.agent(gate, Config{Concurrency: 3}).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, again.SuggestionsCreated)
}

func TestRun_WorkerPoolFailFast(t *testing.T) {
	ids := []string{"u1", "u2", "u3", "u4"}
	f := newFixture(t, ids...)
	for _, id := range ids {
		f.overdue(t, id, "a", 72*time.Hour)
	}
	sinkErr := errors.New("insert failed")
	sink := &countingSink{SuggestionSink: f.sugg, failAt: 1, err: sinkErr}

	agent := New(f.users, allowAll(), f.tasks, sink, Config{Concurrency: 2}, WithClock(func() time.Time { return now }))
	summary, err := agent.Run(context.Background())
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeRunAborted))
	assert.Zero(t, summary.SuggestionsCreated)
}

func TestDaysOverdue(t *testing.T) {
	assert.Equal(t, 0, DaysOverdue(now.Add(-23*time.Hour), now))
	assert.Equal(t, 1, DaysOverdue(now.Add(-24*time.Hour), now))
	assert.Equal(t, 1, DaysOverdue(now.Add(-47*time.Hour-59*time.Minute), now))
	assert.Equal(t, 2, DaysOverdue(now.Add(-48*time.Hour), now))
	assert.Equal(t, -1, DaysOverdue(now.Add(time.Hour), now))
}

func TestOverdueMessage(t *testing.T) {
	assert.Equal(t, `Task "x" is 1 day overdue. Consider updating its due date or marking it complete.`, OverdueMessage("x", 1))
	assert.Equal(t, `Task "x" is 7 days overdue. Consider updating its due date or marking it complete.`, OverdueMessage("x", 7))
}
