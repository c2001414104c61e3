// Package memory holds process-local repositories used for development runs and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fastygo/taskpilot/domain"
	"github.com/fastygo/taskpilot/repository"
)

// Store keeps users, tasks and suggestions in maps guarded by one mutex. It implements
// the user, task and suggestion repositories with the same contracts as the Postgres ones.
type Store struct {
	mu          sync.Mutex
	users       map[string]domain.User
	tasks       map[string]domain.Task
	suggestions map[string]domain.Suggestion
	occurrences map[occurrenceKey]string
	now         func() time.Time
}

type occurrenceKey struct {
	taskID string
	kind   domain.SuggestionType
	due    int64
}

func NewStore() *Store {
	return &Store{
		users:       make(map[string]domain.User),
		tasks:       make(map[string]domain.Task),
		suggestions: make(map[string]domain.Suggestion),
		occurrences: make(map[occurrenceKey]string),
		now:         time.Now,
	}
}

// SetClock replaces the timestamp source. Intended for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// Users, Tasks and Suggestions expose the store through the repository interfaces.
func (s *Store) Users() repository.UserRepository             { return userRepo{s} }
func (s *Store) Tasks() repository.TaskRepository             { return taskRepo{s} }
func (s *Store) Suggestions() repository.SuggestionRepository { return suggestionRepo{s} }

type userRepo struct{ s *Store }

func (r userRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &u, nil
}

func (r userRepo) Upsert(_ context.Context, user *domain.User) error {
	if user == nil || user.ID == "" {
		return domain.ErrInvalidPayload
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	if prev, ok := r.s.users[user.ID]; ok {
		user.CreatedAt = prev.CreatedAt
	} else if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.Status == "" {
		user.Status = "active"
	}
	user.UpdatedAt = now
	r.s.users[user.ID] = *user
	return nil
}

func (r userRepo) ListAgentEnabled(_ context.Context) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ids := make([]string, 0, len(r.s.users))
	for id, u := range r.s.users {
		if u.AgentsEnabled {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

type taskRepo struct{ s *Store }

func (r taskRepo) GetByID(_ context.Context, id, ownerID string) (*domain.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.owned(id, ownerID)
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	return copyTask(t), nil
}

func (r taskRepo) List(_ context.Context, filter repository.TaskFilter) ([]domain.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []domain.Task
	for _, t := range r.s.tasks {
		if t.OwnerID != filter.OwnerID {
			continue
		}
		if filter.Completed != nil && t.Completed != *filter.Completed {
			continue
		}
		if filter.Tag != "" && !hasTag(t.Tags, filter.Tag) {
			continue
		}
		out = append(out, *copyTask(t))
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].DueDate, out[j].DueDate
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.Before(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return page(out, filter.Offset, filter.Limit), nil
}

func (r taskRepo) Create(_ context.Context, ownerID string, draft domain.TaskDraft) (*domain.Task, error) {
	if ownerID == "" {
		return nil, domain.ErrInvalidPayload
	}
	draft.Normalize()
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	id := draft.ID
	if id == "" {
		id = uuid.NewString()
	}
	if existing, ok := r.s.tasks[id]; ok {
		if existing.OwnerID != ownerID {
			return nil, domain.ErrTaskNotFound
		}
		return copyTask(existing), nil
	}

	now := r.s.now()
	t := domain.Task{
		ID:                    id,
		OwnerID:               ownerID,
		Title:                 draft.Title,
		Description:           draft.Description,
		Priority:              draft.Priority,
		Tags:                  append([]string{}, draft.Tags...),
		Category:              draft.Category,
		DueDate:               draft.DueDate,
		Recurrence:            draft.Recurrence,
		ReminderEnabled:       draft.ReminderEnabled,
		ReminderOffsetMinutes: draft.ReminderOffsetMinutes,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	r.s.tasks[id] = *copyTask(t)
	return copyTask(t), nil
}

func (r taskRepo) Update(_ context.Context, task *domain.Task) error {
	if task == nil {
		return domain.ErrInvalidPayload
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	prev, ok := r.s.owned(task.ID, task.OwnerID)
	if !ok {
		return domain.ErrTaskNotFound
	}
	task.Completed = prev.Completed
	task.CreatedAt = prev.CreatedAt
	task.UpdatedAt = r.s.now()
	r.s.tasks[task.ID] = *copyTask(*task)
	return nil
}

func (r taskRepo) Delete(_ context.Context, id, ownerID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.owned(id, ownerID); !ok {
		return domain.ErrTaskNotFound
	}
	delete(r.s.tasks, id)
	for key, sid := range r.s.occurrences {
		if key.taskID == id {
			delete(r.s.suggestions, sid)
			delete(r.s.occurrences, key)
		}
	}
	return nil
}

func (r taskRepo) MarkComplete(_ context.Context, id, ownerID string) (*domain.Task, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.owned(id, ownerID)
	if !ok {
		return nil, false, domain.ErrTaskNotFound
	}
	if t.Completed {
		return copyTask(t), false, nil
	}
	t.Completed = true
	t.UpdatedAt = r.s.now()
	r.s.tasks[id] = t
	return copyTask(t), true, nil
}

func (r taskRepo) MarkIncomplete(_ context.Context, id, ownerID string) (*domain.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.owned(id, ownerID)
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	t.Completed = false
	t.UpdatedAt = r.s.now()
	r.s.tasks[id] = *copyTask(t)
	return copyTask(t), nil
}

func (r taskRepo) FindOverdue(_ context.Context, ownerID string, now time.Time, limit int) ([]domain.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []domain.Task
	for _, t := range r.s.tasks {
		if t.OwnerID == ownerID && t.IsOverdue(now) {
			out = append(out, *copyTask(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(*out[j].DueDate) {
			return out[i].DueDate.Before(*out[j].DueDate)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type suggestionRepo struct{ s *Store }

func (r suggestionRepo) Create(_ context.Context, draft domain.SuggestionDraft) (bool, error) {
	if draft.OwnerID == "" || draft.TaskID == "" || draft.Type == "" || draft.Occurrence.IsZero() {
		return false, domain.ErrInvalidPayload
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := occurrenceKey{taskID: draft.TaskID, kind: draft.Type, due: draft.Occurrence.UnixNano()}
	if _, exists := r.s.occurrences[key]; exists {
		return false, nil
	}
	s := domain.Suggestion{
		ID:        uuid.NewString(),
		OwnerID:   draft.OwnerID,
		TaskID:    draft.TaskID,
		Type:      draft.Type,
		Message:   draft.Message,
		Metadata:  draft.Metadata,
		CreatedAt: r.s.now(),
	}
	r.s.suggestions[s.ID] = s
	r.s.occurrences[key] = s.ID
	return true, nil
}

func (r suggestionRepo) List(_ context.Context, filter repository.SuggestionFilter) ([]domain.Suggestion, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []domain.Suggestion
	for _, s := range r.s.suggestions {
		if s.OwnerID != filter.OwnerID {
			continue
		}
		if filter.Type != "" && s.Type != filter.Type {
			continue
		}
		if filter.Dismissed != nil && s.Dismissed != *filter.Dismissed {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return page(out, filter.Offset, filter.Limit), len(out), nil
}

func (r suggestionRepo) Counts(_ context.Context, ownerID string) (domain.SuggestionCounts, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	counts := domain.SuggestionCounts{ByType: map[domain.SuggestionType]int{}}
	for _, s := range r.s.suggestions {
		if s.OwnerID != ownerID {
			continue
		}
		counts.Total++
		if s.Dismissed {
			counts.Dismissed++
			continue
		}
		counts.Active++
		counts.ByType[s.Type]++
	}
	return counts, nil
}

func (r suggestionRepo) Dismiss(_ context.Context, id, ownerID string) (*domain.Suggestion, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	s, ok := r.s.suggestions[id]
	if !ok || s.OwnerID != ownerID {
		return nil, domain.ErrSuggestionNotFound
	}
	s.Dismissed = true
	r.s.suggestions[id] = s
	return &s, nil
}

func (r suggestionRepo) Delete(_ context.Context, id, ownerID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	s, ok := r.s.suggestions[id]
	if !ok || s.OwnerID != ownerID {
		return domain.ErrSuggestionNotFound
	}
	delete(r.s.suggestions, id)
	for key, sid := range r.s.occurrences {
		if sid == id {
			delete(r.s.occurrences, key)
		}
	}
	return nil
}

func (s *Store) owned(id, ownerID string) (domain.Task, bool) {
	t, ok := s.tasks[id]
	if !ok || t.OwnerID != ownerID {
		return domain.Task{}, false
	}
	return t, true
}

// copyTask detaches every reference field so callers cannot write through to stored rows.
func copyTask(t domain.Task) *domain.Task {
	t.Tags = append([]string{}, t.Tags...)
	t.Description = clonePtr(t.Description)
	t.Category = clonePtr(t.Category)
	t.DueDate = clonePtr(t.DueDate)
	t.ReminderOffsetMinutes = clonePtr(t.ReminderOffsetMinutes)
	return &t
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func page[T any](items []T, offset, limit int) []T {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}
