package domain

import (
	"strings"
	"time"
)

// Priority ranks a task for display and reminder wording.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Task represents a user-owned activity item.
type Task struct {
	ID                    string            `json:"id"`
	OwnerID               string            `json:"owner_id"`
	Title                 string            `json:"title"`
	Description           *string           `json:"description,omitempty"`
	Priority              Priority          `json:"priority"`
	Tags                  []string          `json:"tags"`
	Category              *string           `json:"category,omitempty"`
	Completed             bool              `json:"completed"`
	DueDate               *time.Time        `json:"due_date,omitempty"`
	Recurrence            RecurrencePattern `json:"recurrence_pattern,omitempty"`
	ReminderEnabled       bool              `json:"reminder_enabled"`
	ReminderOffsetMinutes *int              `json:"reminder_offset_minutes,omitempty"`
	CreatedAt             time.Time         `json:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at"`
}

// IsOverdue reports whether an incomplete task's due date lies strictly before now.
func (t *Task) IsOverdue(now time.Time) bool {
	return t != nil && !t.Completed && t.DueDate != nil && t.DueDate.Before(now)
}

// Draft extracts the descriptive fields used to clone the task into a new occurrence.
// Completion state, identity and timestamps are not carried over.
func (t *Task) Draft() TaskDraft {
	d := TaskDraft{
		Title:           t.Title,
		Description:     cloneString(t.Description),
		Priority:        t.Priority,
		Tags:            append([]string(nil), t.Tags...),
		Category:        cloneString(t.Category),
		Recurrence:      t.Recurrence,
		ReminderEnabled: t.ReminderEnabled,
	}
	if t.ReminderOffsetMinutes != nil {
		v := *t.ReminderOffsetMinutes
		d.ReminderOffsetMinutes = &v
	}
	return d
}

// TaskDraft carries the fields required to create a task. ID is optional; when set the
// store must treat creation as idempotent for that id.
type TaskDraft struct {
	ID                    string            `json:"id,omitempty"`
	Title                 string            `json:"title"`
	Description           *string           `json:"description,omitempty"`
	Priority              Priority          `json:"priority"`
	Tags                  []string          `json:"tags,omitempty"`
	Category              *string           `json:"category,omitempty"`
	DueDate               *time.Time        `json:"due_date,omitempty"`
	Recurrence            RecurrencePattern `json:"recurrence_pattern,omitempty"`
	ReminderEnabled       bool              `json:"reminder_enabled"`
	ReminderOffsetMinutes *int              `json:"reminder_offset_minutes,omitempty"`
}

// Normalize applies defaults and trims free-form fields.
func (d *TaskDraft) Normalize() {
	d.Title = strings.TrimSpace(d.Title)
	if d.Priority == "" {
		d.Priority = PriorityMedium
	}
	if d.Recurrence == "" {
		d.Recurrence = RecurrenceNone
	}
	if d.Tags == nil {
		d.Tags = []string{}
	}
}

// Validate checks the draft before it reaches a store.
func (d *TaskDraft) Validate() error {
	if d.Title == "" {
		return NewError(ErrCodeInvalid, "title is required")
	}
	if !d.Priority.Valid() {
		return NewError(ErrCodeInvalid, "unknown priority "+string(d.Priority))
	}
	if d.Recurrence != RecurrenceNone {
		if _, err := ParseRecurrence(string(d.Recurrence)); err != nil {
			return err
		}
	}
	if d.ReminderOffsetMinutes != nil && *d.ReminderOffsetMinutes < 0 {
		return NewError(ErrCodeInvalid, "reminder offset cannot be negative")
	}
	return nil
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
