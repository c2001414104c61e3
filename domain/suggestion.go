package domain

import "time"

// SuggestionType classifies the producer and intent of a suggestion.
type SuggestionType string

const (
	SuggestionOverdueReminder SuggestionType = "overdue_reminder"
)

// Suggestion is a system-generated, dismissible advisory record attached to a task.
// Consumers must treat it as advisory: it may refer to a task completed after it was emitted.
type Suggestion struct {
	ID        string         `json:"id"`
	OwnerID   string         `json:"owner_id"`
	TaskID    string         `json:"task_id"`
	Type      SuggestionType `json:"suggestion_type"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Dismissed bool           `json:"dismissed"`
	CreatedAt time.Time      `json:"created_at"`
}

// SuggestionDraft is what producers hand to a sink. Occurrence identifies the task
// occurrence (its due date) the suggestion refers to; sinks de-duplicate on
// (TaskID, Type, Occurrence).
type SuggestionDraft struct {
	OwnerID    string
	TaskID     string
	Type       SuggestionType
	Message    string
	Metadata   map[string]any
	Occurrence time.Time
}

// SuggestionCounts summarizes an owner's suggestions.
type SuggestionCounts struct {
	Total     int                    `json:"total"`
	Active    int                    `json:"active"`
	Dismissed int                    `json:"dismissed"`
	ByType    map[SuggestionType]int `json:"by_type"`
}
