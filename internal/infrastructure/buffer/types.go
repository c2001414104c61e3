package buffer

import (
	"encoding/json"
	"time"
)

// Item is a task creation that could not be persisted when it was first attempted.
// ID doubles as the id of the task to create, so replaying an item twice is harmless.
type Item struct {
	ID         string          `json:"id"`
	OwnerID    string          `json:"owner_id"`
	ParentID   string          `json:"parent_id"`
	Draft      json.RawMessage `json:"draft"`
	Attempts   int             `json:"attempts"`
	LastError  string          `json:"last_error,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

func (i *Item) normalize(now time.Time) {
	if i.EnqueuedAt.IsZero() {
		i.EnqueuedAt = now
	}
}

// key orders items by enqueue time; the id suffix keeps keys unique.
func itemKey(i Item) []byte {
	b := make([]byte, 0, 21+len(i.ID))
	b = append(b, []byte(i.EnqueuedAt.UTC().Format("20060102T150405.000000000"))...)
	b = append(b, '_')
	return append(b, i.ID...)
}
