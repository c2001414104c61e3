package transport

import (
	"encoding/json"

	"github.com/fastygo/taskpilot/usecase/agent"
)

// Envelope is the standard API response wrapper used for both success and error payloads.
type Envelope struct {
	Status string      `json:"status"`
	Code   string      `json:"code,omitempty"`
	Data   interface{} `json:"data,omitempty"`
	Error  interface{} `json:"error,omitempty"`
	Meta   interface{} `json:"meta,omitempty"`
}

// Page is the meta block of paginated list responses.
type Page struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// RunSummaryResponse is the wire form of an agent run summary.
type RunSummaryResponse struct {
	DurationMS         int64 `json:"duration_ms"`
	ProcessedTasks     int   `json:"processed_tasks"`
	SuggestionsCreated int   `json:"suggestions_created"`
	UsersProcessed     int   `json:"users_processed"`
	UsersSkipped       int   `json:"users_skipped"`
}

func NewRunSummary(s agent.RunSummary) RunSummaryResponse {
	return RunSummaryResponse{
		DurationMS:         s.Duration.Milliseconds(),
		ProcessedTasks:     s.ProcessedTasks,
		SuggestionsCreated: s.SuggestionsCreated,
		UsersProcessed:     s.UsersProcessed,
		UsersSkipped:       s.UsersSkipped,
	}
}

// NewSuccess returns a success envelope.
func NewSuccess(data interface{}, meta interface{}) Envelope {
	return Envelope{
		Status: "success",
		Data:   data,
		Meta:   meta,
	}
}

// NewError returns an error envelope with optional metadata.
func NewError(code string, err interface{}, meta interface{}) Envelope {
	return Envelope{
		Status: "error",
		Code:   code,
		Error:  err,
		Meta:   meta,
	}
}

// String returns the JSON representation (best-effort) for logging purposes.
func (e Envelope) String() string {
	out, err := json.Marshal(e)
	if err != nil {
		return "{}"
	}
	return string(out)
}
