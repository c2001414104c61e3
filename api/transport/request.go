package transport

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/fastygo/taskpilot/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate runs the struct tags of a request and reports the first violation as an
// INVALID domain error.
func Validate(req interface{}) error {
	if err := validate.Struct(req); err != nil {
		var fields []string
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				fields = append(fields, fe.Field()+" failed "+fe.Tag())
			}
		}
		if len(fields) == 0 {
			return domain.WrapError(domain.ErrCodeInvalid, "invalid payload", err)
		}
		return domain.NewError(domain.ErrCodeInvalid, strings.Join(fields, "; "))
	}
	return nil
}

type ProfileUpdateRequest struct {
	Email         *string           `json:"email" validate:"omitempty,email"`
	AgentsEnabled *bool             `json:"autonomous_agents_enabled"`
	Metadata      map[string]string `json:"metadata" validate:"omitempty,max=32"`
}

type TaskRequest struct {
	Title                 string     `json:"title" validate:"required,max=500"`
	Description           *string    `json:"description" validate:"omitempty,max=5000"`
	Priority              string     `json:"priority" validate:"omitempty,oneof=low medium high"`
	Tags                  []string   `json:"tags" validate:"omitempty,max=50,dive,required,max=64"`
	Category              *string    `json:"category" validate:"omitempty,max=100"`
	DueDate               *time.Time `json:"due_date"`
	Recurrence            string     `json:"recurrence_pattern" validate:"omitempty,max=32"`
	ReminderEnabled       bool       `json:"reminder_enabled"`
	ReminderOffsetMinutes *int       `json:"reminder_offset_minutes" validate:"omitempty,min=0,max=525600"`
}

// Draft converts the request into a task draft. Pattern validity is checked by the domain.
func (r TaskRequest) Draft() domain.TaskDraft {
	return domain.TaskDraft{
		Title:                 r.Title,
		Description:           r.Description,
		Priority:              domain.Priority(strings.ToLower(r.Priority)),
		Tags:                  r.Tags,
		Category:              r.Category,
		DueDate:               r.DueDate,
		Recurrence:            domain.RecurrencePattern(strings.ToLower(strings.TrimSpace(r.Recurrence))),
		ReminderEnabled:       r.ReminderEnabled,
		ReminderOffsetMinutes: r.ReminderOffsetMinutes,
	}
}
