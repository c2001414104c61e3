package agent

import (
	"fmt"
	"time"

	"github.com/fastygo/taskpilot/domain"
)

const day = 24 * time.Hour

// isoMillis matches the ISO-8601 UTC form consumers already parse.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// DaysOverdue is the number of whole days between due and now, rounded down. It is zero
// or negative for tasks that are not yet a full day late.
func DaysOverdue(due, now time.Time) int {
	d := now.Sub(due)
	if d < 0 {
		return -int((-d + day - 1) / day)
	}
	return int(d / day)
}

// OverdueMessage renders the reminder shown to the owner.
func OverdueMessage(title string, days int) string {
	unit := "days"
	if days == 1 {
		unit = "day"
	}
	return fmt.Sprintf(`Task "%s" is %d %s overdue. Consider updating its due date or marking it complete.`, title, days, unit)
}

// OverdueDraft builds the suggestion emitted for task. task.DueDate must be set.
func OverdueDraft(task domain.Task, days int) domain.SuggestionDraft {
	due := *task.DueDate
	return domain.SuggestionDraft{
		OwnerID: task.OwnerID,
		TaskID:  task.ID,
		Type:    domain.SuggestionOverdueReminder,
		Message: OverdueMessage(task.Title, days),
		Metadata: map[string]any{
			"daysOverdue":  days,
			"taskTitle":    task.Title,
			"taskPriority": string(task.Priority),
			"dueDate":      due.UTC().Format(isoMillis),
		},
		Occurrence: due,
	}
}
