package doctor

import (
	"context"
	"fmt"
	"time"

	"github.com/haasonsaas/nexus/internal/tasks"
)

// ReminderStatus summarizes active reminder tasks.
type ReminderStatus struct {
	Active       int
	Pending      int
	Overdue      int
	NextReminder time.Time
	Errors       []string
}

// ProbeReminderStatus checks the status of scheduled reminders: tasks whose
// metadata marks them as type "reminder".
func ProbeReminderStatus(ctx context.Context, store tasks.Store) *ReminderStatus {
	status := &ReminderStatus{}

	if store == nil {
		return status
	}

	active := tasks.TaskStatusActive
	taskList, err := store.ListTasks(ctx, tasks.ListTasksOptions{
		Status: &active,
		Limit:  1000,
	})
	if err != nil {
		status.Errors = append(status.Errors, err.Error())
		return status
	}

	now := time.Now()
	var nextRun time.Time

	for _, task := range taskList {
		if task.Metadata == nil {
			continue
		}
		taskType, ok := task.Metadata["type"].(string)
		if !ok || taskType != "reminder" {
			continue
		}

		status.Active++

		if !task.NextRunAt.IsZero() {
			if task.NextRunAt.After(now) {
				status.Pending++
				if nextRun.IsZero() || task.NextRunAt.Before(nextRun) {
					nextRun = task.NextRunAt
				}
			} else {
				status.Overdue++
			}
		}
	}

	status.NextReminder = nextRun
	return status
}

// FormatReminderStatus returns a human-readable summary line.
func FormatReminderStatus(status *ReminderStatus) string {
	if status == nil || status.Active == 0 {
		return "No active reminders"
	}

	result := formatCount(status.Active, "reminder") + " active"
	if status.Pending > 0 {
		result += ", " + formatCount(status.Pending, "pending")
	}
	if status.Overdue > 0 {
		result += ", " + formatCount(status.Overdue, "overdue")
	}
	if !status.NextReminder.IsZero() {
		if dur := time.Until(status.NextReminder); dur > 0 {
			result += " (next in " + formatDurationShort(dur) + ")"
		}
	}
	return result
}

func formatCount(n int, singular string) string {
	if n == 1 {
		return "1 " + singular
	}
	return fmt.Sprintf("%d %ss", n, singular)
}

func formatDurationShort(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "<1m"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		hrs := int(d.Hours())
		if hrs == 1 {
			return "1h"
		}
		return fmt.Sprintf("%dh", hrs)
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1d"
		}
		return fmt.Sprintf("%dd", days)
	}
}
