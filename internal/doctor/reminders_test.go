package doctor

import (
	"context"
	"testing"
	"time"

	"github.com/haasonsaas/nexus/internal/tasks"
)

func TestFormatReminderStatus(t *testing.T) {
	t.Run("no reminders", func(t *testing.T) {
		if got := FormatReminderStatus(&ReminderStatus{}); got != "No active reminders" {
			t.Errorf("got %q, want 'No active reminders'", got)
		}
	})

	t.Run("active without pending", func(t *testing.T) {
		if got := FormatReminderStatus(&ReminderStatus{Active: 2}); got != "2 reminders active" {
			t.Errorf("got %q, want '2 reminders active'", got)
		}
	})

	t.Run("with overdue", func(t *testing.T) {
		if got := FormatReminderStatus(&ReminderStatus{Active: 1, Overdue: 1}); got != "1 reminder active, 1 overdue" {
			t.Errorf("got %q, want '1 reminder active, 1 overdue'", got)
		}
	})
}

func TestFormatDurationShort(t *testing.T) {
	tests := []struct {
		d        time.Duration
		expected string
	}{
		{30 * time.Second, "<1m"},
		{5 * time.Minute, "5m"},
		{1 * time.Hour, "1h"},
		{3 * time.Hour, "3h"},
		{24 * time.Hour, "1d"},
		{48 * time.Hour, "2d"},
	}
	for _, tt := range tests {
		if got := formatDurationShort(tt.d); got != tt.expected {
			t.Errorf("formatDurationShort(%v) = %q, want %q", tt.d, got, tt.expected)
		}
	}
}

func TestProbeReminderStatusCountsByMetadataType(t *testing.T) {
	store := tasks.NewMemoryStore()
	ctx := context.Background()

	_ = store.CreateTask(ctx, &tasks.ScheduledTask{
		ID: "r1", Status: tasks.TaskStatusActive,
		Metadata:  map[string]any{"type": "reminder"},
		NextRunAt: time.Now().Add(time.Hour),
	})
	_ = store.CreateTask(ctx, &tasks.ScheduledTask{
		ID: "r2", Status: tasks.TaskStatusActive,
		Metadata:  map[string]any{"type": "reminder"},
		NextRunAt: time.Now().Add(-time.Hour),
	})
	_ = store.CreateTask(ctx, &tasks.ScheduledTask{
		ID: "cron1", Status: tasks.TaskStatusActive,
		Metadata: map[string]any{"type": "cron"},
	})

	status := ProbeReminderStatus(ctx, store)
	if status.Active != 2 {
		t.Fatalf("expected 2 reminder tasks, got %d", status.Active)
	}
	if status.Pending != 1 || status.Overdue != 1 {
		t.Fatalf("expected 1 pending and 1 overdue, got pending=%d overdue=%d", status.Pending, status.Overdue)
	}
}

func TestProbeReminderStatusNilStore(t *testing.T) {
	status := ProbeReminderStatus(context.Background(), nil)
	if status.Active != 0 {
		t.Fatalf("expected zero-value status for nil store")
	}
}
