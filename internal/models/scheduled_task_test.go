package models

import (
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }

func TestNextDueOneTime(t *testing.T) {
	due := time.Now().Add(-time.Hour)
	task := ScheduledTask{TaskType: ScheduledTaskTypeOneTime, Due: due}

	if got := task.NextDue(); !got.Equal(due) {
		t.Errorf("NextDue() for onetime = %v; want %v", got, due)
	}
}

func TestNextDueRecurring(t *testing.T) {
	due := time.Now().Add(-time.Hour)
	task := ScheduledTask{
		TaskType:          ScheduledTaskTypeRecurring,
		Due:               due,
		RecurringInterval: strPtr("FREQ=MINUTELY;INTERVAL=5"),
	}

	next := task.NextDue()
	if !next.After(due) {
		t.Fatalf("NextDue() = %v; want after the overdue time %v", next, due)
	}
	if until := time.Until(next); until > 5*time.Minute {
		t.Errorf("NextDue() is %v away; want within one 5-minute interval", until)
	}
}

func TestNextDueRecurringInvalidRule(t *testing.T) {
	due := time.Now().Add(-time.Hour)
	task := ScheduledTask{
		TaskType:          ScheduledTaskTypeRecurring,
		Due:               due,
		RecurringInterval: strPtr("not a rule"),
	}

	// Unparseable rules fall back to the stored due time.
	if got := task.NextDue(); !got.Equal(due) {
		t.Errorf("NextDue() with invalid rule = %v; want %v", got, due)
	}
}
