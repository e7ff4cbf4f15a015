package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"neurolov_billing/internal/models"
)

// BuildScheduledTask is a helper to build ScheduledTask records generically
func BuildScheduledTask(taskName string, args interface{}, due time.Time, recurringInterval *string, taskType models.ScheduledTaskType, maxAttempt int) (*models.ScheduledTask, error) {
	argsBytes, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal args: %w", err)
	}

	var mapArgs map[string]interface{}
	if err := json.Unmarshal(argsBytes, &mapArgs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into map: %w", err)
	}

	return &models.ScheduledTask{
		TaskName:          taskName,
		Arguments:         mapArgs,
		Due:               due,
		RecurringInterval: recurringInterval,
		Status:            models.ScheduledTaskStatusActive,
		TaskType:          taskType,
		MaxAttempt:        maxAttempt,
	}, nil
}

// systemTask describes a recurring task the worker depends on.
type systemTask struct {
	name       string
	rule       string
	maxAttempt int
}

var systemTasks = []systemTask{
	{name: ExpirePendingIntentsTask.TaskID(), rule: "FREQ=MINUTELY;INTERVAL=5", maxAttempt: 3},
	{name: ExpireSubscriptionsTask.TaskID(), rule: "FREQ=DAILY", maxAttempt: 3},
	{name: PaymentReportTask.TaskID(), rule: "FREQ=DAILY", maxAttempt: 1},
}

// EnsureSystemTasks seeds the recurring tasks the billing pipeline needs.
// Idempotent: existing rows are left untouched so operators can disable or
// retune a task without it being resurrected on restart.
func EnsureSystemTasks(db *gorm.DB) error {
	for _, st := range systemTasks {
		var count int64
		if err := db.Model(&models.ScheduledTask{}).
			Where("task_name = ?", st.name).
			Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check task %s: %w", st.name, err)
		}
		if count > 0 {
			continue
		}

		rule := st.rule
		task, err := BuildScheduledTask(st.name, map[string]interface{}{}, time.Now(), &rule, models.ScheduledTaskTypeRecurring, st.maxAttempt)
		if err != nil {
			return err
		}
		if err := db.Create(task).Error; err != nil {
			return fmt.Errorf("failed to seed task %s: %w", st.name, err)
		}
	}
	return nil
}
