package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"neurolov_billing/internal/models"
	"neurolov_billing/internal/services"
)

// ExpirePendingIntentsTaskDef sweeps pending payment intents past their TTL.
type ExpirePendingIntentsTaskDef struct{}

// TaskID returns the unique identifier for this task
func (t *ExpirePendingIntentsTaskDef) TaskID() string {
	return "expire_pending_intents"
}

// HandleExecution flips overdue pending intents to expired. The sweep is a
// single conditional update, so an intent confirming concurrently always
// wins over the sweep.
func (t *ExpirePendingIntentsTaskDef) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	payments := services.NewPaymentService(db, nil, nil, "")
	expired, err := payments.ExpirePendingIntents(ctx)
	if err != nil {
		return nil, fmt.Errorf("expiry sweep failed: %w", err)
	}

	if expired > 0 {
		log.Printf("[Task: expire_pending_intents] expired %d payment intents", expired)
	}
	return map[string]interface{}{
		"status":          "success",
		"expired_intents": expired,
	}, nil
}

// ExpirePendingIntentsTask is the singleton instance of ExpirePendingIntentsTaskDef
var ExpirePendingIntentsTask = &ExpirePendingIntentsTaskDef{}

// ExpireSubscriptionsTaskDef marks subscriptions past their paid period.
type ExpireSubscriptionsTaskDef struct{}

// TaskID returns the unique identifier for this task
func (t *ExpireSubscriptionsTaskDef) TaskID() string {
	return "expire_subscriptions"
}

// HandleExecution moves active subscriptions whose period ended to expired.
func (t *ExpireSubscriptionsTaskDef) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	res := db.WithContext(ctx).Model(&models.Subscription{}).
		Where("status = ? AND current_period_end IS NOT NULL AND current_period_end <= ?",
			models.SubscriptionStatusActive, time.Now()).
		Update("status", models.SubscriptionStatusExpired)
	if res.Error != nil {
		return nil, fmt.Errorf("subscription sweep failed: %w", res.Error)
	}

	if res.RowsAffected > 0 {
		log.Printf("[Task: expire_subscriptions] expired %d subscriptions", res.RowsAffected)
	}
	return map[string]interface{}{
		"status":                "success",
		"expired_subscriptions": res.RowsAffected,
	}, nil
}

// ExpireSubscriptionsTask is the singleton instance of ExpireSubscriptionsTaskDef
var ExpireSubscriptionsTask = &ExpireSubscriptionsTaskDef{}

// PaymentReportTaskDef mails a daily payment summary to operations.
type PaymentReportTaskDef struct{}

// TaskID returns the unique identifier for this task
func (t *PaymentReportTaskDef) TaskID() string {
	return "payment_report"
}

// HandleExecution counts the last 24h of intent outcomes and mails them to
// the operations address. A missing SMTP config fails the task, which shows
// up on its history instead of being lost.
func (t *PaymentReportTaskDef) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	since := time.Now().Add(-24 * time.Hour)

	counts := map[models.IntentStatus]int64{}
	for _, status := range []models.IntentStatus{
		models.IntentStatusConfirmed,
		models.IntentStatusExpired,
		models.IntentStatusFailed,
		models.IntentStatusPending,
	} {
		var n int64
		if err := db.WithContext(ctx).Model(&models.PaymentIntent{}).
			Where("status = ? AND updated_at >= ?", status, since).
			Count(&n).Error; err != nil {
			return nil, fmt.Errorf("intent count failed for %s: %w", status, err)
		}
		counts[status] = n
	}

	body := fmt.Sprintf(
		"Payment intents over the last 24 hours:\n\nconfirmed: %d\nexpired: %d\nfailed: %d\nstill pending: %d\n",
		counts[models.IntentStatusConfirmed],
		counts[models.IntentStatusExpired],
		counts[models.IntentStatusFailed],
		counts[models.IntentStatusPending])

	mailer := services.NewEmailService()
	if err := mailer.SendOpsAlert("[billing] daily payment report", body); err != nil {
		return nil, fmt.Errorf("report mail failed: %w", err)
	}

	return map[string]interface{}{
		"status":    "success",
		"confirmed": counts[models.IntentStatusConfirmed],
		"expired":   counts[models.IntentStatusExpired],
		"failed":    counts[models.IntentStatusFailed],
		"pending":   counts[models.IntentStatusPending],
	}, nil
}

// PaymentReportTask is the singleton instance of PaymentReportTaskDef
var PaymentReportTask = &PaymentReportTaskDef{}
