package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"neurolov_billing/internal/apperrors"
	"neurolov_billing/internal/models"
)

// GormLedger is the Postgres-backed Ledger. State transitions are single
// conditional UPDATEs (compare-and-swap on status), so two verification
// paths racing on the same intent resolve to exactly one winner without
// row locks.
type GormLedger struct {
	db *gorm.DB
}

func NewGormLedger(db *gorm.DB) *GormLedger {
	return &GormLedger{db: db}
}

func (l *GormLedger) TxHashExists(ctx context.Context, txHash string) (bool, error) {
	var count int64
	err := l.db.WithContext(ctx).Model(&models.PaymentIntent{}).
		Where("tx_hash = ?", txHash).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ConfirmIntent flips pending→confirmed and attaches the transaction hash.
// The WHERE clause enforces two invariants at once: no transition out
// of a terminal state, and no confirmation past expiry, even if the sweep
// has not flipped the row yet.
func (l *GormLedger) ConfirmIntent(ctx context.Context, referenceID, txHash string, now time.Time) (*models.PaymentIntent, error) {
	res := l.db.WithContext(ctx).Model(&models.PaymentIntent{}).
		Where("reference_id = ? AND status = ? AND expires_at > ?", referenceID, models.IntentStatusPending, now).
		Updates(map[string]interface{}{
			"status":       models.IntentStatusConfirmed,
			"tx_hash":      txHash,
			"confirmed_at": now,
		})
	if res.Error != nil {
		// The unique index on tx_hash is the authoritative dedup guard;
		// losing the earlier exists-check race lands here.
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return nil, apperrors.New(apperrors.CodeDuplicateTransaction, "transaction has already been used for a payment")
		}
		return nil, apperrors.Wrap(apperrors.CodeInternal, "failed to confirm payment intent", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, l.explainUnconfirmable(ctx, referenceID, now)
	}

	var intent models.PaymentIntent
	if err := l.db.WithContext(ctx).Preload("User").Preload("Plan").
		Where("reference_id = ?", referenceID).First(&intent).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "failed to reload confirmed intent", err)
	}
	return &intent, nil
}

// explainUnconfirmable reads the row the CAS skipped to report why.
func (l *GormLedger) explainUnconfirmable(ctx context.Context, referenceID string, now time.Time) error {
	var intent models.PaymentIntent
	err := l.db.WithContext(ctx).Where("reference_id = ?", referenceID).First(&intent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.New(apperrors.CodeNotFound, "payment intent not found")
	}
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "failed to inspect payment intent", err)
	}

	switch {
	case intent.Status == models.IntentStatusConfirmed:
		return apperrors.New(apperrors.CodeDuplicateTransaction, "payment intent is already confirmed")
	case intent.Status == models.IntentStatusFailed:
		return apperrors.New(apperrors.CodeValidation, "payment intent was marked failed")
	case intent.Status == models.IntentStatusExpired || intent.IsExpired(now):
		return apperrors.New(apperrors.CodeValidation, "payment intent has expired")
	default:
		return apperrors.New(apperrors.CodeInternal, "payment intent could not be confirmed")
	}
}

func (l *GormLedger) FailIntent(ctx context.Context, referenceID string) (bool, error) {
	res := l.db.WithContext(ctx).Model(&models.PaymentIntent{}).
		Where("reference_id = ? AND status = ?", referenceID, models.IntentStatusPending).
		Update("status", models.IntentStatusFailed)
	if res.Error != nil {
		return false, apperrors.Wrap(apperrors.CodeInternal, "failed to mark payment intent failed", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// GormSubscriptionStore maintains the one-row-per-user subscription state.
type GormSubscriptionStore struct {
	db *gorm.DB
}

func NewGormSubscriptionStore(db *gorm.DB) *GormSubscriptionStore {
	return &GormSubscriptionStore{db: db}
}

func (s *GormSubscriptionStore) ApplyPlan(ctx context.Context, userID, planID uint, referenceID string, periodEnd time.Time) error {
	db := s.db.WithContext(ctx)

	var sub models.Subscription
	err := db.Where("user_id = ?", userID).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		sub = models.Subscription{
			UserID:           userID,
			PlanID:           planID,
			Status:           models.SubscriptionStatusActive,
			CurrentPeriodEnd: &periodEnd,
			LastReferenceID:  referenceID,
		}
		return db.Create(&sub).Error
	}
	if err != nil {
		return err
	}

	return db.Model(&sub).Updates(map[string]interface{}{
		"plan_id":            planID,
		"status":             models.SubscriptionStatusActive,
		"current_period_end": periodEnd,
		"last_reference_id":  referenceID,
	}).Error
}
