package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"neurolov_billing/internal/apperrors"
	"neurolov_billing/internal/models"
)

type (
	// Ledger provides the payment intent state transitions. Both mutations
	// are conditional on the row still being pending, which is what makes
	// concurrent webhook retries and the expiry sweep safe.
	Ledger interface {
		TxHashExists(ctx context.Context, txHash string) (bool, error)
		ConfirmIntent(ctx context.Context, referenceID, txHash string, now time.Time) (*models.PaymentIntent, error)
		FailIntent(ctx context.Context, referenceID string) (bool, error)
	}

	// SubscriptionStore applies a purchased plan to a user.
	SubscriptionStore interface {
		ApplyPlan(ctx context.Context, userID, planID uint, referenceID string, periodEnd time.Time) error
	}

	// AccountLinker links the local account to the secondary user store.
	AccountLinker interface {
		LinkByEmail(ctx context.Context, user *models.User) error
	}

	// OpsAlerter notifies operations about states needing manual follow-up.
	OpsAlerter interface {
		SendOpsAlert(subject, body string) error
	}
)

// ReconcileResult reports how far reconciliation got.
type ReconcileResult struct {
	Intent      *models.PaymentIntent
	PlanApplied bool
	Linked      bool
}

// Reconciler turns a verified transaction into a confirmed intent and an
// updated subscription.
type Reconciler struct {
	ledger  Ledger
	subs    SubscriptionStore
	linker  AccountLinker
	alerter OpsAlerter
}

func NewReconciler(ledger Ledger, subs SubscriptionStore, linker AccountLinker, alerter OpsAlerter) *Reconciler {
	return &Reconciler{ledger: ledger, subs: subs, linker: linker, alerter: alerter}
}

// Reconcile settles one intent with one transaction:
//  1. dedup on tx hash (at-most-once spending guarantee)
//  2. confirm the intent, conditional on it still being pending and unexpired
//  3. apply the plan to the user's subscription
//  4. best-effort account linking to the secondary user store
//
// A failure in step 3 after step 2 succeeded is reported as
// PARTIAL_RECONCILIATION: the payment is recorded, the plan is not applied,
// and operations is alerted. That state must never be silently swallowed.
func (r *Reconciler) Reconcile(ctx context.Context, referenceID, txHash string, verifiedAmount float64) (*ReconcileResult, error) {
	used, err := r.ledger.TxHashExists(ctx, txHash)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "dedup lookup failed", err)
	}
	if used {
		return nil, apperrors.New(apperrors.CodeDuplicateTransaction, "transaction has already been used for a payment").
			WithDetails(map[string]interface{}{"tx_hash": txHash})
	}

	now := time.Now()
	intent, err := r.ledger.ConfirmIntent(ctx, referenceID, txHash, now)
	if err != nil {
		return nil, err
	}
	result := &ReconcileResult{Intent: intent}

	log.Printf("payment confirmed: reference=%s tx=%s amount=%.9f user=%d plan=%d",
		referenceID, txHash, verifiedAmount, intent.UserID, intent.PlanID)

	periodDays := intent.Plan.BillingPeriodDays
	if periodDays <= 0 {
		periodDays = 30
	}
	periodEnd := now.AddDate(0, 0, periodDays)

	if err := r.subs.ApplyPlan(ctx, intent.UserID, intent.PlanID, referenceID, periodEnd); err != nil {
		log.Printf("plan update failed after payment confirmation: reference=%s user=%d plan=%d err=%v",
			referenceID, intent.UserID, intent.PlanID, err)
		r.alert(referenceID, txHash, intent, err)
		return result, apperrors.Wrap(apperrors.CodePartialReconciliation,
			"payment recorded but plan update failed, manual follow-up required", err).
			WithDetails(map[string]interface{}{
				"reference_id": referenceID,
				"tx_hash":      txHash,
				"plan_id":      intent.PlanID,
			})
	}
	result.PlanApplied = true

	if r.linker != nil {
		if err := r.linker.LinkByEmail(ctx, &intent.User); err != nil {
			// Linking is optional enrichment, never a payment failure.
			log.Printf("account linking skipped for user %d: %v", intent.UserID, err)
		} else {
			result.Linked = true
		}
	}

	return result, nil
}

// FailIntent terminalizes a pending intent. Used by the webhook path when
// the delivered amount does not match. Returns false when the intent was
// already non-pending.
func (r *Reconciler) FailIntent(ctx context.Context, referenceID string) (bool, error) {
	return r.ledger.FailIntent(ctx, referenceID)
}

func (r *Reconciler) alert(referenceID, txHash string, intent *models.PaymentIntent, cause error) {
	if r.alerter == nil {
		return
	}
	subject := fmt.Sprintf("[billing] partial reconciliation for %s", referenceID)
	body := fmt.Sprintf(
		"Payment intent %s was confirmed with transaction %s, but applying plan %d to user %d failed:\n\n%v\n\nThe subscription must be fixed manually.",
		referenceID, txHash, intent.PlanID, intent.UserID, cause)
	if err := r.alerter.SendOpsAlert(subject, body); err != nil {
		log.Printf("failed to send partial reconciliation alert for %s: %v", referenceID, err)
	}
}
