package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neurolov_billing/internal/apperrors"
	"neurolov_billing/internal/models"
)

type fakeLedger struct {
	usedHashes map[string]bool
	intents    map[string]*models.PaymentIntent
	confirmed  map[string]string // reference -> tx hash
	failed     []string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		usedHashes: map[string]bool{},
		intents:    map[string]*models.PaymentIntent{},
		confirmed:  map[string]string{},
	}
}

func (l *fakeLedger) TxHashExists(ctx context.Context, txHash string) (bool, error) {
	return l.usedHashes[txHash], nil
}

func (l *fakeLedger) ConfirmIntent(ctx context.Context, referenceID, txHash string, now time.Time) (*models.PaymentIntent, error) {
	intent, ok := l.intents[referenceID]
	if !ok {
		return nil, apperrors.New(apperrors.CodeNotFound, "payment intent not found")
	}
	if intent.Status != models.IntentStatusPending {
		return nil, apperrors.New(apperrors.CodeDuplicateTransaction, "payment intent is already confirmed")
	}
	if intent.IsExpired(now) {
		return nil, apperrors.New(apperrors.CodeValidation, "payment intent has expired")
	}
	intent.Status = models.IntentStatusConfirmed
	intent.TxHash = &txHash
	intent.ConfirmedAt = &now
	l.confirmed[referenceID] = txHash
	l.usedHashes[txHash] = true
	return intent, nil
}

func (l *fakeLedger) FailIntent(ctx context.Context, referenceID string) (bool, error) {
	intent, ok := l.intents[referenceID]
	if !ok || intent.Status != models.IntentStatusPending {
		return false, nil
	}
	intent.Status = models.IntentStatusFailed
	l.failed = append(l.failed, referenceID)
	return true, nil
}

type fakeSubscriptionStore struct {
	err     error
	applied []appliedPlan
}

type appliedPlan struct {
	userID      uint
	planID      uint
	referenceID string
	periodEnd   time.Time
}

func (s *fakeSubscriptionStore) ApplyPlan(ctx context.Context, userID, planID uint, referenceID string, periodEnd time.Time) error {
	if s.err != nil {
		return s.err
	}
	s.applied = append(s.applied, appliedPlan{userID, planID, referenceID, periodEnd})
	return nil
}

type fakeLinker struct {
	err    error
	linked int
}

func (l *fakeLinker) LinkByEmail(ctx context.Context, user *models.User) error {
	if l.err != nil {
		return l.err
	}
	l.linked++
	return nil
}

type fakeAlerter struct {
	subjects []string
}

func (a *fakeAlerter) SendOpsAlert(subject, body string) error {
	a.subjects = append(a.subjects, subject)
	return nil
}

func pendingIntent(reference string) *models.PaymentIntent {
	return &models.PaymentIntent{
		ReferenceID: reference,
		UserID:      7,
		PlanID:      3,
		Amount:      1.5,
		Status:      models.IntentStatusPending,
		ExpiresAt:   time.Now().Add(time.Hour),
		User:        models.User{Email: "dev@example.com"},
		Plan:        models.Plan{BillingPeriodDays: 30},
	}
}

func TestReconcileHappyPath(t *testing.T) {
	ledger := newFakeLedger()
	ledger.intents["pi_1"] = pendingIntent("pi_1")
	subs := &fakeSubscriptionStore{}
	linker := &fakeLinker{}
	alerter := &fakeAlerter{}

	r := NewReconciler(ledger, subs, linker, alerter)
	result, err := r.Reconcile(context.Background(), "pi_1", "tx_abc", 1.5)
	require.NoError(t, err)

	assert.True(t, result.PlanApplied)
	assert.True(t, result.Linked)
	assert.Equal(t, models.IntentStatusConfirmed, result.Intent.Status)
	assert.Equal(t, "tx_abc", ledger.confirmed["pi_1"])

	require.Len(t, subs.applied, 1)
	assert.Equal(t, uint(7), subs.applied[0].userID)
	assert.Equal(t, uint(3), subs.applied[0].planID)
	assert.Equal(t, "pi_1", subs.applied[0].referenceID)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 30), subs.applied[0].periodEnd, time.Minute)

	assert.Empty(t, alerter.subjects)
}

func TestReconcileRejectsUsedTxHash(t *testing.T) {
	ledger := newFakeLedger()
	ledger.intents["pi_1"] = pendingIntent("pi_1")
	ledger.usedHashes["tx_used"] = true
	subs := &fakeSubscriptionStore{}

	r := NewReconciler(ledger, subs, nil, nil)
	_, err := r.Reconcile(context.Background(), "pi_1", "tx_used", 1.5)

	require.Error(t, err)
	assert.Equal(t, apperrors.CodeDuplicateTransaction, apperrors.CodeOf(err))
	assert.Empty(t, ledger.confirmed, "a used hash must never confirm another intent")
	assert.Empty(t, subs.applied)
}

func TestReconcileExpiredIntentNeverConfirms(t *testing.T) {
	ledger := newFakeLedger()
	intent := pendingIntent("pi_1")
	intent.ExpiresAt = time.Now().Add(-time.Minute)
	ledger.intents["pi_1"] = intent
	subs := &fakeSubscriptionStore{}

	r := NewReconciler(ledger, subs, nil, nil)
	_, err := r.Reconcile(context.Background(), "pi_1", "tx_abc", 1.5)

	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))
	assert.Equal(t, models.IntentStatusPending, intent.Status)
	assert.Empty(t, subs.applied)
}

func TestReconcilePartialReconciliation(t *testing.T) {
	ledger := newFakeLedger()
	ledger.intents["pi_1"] = pendingIntent("pi_1")
	subs := &fakeSubscriptionStore{err: errors.New("subscriptions table unavailable")}
	alerter := &fakeAlerter{}

	r := NewReconciler(ledger, subs, nil, alerter)
	result, err := r.Reconcile(context.Background(), "pi_1", "tx_abc", 1.5)

	require.Error(t, err)
	assert.Equal(t, apperrors.CodePartialReconciliation, apperrors.CodeOf(err))

	// The payment itself is recorded; only the plan application is missing.
	require.NotNil(t, result)
	assert.False(t, result.PlanApplied)
	assert.Equal(t, models.IntentStatusConfirmed, result.Intent.Status)
	assert.Equal(t, "tx_abc", ledger.confirmed["pi_1"])

	require.Len(t, alerter.subjects, 1, "partial reconciliation must alert operations")
}

func TestReconcileSecondDeliveryIsRejected(t *testing.T) {
	ledger := newFakeLedger()
	ledger.intents["pi_1"] = pendingIntent("pi_1")
	subs := &fakeSubscriptionStore{}

	r := NewReconciler(ledger, subs, nil, nil)
	_, err := r.Reconcile(context.Background(), "pi_1", "tx_abc", 1.5)
	require.NoError(t, err)

	_, err = r.Reconcile(context.Background(), "pi_1", "tx_abc", 1.5)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeDuplicateTransaction, apperrors.CodeOf(err))
	assert.Len(t, subs.applied, 1, "the plan must only be applied once")
}

func TestReconcileLinkerFailureIsNotFatal(t *testing.T) {
	ledger := newFakeLedger()
	ledger.intents["pi_1"] = pendingIntent("pi_1")
	subs := &fakeSubscriptionStore{}
	linker := &fakeLinker{err: errors.New("firebase unavailable")}

	r := NewReconciler(ledger, subs, linker, nil)
	result, err := r.Reconcile(context.Background(), "pi_1", "tx_abc", 1.5)

	require.NoError(t, err)
	assert.True(t, result.PlanApplied)
	assert.False(t, result.Linked)
}

func TestFailIntent(t *testing.T) {
	ledger := newFakeLedger()
	ledger.intents["pi_1"] = pendingIntent("pi_1")

	r := NewReconciler(ledger, &fakeSubscriptionStore{}, nil, nil)

	flipped, err := r.FailIntent(context.Background(), "pi_1")
	require.NoError(t, err)
	assert.True(t, flipped)
	assert.Equal(t, models.IntentStatusFailed, ledger.intents["pi_1"].Status)

	// Already terminal: reported as a no-op, not an error.
	flipped, err = r.FailIntent(context.Background(), "pi_1")
	require.NoError(t, err)
	assert.False(t, flipped)
}
