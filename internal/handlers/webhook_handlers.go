package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"neurolov_billing/internal/apperrors"
	"neurolov_billing/internal/models"
	"neurolov_billing/internal/services"
)

// webhookLockTTL bounds the per-reference lock that collapses concurrent
// deliveries for the same intent.
const webhookLockTTL = 30 * time.Second

type (
	// webhookPayments is what the webhook needs from the payment service.
	webhookPayments interface {
		MatchPendingIntent(ctx context.Context, referenceID string, cryptoType models.CryptoType, wallet string) (*models.PaymentIntent, error)
		RecordWebhookEvent(ctx context.Context, source models.WebhookSource, referenceID, outcome string, payload []byte)
		DeactivateFiatSessionsForOrder(ctx context.Context, orderID string)
	}

	// intentReconciler settles or terminalizes a matched intent.
	intentReconciler interface {
		Reconcile(ctx context.Context, referenceID, txHash string, verifiedAmount float64) (*services.ReconcileResult, error)
		FailIntent(ctx context.Context, referenceID string) (bool, error)
	}

	// deliveryLocker collapses concurrent deliveries for one reference.
	deliveryLocker interface {
		AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
		ReleaseLock(ctx context.Context, key string)
	}
)

// WebhookHandler receives asynchronous payment events: chain confirmations
// and fiat gateway notifications. Every delivery is audited with the
// outcome it reached.
type WebhookHandler struct {
	payments       webhookPayments
	reconciler     intentReconciler
	subs           services.SubscriptionStore
	midtransClient *services.MidtransService
	locker         deliveryLocker
	chainSecret    string
	tolerance      float64
}

func NewWebhookHandler(payments *services.PaymentService, reconciler *services.Reconciler, subs services.SubscriptionStore, midtransClient *services.MidtransService, cache *services.RedisCache, chainSecret string, tolerance float64) *WebhookHandler {
	if tolerance <= 0 {
		tolerance = services.DefaultAmountTolerance
	}
	h := &WebhookHandler{
		payments:       payments,
		reconciler:     reconciler,
		subs:           subs,
		midtransClient: midtransClient,
		chainSecret:    chainSecret,
		tolerance:      tolerance,
	}
	// Locking is optional; a nil cache means the database-level conditional
	// update alone arbitrates concurrent deliveries.
	if cache != nil {
		h.locker = cache
	}
	return h
}

// VerifyChainSignature checks the hex HMAC-SHA256 of the raw body against
// the shared webhook secret.
func VerifyChainSignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// ChainWebhook handles a chain confirmation event. The delivery advances
// received → signature_verified → intent_matched → verified → reconciled;
// the first failed step decides the response and the audit outcome.
//
// Unlike the synchronous verify path, an amount mismatch here terminalizes
// the intent: the signed webhook is treated as the final word on what was
// paid. Flagged for product review, but intentional.
func (h *WebhookHandler) ChainWebhook(c echo.Context) error {
	ctx := c.Request().Context()

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return apperrors.New(apperrors.CodeValidation, "unreadable request body")
	}

	if !VerifyChainSignature(h.chainSecret, body, c.Request().Header.Get("x-signature")) {
		h.payments.RecordWebhookEvent(ctx, models.WebhookSourceChain, "", models.WebhookOutcomeRejectedSignature, body)
		return apperrors.New(apperrors.CodeUnauthorized, "invalid webhook signature")
	}

	var payload ChainWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.payments.RecordWebhookEvent(ctx, models.WebhookSourceChain, "", models.WebhookOutcomeRejectedPayload, body)
		return apperrors.New(apperrors.CodeValidation, "invalid JSON payload")
	}
	if payload.ReferenceID == "" || payload.Signature == "" || payload.Destination == "" || payload.Amount <= 0 {
		h.payments.RecordWebhookEvent(ctx, models.WebhookSourceChain, payload.ReferenceID, models.WebhookOutcomeRejectedPayload, body)
		return apperrors.New(apperrors.CodeValidation, "missing required webhook fields")
	}

	cryptoType, ok := chainToCryptoType(payload.Blockchain)
	if !ok {
		h.payments.RecordWebhookEvent(ctx, models.WebhookSourceChain, payload.ReferenceID, models.WebhookOutcomeRejectedPayload, body)
		return apperrors.Newf(apperrors.CodeValidation, "unsupported blockchain %q", payload.Blockchain)
	}

	// Collapse concurrent deliveries for the same reference. The ledger's
	// conditional update stays authoritative if the lock is unavailable.
	if h.locker != nil {
		lockKey := "webhook_lock:" + payload.ReferenceID
		won, lockErr := h.locker.AcquireLock(ctx, lockKey, webhookLockTTL)
		if lockErr == nil {
			if !won {
				h.payments.RecordWebhookEvent(ctx, models.WebhookSourceChain, payload.ReferenceID, models.WebhookOutcomeDuplicate, body)
				return c.JSON(http.StatusOK, map[string]interface{}{"success": true})
			}
			defer h.locker.ReleaseLock(ctx, lockKey)
		}
	}

	intent, err := h.payments.MatchPendingIntent(ctx, payload.ReferenceID, cryptoType, payload.Destination)
	if err != nil {
		if apperrors.Is(err, apperrors.CodeNotFound) {
			h.payments.RecordWebhookEvent(ctx, models.WebhookSourceChain, payload.ReferenceID, models.WebhookOutcomeNoMatch, body)
		}
		return err
	}

	if !services.WithinTolerance(intent.Amount, payload.Amount, h.tolerance) {
		if _, failErr := h.reconciler.FailIntent(ctx, intent.ReferenceID); failErr != nil {
			log.Printf("failed to terminalize intent %s after amount mismatch: %v", intent.ReferenceID, failErr)
		}
		h.payments.RecordWebhookEvent(ctx, models.WebhookSourceChain, payload.ReferenceID, models.WebhookOutcomeAmountMismatch, body)
		return apperrors.New(apperrors.CodeAmountMismatch, "delivered amount does not match the payment intent").
			WithDetails(map[string]interface{}{
				"expected": intent.Amount,
				"actual":   payload.Amount,
			})
	}

	_, err = h.reconciler.Reconcile(ctx, intent.ReferenceID, payload.Signature, payload.Amount)
	if err != nil {
		switch apperrors.CodeOf(err) {
		case apperrors.CodeDuplicateTransaction:
			// Already settled; this delivery is a no-op.
			h.payments.RecordWebhookEvent(ctx, models.WebhookSourceChain, payload.ReferenceID, models.WebhookOutcomeDuplicate, body)
			return c.JSON(http.StatusOK, map[string]interface{}{"success": true})
		case apperrors.CodePartialReconciliation:
			h.payments.RecordWebhookEvent(ctx, models.WebhookSourceChain, payload.ReferenceID, models.WebhookOutcomePartial, body)
			return err
		default:
			h.payments.RecordWebhookEvent(ctx, models.WebhookSourceChain, payload.ReferenceID, models.WebhookOutcomeError, body)
			return err
		}
	}

	h.payments.RecordWebhookEvent(ctx, models.WebhookSourceChain, payload.ReferenceID, models.WebhookOutcomeReconciled, body)
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true})
}

func chainToCryptoType(blockchain string) (models.CryptoType, bool) {
	switch strings.ToLower(blockchain) {
	case "sol", "solana":
		return models.CryptoTypeSOL, true
	case "eth", "ethereum":
		return models.CryptoTypeETH, true
	case "btc", "bitcoin":
		return models.CryptoTypeBTC, true
	default:
		return "", false
	}
}

// MidtransWebhook handles fiat gateway notifications: verifies the
// signature_key digest, then applies or releases the checkout.
func (h *WebhookHandler) MidtransWebhook(c echo.Context) error {
	ctx := c.Request().Context()

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return apperrors.New(apperrors.CodeValidation, "unreadable request body")
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		h.payments.RecordWebhookEvent(ctx, models.WebhookSourceMidtrans, "", models.WebhookOutcomeRejectedPayload, body)
		return apperrors.New(apperrors.CodeValidation, "invalid JSON payload")
	}

	orderID, _ := payload["order_id"].(string)
	statusCode, _ := payload["status_code"].(string)
	grossAmount, _ := payload["gross_amount"].(string)
	signatureKey, _ := payload["signature_key"].(string)
	transactionStatus, _ := payload["transaction_status"].(string)
	fraudStatus, _ := payload["fraud_status"].(string)

	if h.midtransClient == nil || !h.midtransClient.VerifySignature(orderID, statusCode, grossAmount, signatureKey) {
		h.payments.RecordWebhookEvent(ctx, models.WebhookSourceMidtrans, orderID, models.WebhookOutcomeRejectedSignature, body)
		return apperrors.New(apperrors.CodeUnauthorized, "invalid notification signature")
	}

	planID, userID, err := parseFiatOrderID(orderID)
	if err != nil {
		h.payments.RecordWebhookEvent(ctx, models.WebhookSourceMidtrans, orderID, models.WebhookOutcomeRejectedPayload, body)
		return err
	}

	settled := transactionStatus == "settlement" ||
		(transactionStatus == "capture" && fraudStatus == "accept")

	switch {
	case settled:
		periodEnd := time.Now().AddDate(0, 0, 30)
		if err := h.subs.ApplyPlan(ctx, userID, planID, orderID, periodEnd); err != nil {
			h.payments.RecordWebhookEvent(ctx, models.WebhookSourceMidtrans, orderID, models.WebhookOutcomeError, body)
			return apperrors.Wrap(apperrors.CodePartialReconciliation, "gateway payment settled but plan update failed", err)
		}
		h.payments.DeactivateFiatSessionsForOrder(ctx, orderID)
		h.payments.RecordWebhookEvent(ctx, models.WebhookSourceMidtrans, orderID, models.WebhookOutcomeReconciled, body)
	case transactionStatus == "deny" || transactionStatus == "expire" || transactionStatus == "cancel":
		h.payments.DeactivateFiatSessionsForOrder(ctx, orderID)
		h.payments.RecordWebhookEvent(ctx, models.WebhookSourceMidtrans, orderID, models.WebhookOutcomeNoMatch, body)
	default:
		// pending or challenge: nothing to apply yet, keep the session.
		h.payments.RecordWebhookEvent(ctx, models.WebhookSourceMidtrans, orderID, models.WebhookOutcomePending, body)
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// parseFiatOrderID splits "sub-{planID}-{userID}-{timestamp}".
func parseFiatOrderID(orderID string) (planID, userID uint, err error) {
	parts := strings.Split(orderID, "-")
	if len(parts) != 4 || parts[0] != "sub" {
		return 0, 0, apperrors.New(apperrors.CodeValidation, "invalid order id format")
	}
	p, err1 := strconv.ParseUint(parts[1], 10, 32)
	u, err2 := strconv.ParseUint(parts[2], 10, 32)
	if err1 != nil || err2 != nil {
		return 0, 0, apperrors.New(apperrors.CodeValidation, "invalid order id format")
	}
	return uint(p), uint(u), nil
}
