package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"neurolov_billing/internal/apperrors"
	"neurolov_billing/internal/middleware"
	"neurolov_billing/internal/models"
	"neurolov_billing/internal/services"
)

// PaymentHandler serves the payment intent endpoints: creation, status and
// on-demand verification.
type PaymentHandler struct {
	payments   *services.PaymentService
	readers    map[models.CryptoType]services.ChainReader
	verifier   *services.Verifier
	reconciler *services.Reconciler
	ledger     services.Ledger
}

func NewPaymentHandler(payments *services.PaymentService, readers map[models.CryptoType]services.ChainReader, verifier *services.Verifier, reconciler *services.Reconciler, ledger services.Ledger) *PaymentHandler {
	return &PaymentHandler{
		payments:   payments,
		readers:    readers,
		verifier:   verifier,
		reconciler: reconciler,
		ledger:     ledger,
	}
}

// CreateIntent opens a pending payment intent for the authenticated user.
func (h *PaymentHandler) CreateIntent(c echo.Context) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return apperrors.New(apperrors.CodeUnauthorized, "authentication required")
	}

	var req CreateIntentRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.New(apperrors.CodeValidation, "invalid JSON payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	intent, err := h.payments.CreateIntent(c.Request().Context(), user, services.CreateIntentParams{
		PlanID:     req.PlanID,
		Amount:     req.Amount,
		Currency:   req.Currency,
		CryptoType: models.CryptoType(req.CryptoType),
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, CreateIntentResponse{
		Success:       true,
		ReferenceID:   intent.ReferenceID,
		Amount:        intent.Amount,
		Currency:      intent.Currency,
		CryptoType:    string(intent.CryptoType),
		WalletAddress: intent.WalletAddress,
		ExpiresAt:     intent.ExpiresAt,
	})
}

// GetIntentStatus reports the current state of the caller's intent.
func (h *PaymentHandler) GetIntentStatus(c echo.Context) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return apperrors.New(apperrors.CodeUnauthorized, "authentication required")
	}

	referenceID := c.Param("reference")
	if referenceID == "" {
		return apperrors.New(apperrors.CodeValidation, "missing reference id")
	}

	intent, err := h.payments.GetIntentByReference(c.Request().Context(), referenceID)
	if err != nil {
		return err
	}
	// Intents are private to their owner; absence and foreign ownership
	// look the same from outside.
	if intent.UserID != user.ID {
		return apperrors.New(apperrors.CodeNotFound, "payment intent not found")
	}

	return c.JSON(http.StatusOK, IntentStatusResponse{
		Status:        string(intent.Status),
		Amount:        intent.Amount,
		Currency:      intent.Currency,
		CryptoType:    string(intent.CryptoType),
		WalletAddress: intent.WalletAddress,
		TxHash:        intent.TxHash,
		ConfirmedAt:   intent.ConfirmedAt,
		ExpiresAt:     intent.ExpiresAt,
	})
}

// VerifyPayment synchronously verifies a user-supplied transaction hash
// against a pending intent and reconciles on success. Failures never
// mutate the intent, so the client may retry with a corrected hash.
func (h *PaymentHandler) VerifyPayment(c echo.Context) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return apperrors.New(apperrors.CodeUnauthorized, "authentication required")
	}

	var req VerifyPaymentRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.New(apperrors.CodeValidation, "invalid JSON payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	ctx := c.Request().Context()

	intent, err := h.payments.GetIntentByReference(ctx, req.ReferenceID)
	if err != nil {
		return err
	}
	if intent.UserID != user.ID {
		return apperrors.New(apperrors.CodeNotFound, "payment intent not found")
	}
	if err := crossCheckIntent(intent, &req); err != nil {
		return err
	}

	// Replay protection: a hash that already confirmed any intent is
	// rejected before touching the chain.
	used, err := h.ledger.TxHashExists(ctx, req.TxHash)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "dedup lookup failed", err)
	}
	if used {
		return apperrors.New(apperrors.CodeDuplicateTransaction, "transaction has already been used for a payment")
	}

	if intent.Status != models.IntentStatusPending {
		return apperrors.Newf(apperrors.CodeValidation, "payment intent is %s and can no longer be verified", intent.Status)
	}
	if intent.IsExpired(time.Now()) {
		return apperrors.New(apperrors.CodeValidation, "payment intent has expired")
	}

	reader, ok := h.readers[intent.CryptoType]
	if !ok {
		return apperrors.Newf(apperrors.CodeValidation, "verification is not supported for %s yet", intent.CryptoType)
	}

	tx, err := reader.FetchTransaction(ctx, req.TxHash)
	if err != nil {
		return err
	}

	result, err := h.verifier.Verify(tx, services.ExpectedPayment{
		Amount:    intent.Amount,
		Recipient: intent.WalletAddress,
	})
	if err != nil {
		return err
	}

	rec, err := h.reconciler.Reconcile(ctx, intent.ReferenceID, req.TxHash, result.TransferAmount)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, VerifyPaymentResponse{
		Success: true,
		Message: "payment verified and subscription updated",
		Details: VerifyPaymentDetails{
			TxHash:    req.TxHash,
			Amount:    result.TransferAmount,
			Timestamp: result.BlockTime,
			PaymentID: rec.Intent.ReferenceID,
			PlanID:    rec.Intent.PlanID,
		},
	})
}

// FiatCheckout starts (or resumes) a card checkout for a plan through the
// fiat gateway.
func (h *PaymentHandler) FiatCheckout(c echo.Context) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return apperrors.New(apperrors.CodeUnauthorized, "authentication required")
	}

	var req FiatCheckoutRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.New(apperrors.CodeValidation, "invalid JSON payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	plan, err := h.payments.GetActivePlan(ctx, req.PlanID)
	if err != nil {
		return err
	}

	result, err := h.payments.InitiateFiatCheckout(ctx, user, plan, req.ForceNew, getEnv("FIAT_CALLBACK_URL", ""))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":     true,
		"token":       result.Token,
		"redirectUrl": result.RedirectURL,
		"orderId":     result.OrderID,
		"isExisting":  result.IsExisting,
	})
}

// crossCheckIntent rejects client-supplied values that contradict the
// stored intent instead of trusting them.
func crossCheckIntent(intent *models.PaymentIntent, req *VerifyPaymentRequest) error {
	if req.ExpectedAmount > 0 && req.ExpectedAmount != intent.Amount {
		return apperrors.New(apperrors.CodeValidation, "expectedAmount does not match the payment intent").
			WithDetails(map[string]interface{}{"intent_amount": intent.Amount})
	}
	if req.PlanID != 0 && req.PlanID != intent.PlanID {
		return apperrors.New(apperrors.CodeValidation, "planId does not match the payment intent")
	}
	if req.UserID != 0 && req.UserID != intent.UserID {
		return apperrors.New(apperrors.CodeValidation, "userId does not match the payment intent")
	}
	return nil
}
