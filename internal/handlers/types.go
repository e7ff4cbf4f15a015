package handlers

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"

	"neurolov_billing/internal/apperrors"
)

// RequestValidator wires go-playground/validator into Echo.
type RequestValidator struct {
	validate *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	return &RequestValidator{validate: validator.New()}
}

func (v *RequestValidator) Validate(i interface{}) error {
	if err := v.validate.Struct(i); err != nil {
		return apperrors.New(apperrors.CodeValidation, "invalid request payload").
			WithDetails(map[string]interface{}{"violation": err.Error()})
	}
	return nil
}

// CreateIntentRequest opens a payment intent for a plan purchase.
type CreateIntentRequest struct {
	PlanID     uint    `json:"planId" validate:"required"`
	Amount     float64 `json:"amount" validate:"required,gt=0"`
	Currency   string  `json:"currency" validate:"required,max=10"`
	CryptoType string  `json:"cryptoType" validate:"required,oneof=sol eth btc"`
}

// CreateIntentResponse is everything the client needs to pay.
type CreateIntentResponse struct {
	Success       bool      `json:"success"`
	ReferenceID   string    `json:"referenceId"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	CryptoType    string    `json:"cryptoType"`
	WalletAddress string    `json:"walletAddress"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// IntentStatusResponse reports the current state of an intent.
type IntentStatusResponse struct {
	Status        string     `json:"status"`
	Amount        float64    `json:"amount"`
	Currency      string     `json:"currency"`
	CryptoType    string     `json:"cryptoType"`
	WalletAddress string     `json:"walletAddress"`
	TxHash        *string    `json:"txHash,omitempty"`
	ConfirmedAt   *time.Time `json:"confirmedAt,omitempty"`
	ExpiresAt     time.Time  `json:"expiresAt"`
}

// VerifyPaymentRequest asks for synchronous verification of a transaction
// against an intent. The stored intent is authoritative for amount, plan
// and user; the optional fields are cross-checked, never trusted.
type VerifyPaymentRequest struct {
	TxHash         string  `json:"txHash" validate:"required"`
	ReferenceID    string  `json:"referenceId" validate:"required"`
	ExpectedAmount float64 `json:"expectedAmount" validate:"omitempty,gt=0"`
	PlanID         uint    `json:"planId"`
	UserID         uint    `json:"userId"`
}

// VerifyPaymentResponse is the synchronous verification success body.
type VerifyPaymentResponse struct {
	Success bool                 `json:"success"`
	Message string               `json:"message"`
	Details VerifyPaymentDetails `json:"details"`
}

type VerifyPaymentDetails struct {
	TxHash    string    `json:"txHash"`
	Amount    float64   `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
	PaymentID string    `json:"paymentId"`
	PlanID    uint      `json:"planId"`
}

// ChainWebhookPayload is the signed chain-confirmation event body.
type ChainWebhookPayload struct {
	Blockchain  string  `json:"blockchain"`
	Signature   string  `json:"signature"`
	Amount      float64 `json:"amount"`
	Destination string  `json:"destination"`
	ReferenceID string  `json:"referenceId"`
}

// FiatCheckoutRequest starts (or resumes) a fiat gateway checkout.
type FiatCheckoutRequest struct {
	PlanID   uint `json:"planId" validate:"required"`
	ForceNew bool `json:"forceNew"`
}

// getEnv reads an environment variable with a fallback.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
