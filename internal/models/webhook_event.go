package models

import (
	"encoding/json"
	"time"
)

// WebhookSource identifies which upstream sent an inbound event.
type WebhookSource string

const (
	WebhookSourceChain    WebhookSource = "chain"
	WebhookSourceMidtrans WebhookSource = "midtrans"
)

// Webhook processing outcomes. An event advances
// received → signature_verified → intent_matched → verified → reconciled
// and the outcome records where it stopped.
const (
	WebhookOutcomeRejectedSignature = "rejected_signature"
	WebhookOutcomeRejectedPayload   = "rejected_payload"
	WebhookOutcomeNoMatch           = "no_match"
	WebhookOutcomeDuplicate         = "duplicate"
	WebhookOutcomeAmountMismatch    = "amount_mismatch"
	WebhookOutcomePending           = "pending"
	WebhookOutcomeReconciled        = "reconciled"
	WebhookOutcomePartial           = "partial_reconciliation"
	WebhookOutcomeError             = "error"
)

// WebhookEvent is the audit log of every inbound webhook delivery, kept
// even for rejected ones. Append-only, no soft delete.
type WebhookEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Source      WebhookSource   `gorm:"type:varchar(50);not null" json:"source"`
	ReferenceID string          `gorm:"type:varchar(100);index" json:"reference_id"`
	Outcome     string          `gorm:"type:varchar(50)" json:"outcome"`
	Payload     json.RawMessage `gorm:"type:jsonb" json:"payload"`
}
