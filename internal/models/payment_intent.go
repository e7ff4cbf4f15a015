package models

import (
	"time"
)

// IntentStatus is the payment intent state machine. confirmed, failed and
// expired are terminal; the only legal transitions are out of pending.
type IntentStatus string

const (
	IntentStatusPending   IntentStatus = "pending"
	IntentStatusConfirmed IntentStatus = "confirmed"
	IntentStatusFailed    IntentStatus = "failed"
	IntentStatusExpired   IntentStatus = "expired"
)

// CryptoType is the settlement chain of an intent
type CryptoType string

const (
	CryptoTypeSOL CryptoType = "sol"
	CryptoTypeETH CryptoType = "eth"
	CryptoTypeBTC CryptoType = "btc"
)

// DefaultIntentTTL is how long a pending intent stays payable.
const DefaultIntentTTL = time.Hour

// PaymentIntent is the durable record of a pending crypto purchase. The
// table is an append-only audit trail: rows are never deleted (hence no
// soft-delete column), the expiry sweep and the reconciler only flip
// Status via conditional updates.
type PaymentIntent struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ReferenceID string     `gorm:"type:varchar(64);uniqueIndex" json:"reference_id"`
	UserID      uint       `gorm:"index" json:"user_id"`
	PlanID      uint       `gorm:"index" json:"plan_id"`
	Amount      float64    `gorm:"type:decimal(20,9)" json:"amount"`
	Currency    string     `gorm:"type:varchar(10)" json:"currency"`
	CryptoType  CryptoType `gorm:"type:varchar(10)" json:"crypto_type"`
	// WalletAddress is the expected recipient, snapshotted from config at
	// creation so a later wallet rotation cannot invalidate the intent.
	WalletAddress string       `gorm:"type:varchar(100)" json:"wallet_address"`
	Status        IntentStatus `gorm:"type:varchar(20);index;default:'pending'" json:"status"`
	ExpiresAt     time.Time    `gorm:"index" json:"expires_at"`
	// TxHash is set exactly once, on confirmation. The unique index is the
	// authoritative dedup guard: one on-chain transaction can satisfy at
	// most one intent.
	TxHash      *string    `gorm:"type:varchar(128);uniqueIndex" json:"tx_hash,omitempty"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`

	// Relationships
	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Plan Plan `gorm:"foreignKey:PlanID" json:"plan,omitempty"`
}

// IsTerminal reports whether the intent can no longer change state.
func (i PaymentIntent) IsTerminal() bool {
	return i.Status != IntentStatusPending
}

// IsExpired reports whether the intent is past its TTL, regardless of
// whether the sweep has flipped the status yet.
func (i PaymentIntent) IsExpired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}
