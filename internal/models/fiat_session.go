package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

type PaymentGateway string

const (
	PaymentGatewayMidtrans PaymentGateway = "midtrans"
	PaymentGatewayChain    PaymentGateway = "chain"
)

// FiatSession tracks one checkout attempt against the fiat gateway. A user
// has at most one active session per plan; stale ones are deactivated when
// the gateway reports a terminal status.
type FiatSession struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	PlanID           uint            `gorm:"index" json:"plan_id"`
	UserID           uint            `gorm:"index" json:"user_id"`
	Gateway          PaymentGateway  `gorm:"type:varchar(50);not null" json:"gateway"`
	OrderID          string          `gorm:"type:varchar(100);index" json:"order_id"`
	IsActive         bool            `gorm:"default:true" json:"is_active"`
	RequestMetadata  json.RawMessage `gorm:"type:jsonb" json:"request_metadata"`
	ResponseMetadata json.RawMessage `gorm:"type:jsonb" json:"response_metadata"`
}
