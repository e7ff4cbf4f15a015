package models

import (
	"time"

	"gorm.io/gorm"
)

// SubscriptionStatus represents the lifecycle state of a user subscription
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusExpired  SubscriptionStatus = "expired"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

// Subscription holds the current plan per user, one row per user. It is
// updated by the reconciler after a payment confirms.
type Subscription struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	UserID           uint               `gorm:"uniqueIndex" json:"user_id"`
	PlanID           uint               `gorm:"index" json:"plan_id"`
	Status           SubscriptionStatus `gorm:"type:varchar(20);default:'active'" json:"status"`
	CurrentPeriodEnd *time.Time         `json:"current_period_end"`
	// LastReferenceID points at the payment intent that granted the
	// current period, for support lookups.
	LastReferenceID string `gorm:"type:varchar(64)" json:"last_reference_id"`

	// Relationships
	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Plan Plan `gorm:"foreignKey:PlanID" json:"plan,omitempty"`
}
