package models

import (
	"time"

	"gorm.io/gorm"
)

// Plan is a purchasable compute tier from the catalog.
type Plan struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Code              string  `gorm:"type:varchar(50);uniqueIndex" json:"code"`
	Name              string  `gorm:"type:varchar(255)" json:"name"`
	Description       string  `gorm:"type:text" json:"description"`
	PriceUSD          float64 `gorm:"type:decimal(15,2)" json:"price_usd"`
	PriceSOL          float64 `gorm:"type:decimal(20,9)" json:"price_sol"`
	ComputeCredits    int     `json:"compute_credits"`
	BillingPeriodDays int     `gorm:"default:30" json:"billing_period_days"`
	IsActive          bool    `gorm:"default:true" json:"is_active"`
}

// PriceFor returns the catalog price in the given settlement currency, or
// zero when the plan is not priced in it.
func (p Plan) PriceFor(crypto CryptoType) float64 {
	if crypto == CryptoTypeSOL {
		return p.PriceSOL
	}
	return 0
}
