package models

import (
	"time"

	"gorm.io/gorm"
)

// User is the local account row. Authentication itself lives in Firebase;
// FirebaseUID records the link to that secondary store once established.
type User struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Name        string  `gorm:"type:varchar(255)" json:"name"`
	Email       string  `gorm:"type:varchar(255);uniqueIndex" json:"email"`
	FirebaseUID *string `gorm:"type:varchar(128);uniqueIndex" json:"firebase_uid,omitempty"`

	// Relationships
	Subscription   *Subscription   `gorm:"foreignKey:UserID" json:"subscription,omitempty"`
	PaymentIntents []PaymentIntent `gorm:"foreignKey:UserID" json:"payment_intents,omitempty"`
}
