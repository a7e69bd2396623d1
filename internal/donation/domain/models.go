package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Donation struct {
	ID             snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"id"`
	UserID         *string      `json:"user_id,omitempty"`
	Amount         float64      `gorm:"type:decimal(12,2);not null" json:"amount"`
	Currency       string       `gorm:"type:char(3);not null" json:"currency"`
	DonorName      string       `gorm:"not null" json:"donor_name"`
	DonorEmail     string       `gorm:"not null" json:"donor_email"`
	DonorPhone     string       `gorm:"not null" json:"donor_phone"`
	GatewayOrderID string       `gorm:"size:128;uniqueIndex:ux_donations_gateway_order_id;not null" json:"gateway_order_id"`
	PaymentID      *string      `json:"payment_id,omitempty"`
	PaymentStatus  Status       `gorm:"size:16;not null;default:pending;index:ix_donations_payment_status,priority:1" json:"payment_status"`
	PaymentGateway string       `gorm:"not null" json:"payment_gateway"`
	LastVerifiedAt *time.Time   `json:"last_verified_at,omitempty"`
	CreatedAt      time.Time    `gorm:"not null;index:ix_donations_payment_status,priority:2" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"not null" json:"updated_at"`
}

func (Donation) TableName() string { return "donations" }

// StatusUpdate is a compare-and-set write: it only lands while the row is still in From.
type StatusUpdate struct {
	ID         snowflake.ID
	From       Status
	To         Status
	PaymentID  *string
	VerifiedAt time.Time
}
