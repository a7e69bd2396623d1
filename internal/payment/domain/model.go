package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EventRecord is one inbound webhook delivery kept for audit.
type EventRecord struct {
	ID             snowflake.ID   `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Provider       string         `json:"provider" gorm:"size:32;not null;uniqueIndex:ux_payment_events_provider_key,priority:1"`
	EventKey       string         `json:"event_key" gorm:"size:64;not null;uniqueIndex:ux_payment_events_provider_key,priority:2"`
	EventType      string         `json:"event_type" gorm:"size:64;not null"`
	GatewayOrderID *string        `json:"gateway_order_id" gorm:"size:128;index:ix_payment_events_order"`
	Payload        datatypes.JSON `json:"payload" gorm:"not null"`
	ReceivedAt     time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt    *time.Time     `json:"processed_at"`
	Outcome        *string        `json:"outcome"`
}

func (EventRecord) TableName() string { return "payment_events" }

type Repository interface {
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, provider, eventKey string) (*EventRecord, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time, outcome string) error
}
