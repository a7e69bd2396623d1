package domain

import (
	"time"

	donationdomain "github.com/smallbiznis/seva/internal/donation/domain"
)

// EventEnvelope carries the fields every gateway notification shares.
type EventEnvelope struct {
	Provider   string
	Type       string
	OrderID    string
	PaymentID  string
	Amount     float64
	Currency   string
	OccurredAt time.Time
}

func (e EventEnvelope) Envelope() EventEnvelope { return e }

// WebhookEvent is closed over the variants below.
type WebhookEvent interface {
	Envelope() EventEnvelope
	webhookEvent()
}

type PaymentSucceeded struct {
	EventEnvelope
	PaymentMethod string
}

type PaymentFailed struct {
	EventEnvelope
	Reason string
}

type PaymentUserDropped struct {
	EventEnvelope
}

type RefundSucceeded struct {
	EventEnvelope
	RefundID     string
	RefundAmount float64
}

// UnknownEvent is any notification type outside the table; it is acknowledged and dropped.
type UnknownEvent struct {
	EventEnvelope
}

func (PaymentSucceeded) webhookEvent()   {}
func (PaymentFailed) webhookEvent()      {}
func (PaymentUserDropped) webhookEvent() {}
func (RefundSucceeded) webhookEvent()    {}
func (UnknownEvent) webhookEvent()       {}

// Classify maps an event to the donation status it asks for.
func Classify(event WebhookEvent) (donationdomain.Status, bool) {
	switch event.(type) {
	case PaymentSucceeded, *PaymentSucceeded:
		return donationdomain.StatusCompleted, true
	case PaymentFailed, *PaymentFailed, PaymentUserDropped, *PaymentUserDropped:
		return donationdomain.StatusFailed, true
	case RefundSucceeded, *RefundSucceeded:
		return donationdomain.StatusRefunded, true
	default:
		return "", false
	}
}
