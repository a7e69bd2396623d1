package cashfree

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/seva/internal/clock"
	paymentdomain "github.com/smallbiznis/seva/internal/payment/domain"
	"go.uber.org/zap"
)

const (
	HeaderSignature = "x-webhook-signature"
	HeaderTimestamp = "x-webhook-timestamp"

	EventPaymentSuccess       = "PAYMENT_SUCCESS_WEBHOOK"
	EventPaymentFailed        = "PAYMENT_FAILED_WEBHOOK"
	EventPaymentUserDropped   = "PAYMENT_USER_DROPPED_WEBHOOK"
	EventPaymentRefundSuccess = "PAYMENT_REFUND_SUCCESS_WEBHOOK"
	EventRefundSuccess        = "REFUND_SUCCESS_WEBHOOK"
)

// timestamps above this are milliseconds
const millisThreshold = 1_000_000_000_000

type Adapter struct {
	webhookSecret string
	tolerance     time.Duration
	insecure      bool
	clock         clock.Clock
	log           *zap.Logger
}

// Verify checks x-webhook-signature = base64(HMAC-SHA256(secret, timestamp + body)).
func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	if a.insecure {
		a.log.Warn("webhook signature verification skipped, insecure mode enabled")
		return nil
	}

	signature := strings.TrimSpace(headers.Get(HeaderSignature))
	timestamp := strings.TrimSpace(headers.Get(HeaderTimestamp))
	if signature == "" || timestamp == "" {
		return paymentdomain.ErrInvalidSignature
	}

	expected := Sign(a.webhookSecret, timestamp, payload)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return paymentdomain.ErrInvalidSignature
	}

	if a.tolerance > 0 {
		sentAt, err := parseTimestamp(timestamp)
		if err != nil {
			return paymentdomain.ErrInvalidSignature
		}
		skew := a.clock.Now().Sub(sentAt)
		if skew < 0 {
			skew = -skew
		}
		if skew > a.tolerance {
			a.log.Warn("webhook timestamp outside tolerance", zap.Duration("skew", skew))
			return paymentdomain.ErrInvalidSignature
		}
	}
	return nil
}

// Sign computes the signature the gateway attaches to a notification.
func Sign(secret, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(timestamp))
	_, _ = mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func parseTimestamp(value string) (time.Time, error) {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	if n >= millisThreshold {
		return time.UnixMilli(n).UTC(), nil
	}
	return time.Unix(n, 0).UTC(), nil
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (paymentdomain.WebhookEvent, error) {
	var body webhookBody
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}

	env := paymentdomain.EventEnvelope{
		Provider:   ProviderName,
		Type:       strings.TrimSpace(body.Type),
		OccurredAt: parseEventTime(body.EventTime, a.clock.Now()),
	}
	if order := body.Data.Order; order != nil {
		env.OrderID = strings.TrimSpace(order.OrderID)
		env.Amount = order.OrderAmount
		env.Currency = order.OrderCurrency
	}
	if payment := body.Data.Payment; payment != nil {
		env.PaymentID = payment.CfPaymentID.String()
		if payment.PaymentAmount > 0 {
			env.Amount = payment.PaymentAmount
		}
		if payment.PaymentCurrency != "" {
			env.Currency = payment.PaymentCurrency
		}
	}

	switch env.Type {
	case EventPaymentSuccess:
		if err := requireOrder(env); err != nil {
			return nil, err
		}
		event := paymentdomain.PaymentSucceeded{EventEnvelope: env}
		if body.Data.Payment != nil {
			event.PaymentMethod = body.Data.Payment.PaymentGroup
		}
		return event, nil
	case EventPaymentFailed:
		if err := requireOrder(env); err != nil {
			return nil, err
		}
		event := paymentdomain.PaymentFailed{EventEnvelope: env}
		if body.Data.Payment != nil {
			event.Reason = body.Data.Payment.PaymentMessage
		}
		return event, nil
	case EventPaymentUserDropped:
		if err := requireOrder(env); err != nil {
			return nil, err
		}
		return paymentdomain.PaymentUserDropped{EventEnvelope: env}, nil
	case EventPaymentRefundSuccess, EventRefundSuccess:
		event := paymentdomain.RefundSucceeded{EventEnvelope: env}
		if refund := body.Data.Refund; refund != nil {
			if event.OrderID == "" {
				event.OrderID = strings.TrimSpace(refund.OrderID)
			}
			if event.PaymentID == "" {
				event.PaymentID = refund.CfPaymentID.String()
			}
			event.RefundID = firstNonEmpty(refund.RefundID, refund.CfRefundID.String())
			event.RefundAmount = refund.RefundAmount
		}
		if err := requireOrder(event.EventEnvelope); err != nil {
			return nil, err
		}
		return event, nil
	default:
		return paymentdomain.UnknownEvent{EventEnvelope: env}, nil
	}
}

func requireOrder(env paymentdomain.EventEnvelope) error {
	if env.OrderID == "" {
		return paymentdomain.ErrInvalidEvent
	}
	return nil
}

func parseEventTime(value string, fallback time.Time) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
