package domain

import (
	"context"
	"net/http"
	"time"

	"github.com/smallbiznis/seva/internal/clock"
	"go.uber.org/zap"
)

// AdapterConfig carries the credentials and tuning of one gateway account.
type AdapterConfig struct {
	Provider      string
	AppID         string
	SecretKey     string
	WebhookSecret string
	BaseURL       string
	APIVersion    string
	Timeout       time.Duration

	WebhookTolerance   time.Duration
	InsecureSkipVerify bool

	Clock      clock.Clock
	Log        *zap.Logger
	HTTPClient *http.Client
	// ObserveCall is invoked after every outbound request.
	ObserveCall func(ctx context.Context, operation string, statusCode int, elapsed time.Duration)
}

type PaymentAdapter interface {
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (WebhookEvent, error)
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (PaymentAdapter, error)
	NewClient(cfg AdapterConfig) (GatewayClient, error)
}
