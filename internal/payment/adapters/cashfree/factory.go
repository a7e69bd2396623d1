package cashfree

import (
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/seva/internal/clock"
	paymentdomain "github.com/smallbiznis/seva/internal/payment/domain"
	"go.uber.org/zap"
)

const (
	ProviderName = "cashfree"

	defaultAPIVersion = "2023-08-01"
	defaultTimeout    = 10 * time.Second
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return ProviderName
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.PaymentAdapter, error) {
	secret := strings.TrimSpace(cfg.WebhookSecret)
	if secret == "" && !cfg.InsecureSkipVerify {
		return nil, paymentdomain.ErrInvalidConfig
	}

	return &Adapter{
		webhookSecret: secret,
		tolerance:     cfg.WebhookTolerance,
		insecure:      cfg.InsecureSkipVerify,
		clock:         clockOrDefault(cfg.Clock),
		log:           loggerOrNop(cfg.Log).Named("cashfree.webhook"),
	}, nil
}

func (f *Factory) NewClient(cfg paymentdomain.AdapterConfig) (paymentdomain.GatewayClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	appID := strings.TrimSpace(cfg.AppID)
	secretKey := strings.TrimSpace(cfg.SecretKey)
	if baseURL == "" || appID == "" || secretKey == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}

	apiVersion := strings.TrimSpace(cfg.APIVersion)
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:    baseURL,
		appID:      appID,
		secretKey:  secretKey,
		apiVersion: apiVersion,
		http:       httpClient,
		observe:    cfg.ObserveCall,
		log:        loggerOrNop(cfg.Log).Named("cashfree.client"),
	}, nil
}

func clockOrDefault(c clock.Clock) clock.Clock {
	if c == nil {
		return clock.New()
	}
	return c
}

func loggerOrNop(log *zap.Logger) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}
