package payment

import (
	"context"
	"time"

	"github.com/smallbiznis/seva/internal/clock"
	"github.com/smallbiznis/seva/internal/config"
	obsmetrics "github.com/smallbiznis/seva/internal/observability/metrics"
	"github.com/smallbiznis/seva/internal/payment/adapters"
	"github.com/smallbiznis/seva/internal/payment/adapters/cashfree"
	"github.com/smallbiznis/seva/internal/payment/checkout"
	paymentdomain "github.com/smallbiznis/seva/internal/payment/domain"
	"github.com/smallbiznis/seva/internal/payment/orderstatus"
	"github.com/smallbiznis/seva/internal/payment/repository"
	paymentservice "github.com/smallbiznis/seva/internal/payment/service"
	"github.com/smallbiznis/seva/internal/payment/webhook"
	"github.com/smallbiznis/seva/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(
			cashfree.NewFactory(),
		)
	}),
	fx.Provide(NewGatewayClient),
	fx.Provide(checkout.NewCreator),
	fx.Provide(provideDonationLocker),
	fx.Provide(paymentservice.New),
	fx.Provide(func(s *paymentservice.Service) paymentdomain.ReconcileService { return s }),
	fx.Provide(webhook.NewService),
	fx.Provide(orderstatus.NewService),
)

type GatewayClientParams struct {
	fx.In

	Registry   *adapters.Registry
	Cfg        config.Config
	Clock      clock.Clock
	Log        *zap.Logger
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// NewGatewayClient builds the outbound client for the configured provider.
// Missing credentials leave checkout and verification disabled rather than
// failing startup, so webhooks keep flowing.
func NewGatewayClient(p GatewayClientParams) (paymentdomain.GatewayClient, error) {
	gw := p.Cfg.Gateway
	log := p.Log.Named("payment.gateway")
	if !p.Registry.ProviderExists(gw.Provider) {
		return nil, paymentdomain.ErrProviderNotFound
	}
	if gw.AppID == "" || gw.SecretKey == "" {
		log.Warn("gateway credentials missing, checkout and order verification disabled", zap.String("provider", gw.Provider))
		return nil, nil
	}

	metrics := p.ObsMetrics
	return p.Registry.NewClient(gw.Provider, paymentdomain.AdapterConfig{
		Provider:   gw.Provider,
		AppID:      gw.AppID,
		SecretKey:  gw.SecretKey,
		BaseURL:    gw.BaseURL,
		APIVersion: gw.APIVersion,
		Timeout:    gw.Timeout,
		Clock:      p.Clock,
		Log:        p.Log,
		ObserveCall: func(ctx context.Context, operation string, statusCode int, elapsed time.Duration) {
			metrics.RecordGatewayCall(ctx, gw.Provider, operation, statusCode, elapsed)
		},
	})
}

func provideDonationLocker(l *ratelimit.Limiter) paymentservice.DonationLocker {
	if !l.Enabled() {
		return nil
	}
	return l
}
