package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/seva/internal/clock"
	"github.com/smallbiznis/seva/internal/config"
	"github.com/smallbiznis/seva/internal/donation"
	donationdomain "github.com/smallbiznis/seva/internal/donation/domain"
	"github.com/smallbiznis/seva/internal/observability"
	obsmiddleware "github.com/smallbiznis/seva/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/seva/internal/observability/metrics"
	obstracing "github.com/smallbiznis/seva/internal/observability/tracing"
	"github.com/smallbiznis/seva/internal/payment"
	"github.com/smallbiznis/seva/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/seva/internal/payment/domain"
	"github.com/smallbiznis/seva/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	ratelimit.Module,
	donation.Module,
	payment.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

// clientLimiter is satisfied by *ratelimit.Limiter.
type clientLimiter interface {
	AllowCheckout(ctx context.Context, clientKey string) (*ratelimit.Result, error)
	AllowOrderLookup(ctx context.Context, clientKey string) (*ratelimit.Result, error)
}

type Server struct {
	engine         *gin.Engine
	cfg            config.Config
	clock          clock.Clock
	donationSvc    donationdomain.Service
	webhookSvc     paymentdomain.WebhookService
	orderStatusSvc paymentdomain.OrderStatusService
	adapters       *adapters.Registry
	clientLimit    clientLimiter
	obsMetrics     *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	Clock          clock.Clock
	DonationSvc    donationdomain.Service
	WebhookSvc     paymentdomain.WebhookService
	OrderStatusSvc paymentdomain.OrderStatusService
	Adapters       *adapters.Registry
	Limiter        *ratelimit.Limiter  `optional:"true"`
	ObsMetrics     *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		clock:          p.Clock,
		donationSvc:    p.DonationSvc,
		webhookSvc:     p.WebhookSvc,
		orderStatusSvc: p.OrderStatusSvc,
		adapters:       p.Adapters,
		obsMetrics:     p.ObsMetrics,
	}
	if p.Limiter.Enabled() {
		svc.clientLimit = p.Limiter
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Payment Webhooks --------
	api.POST("/payments/webhooks/:provider", s.HandlePaymentWebhook)
	api.GET("/payments/webhooks/:provider", s.PaymentWebhookStatus)
	api.HEAD("/payments/webhooks/:provider", s.PaymentWebhookHead)
	api.OPTIONS("/payments/webhooks/:provider", s.PaymentWebhookPreflight)

	// -------- Donations --------
	api.POST("/donations/checkout", s.CheckoutRateLimit(), s.CreateCheckout)
	api.GET("/donations/orders/:order_id", s.GetDonationByOrder)

	// -------- Order verification --------
	api.GET("/payments/orders/:order_id/status", s.OrderLookupRateLimit(), s.GetOrderStatus)
	api.POST("/payments/orders/:order_id/reconcile", s.OrderLookupRateLimit(), s.ReconcileOrder)
}
