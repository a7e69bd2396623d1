package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/seva/internal/audit/masking"
	"github.com/smallbiznis/seva/internal/clock"
	"github.com/smallbiznis/seva/internal/config"
	"github.com/smallbiznis/seva/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/seva/internal/observability/metrics"
	"github.com/smallbiznis/seva/internal/observability/tracing"
	"github.com/smallbiznis/seva/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/seva/internal/payment/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Cfg         config.Config
	Clock       clock.Clock
	Adapters    *adapters.Registry
	Reconciler  paymentdomain.ReconcileService
	Repo        paymentdomain.Repository
	ObsMetrics  *obsmetrics.Metrics     `optional:"true"`
	HTTPMetrics *obsmetrics.HTTPMetrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	adapters    *adapters.Registry
	verifiers   map[string]paymentdomain.PaymentAdapter
	reconciler  paymentdomain.ReconcileService
	repo        paymentdomain.Repository
	obsMetrics  *obsmetrics.Metrics
	httpMetrics *obsmetrics.HTTPMetrics
}

func NewService(p Params) paymentdomain.WebhookService {
	c := p.Clock
	if c == nil {
		c = clock.New()
	}
	log := p.Log.Named("payment.webhook")

	s := &Service{
		db:          p.DB,
		log:         log,
		genID:       p.GenID,
		clock:       c,
		adapters:    p.Adapters,
		verifiers:   map[string]paymentdomain.PaymentAdapter{},
		reconciler:  p.Reconciler,
		repo:        p.Repo,
		obsMetrics:  p.ObsMetrics,
		httpMetrics: p.HTTPMetrics,
	}

	insecure := p.Cfg.AllowInsecureWebhooks()
	if insecure {
		log.Warn("webhook signature verification is disabled", zap.String("environment", p.Cfg.Environment))
	}
	for _, provider := range p.Adapters.Providers() {
		adapter, err := p.Adapters.NewAdapter(provider, paymentdomain.AdapterConfig{
			Provider:           provider,
			WebhookSecret:      p.Cfg.Gateway.WebhookSecret,
			WebhookTolerance:   p.Cfg.Gateway.WebhookTolerance,
			InsecureSkipVerify: insecure,
			Clock:              c,
			Log:                p.Log,
		})
		if err != nil {
			log.Warn("webhook adapter not configured", zap.String("provider", provider), zap.Error(err))
			continue
		}
		s.verifiers[provider] = adapter
	}
	return s
}

// IngestWebhook authenticates one gateway delivery and feeds it to the
// reconciliation engine. The signature is checked before the body is parsed
// and before anything is read from or written to the store.
func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (paymentdomain.WebhookOutcome, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return paymentdomain.WebhookOutcome{}, paymentdomain.ErrInvalidProvider
	}
	if !s.adapters.ProviderExists(provider) {
		return paymentdomain.WebhookOutcome{}, paymentdomain.ErrProviderNotFound
	}
	adapter, ok := s.verifiers[provider]
	if !ok {
		return paymentdomain.WebhookOutcome{Provider: provider}, paymentdomain.ErrInvalidConfig
	}

	ctx, span := otel.Tracer("seva/payment").Start(ctx, "payment.webhook")
	defer span.End()
	span.SetAttributes(tracing.SafeAttributes(attribute.String("payment.provider", provider))...)

	log := logger.WithContext(ctx, s.log).With(zap.String("provider", provider))
	log.Info("webhook received", zap.Int("bytes", len(payload)))

	if err := adapter.Verify(ctx, payload, headers); err != nil {
		log.Warn("webhook rejected", zap.String("reason", "signature"), zap.Error(err))
		s.observe(ctx, provider, "", "rejected")
		span.SetStatus(codes.Error, "invalid signature")
		return paymentdomain.WebhookOutcome{Provider: provider}, err
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		log.Warn("webhook rejected", zap.String("reason", "payload"), zap.Error(err))
		s.observe(ctx, provider, "", "invalid")
		span.SetStatus(codes.Error, "invalid payload")
		return paymentdomain.WebhookOutcome{Provider: provider}, err
	}

	env := event.Envelope()
	outcome := paymentdomain.WebhookOutcome{
		Provider:  provider,
		EventType: env.Type,
		OrderID:   env.OrderID,
	}
	span.SetAttributes(tracing.SafeAttributes(
		attribute.String("payment.event_type", env.Type),
		attribute.String("payment.order_id", env.OrderID),
	)...)
	log = log.With(zap.String("event_type", env.Type), zap.String("order_id", env.OrderID))

	record := s.recordReceived(ctx, log, provider, env, payload)

	target, ok := paymentdomain.Classify(event)
	if !ok {
		outcome.Ignored = true
		log.Info("webhook processed", zap.String("outcome", outcome.Label()))
		s.recordProcessed(ctx, log, record, outcome.Label())
		s.observe(ctx, provider, env.Type, outcome.Label())
		return outcome, nil
	}

	result, err := s.reconciler.Reconcile(ctx, paymentdomain.ReconcileRequest{
		OrderID:   env.OrderID,
		Target:    target,
		PaymentID: env.PaymentID,
		Source:    paymentdomain.SourceWebhook,
	})
	if err != nil {
		log.Error("webhook error", zap.Error(err))
		s.recordProcessed(ctx, log, record, "error")
		s.observe(ctx, provider, env.Type, "error")
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "reconcile failed")
		return outcome, err
	}

	outcome.Reconcile = &result
	log.Info("webhook processed",
		zap.String("outcome", outcome.Label()),
		zap.String("status", result.Status.String()),
		zap.Bool("updated", result.Updated),
	)
	s.recordProcessed(ctx, log, record, outcome.Label())
	s.observe(ctx, provider, env.Type, outcome.Label())
	return outcome, nil
}

// recordReceived writes the audit row. Failures are logged and swallowed; a
// redelivery of an already recorded body returns nil.
func (s *Service) recordReceived(ctx context.Context, log *zap.Logger, provider string, env paymentdomain.EventEnvelope, payload []byte) *paymentdomain.EventRecord {
	if s.repo == nil || s.db == nil || s.genID == nil {
		return nil
	}

	record := &paymentdomain.EventRecord{
		ID:         s.genID.Generate(),
		Provider:   provider,
		EventKey:   EventKey(provider, payload),
		EventType:  env.Type,
		Payload:    maskedPayload(payload),
		ReceivedAt: s.clock.Now(),
	}
	if env.OrderID != "" {
		orderID := env.OrderID
		record.GatewayOrderID = &orderID
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, record)
	if err != nil {
		log.Warn("webhook audit write failed", zap.Error(err))
		return nil
	}
	if !inserted {
		log.Info("webhook redelivered", zap.String("event_key", record.EventKey))
		return nil
	}
	return record
}

func (s *Service) recordProcessed(ctx context.Context, log *zap.Logger, record *paymentdomain.EventRecord, outcome string) {
	if record == nil {
		return
	}
	if err := s.repo.MarkProcessed(context.WithoutCancel(ctx), s.db, record.ID, s.clock.Now(), outcome); err != nil {
		log.Warn("webhook audit update failed", zap.Error(err))
	}
}

func (s *Service) observe(ctx context.Context, provider, eventType, outcome string) {
	s.obsMetrics.RecordWebhook(ctx, provider, eventType, outcome)
	s.httpMetrics.ObserveWebhook(provider, outcome)
}

// EventKey identifies a delivery by its exact bytes.
func EventKey(provider string, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(provider))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func maskedPayload(payload []byte) datatypes.JSON {
	var body map[string]any
	if err := json.Unmarshal(payload, &body); err != nil {
		return datatypes.JSON(`{}`)
	}
	masked, err := json.Marshal(masking.MaskPII(body))
	if err != nil {
		return datatypes.JSON(`{}`)
	}
	return datatypes.JSON(masked)
}

// StatusCode maps an ingestion error to the response status the gateway sees.
// Only 5xx makes the gateway redeliver.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, paymentdomain.ErrProviderNotFound), errors.Is(err, paymentdomain.ErrInvalidProvider):
		return http.StatusNotFound
	case errors.Is(err, paymentdomain.ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, paymentdomain.ErrInvalidPayload), errors.Is(err, paymentdomain.ErrInvalidEvent):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
