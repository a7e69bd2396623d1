package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/seva/internal/clock"
	donationdomain "github.com/smallbiznis/seva/internal/donation/domain"
	"github.com/smallbiznis/seva/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/seva/internal/observability/metrics"
	"github.com/smallbiznis/seva/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/seva/internal/payment/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	lockAttempts = 3
	lockBackoff  = 50 * time.Millisecond
)

// DonationLocker serializes reconciliation of a single donation across replicas.
type DonationLocker interface {
	TryLockDonation(ctx context.Context, id snowflake.ID) (string, bool, error)
	ReleaseDonation(ctx context.Context, id snowflake.ID, token string) error
}

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Repo       donationdomain.Repository
	Clock      clock.Clock
	Locker     DonationLocker      `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	repo       donationdomain.Repository
	clock      clock.Clock
	locker     DonationLocker
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) *Service {
	c := p.Clock
	if c == nil {
		c = clock.New()
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		repo:       p.Repo,
		clock:      c,
		locker:     p.Locker,
		obsMetrics: p.ObsMetrics,
	}
}

// Reconcile moves the donation behind req.OrderID toward req.Target. The
// write is a compare-and-set on the status the decision was made against, so
// concurrent deliveries for one donation cannot both apply.
func (s *Service) Reconcile(ctx context.Context, req paymentdomain.ReconcileRequest) (paymentdomain.ReconcileOutcome, error) {
	req.OrderID = strings.TrimSpace(req.OrderID)
	if req.OrderID == "" {
		return paymentdomain.ReconcileOutcome{}, paymentdomain.ErrInvalidOrderID
	}
	switch req.Target {
	case donationdomain.StatusCompleted, donationdomain.StatusFailed, donationdomain.StatusRefunded:
	default:
		return paymentdomain.ReconcileOutcome{}, paymentdomain.ErrInvalidTarget
	}
	if req.Source == "" {
		req.Source = paymentdomain.SourceWebhook
	}

	ctx, span := otel.Tracer("seva/payment").Start(ctx, "payment.reconcile")
	defer span.End()
	span.SetAttributes(tracing.SafeAttributes(attribute.String("payment.order_id", req.OrderID))...)

	outcome, err := s.reconcile(ctx, req)
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "reconcile failed")
		s.obsMetrics.RecordReconcile(ctx, string(req.Source), "error")
		return outcome, err
	}

	span.SetAttributes(tracing.SafeAttributes(attribute.String("reconcile.result", string(outcome.Result)))...)
	s.obsMetrics.RecordReconcile(ctx, string(req.Source), string(outcome.Result))
	return outcome, nil
}

func (s *Service) reconcile(ctx context.Context, req paymentdomain.ReconcileRequest) (paymentdomain.ReconcileOutcome, error) {
	log := logger.WithContext(ctx, s.log).With(
		zap.String("target", req.Target.String()),
		zap.String("source", string(req.Source)),
	)

	donation, err := s.repo.FindByOrderID(ctx, s.db, req.OrderID)
	if err != nil {
		return paymentdomain.ReconcileOutcome{}, fmt.Errorf("find donation: %w", err)
	}
	if donation == nil {
		log.Info("reconcile skipped, donation not found", zap.String("order_id", req.OrderID))
		return paymentdomain.ReconcileOutcome{
			Result:  paymentdomain.ResultNotFound,
			OrderID: req.OrderID,
		}, nil
	}
	log = logger.WithDonation(log, donation.ID.Int64(), donation.GatewayOrderID)

	release, err := s.lock(ctx, log, donation.ID)
	if err != nil {
		return paymentdomain.ReconcileOutcome{}, err
	}
	defer release()

	for attempt := 0; attempt < 2; attempt++ {
		outcome := paymentdomain.ReconcileOutcome{
			DonationID:     donation.ID,
			OrderID:        donation.GatewayOrderID,
			PreviousStatus: donation.PaymentStatus,
			Status:         donation.PaymentStatus,
		}

		switch donationdomain.Decide(donation.PaymentStatus, req.Target) {
		case donationdomain.DecisionNoop:
			outcome.Result = paymentdomain.ResultNoop
			outcome.Reason = paymentdomain.ReasonOutOfOrder
			if donation.PaymentStatus == req.Target {
				outcome.Reason = paymentdomain.ReasonDuplicate
			}
			log.Info("reconcile no-op", zap.String("status", donation.PaymentStatus.String()), zap.String("reason", outcome.Reason))
			return outcome, nil

		case donationdomain.DecisionReject:
			outcome.Result = paymentdomain.ResultRejected
			outcome.Reason = paymentdomain.ReasonIllegalTransition
			log.Warn("reconcile rejected illegal transition", zap.String("status", donation.PaymentStatus.String()))
			return outcome, nil
		}

		applied, err := s.repo.UpdateStatus(ctx, s.db, donationdomain.StatusUpdate{
			ID:         donation.ID,
			From:       donation.PaymentStatus,
			To:         req.Target,
			PaymentID:  optionalString(req.PaymentID),
			VerifiedAt: s.clock.Now(),
		})
		if err != nil {
			return paymentdomain.ReconcileOutcome{}, fmt.Errorf("update donation status: %w", err)
		}
		if applied {
			outcome.Result = paymentdomain.ResultApplied
			outcome.Status = req.Target
			outcome.Updated = true
			log.Info("donation status updated",
				zap.String("from", donation.PaymentStatus.String()),
				zap.String("to", req.Target.String()),
			)
			return outcome, nil
		}

		// lost the compare-and-set, decide again against what won
		donation, err = s.repo.FindByID(ctx, s.db, donation.ID)
		if err != nil {
			return paymentdomain.ReconcileOutcome{}, fmt.Errorf("reload donation: %w", err)
		}
		if donation == nil {
			return paymentdomain.ReconcileOutcome{Result: paymentdomain.ResultNotFound, OrderID: req.OrderID}, nil
		}
	}

	log.Warn("reconcile gave up after concurrent updates")
	return paymentdomain.ReconcileOutcome{}, paymentdomain.ErrConcurrentUpdate
}

// lock takes the per-donation lock when one is configured. A redis failure
// degrades to the compare-and-set alone; a lock held elsewhere is retryable.
func (s *Service) lock(ctx context.Context, log *zap.Logger, id snowflake.ID) (func(), error) {
	noop := func() {}
	if s.locker == nil {
		return noop, nil
	}

	for attempt := 0; attempt < lockAttempts; attempt++ {
		token, ok, err := s.locker.TryLockDonation(ctx, id)
		if err != nil {
			log.Warn("reconcile lock unavailable", zap.Error(err))
			return noop, nil
		}
		if ok {
			return func() {
				if err := s.locker.ReleaseDonation(context.WithoutCancel(ctx), id, token); err != nil {
					log.Warn("reconcile lock release failed", zap.Error(err))
				}
			}, nil
		}

		select {
		case <-ctx.Done():
			return noop, ctx.Err()
		case <-time.After(lockBackoff):
		}
	}
	return noop, paymentdomain.ErrConcurrentUpdate
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
