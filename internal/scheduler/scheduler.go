package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/seva/internal/clock"
	donationdomain "github.com/smallbiznis/seva/internal/donation/domain"
	obslogger "github.com/smallbiznis/seva/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/seva/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/seva/internal/payment/domain"
	"github.com/smallbiznis/seva/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const JobPendingSweep = "pending_sweep"

const (
	sweepResultUnchanged       = "unchanged"
	sweepResultGatewayNotFound = "gateway_not_found"
	sweepResultAbandoned       = "abandoned"
	sweepResultGatewayDisabled = "gateway_disabled"
	sweepResultError           = "error"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

// JobLocker is satisfied by *ratelimit.Limiter.
type JobLocker interface {
	TryLockJob(ctx context.Context, job string, ttl time.Duration) (string, bool, error)
	ReleaseJob(ctx context.Context, job, token string) error
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Repo     donationdomain.Repository
	Verifier paymentdomain.OrderStatusService
	Engine   paymentdomain.ReconcileService
	GenID    *snowflake.Node
	Clock    clock.Clock
	Config   Config                       `optional:"true"`
	Limiter  *ratelimit.Limiter           `optional:"true"`
	Metrics  *obsmetrics.SchedulerMetrics `optional:"true"`
}

// Scheduler re-verifies donations whose webhook never arrived.
type Scheduler struct {
	db       *gorm.DB
	log      *zap.Logger
	cfg      Config
	genID    *snowflake.Node
	clock    clock.Clock
	repo     donationdomain.Repository
	verifier paymentdomain.OrderStatusService
	engine   paymentdomain.ReconcileService
	locker   JobLocker
	metrics  *obsmetrics.SchedulerMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Repo == nil || p.Verifier == nil || p.Engine == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	s := &Scheduler{
		db:       p.DB,
		log:      p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:      p.Config.withDefaults(),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		verifier: p.Verifier,
		engine:   p.Engine,
		metrics:  p.Metrics,
	}
	if p.Limiter.Enabled() {
		s.locker = p.Limiter
	}
	return s, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	s.metrics.IncJobRun(name)

	err := fn(ctx)
	s.metrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	s.metrics.IncJobError(name, err)
	// a deadline is a soft timeout; the next tick picks up where this one stopped
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.metrics.IncJobTimeout(name)
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(ctx context.Context) error {
	return s.runJob(ctx, JobPendingSweep, s.cfg.BatchSize, s.cfg.JobTimeout, s.PendingSweepJob)
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// PendingSweepJob pulls the gateway status of pending donations older than
// PendingAge and feeds it through the same transition rules as webhooks.
func (s *Scheduler) PendingSweepJob(ctx context.Context) error {
	ctx, run, _ := s.ensureJobRun(ctx, JobPendingSweep, s.cfg.BatchSize)

	if s.locker != nil {
		token, ok, err := s.locker.TryLockJob(ctx, JobPendingSweep, s.cfg.JobTimeout)
		switch {
		case err != nil:
			s.logger(ctx).Warn("job lock unavailable, sweeping without it", zap.Error(err))
		case !ok:
			s.logger(ctx).Debug("pending sweep running elsewhere")
			return nil
		default:
			defer func() {
				if err := s.locker.ReleaseJob(context.WithoutCancel(ctx), JobPendingSweep, token); err != nil {
					s.logger(ctx).Warn("job lock release failed", zap.Error(err))
				}
			}()
		}
	}

	now := s.clock.Now()
	items, err := s.repo.ListStalePending(ctx, s.db, now.Add(-s.cfg.PendingAge), now.Add(-s.cfg.RecheckAfter), s.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("list stale pending: %w", err)
	}

	for _, donation := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		result := s.sweepOne(ctx, run, donation, now)
		if result == sweepResultGatewayDisabled {
			s.logger(ctx).Info("gateway not configured, pending sweep skipped")
			return nil
		}
		s.metrics.IncSwept(result)
		run.AddProcessed(1)
	}
	return nil
}

func (s *Scheduler) sweepOne(ctx context.Context, run *jobRun, donation donationdomain.Donation, now time.Time) string {
	log := obslogger.WithDonation(s.logger(ctx), int64(donation.ID), donation.GatewayOrderID)

	res, err := s.verifier.Reconcile(ctx, donation.GatewayOrderID)
	switch {
	case err == nil:
		if res == nil || res.Outcome == nil {
			return sweepResultUnchanged
		}
		if res.Outcome.Result == paymentdomain.ResultApplied {
			log.Info("pending donation reconciled",
				zap.String("status", res.Outcome.Status.String()),
			)
		}
		return string(res.Outcome.Result)
	case errors.Is(err, paymentdomain.ErrGatewayNotEnabled):
		return sweepResultGatewayDisabled
	case errors.Is(err, paymentdomain.ErrOrderNotFound):
		if now.Sub(donation.CreatedAt) >= s.cfg.AbandonAfter {
			return s.abandon(ctx, run, log, donation)
		}
		// the order never reached the gateway; back off until RecheckAfter
		if touchErr := s.repo.TouchVerified(ctx, s.db, donation.ID, now); touchErr != nil {
			run.IncError()
			log.Warn("touch verified failed", zap.Error(touchErr))
		}
		log.Warn("pending donation unknown to gateway")
		return sweepResultGatewayNotFound
	default:
		run.IncError()
		log.Warn("pending donation verification failed", zap.Error(err))
		return sweepResultError
	}
}

// abandon fails a donation whose order the gateway never accepted. It goes
// through the engine so a payment that raced in still wins.
func (s *Scheduler) abandon(ctx context.Context, run *jobRun, log *zap.Logger, donation donationdomain.Donation) string {
	outcome, err := s.engine.Reconcile(ctx, paymentdomain.ReconcileRequest{
		OrderID: donation.GatewayOrderID,
		Target:  donationdomain.StatusFailed,
		Source:  paymentdomain.SourceVerification,
	})
	if err != nil {
		run.IncError()
		log.Warn("abandon pending donation failed", zap.Error(err))
		return sweepResultError
	}
	if outcome.Result != paymentdomain.ResultApplied {
		return string(outcome.Result)
	}
	log.Info("pending donation unknown to gateway marked failed",
		zap.Duration("age", s.clock.Now().Sub(donation.CreatedAt)),
	)
	return sweepResultAbandoned
}
