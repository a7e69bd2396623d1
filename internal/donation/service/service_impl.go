package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/seva/internal/audit/masking"
	"github.com/smallbiznis/seva/internal/clock"
	"github.com/smallbiznis/seva/internal/config"
	"github.com/smallbiznis/seva/internal/donation/domain"
	obsmetrics "github.com/smallbiznis/seva/internal/observability/metrics"
	"github.com/smallbiznis/seva/internal/payment/checkout"
	paymentdomain "github.com/smallbiznis/seva/internal/payment/domain"
	"github.com/smallbiznis/seva/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SessionCreator opens the hosted checkout for a prepared order.
type SessionCreator interface {
	Prepare(intent checkout.Intent) (*checkout.PreparedOrder, error)
	Submit(ctx context.Context, order *checkout.PreparedOrder) (*paymentdomain.Session, error)
}

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Sessions   SessionCreator
	Clock      clock.Clock
	Cfg        config.Config
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	sessions   SessionCreator
	clock      clock.Clock
	gateway    string
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("donation.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		sessions:   p.Sessions,
		clock:      p.Clock,
		gateway:    strings.ToLower(strings.TrimSpace(p.Cfg.Gateway.Provider)),
		obsMetrics: p.ObsMetrics,
	}
}

// Checkout records the donation as pending and then opens the gateway session.
// A gateway rejection of the order marks the donation failed, since no payment
// can ever arrive for it. Other gateway failures leave it pending for the sweep.
// The typed gateway error is returned either way.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutResponse, error) {
	order, err := s.sessions.Prepare(checkout.Intent{
		Amount:     req.Amount,
		Currency:   req.Currency,
		DonorName:  req.DonorName,
		DonorEmail: req.DonorEmail,
		DonorPhone: req.DonorPhone,
	})
	if err != nil {
		s.obsMetrics.RecordCheckout(ctx, "invalid")
		return nil, err
	}

	now := s.clock.Now()
	donation := &domain.Donation{
		ID:             s.genID.Generate(),
		UserID:         normalizeUserID(req.UserID),
		Amount:         order.Amount,
		Currency:       order.Currency,
		DonorName:      order.DonorName,
		DonorEmail:     order.DonorEmail,
		DonorPhone:     order.DonorPhone,
		GatewayOrderID: order.OrderID,
		PaymentStatus:  domain.StatusPending,
		PaymentGateway: s.gateway,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Insert(ctx, s.db, donation); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateOrder
		}
		return nil, err
	}

	log := s.log.With(
		zap.String("donation_id", donation.ID.String()),
		zap.String("order_id", donation.GatewayOrderID),
		zap.String("donor_email", masking.MaskEmail(donation.DonorEmail)),
	)

	session, err := s.sessions.Submit(ctx, order)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrGatewayValidation) {
			s.markRejected(ctx, log, donation)
			s.obsMetrics.RecordCheckout(ctx, "gateway_rejected")
			return nil, err
		}
		log.Warn("donation left pending, gateway session failed", zap.Error(err))
		s.obsMetrics.RecordCheckout(ctx, "gateway_error")
		return nil, err
	}

	log.Info("donation checkout started", zap.Float64("amount", donation.Amount), zap.String("currency", donation.Currency))
	s.obsMetrics.RecordCheckout(ctx, "created")

	return &domain.CheckoutResponse{
		DonationID:       donation.ID.String(),
		OrderID:          donation.GatewayOrderID,
		PaymentSessionID: session.PaymentSessionID,
		Status:           donation.PaymentStatus,
	}, nil
}

func (s *Service) markRejected(ctx context.Context, log *zap.Logger, donation *domain.Donation) {
	ok, err := s.repo.UpdateStatus(ctx, s.db, domain.StatusUpdate{
		ID:         donation.ID,
		From:       domain.StatusPending,
		To:         domain.StatusFailed,
		VerifiedAt: s.clock.Now(),
	})
	switch {
	case err != nil:
		log.Warn("gateway rejected order, donation left pending", zap.Error(err))
	case ok:
		log.Info("gateway rejected order, donation marked failed")
	}
}

func (s *Service) GetByOrderID(ctx context.Context, orderID string) (*domain.Donation, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, domain.ErrInvalidOrderID
	}
	donation, err := s.repo.FindByOrderID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if donation == nil {
		return nil, domain.ErrNotFound
	}
	return donation, nil
}

func normalizeUserID(userID *string) *string {
	if userID == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*userID)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
