package orderstatus

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/seva/internal/clock"
	donationdomain "github.com/smallbiznis/seva/internal/donation/domain"
	paymentdomain "github.com/smallbiznis/seva/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Client     paymentdomain.GatewayClient `optional:"true"`
	Reconciler paymentdomain.ReconcileService
	Repo       donationdomain.Repository
	Clock      clock.Clock
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	client     paymentdomain.GatewayClient
	reconciler paymentdomain.ReconcileService
	repo       donationdomain.Repository
	clock      clock.Clock
}

func NewService(p Params) paymentdomain.OrderStatusService {
	c := p.Clock
	if c == nil {
		c = clock.New()
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.orderstatus"),
		client:     p.Client,
		reconciler: p.Reconciler,
		repo:       p.Repo,
		clock:      c,
	}
}

// Verify asks the gateway for the order and its latest payment attempt.
func (s *Service) Verify(ctx context.Context, orderID string) (*paymentdomain.OrderDetails, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, paymentdomain.ErrInvalidOrderID
	}
	if s.client == nil {
		return nil, paymentdomain.ErrGatewayNotEnabled
	}

	order, err := s.client.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	payments, err := s.client.ListPayments(ctx, orderID)
	if err != nil {
		return nil, err
	}

	details := &paymentdomain.OrderDetails{
		OrderID:     orderID,
		Amount:      order.Amount,
		Currency:    order.Currency,
		OrderStatus: strings.ToUpper(order.Status),
	}
	if latest := latestPayment(payments); latest != nil {
		details.PaymentStatus = strings.ToUpper(latest.Status)
		details.PaymentMethod = latest.Method
		details.PaymentTime = latest.PaymentTime
		details.PaymentID = latest.PaymentID
		if details.Amount == 0 {
			details.Amount = latest.Amount
		}
		if details.Currency == "" {
			details.Currency = latest.Currency
		}
	}

	s.log.Info("order verified",
		zap.String("order_id", orderID),
		zap.String("order_status", details.OrderStatus),
		zap.String("payment_status", details.PaymentStatus),
	)
	return details, nil
}

// Reconcile verifies the order and feeds whatever the gateway reports into the
// reconciliation engine. When there is nothing to apply the donation is only
// marked as verified.
func (s *Service) Reconcile(ctx context.Context, orderID string) (*paymentdomain.VerifyResult, error) {
	details, err := s.Verify(ctx, orderID)
	if err != nil {
		return nil, err
	}
	result := &paymentdomain.VerifyResult{Details: details}

	target, ok := TargetStatus(details)
	if ok {
		result.Target = &target
		outcome, err := s.reconciler.Reconcile(ctx, paymentdomain.ReconcileRequest{
			OrderID:   details.OrderID,
			Target:    target,
			PaymentID: details.PaymentID,
			Source:    paymentdomain.SourceVerification,
		})
		if err != nil {
			return nil, err
		}
		result.Outcome = &outcome
		if outcome.Result == paymentdomain.ResultNotFound {
			return result, nil
		}
		result.Verified = true
		if outcome.Result == paymentdomain.ResultApplied {
			return result, nil
		}
		return result, s.touch(ctx, outcome.DonationID, details.OrderID)
	}

	donation, err := s.repo.FindByOrderID(ctx, s.db, details.OrderID)
	if err != nil {
		return nil, fmt.Errorf("find donation: %w", err)
	}
	if donation == nil {
		return result, nil
	}
	result.Verified = true
	return result, s.touch(ctx, donation.ID, details.OrderID)
}

func (s *Service) touch(ctx context.Context, donationID snowflake.ID, orderID string) error {
	if err := s.repo.TouchVerified(ctx, s.db, donationID, s.clock.Now()); err != nil {
		s.log.Warn("verified-at update failed", zap.String("order_id", orderID), zap.Error(err))
		return fmt.Errorf("touch verified: %w", err)
	}
	return nil
}

// TargetStatus derives the donation status the gateway view implies.
func TargetStatus(details *paymentdomain.OrderDetails) (donationdomain.Status, bool) {
	if details == nil {
		return "", false
	}
	if details.OrderStatus == paymentdomain.OrderStatusPaid || details.PaymentStatus == paymentdomain.PaymentStatusSuccess {
		return donationdomain.StatusCompleted, true
	}
	switch details.PaymentStatus {
	case paymentdomain.PaymentStatusFailed, paymentdomain.PaymentStatusUserDropped, paymentdomain.PaymentStatusCancelled:
		return donationdomain.StatusFailed, true
	}
	return "", false
}

// latestPayment picks the most recent attempt; attempts without a time rank by position.
func latestPayment(payments []paymentdomain.GatewayPayment) *paymentdomain.GatewayPayment {
	var latest *paymentdomain.GatewayPayment
	for i := range payments {
		p := &payments[i]
		if latest == nil {
			latest = p
			continue
		}
		switch {
		case p.PaymentTime == nil || latest.PaymentTime == nil:
			latest = p
		case !p.PaymentTime.Before(*latest.PaymentTime):
			latest = p
		}
	}
	return latest
}
