package orderstatus_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/seva/internal/clock"
	donationdomain "github.com/smallbiznis/seva/internal/donation/domain"
	donationrepo "github.com/smallbiznis/seva/internal/donation/repository"
	paymentdomain "github.com/smallbiznis/seva/internal/payment/domain"
	"github.com/smallbiznis/seva/internal/payment/orderstatus"
	paymentservice "github.com/smallbiznis/seva/internal/payment/service"
	"github.com/smallbiznis/seva/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var now = time.Date(2026, 4, 14, 8, 0, 0, 0, time.UTC)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateOrder(ctx context.Context, req paymentdomain.CreateOrderRequest) (*paymentdomain.Session, error) {
	args := m.Called(ctx, req)
	session, _ := args.Get(0).(*paymentdomain.Session)
	return session, args.Error(1)
}

func (m *mockGateway) GetOrder(ctx context.Context, orderID string) (*paymentdomain.GatewayOrder, error) {
	args := m.Called(ctx, orderID)
	order, _ := args.Get(0).(*paymentdomain.GatewayOrder)
	return order, args.Error(1)
}

func (m *mockGateway) ListPayments(ctx context.Context, orderID string) ([]paymentdomain.GatewayPayment, error) {
	args := m.Called(ctx, orderID)
	payments, _ := args.Get(0).([]paymentdomain.GatewayPayment)
	return payments, args.Error(1)
}

type fixture struct {
	db      *gorm.DB
	node    *snowflake.Node
	clock   *clock.FakeClock
	gateway *mockGateway
	svc     paymentdomain.OrderStatusService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	node, err := snowflake.NewNode(11)
	require.NoError(t, err)
	fc := clock.NewFakeClock(now)
	gateway := &mockGateway{}

	repo := donationrepo.Provide()
	engine := paymentservice.New(paymentservice.Params{DB: db, Log: zap.NewNop(), Repo: repo, Clock: fc})
	svc := orderstatus.NewService(orderstatus.Params{
		DB:         db,
		Log:        zap.NewNop(),
		Client:     gateway,
		Reconciler: engine,
		Repo:       repo,
		Clock:      fc,
	})
	return &fixture{db: db, node: node, clock: fc, gateway: gateway, svc: svc}
}

func (f *fixture) seed(t *testing.T, orderID string, status donationdomain.Status) {
	t.Helper()
	require.NoError(t, donationrepo.Provide().Insert(context.Background(), f.db, &donationdomain.Donation{
		ID:             f.node.Generate(),
		Amount:         501,
		Currency:       "INR",
		DonorName:      "Lakshmi",
		DonorEmail:     "lakshmi@example.com",
		DonorPhone:     "+919800000000",
		GatewayOrderID: orderID,
		PaymentStatus:  status,
		PaymentGateway: "cashfree",
		CreatedAt:      now.Add(-2 * time.Hour),
		UpdatedAt:      now.Add(-2 * time.Hour),
	}))
}

func (f *fixture) load(t *testing.T, orderID string) *donationdomain.Donation {
	t.Helper()
	d, err := donationrepo.Provide().FindByOrderID(context.Background(), f.db, orderID)
	require.NoError(t, err)
	require.NotNil(t, d)
	return d
}

func at(minutesAgo int) *time.Time {
	ts := now.Add(-time.Duration(minutesAgo) * time.Minute)
	return &ts
}

func TestVerifyNormalizesLatestAttempt(t *testing.T) {
	f := newFixture(t)
	f.gateway.On("GetOrder", mock.Anything, "DON_1").
		Return(&paymentdomain.GatewayOrder{OrderID: "DON_1", Amount: 501, Currency: "INR", Status: "paid"}, nil)
	f.gateway.On("ListPayments", mock.Anything, "DON_1").Return([]paymentdomain.GatewayPayment{
		{PaymentID: "p2", Status: "SUCCESS", Method: "upi", PaymentTime: at(5)},
		{PaymentID: "p1", Status: "FAILED", Method: "card", PaymentTime: at(20)},
	}, nil)

	details, err := f.svc.Verify(context.Background(), "DON_1")
	require.NoError(t, err)
	assert.Equal(t, "PAID", details.OrderStatus)
	assert.Equal(t, "SUCCESS", details.PaymentStatus)
	assert.Equal(t, "p2", details.PaymentID)
	assert.Equal(t, "upi", details.PaymentMethod)
	assert.Equal(t, 501.0, details.Amount)
	assert.Equal(t, "INR", details.Currency)
}

func TestVerifyOrderNotFoundIsDistinct(t *testing.T) {
	f := newFixture(t)
	f.gateway.On("GetOrder", mock.Anything, "DON_x").
		Return(nil, paymentdomain.NewGatewayError(404, "order_not_found", "order does not exist"))

	_, err := f.svc.Verify(context.Background(), "DON_x")
	assert.ErrorIs(t, err, paymentdomain.ErrOrderNotFound)
	assert.NotErrorIs(t, err, paymentdomain.ErrGatewayAuthentication)
	f.gateway.AssertNotCalled(t, "ListPayments", mock.Anything, mock.Anything)
}

func TestVerifyAuthFailure(t *testing.T) {
	f := newFixture(t)
	f.gateway.On("GetOrder", mock.Anything, "DON_y").
		Return(nil, paymentdomain.NewGatewayError(401, "authentication_failed", "bad key"))

	_, err := f.svc.Verify(context.Background(), "DON_y")
	assert.ErrorIs(t, err, paymentdomain.ErrGatewayAuthentication)
	assert.NotErrorIs(t, err, paymentdomain.ErrOrderNotFound)
}

func TestVerifyWithoutClient(t *testing.T) {
	svc := orderstatus.NewService(orderstatus.Params{Log: zap.NewNop()})
	_, err := svc.Verify(context.Background(), "DON_1")
	assert.ErrorIs(t, err, paymentdomain.ErrGatewayNotEnabled)

	_, err = svc.Verify(context.Background(), " ")
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidOrderID)
}

func TestReconcileAppliesPaidOrder(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "DON_2", donationdomain.StatusPending)
	f.gateway.On("GetOrder", mock.Anything, "DON_2").
		Return(&paymentdomain.GatewayOrder{OrderID: "DON_2", Amount: 501, Currency: "INR", Status: "PAID"}, nil)
	f.gateway.On("ListPayments", mock.Anything, "DON_2").
		Return([]paymentdomain.GatewayPayment{{PaymentID: "cf_77", Status: "SUCCESS", PaymentTime: at(1)}}, nil)

	res, err := f.svc.Reconcile(context.Background(), "DON_2")
	require.NoError(t, err)
	require.NotNil(t, res.Target)
	assert.Equal(t, donationdomain.StatusCompleted, *res.Target)
	require.NotNil(t, res.Outcome)
	assert.Equal(t, paymentdomain.ResultApplied, res.Outcome.Result)
	assert.True(t, res.Verified)

	stored := f.load(t, "DON_2")
	assert.Equal(t, donationdomain.StatusCompleted, stored.PaymentStatus)
	require.NotNil(t, stored.PaymentID)
	assert.Equal(t, "cf_77", *stored.PaymentID)
}

func TestReconcileDroppedAttemptFails(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "DON_3", donationdomain.StatusPending)
	f.gateway.On("GetOrder", mock.Anything, "DON_3").
		Return(&paymentdomain.GatewayOrder{OrderID: "DON_3", Status: "ACTIVE"}, nil)
	f.gateway.On("ListPayments", mock.Anything, "DON_3").
		Return([]paymentdomain.GatewayPayment{{PaymentID: "cf_78", Status: "USER_DROPPED", PaymentTime: at(3)}}, nil)

	res, err := f.svc.Reconcile(context.Background(), "DON_3")
	require.NoError(t, err)
	assert.Equal(t, donationdomain.StatusFailed, *res.Target)
	assert.Equal(t, donationdomain.StatusFailed, f.load(t, "DON_3").PaymentStatus)
}

func TestReconcileActiveOrderOnlyTouchesVerifiedAt(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "DON_4", donationdomain.StatusPending)
	f.gateway.On("GetOrder", mock.Anything, "DON_4").
		Return(&paymentdomain.GatewayOrder{OrderID: "DON_4", Status: "ACTIVE"}, nil)
	f.gateway.On("ListPayments", mock.Anything, "DON_4").Return([]paymentdomain.GatewayPayment{}, nil)

	res, err := f.svc.Reconcile(context.Background(), "DON_4")
	require.NoError(t, err)
	assert.Nil(t, res.Target)
	assert.Nil(t, res.Outcome)
	assert.True(t, res.Verified)

	stored := f.load(t, "DON_4")
	assert.Equal(t, donationdomain.StatusPending, stored.PaymentStatus)
	require.NotNil(t, stored.LastVerifiedAt)
	assert.True(t, stored.LastVerifiedAt.Equal(now))
}

func TestReconcileVerifiedAtIsMonotonic(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "DON_5", donationdomain.StatusCompleted)
	f.gateway.On("GetOrder", mock.Anything, "DON_5").
		Return(&paymentdomain.GatewayOrder{OrderID: "DON_5", Status: "PAID"}, nil)
	f.gateway.On("ListPayments", mock.Anything, "DON_5").Return([]paymentdomain.GatewayPayment{}, nil)

	_, err := f.svc.Reconcile(context.Background(), "DON_5")
	require.NoError(t, err)

	f.clock.Advance(-time.Hour)
	res, err := f.svc.Reconcile(context.Background(), "DON_5")
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.ResultNoop, res.Outcome.Result)

	stored := f.load(t, "DON_5")
	require.NotNil(t, stored.LastVerifiedAt)
	assert.True(t, stored.LastVerifiedAt.Equal(now))
}

func TestReconcileUnknownDonation(t *testing.T) {
	f := newFixture(t)
	f.gateway.On("GetOrder", mock.Anything, "DON_6").
		Return(&paymentdomain.GatewayOrder{OrderID: "DON_6", Status: "PAID"}, nil)
	f.gateway.On("ListPayments", mock.Anything, "DON_6").Return([]paymentdomain.GatewayPayment{}, nil)

	res, err := f.svc.Reconcile(context.Background(), "DON_6")
	require.NoError(t, err)
	assert.False(t, res.Verified)
	assert.Equal(t, paymentdomain.ResultNotFound, res.Outcome.Result)
}

func TestTargetStatus(t *testing.T) {
	tests := []struct {
		name    string
		details *paymentdomain.OrderDetails
		want    donationdomain.Status
		ok      bool
	}{
		{name: "paid order", details: &paymentdomain.OrderDetails{OrderStatus: "PAID"}, want: donationdomain.StatusCompleted, ok: true},
		{name: "successful attempt", details: &paymentdomain.OrderDetails{OrderStatus: "ACTIVE", PaymentStatus: "SUCCESS"}, want: donationdomain.StatusCompleted, ok: true},
		{name: "failed attempt", details: &paymentdomain.OrderDetails{OrderStatus: "ACTIVE", PaymentStatus: "FAILED"}, want: donationdomain.StatusFailed, ok: true},
		{name: "cancelled attempt", details: &paymentdomain.OrderDetails{OrderStatus: "ACTIVE", PaymentStatus: "CANCELLED"}, want: donationdomain.StatusFailed, ok: true},
		{name: "pending attempt", details: &paymentdomain.OrderDetails{OrderStatus: "ACTIVE", PaymentStatus: "PENDING"}},
		{name: "no attempts", details: &paymentdomain.OrderDetails{OrderStatus: "ACTIVE"}},
		{name: "nil", details: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := orderstatus.TargetStatus(tt.details)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
