package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/seva/internal/clock"
	donationdomain "github.com/smallbiznis/seva/internal/donation/domain"
	donationrepo "github.com/smallbiznis/seva/internal/donation/repository"
	paymentdomain "github.com/smallbiznis/seva/internal/payment/domain"
	paymentservice "github.com/smallbiznis/seva/internal/payment/service"
	"github.com/smallbiznis/seva/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var seededAt = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	db    *gorm.DB
	node  *snowflake.Node
	repo  donationdomain.Repository
	clock *clock.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	node, err := snowflake.NewNode(5)
	require.NoError(t, err)
	return &fixture{
		db:    dbtest.Open(t),
		node:  node,
		repo:  donationrepo.Provide(),
		clock: clock.NewFakeClock(seededAt.Add(time.Hour)),
	}
}

func (f *fixture) seed(t *testing.T, orderID string, status donationdomain.Status) *donationdomain.Donation {
	t.Helper()
	d := &donationdomain.Donation{
		ID:             f.node.Generate(),
		Amount:         251,
		Currency:       "INR",
		DonorName:      "Meera",
		DonorEmail:     "meera@example.com",
		DonorPhone:     "+919812345678",
		GatewayOrderID: orderID,
		PaymentStatus:  status,
		PaymentGateway: "cashfree",
		CreatedAt:      seededAt,
		UpdatedAt:      seededAt,
	}
	require.NoError(t, f.repo.Insert(context.Background(), f.db, d))
	return d
}

func (f *fixture) load(t *testing.T, orderID string) *donationdomain.Donation {
	t.Helper()
	d, err := f.repo.FindByOrderID(context.Background(), f.db, orderID)
	require.NoError(t, err)
	require.NotNil(t, d)
	return d
}

func (f *fixture) service(repo donationdomain.Repository, locker paymentservice.DonationLocker) *paymentservice.Service {
	if repo == nil {
		repo = f.repo
	}
	return paymentservice.New(paymentservice.Params{
		DB:     f.db,
		Log:    zap.NewNop(),
		Repo:   repo,
		Clock:  f.clock,
		Locker: locker,
	})
}

func reconcile(orderID string, target donationdomain.Status, paymentID string) paymentdomain.ReconcileRequest {
	return paymentdomain.ReconcileRequest{
		OrderID:   orderID,
		Target:    target,
		PaymentID: paymentID,
		Source:    paymentdomain.SourceWebhook,
	}
}

func TestReconcileAppliesSuccess(t *testing.T) {
	f := newFixture(t)
	seeded := f.seed(t, "DON_1_A", donationdomain.StatusPending)

	out, err := f.service(nil, nil).Reconcile(context.Background(), reconcile("DON_1_A", donationdomain.StatusCompleted, "cf_pay_1"))
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.ResultApplied, out.Result)
	assert.True(t, out.Updated)
	assert.Equal(t, seeded.ID, out.DonationID)
	assert.Equal(t, donationdomain.StatusPending, out.PreviousStatus)
	assert.Equal(t, donationdomain.StatusCompleted, out.Status)

	stored := f.load(t, "DON_1_A")
	assert.Equal(t, donationdomain.StatusCompleted, stored.PaymentStatus)
	require.NotNil(t, stored.PaymentID)
	assert.Equal(t, "cf_pay_1", *stored.PaymentID)
	require.NotNil(t, stored.LastVerifiedAt)
	assert.True(t, stored.LastVerifiedAt.Equal(f.clock.Now()))
}

func TestReconcileIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "DON_1_B", donationdomain.StatusPending)
	svc := f.service(nil, nil)
	ctx := context.Background()

	_, err := svc.Reconcile(ctx, reconcile("DON_1_B", donationdomain.StatusCompleted, "cf_pay_2"))
	require.NoError(t, err)
	first := f.load(t, "DON_1_B")

	f.clock.Advance(time.Minute)
	out, err := svc.Reconcile(ctx, reconcile("DON_1_B", donationdomain.StatusCompleted, "cf_pay_2"))
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.ResultNoop, out.Result)
	assert.Equal(t, paymentdomain.ReasonDuplicate, out.Reason)
	assert.False(t, out.Updated)

	second := f.load(t, "DON_1_B")
	assert.True(t, first.UpdatedAt.Equal(second.UpdatedAt))
	assert.True(t, first.LastVerifiedAt.Equal(*second.LastVerifiedAt))
}

func TestReconcileTransitions(t *testing.T) {
	tests := []struct {
		name       string
		current    donationdomain.Status
		target     donationdomain.Status
		wantResult paymentdomain.ReconcileResult
		wantReason string
		wantStatus donationdomain.Status
	}{
		{name: "pending fails", current: donationdomain.StatusPending, target: donationdomain.StatusFailed, wantResult: paymentdomain.ResultApplied, wantStatus: donationdomain.StatusFailed},
		{name: "late failure after success", current: donationdomain.StatusCompleted, target: donationdomain.StatusFailed, wantResult: paymentdomain.ResultNoop, wantReason: paymentdomain.ReasonOutOfOrder, wantStatus: donationdomain.StatusCompleted},
		{name: "refund after success", current: donationdomain.StatusCompleted, target: donationdomain.StatusRefunded, wantResult: paymentdomain.ResultApplied, wantStatus: donationdomain.StatusRefunded},
		{name: "success after refund", current: donationdomain.StatusRefunded, target: donationdomain.StatusCompleted, wantResult: paymentdomain.ResultNoop, wantReason: paymentdomain.ReasonOutOfOrder, wantStatus: donationdomain.StatusRefunded},
		{name: "refund of pending", current: donationdomain.StatusPending, target: donationdomain.StatusRefunded, wantResult: paymentdomain.ResultRejected, wantReason: paymentdomain.ReasonIllegalTransition, wantStatus: donationdomain.StatusPending},
		{name: "success after failure", current: donationdomain.StatusFailed, target: donationdomain.StatusCompleted, wantResult: paymentdomain.ResultRejected, wantReason: paymentdomain.ReasonIllegalTransition, wantStatus: donationdomain.StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.seed(t, "DON_T", tt.current)

			out, err := f.service(nil, nil).Reconcile(context.Background(), reconcile("DON_T", tt.target, ""))
			require.NoError(t, err)
			assert.Equal(t, tt.wantResult, out.Result)
			assert.Equal(t, tt.wantReason, out.Reason)
			assert.Equal(t, tt.wantResult == paymentdomain.ResultApplied, out.Updated)
			assert.Equal(t, tt.wantStatus, f.load(t, "DON_T").PaymentStatus)
		})
	}
}

func TestReconcileUnknownOrder(t *testing.T) {
	f := newFixture(t)

	out, err := f.service(nil, nil).Reconcile(context.Background(), reconcile("DON_missing", donationdomain.StatusCompleted, ""))
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.ResultNotFound, out.Result)
	assert.Equal(t, "DON_missing", out.OrderID)
	assert.Equal(t, int64(0), dbtest.Count(t, f.db, "SELECT COUNT(1) FROM donations"))
}

func TestReconcileValidatesRequest(t *testing.T) {
	svc := newFixture(t).service(nil, nil)

	_, err := svc.Reconcile(context.Background(), reconcile("  ", donationdomain.StatusCompleted, ""))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidOrderID)

	_, err = svc.Reconcile(context.Background(), reconcile("DON_1", donationdomain.StatusPending, ""))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidTarget)
}

func TestReconcileKeepsPaymentIDWhenAbsent(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "DON_1_C", donationdomain.StatusPending)
	svc := f.service(nil, nil)
	ctx := context.Background()

	_, err := svc.Reconcile(ctx, reconcile("DON_1_C", donationdomain.StatusCompleted, "cf_pay_3"))
	require.NoError(t, err)
	_, err = svc.Reconcile(ctx, reconcile("DON_1_C", donationdomain.StatusRefunded, ""))
	require.NoError(t, err)

	stored := f.load(t, "DON_1_C")
	assert.Equal(t, donationdomain.StatusRefunded, stored.PaymentStatus)
	require.NotNil(t, stored.PaymentID)
	assert.Equal(t, "cf_pay_3", *stored.PaymentID)
}

// racingRepo lets another writer land between the read and the conditional write.
type racingRepo struct {
	donationdomain.Repository
	before func(update donationdomain.StatusUpdate)
	fail   bool
}

func (r *racingRepo) UpdateStatus(ctx context.Context, db *gorm.DB, update donationdomain.StatusUpdate) (bool, error) {
	if r.before != nil {
		r.before(update)
		r.before = nil
	}
	if r.fail {
		return false, nil
	}
	return r.Repository.UpdateStatus(ctx, db, update)
}

func TestReconcileRedecidesAfterLostUpdate(t *testing.T) {
	f := newFixture(t)
	seeded := f.seed(t, "DON_1_D", donationdomain.StatusPending)

	repo := &racingRepo{
		Repository: f.repo,
		before: func(update donationdomain.StatusUpdate) {
			_, err := f.repo.UpdateStatus(context.Background(), f.db, donationdomain.StatusUpdate{
				ID:         seeded.ID,
				From:       donationdomain.StatusPending,
				To:         donationdomain.StatusCompleted,
				VerifiedAt: f.clock.Now(),
			})
			require.NoError(t, err)
		},
	}

	out, err := f.service(repo, nil).Reconcile(context.Background(), reconcile("DON_1_D", donationdomain.StatusFailed, ""))
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.ResultNoop, out.Result)
	assert.Equal(t, paymentdomain.ReasonOutOfOrder, out.Reason)
	assert.Equal(t, donationdomain.StatusCompleted, f.load(t, "DON_1_D").PaymentStatus)
}

func TestReconcileGivesUpUnderContention(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "DON_1_E", donationdomain.StatusPending)

	repo := &racingRepo{Repository: f.repo, fail: true}
	_, err := f.service(repo, nil).Reconcile(context.Background(), reconcile("DON_1_E", donationdomain.StatusCompleted, ""))
	assert.ErrorIs(t, err, paymentdomain.ErrConcurrentUpdate)
	assert.Equal(t, donationdomain.StatusPending, f.load(t, "DON_1_E").PaymentStatus)
}

func TestReconcileConcurrentDeliveriesApplyOnce(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "DON_1_F", donationdomain.StatusPending)
	svc := f.service(nil, nil)

	const workers = 8
	results := make(chan paymentdomain.ReconcileOutcome, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := svc.Reconcile(context.Background(), reconcile("DON_1_F", donationdomain.StatusCompleted, "cf_pay_6"))
			if err == nil {
				results <- out
			}
		}()
	}
	wg.Wait()
	close(results)

	applied := 0
	for out := range results {
		if out.Result == paymentdomain.ResultApplied {
			applied++
		}
	}
	assert.Equal(t, 1, applied)
	assert.Equal(t, donationdomain.StatusCompleted, f.load(t, "DON_1_F").PaymentStatus)
}

type fakeLocker struct {
	mu       sync.Mutex
	held     bool
	err      error
	acquired int
	released []string
}

func (l *fakeLocker) TryLockDonation(ctx context.Context, id snowflake.ID) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return "", false, l.err
	}
	if l.held {
		return "", false, nil
	}
	l.acquired++
	return "token-1", true, nil
}

func (l *fakeLocker) ReleaseDonation(ctx context.Context, id snowflake.ID, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released = append(l.released, token)
	return nil
}

func TestReconcileTakesAndReleasesLock(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "DON_1_G", donationdomain.StatusPending)
	locker := &fakeLocker{}

	out, err := f.service(nil, locker).Reconcile(context.Background(), reconcile("DON_1_G", donationdomain.StatusCompleted, ""))
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.ResultApplied, out.Result)
	assert.Equal(t, 1, locker.acquired)
	assert.Equal(t, []string{"token-1"}, locker.released)
}

func TestReconcileLockHeldElsewhere(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "DON_1_H", donationdomain.StatusPending)

	_, err := f.service(nil, &fakeLocker{held: true}).Reconcile(context.Background(), reconcile("DON_1_H", donationdomain.StatusCompleted, ""))
	assert.ErrorIs(t, err, paymentdomain.ErrConcurrentUpdate)
	assert.Equal(t, donationdomain.StatusPending, f.load(t, "DON_1_H").PaymentStatus)
}

func TestReconcileLockOutageFallsBackToConditionalWrite(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "DON_1_I", donationdomain.StatusPending)
	locker := &fakeLocker{err: errors.New("dial tcp: connection refused")}

	out, err := f.service(nil, locker).Reconcile(context.Background(), reconcile("DON_1_I", donationdomain.StatusCompleted, ""))
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.ResultApplied, out.Result)
	assert.Empty(t, locker.released)
}
