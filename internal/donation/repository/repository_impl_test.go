package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/seva/internal/donation/domain"
	"github.com/smallbiznis/seva/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	return dbtest.Open(t)
}

func newDonation(t *testing.T, node *snowflake.Node, orderID string) *domain.Donation {
	t.Helper()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &domain.Donation{
		ID:             node.Generate(),
		Amount:         501,
		Currency:       "INR",
		DonorName:      "Asha",
		DonorEmail:     "asha@example.com",
		DonorPhone:     "+919876543210",
		GatewayOrderID: orderID,
		PaymentStatus:  domain.StatusPending,
		PaymentGateway: "cashfree",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestInsertAndFind(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	r := Provide()

	d := newDonation(t, node, "DON_1_AAAA")
	require.NoError(t, r.Insert(ctx, db, d))

	byOrder, err := r.FindByOrderID(ctx, db, "DON_1_AAAA")
	require.NoError(t, err)
	require.NotNil(t, byOrder)
	assert.Equal(t, d.ID, byOrder.ID)
	assert.Equal(t, domain.StatusPending, byOrder.PaymentStatus)
	assert.Equal(t, 501.0, byOrder.Amount)
	assert.Nil(t, byOrder.PaymentID)

	byID, err := r.FindByID(ctx, db, d.ID)
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "DON_1_AAAA", byID.GatewayOrderID)

	missing, err := r.FindByOrderID(ctx, db, "DON_missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestInsertRejectsDuplicateOrderID(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	r := Provide()

	require.NoError(t, r.Insert(ctx, db, newDonation(t, node, "DON_dup")))
	assert.Error(t, r.Insert(ctx, db, newDonation(t, node, "DON_dup")))
}

func TestUpdateStatusIsCompareAndSet(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	r := Provide()

	d := newDonation(t, node, "DON_cas")
	require.NoError(t, r.Insert(ctx, db, d))

	paymentID := "cf_pay_1"
	verifiedAt := time.Date(2026, 1, 2, 4, 0, 0, 0, time.UTC)
	ok, err := r.UpdateStatus(ctx, db, domain.StatusUpdate{
		ID: d.ID, From: domain.StatusPending, To: domain.StatusCompleted,
		PaymentID: &paymentID, VerifiedAt: verifiedAt,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	// second writer still believes the row is pending
	ok, err = r.UpdateStatus(ctx, db, domain.StatusUpdate{
		ID: d.ID, From: domain.StatusPending, To: domain.StatusFailed, VerifiedAt: verifiedAt,
	})
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := r.FindByID(ctx, db, d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.PaymentStatus)
	require.NotNil(t, got.PaymentID)
	assert.Equal(t, "cf_pay_1", *got.PaymentID)
	require.NotNil(t, got.LastVerifiedAt)
	assert.True(t, got.LastVerifiedAt.Equal(verifiedAt))
}

func TestUpdateStatusKeepsPaymentIDWhenAbsent(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	r := Provide()

	d := newDonation(t, node, "DON_keep")
	paymentID := "cf_pay_keep"
	d.PaymentID = &paymentID
	d.PaymentStatus = domain.StatusCompleted
	require.NoError(t, r.Insert(ctx, db, d))

	ok, err := r.UpdateStatus(ctx, db, domain.StatusUpdate{
		ID: d.ID, From: domain.StatusCompleted, To: domain.StatusRefunded, VerifiedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.True(t, ok)

	got, err := r.FindByID(ctx, db, d.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PaymentID)
	assert.Equal(t, "cf_pay_keep", *got.PaymentID)
	assert.Equal(t, domain.StatusRefunded, got.PaymentStatus)
}

func TestUpdateStatusNeverMovesVerifiedAtBackwards(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	r := Provide()

	d := newDonation(t, node, "DON_verified_order")
	require.NoError(t, r.Insert(ctx, db, d))

	engineSawAt := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	touchedAt := engineSawAt.Add(time.Minute)
	require.NoError(t, r.TouchVerified(ctx, db, d.ID, touchedAt))

	ok, err := r.UpdateStatus(ctx, db, domain.StatusUpdate{
		ID: d.ID, From: domain.StatusPending, To: domain.StatusCompleted, VerifiedAt: engineSawAt,
	})
	require.NoError(t, err)
	require.True(t, ok)

	got, err := r.FindByID(ctx, db, d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.PaymentStatus)
	require.NotNil(t, got.LastVerifiedAt)
	assert.True(t, got.LastVerifiedAt.Equal(touchedAt))
}

func TestTouchVerifiedIsMonotonic(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	r := Provide()

	d := newDonation(t, node, "DON_touch")
	require.NoError(t, r.Insert(ctx, db, d))

	later := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	earlier := later.Add(-time.Hour)

	require.NoError(t, r.TouchVerified(ctx, db, d.ID, later))
	require.NoError(t, r.TouchVerified(ctx, db, d.ID, earlier))

	got, err := r.FindByID(ctx, db, d.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastVerifiedAt)
	assert.True(t, got.LastVerifiedAt.Equal(later))
	assert.Equal(t, domain.StatusPending, got.PaymentStatus)
}

func TestListStalePending(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	r := Provide()

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	insert := func(orderID string, created time.Time, status domain.Status, verified *time.Time) {
		d := newDonation(t, node, orderID)
		d.CreatedAt = created
		d.UpdatedAt = created
		d.PaymentStatus = status
		d.LastVerifiedAt = verified
		require.NoError(t, r.Insert(ctx, db, d))
	}

	recentlyChecked := base.Add(58 * time.Minute)
	longAgo := base.Add(-time.Hour)
	insert("DON_old", base, domain.StatusPending, nil)
	insert("DON_older", base.Add(-time.Minute), domain.StatusPending, &longAgo)
	insert("DON_checked", base, domain.StatusPending, &recentlyChecked)
	insert("DON_fresh", base.Add(55*time.Minute), domain.StatusPending, nil)
	insert("DON_done", base, domain.StatusCompleted, nil)

	now := base.Add(time.Hour)
	items, err := r.ListStalePending(ctx, db, now.Add(-15*time.Minute), now.Add(-5*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "DON_old", items[0].GatewayOrderID)
	assert.Equal(t, "DON_older", items[1].GatewayOrderID)

	items, err = r.ListStalePending(ctx, db, now.Add(-15*time.Minute), now.Add(-5*time.Minute), 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "DON_old", items[0].GatewayOrderID)
}

func TestListStalePendingPrefersLeastRecentlyVerified(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	r := Provide()

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	checkedAt := base.Add(30 * time.Minute)
	for _, orderID := range []string{"DON_orphan_1", "DON_orphan_2", "DON_orphan_3"} {
		d := newDonation(t, node, orderID)
		d.CreatedAt = base.Add(-2 * time.Hour)
		d.UpdatedAt = d.CreatedAt
		d.LastVerifiedAt = &checkedAt
		require.NoError(t, r.Insert(ctx, db, d))
	}
	lost := newDonation(t, node, "DON_webhook_lost")
	lost.CreatedAt = base.Add(-time.Hour)
	lost.UpdatedAt = lost.CreatedAt
	require.NoError(t, r.Insert(ctx, db, lost))

	now := base.Add(time.Hour)
	items, err := r.ListStalePending(ctx, db, now.Add(-15*time.Minute), now.Add(-10*time.Minute), 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "DON_webhook_lost", items[0].GatewayOrderID)
}
