package migration

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	donationdomain "github.com/smallbiznis/seva/internal/donation/domain"
	donationrepo "github.com/smallbiznis/seva/internal/donation/repository"
	paymentdomain "github.com/smallbiznis/seva/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/seva/internal/payment/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestAutoMigrateServesRepositories(t *testing.T) {
	ctx := context.Background()
	conn, err := gorm.Open(sqlite.Open("file:automigrate?mode=memory&cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, AutoMigrate(conn))

	node, err := snowflake.NewNode(4)
	require.NoError(t, err)
	created := time.Date(2026, 4, 14, 6, 0, 0, 0, time.UTC)

	donations := donationrepo.Provide()
	donation := &donationdomain.Donation{
		ID:             node.Generate(),
		Amount:         501,
		Currency:       "INR",
		DonorName:      "Asha",
		DonorEmail:     "asha@example.com",
		DonorPhone:     "+919876543210",
		GatewayOrderID: "DON_1776146400000_ABCDEFGH",
		PaymentStatus:  donationdomain.StatusPending,
		PaymentGateway: "cashfree",
		CreatedAt:      created,
		UpdatedAt:      created,
	}
	require.NoError(t, donations.Insert(ctx, conn, donation))

	dup := *donation
	dup.ID = node.Generate()
	assert.Error(t, donations.Insert(ctx, conn, &dup))

	applied, err := donations.UpdateStatus(ctx, conn, donationdomain.StatusUpdate{
		ID: donation.ID, From: donationdomain.StatusPending, To: donationdomain.StatusCompleted, VerifiedAt: created.Add(time.Minute),
	})
	require.NoError(t, err)
	assert.True(t, applied)

	events := paymentrepo.Provide()
	event := &paymentdomain.EventRecord{
		ID:         node.Generate(),
		Provider:   "cashfree",
		EventKey:   "key-automigrate",
		EventType:  "PAYMENT_SUCCESS_WEBHOOK",
		Payload:    datatypes.JSON(`{}`),
		ReceivedAt: created,
	}
	inserted, err := events.InsertEvent(ctx, conn, event)
	require.NoError(t, err)
	assert.True(t, inserted)

	redelivered := *event
	redelivered.ID = node.Generate()
	inserted, err = events.InsertEvent(ctx, conn, &redelivered)
	require.NoError(t, err)
	assert.False(t, inserted)
}
