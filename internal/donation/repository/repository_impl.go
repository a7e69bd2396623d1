package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/seva/internal/donation/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const selectColumns = `SELECT id, user_id, amount, currency, donor_name, donor_email, donor_phone,
			gateway_order_id, payment_id, payment_status, payment_gateway, last_verified_at,
			created_at, updated_at
		 FROM donations`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, donation *domain.Donation) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO donations (
			id, user_id, amount, currency, donor_name, donor_email, donor_phone,
			gateway_order_id, payment_id, payment_status, payment_gateway, last_verified_at,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		donation.ID,
		donation.UserID,
		donation.Amount,
		donation.Currency,
		donation.DonorName,
		donation.DonorEmail,
		donation.DonorPhone,
		donation.GatewayOrderID,
		donation.PaymentID,
		donation.PaymentStatus,
		donation.PaymentGateway,
		donation.LastVerifiedAt,
		donation.CreatedAt,
		donation.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Donation, error) {
	var item domain.Donation
	err := db.WithContext(ctx).Raw(selectColumns+` WHERE id = ? LIMIT 1`, id).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByOrderID(ctx context.Context, db *gorm.DB, orderID string) (*domain.Donation, error) {
	var item domain.Donation
	err := db.WithContext(ctx).Raw(selectColumns+` WHERE gateway_order_id = ? LIMIT 1`, orderID).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, update domain.StatusUpdate) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE donations
		 SET payment_status = ?,
			 payment_id = COALESCE(?, payment_id),
			 last_verified_at = CASE
				 WHEN last_verified_at IS NULL OR last_verified_at < ? THEN ?
				 ELSE last_verified_at
			 END,
			 updated_at = ?
		 WHERE id = ? AND payment_status = ?`,
		update.To,
		update.PaymentID,
		update.VerifiedAt,
		update.VerifiedAt,
		update.VerifiedAt,
		update.ID,
		update.From,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) TouchVerified(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE donations
		 SET last_verified_at = ?
		 WHERE id = ? AND (last_verified_at IS NULL OR last_verified_at < ?)`,
		at,
		id,
		at,
	).Error
}

func (r *repo) ListStalePending(ctx context.Context, db *gorm.DB, createdBefore, verifiedBefore time.Time, limit int) ([]domain.Donation, error) {
	var items []domain.Donation
	err := db.WithContext(ctx).Raw(
		selectColumns+`
		 WHERE payment_status = ?
		   AND created_at < ?
		   AND (last_verified_at IS NULL OR last_verified_at < ?)
		 ORDER BY CASE WHEN last_verified_at IS NULL THEN 0 ELSE 1 END,
			  last_verified_at ASC,
			  created_at ASC
		 LIMIT ?`,
		domain.StatusPending,
		createdBefore,
		verifiedBefore,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
