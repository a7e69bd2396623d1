package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, donation *Donation) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Donation, error)
	FindByOrderID(ctx context.Context, db *gorm.DB, orderID string) (*Donation, error)
	// UpdateStatus reports false when the row was no longer in update.From.
	UpdateStatus(ctx context.Context, db *gorm.DB, update StatusUpdate) (bool, error)
	TouchVerified(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
	// ListStalePending returns pending donations created before createdBefore and not
	// verified since verifiedBefore. Never-verified donations come first, then the
	// least recently verified, so long-lived orphans cannot crowd out newer rows.
	ListStalePending(ctx context.Context, db *gorm.DB, createdBefore, verifiedBefore time.Time, limit int) ([]Donation, error)
}
