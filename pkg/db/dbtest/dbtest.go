// Package dbtest opens throwaway in-memory SQLite databases carrying the
// donation and payment event tables, for tests.
package dbtest

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var schema = []string{
	`CREATE TABLE donations (
		id BIGINT PRIMARY KEY,
		user_id TEXT,
		amount REAL NOT NULL,
		currency TEXT NOT NULL,
		donor_name TEXT NOT NULL,
		donor_email TEXT NOT NULL,
		donor_phone TEXT NOT NULL,
		gateway_order_id TEXT NOT NULL,
		payment_id TEXT,
		payment_status TEXT NOT NULL DEFAULT 'pending',
		payment_gateway TEXT NOT NULL,
		last_verified_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_donations_gateway_order_id ON donations(gateway_order_id)`,
	`CREATE TABLE payment_events (
		id BIGINT PRIMARY KEY,
		provider TEXT NOT NULL,
		event_key TEXT NOT NULL,
		event_type TEXT NOT NULL,
		gateway_order_id TEXT,
		payload TEXT NOT NULL,
		received_at DATETIME NOT NULL,
		processed_at DATETIME,
		outcome TEXT
	)`,
	`CREATE UNIQUE INDEX ux_payment_events_provider_key ON payment_events(provider, event_key)`,
}

var seq atomic.Int64

// Open returns a fresh database; each call gets its own in-memory file.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), seq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// shared-cache memory databases report SQLITE_LOCKED under concurrent writers
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// Count runs a COUNT query and fails the test on error.
func Count(t testing.TB, db *gorm.DB, query string, args ...any) int64 {
	t.Helper()
	var n int64
	if err := db.Raw(query, args...).Scan(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}
