package repo

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-notify-backend/internal/domain"
)

func newTestDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()
	// Unique DB per test to avoid schema leaking across tests.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func u64(v uint64) *uint64 { return &v }

// seedNotification inserts a notification for recipient (nil for global) at
// the given creation time.
func seedNotification(t *testing.T, db *gorm.DB, recipient *uint64, title string, at time.Time) *domain.Notification {
	t.Helper()
	n := &domain.Notification{
		RecipientID: recipient,
		Kind:        domain.KindSystem,
		Title:       title,
		Body:        title + " body",
		Priority:    domain.PriorityMedium,
		CreatedAt:   at,
	}
	if err := db.Create(n).Error; err != nil {
		t.Fatalf("seed notification: %v", err)
	}
	return n
}
