package repo

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/go-notify-backend/internal/domain"
)

func TestOpenSQLite_MissingDirectory(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "nope", "notifications.db")

	db, err := OpenSQLite(bad)
	if db != nil || !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("OpenSQLite(%q) = %v, %v; want fs.ErrNotExist", bad, db, err)
	}
	if !strings.Contains(err.Error(), "database directory") {
		t.Fatalf("error lacks context: %v", err)
	}
}

func TestOpenSQLite_AppliesPragmasAndPool(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "notifications.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	var journal string
	if err := db.Raw("PRAGMA journal_mode").Row().Scan(&journal); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if !strings.EqualFold(journal, "wal") {
		t.Fatalf("journal_mode = %q", journal)
	}

	ints := map[string]int{
		"PRAGMA synchronous":  1, // NORMAL
		"PRAGMA foreign_keys": 1,
		"PRAGMA busy_timeout": 5000,
	}
	for q, want := range ints {
		var got int
		if err := db.Raw(q).Row().Scan(&got); err != nil {
			t.Fatalf("%s: %v", q, err)
		}
		if got != want {
			t.Fatalf("%s = %d; want %d", q, got, want)
		}
	}
	if got := sqlDB.Stats().MaxOpenConnections; got != maxOpenConns {
		t.Fatalf("MaxOpenConnections = %d", got)
	}
}

func TestAutoMigrate_SchemaIsUsable(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "notifications.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	// running it twice must be harmless
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("second AutoMigrate: %v", err)
	}

	ctx := context.Background()
	if err := CreateUser(ctx, db, &domain.User{ID: 7, Username: "dana", IsActive: true}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	n := &domain.Notification{
		RecipientID: u64(7),
		Kind:        domain.KindNewOrder,
		Title:       "Order placed",
		Body:        "Order #1001 was placed",
		Priority:    domain.PriorityMedium,
	}
	if err := CreateNotification(ctx, db, n); err != nil {
		t.Fatalf("create notification: %v", err)
	}
	if n.CreatedAt.IsZero() || n.CreatedAt.Location() != time.UTC {
		t.Fatalf("CreatedAt should be set in UTC, got %v", n.CreatedAt)
	}
	if _, err := CreateIdempotency(ctx, db, "7", "notifications", "k-1", "1", 201, time.Hour); err != nil {
		t.Fatalf("create idempotency: %v", err)
	}

	got, err := GetOwnedNotification(ctx, db, n.ID, 7)
	if err != nil || got.Title != "Order placed" {
		t.Fatalf("GetOwnedNotification = %+v, %v", got, err)
	}
	if unread, err := CountUnread(ctx, db, 7); err != nil || unread != 1 {
		t.Fatalf("CountUnread = %d, %v", unread, err)
	}
}
