// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Notification model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only
// persistence and query composition.
//
// Error semantics:
//   - When a notification is missing or owned by someone else, functions
//     return gorm.ErrRecordNotFound (exported here as ErrNotFound). The two
//     cases are deliberately indistinguishable to callers.
//   - On DB errors the raw gorm error is propagated.
//
// Ordering: every list is newest first, with id as the tie-breaker so rows
// inserted within the same clock tick keep their insertion order.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-notify-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

const newestFirst = "created_at DESC, id DESC"

// CreateNotification inserts n and fills in its ID. CreatedAt is set to UTC
// now when zero.
func CreateNotification(ctx context.Context, db *gorm.DB, n *domain.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(n).Error
}

// GetNotification fetches a notification by id regardless of owner.
func GetNotification(ctx context.Context, db *gorm.DB, id uint64) (*domain.Notification, error) {
	var n domain.Notification
	if err := db.WithContext(ctx).First(&n, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &n, nil
}

// GetOwnedNotification fetches a notification by id that belongs to userID.
func GetOwnedNotification(ctx context.Context, db *gorm.DB, id, userID uint64) (*domain.Notification, error) {
	var n domain.Notification
	err := db.WithContext(ctx).
		Where("id = ? AND recipient_id = ?", id, userID).
		First(&n).Error
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// MarkNotificationRead flips an owned, unread notification to read and stamps
// read_at. It reports whether a row changed; an already-read row returns
// (false, nil) and keeps its original read_at. A row that is missing or not
// owned by userID returns ErrNotFound.
func MarkNotificationRead(ctx context.Context, db *gorm.DB, id, userID uint64, at time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("id = ? AND recipient_id = ? AND read = ?", id, userID, false).
		Updates(map[string]any{"read": true, "read_at": at})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	var owned int64
	if err := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("id = ? AND recipient_id = ?", id, userID).
		Count(&owned).Error; err != nil {
		return false, err
	}
	if owned == 0 {
		return false, gorm.ErrRecordNotFound
	}
	return false, nil
}

// MarkAllNotificationsRead marks every unread notification of userID as read
// and returns the number of rows changed.
func MarkAllNotificationsRead(ctx context.Context, db *gorm.DB, userID uint64, at time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("recipient_id = ? AND read = ?", userID, false).
		Updates(map[string]any{"read": true, "read_at": at})
	return res.RowsAffected, res.Error
}

// CountUnread returns the number of unread notifications owned by userID.
func CountUnread(ctx context.Context, db *gorm.DB, userID uint64) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("recipient_id = ? AND read = ?", userID, false).
		Count(&n).Error
	return n, err
}

// ListUnread returns up to limit unread notifications for userID, newest
// first. A non-positive limit returns every unread row.
func ListUnread(ctx context.Context, db *gorm.DB, userID uint64, limit int) ([]domain.Notification, error) {
	var out []domain.Notification
	q := db.WithContext(ctx).
		Where("recipient_id = ? AND read = ?", userID, false).
		Order(newestFirst)
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// CountNotifications returns the total number of notifications owned by userID.
func CountNotifications(ctx context.Context, db *gorm.DB, userID uint64) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("recipient_id = ?", userID).
		Count(&total).Error
	return total, err
}

// ListNotificationsPage returns a window of userID's notifications, newest
// first. The caller computes offset and limit (offset = (page-1)*limit).
func ListNotificationsPage(ctx context.Context, db *gorm.DB, userID uint64, offset, limit int) ([]domain.Notification, error) {
	var out []domain.Notification
	err := db.WithContext(ctx).
		Where("recipient_id = ?", userID).
		Order(newestFirst).
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// DeleteOwnedNotification removes one notification owned by userID, or
// returns ErrNotFound.
func DeleteOwnedNotification(ctx context.Context, db *gorm.DB, id, userID uint64) error {
	res := db.WithContext(ctx).
		Where("id = ? AND recipient_id = ?", id, userID).
		Delete(&domain.Notification{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteAllNotifications removes every notification owned by userID and
// returns how many rows were deleted.
func DeleteAllNotifications(ctx context.Context, db *gorm.DB, userID uint64) (int64, error) {
	res := db.WithContext(ctx).
		Where("recipient_id = ?", userID).
		Delete(&domain.Notification{})
	return res.RowsAffected, res.Error
}
