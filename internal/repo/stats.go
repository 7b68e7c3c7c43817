// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides aggregate queries: a per-user digest used
// for conditional list responses (ETag generation) and the global statistics
// shown to staff.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-notify-backend/internal/domain"
)

// InboxDigest summarizes a user's notifications. Any insert, delete or read
// transition changes at least one field.
type InboxDigest struct {
	Total  int64
	Unread int64
	MaxID  uint64
}

// NotificationsDigest returns the InboxDigest for userID. A user without
// notifications yields the zero digest.
func NotificationsDigest(ctx context.Context, db *gorm.DB, userID uint64) (InboxDigest, error) {
	var d InboxDigest
	q := db.WithContext(ctx).Model(&domain.Notification{}).Where("recipient_id = ?", userID)

	if err := q.Session(&gorm.Session{}).Count(&d.Total).Error; err != nil {
		return InboxDigest{}, err
	}
	if d.Total == 0 {
		return d, nil
	}
	if err := q.Session(&gorm.Session{}).Where("read = ?", false).Count(&d.Unread).Error; err != nil {
		return InboxDigest{}, err
	}

	var row struct{ ID uint64 }
	if err := q.Session(&gorm.Session{}).Select("id").Order("id DESC").Limit(1).Scan(&row).Error; err != nil {
		return InboxDigest{}, err
	}
	d.MaxID = row.ID
	return d, nil
}

// GlobalStats aggregates notifications across all recipients.
type GlobalStats struct {
	Total       int64            `json:"total_notifications"`
	TotalUnread int64            `json:"total_unread"`
	Last24h     int64            `json:"last_24h"`
	Last7d      int64            `json:"last_7d"`
	Last30d     int64            `json:"last_30d"`
	ByType      map[string]int64 `json:"by_type"`
	ByPriority  map[string]int64 `json:"by_priority"`
	ActiveUsers int64            `json:"active_users"`
}

type bucket struct {
	Key   string
	Count int64
}

// NotificationStats computes GlobalStats relative to now. ActiveUsers counts
// distinct recipients that received something during the last seven days.
func NotificationStats(ctx context.Context, db *gorm.DB, now time.Time) (*GlobalStats, error) {
	base := func() *gorm.DB { return db.WithContext(ctx).Model(&domain.Notification{}) }
	st := &GlobalStats{ByType: map[string]int64{}, ByPriority: map[string]int64{}}

	counts := []struct {
		dst   *int64
		query *gorm.DB
	}{
		{&st.Total, base()},
		{&st.TotalUnread, base().Where("read = ?", false)},
		{&st.Last24h, base().Where("created_at >= ?", now.Add(-24*time.Hour))},
		{&st.Last7d, base().Where("created_at >= ?", now.Add(-7*24*time.Hour))},
		{&st.Last30d, base().Where("created_at >= ?", now.Add(-30*24*time.Hour))},
	}
	for _, c := range counts {
		if err := c.query.Count(c.dst).Error; err != nil {
			return nil, err
		}
	}

	var rows []bucket
	if err := base().Select("kind AS key, COUNT(*) AS count").Group("kind").Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		st.ByType[r.Key] = r.Count
	}

	rows = rows[:0]
	if err := base().Select("priority AS key, COUNT(*) AS count").Group("priority").Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		st.ByPriority[r.Key] = r.Count
	}

	if err := base().
		Where("created_at >= ? AND recipient_id IS NOT NULL", now.Add(-7*24*time.Hour)).
		Distinct("recipient_id").
		Count(&st.ActiveUsers).Error; err != nil {
		return nil, err
	}
	return st, nil
}
