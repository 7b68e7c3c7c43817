// Package services – NotificationService
//
// This file implements NotificationService, the application-level component
// that owns the notification lifecycle: it validates and persists dispatches,
// routes them to delivery groups and pushes them through the configured
// realtime.Fanout, and serves the per-user inbox operations used by both the
// REST API and realtime sessions.
//
// Ordering: persist and enqueue for the same routing key (one recipient, the
// broadcast stream, or the admin-only stream) run under one stripe of a
// striped mutex, so the order notifications are stored is the order their
// frames are pushed.
//
// Observability: all public methods are OpenTelemetry-instrumented.

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-notify-backend/internal/domain"
	"github.com/tbourn/go-notify-backend/internal/realtime"
	"github.com/tbourn/go-notify-backend/internal/repo"
	"github.com/tbourn/go-notify-backend/internal/utils"
)

// MaxTitleRunes bounds notification titles; it matches the column width.
const MaxTitleRunes = 200

const scopeCreateNotification = "notifications:create"

// DispatchRequest describes one notification to persist and deliver.
// RecipientID and IsBroadcast are mutually exclusive; with neither set the
// notification is admin-only. An empty Priority means medium.
type DispatchRequest struct {
	RecipientID *uint64         `json:"recipient_id,omitempty"`
	Kind        domain.Kind     `json:"type"`
	Title       string          `json:"title"`
	Body        string          `json:"message"`
	Priority    domain.Priority `json:"priority,omitempty"`
	ActionURL   string          `json:"action_url,omitempty"`
	OrderID     *uint64         `json:"order_id,omitempty"`
	ProductID   *uint64         `json:"product_id,omitempty"`
	UserID      *uint64         `json:"user_id,omitempty"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
	ExpiresAt   *time.Time      `json:"expires_at,omitempty"`
	IsBroadcast bool            `json:"is_broadcast,omitempty"`
}

// BroadcastRequest is the staff-facing broadcast shape. ExpiresInHours of
// zero means the broadcast never expires.
type BroadcastRequest struct {
	Kind           domain.Kind     `json:"type"`
	Title          string          `json:"title"`
	Body           string          `json:"message"`
	Priority       domain.Priority `json:"priority,omitempty"`
	ActionURL      string          `json:"action_url,omitempty"`
	ExpiresInHours int             `json:"expires_in_hours,omitempty"`
}

// NotificationService persists notifications and delivers them in real time.
// The zero value is not usable; DB is required. A nil Fanout disables live
// delivery.
type NotificationService struct {
	DB     *gorm.DB
	Fanout realtime.Fanout

	// IdempotencyTTL bounds how long an Idempotency-Key replays. Defaults to 24h.
	IdempotencyTTL time.Duration

	// Now is the clock; defaults to time.Now.
	Now func() time.Time

	locks stripedLock
}

func (s *NotificationService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Dispatch validates req, persists it and pushes it to the groups it routes
// to. Validation and persistence failures are returned and nothing is pushed;
// delivery problems are logged and counted only.
func (s *NotificationService) Dispatch(ctx context.Context, req DispatchRequest) (*domain.Notification, error) {
	tr := otel.Tracer("services/NotificationService")
	ctx, span := tr.Start(ctx, "Dispatch",
		trace.WithAttributes(
			attribute.String("notification.kind", string(req.Kind)),
			attribute.Bool("notification.broadcast", req.IsBroadcast),
		),
	)
	defer span.End()

	n, err := s.build(req)
	if err != nil {
		dispatchFailures.WithLabelValues("validate").Inc()
		return nil, err
	}

	key := routingKey(n)
	span.SetAttributes(attribute.String("notification.route", key))

	mu := s.locks.of(key)
	mu.Lock()
	defer mu.Unlock()

	if err := repo.CreateNotification(ctx, s.DB, n); err != nil {
		dispatchFailures.WithLabelValues("persist").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		return nil, fmt.Errorf("persist notification: %w", err)
	}
	notificationsDispatched.WithLabelValues(string(n.Kind)).Inc()

	// Delivery outlives a cancelled producer context; the row is already stored.
	s.push(context.WithoutCancel(ctx), n)
	return n, nil
}

func (s *NotificationService) build(req DispatchRequest) (*domain.Notification, error) {
	if req.RecipientID != nil && req.IsBroadcast {
		return nil, ErrRecipientOnBroadcast
	}
	if !req.Kind.Valid() {
		return nil, ErrInvalidKind
	}
	if req.Priority == "" {
		req.Priority = domain.PriorityMedium
	}
	if !req.Priority.Valid() {
		return nil, ErrInvalidPriority
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	if utf8.RuneCountInString(title) > MaxTitleRunes {
		return nil, ErrTitleTooLong
	}

	n := &domain.Notification{
		RecipientID: req.RecipientID,
		Kind:        req.Kind,
		Title:       title,
		Body:        req.Body,
		Priority:    req.Priority,
		OrderID:     req.OrderID,
		ProductID:   req.ProductID,
		UserID:      req.UserID,
		ExpiresAt:   req.ExpiresAt,
		IsBroadcast: req.IsBroadcast,
		CreatedAt:   s.now().UTC(),
	}
	if u := strings.TrimSpace(req.ActionURL); u != "" {
		n.ActionURL = &u
	}
	if len(req.Metadata) > 0 {
		b, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode metadata: %w", err)
		}
		n.Metadata = datatypes.JSON(b)
	}
	return n, nil
}

// route is one delivery target with the frame it receives.
type route struct {
	group string
	frame []byte
}

// routes maps a stored notification to its delivery groups:
//
//	broadcast      -> public (broadcast frame) and admins (notification frame)
//	recipient      -> user:<id>, plus admins when priority is high or urgent
//	neither        -> admins
func routes(n *domain.Notification, now time.Time) ([]route, error) {
	v := n.ToView(now)
	notif, err := realtime.EncodeNotification(v)
	if err != nil {
		return nil, err
	}

	switch {
	case n.IsBroadcast:
		bcast, err := realtime.EncodeBroadcast(v)
		if err != nil {
			return nil, err
		}
		return []route{
			{group: realtime.GroupPublic, frame: bcast},
			{group: realtime.GroupAdmins, frame: notif},
		}, nil
	case n.RecipientID != nil:
		rs := []route{{group: realtime.UserGroup(*n.RecipientID), frame: notif}}
		if n.Priority.AtLeast(domain.PriorityHigh) {
			rs = append(rs, route{group: realtime.GroupAdmins, frame: notif})
		}
		return rs, nil
	default:
		return []route{{group: realtime.GroupAdmins, frame: notif}}, nil
	}
}

func routingKey(n *domain.Notification) string {
	switch {
	case n.IsBroadcast:
		return "broadcast"
	case n.RecipientID != nil:
		return realtime.UserGroup(*n.RecipientID)
	default:
		return realtime.GroupAdmins
	}
}

func (s *NotificationService) push(ctx context.Context, n *domain.Notification) {
	if s.Fanout == nil {
		return
	}
	rs, err := routes(n, s.now())
	if err != nil {
		dispatchFailures.WithLabelValues("encode").Inc()
		log.Error().Err(err).Uint64("notification_id", n.ID).Msg("encode notification frame")
		return
	}
	for _, r := range rs {
		if err := s.Fanout.Publish(ctx, r.group, r.frame); err != nil {
			dispatchFailures.WithLabelValues("publish").Inc()
			log.Warn().Err(err).
				Uint64("notification_id", n.ID).
				Str("group", r.group).
				Msg("fanout publish failed")
		}
	}
}

// Broadcast dispatches a system or promotion notice to every client.
func (s *NotificationService) Broadcast(ctx context.Context, req BroadcastRequest) (*domain.Notification, error) {
	if req.Kind != domain.KindSystem && req.Kind != domain.KindPromotion {
		return nil, ErrBroadcastKind
	}
	var expires *time.Time
	if req.ExpiresInHours != 0 {
		if req.ExpiresInHours < 1 || req.ExpiresInHours > 720 {
			return nil, ErrInvalidExpiry
		}
		t := s.now().UTC().Add(time.Duration(req.ExpiresInHours) * time.Hour)
		expires = &t
	}
	return s.Dispatch(ctx, DispatchRequest{
		Kind:        req.Kind,
		Title:       req.Title,
		Body:        req.Body,
		Priority:    req.Priority,
		ActionURL:   req.ActionURL,
		ExpiresAt:   expires,
		IsBroadcast: true,
	})
}

// CreateIdempotent dispatches req on behalf of actorID. When key is non-empty
// and a live record exists for (actor, key), the originally created
// notification is returned with replayed=true and nothing is dispatched.
func (s *NotificationService) CreateIdempotent(ctx context.Context, actorID uint64, key string, req DispatchRequest) (n *domain.Notification, replayed bool, err error) {
	tr := otel.Tracer("services/NotificationService")
	ctx, span := tr.Start(ctx, "CreateIdempotent",
		trace.WithAttributes(
			attribute.Int64("user.id", int64(actorID)),
			attribute.Bool("idempotency.key_present", key != ""),
		),
	)
	defer span.End()

	actor := strconv.FormatUint(actorID, 10)
	if key != "" {
		rec, err := repo.GetIdempotency(ctx, s.DB, actor, scopeCreateNotification, key, s.now().UTC())
		switch {
		case err == nil:
			id, perr := strconv.ParseUint(rec.ResourceID, 10, 64)
			if perr != nil {
				return nil, false, fmt.Errorf("idempotency record %s: %w", rec.ID, perr)
			}
			orig, gerr := repo.GetNotification(ctx, s.DB, id)
			if gerr != nil {
				return nil, false, gerr
			}
			span.SetAttributes(attribute.Bool("idempotency.replayed", true))
			return orig, true, nil
		case !errors.Is(err, repo.ErrNotFound):
			return nil, false, err
		}
	}

	n, err = s.Dispatch(ctx, req)
	if err != nil {
		return nil, false, err
	}
	if key != "" {
		ttl := s.IdempotencyTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		if _, err := repo.CreateIdempotency(ctx, s.DB, actor, scopeCreateNotification, key,
			strconv.FormatUint(n.ID, 10), 201, ttl); err != nil && !errors.Is(err, repo.ErrDuplicate) {
			log.Warn().Err(err).Uint64("notification_id", n.ID).Msg("record idempotency key")
		}
	}
	return n, false, nil
}

// HasIdempotencyKey reports whether a live create record exists for
// (actorID, key).
func (s *NotificationService) HasIdempotencyKey(ctx context.Context, actorID uint64, key string) (bool, error) {
	_, err := repo.GetIdempotency(ctx, s.DB, strconv.FormatUint(actorID, 10), scopeCreateNotification, key, s.now().UTC())
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, repo.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// PurgeIdempotency removes expired idempotency records.
func (s *NotificationService) PurgeIdempotency(ctx context.Context) (int64, error) {
	return repo.PurgeExpiredIdempotency(ctx, s.DB, s.now().UTC())
}

// UnreadCount returns how many of userID's notifications are unread.
func (s *NotificationService) UnreadCount(ctx context.Context, userID uint64) (int64, error) {
	ctx, span := s.span(ctx, "UnreadCount", userID)
	defer span.End()
	return repo.CountUnread(ctx, s.DB, userID)
}

// ListUnread returns up to limit unread notifications, newest first. A
// non-positive limit returns all of them.
func (s *NotificationService) ListUnread(ctx context.Context, userID uint64, limit int) ([]domain.Notification, error) {
	ctx, span := s.span(ctx, "ListUnread", userID)
	defer span.End()
	return repo.ListUnread(ctx, s.DB, userID, limit)
}

// ListPage returns one page of userID's notifications, newest first, and the
// total count.
func (s *NotificationService) ListPage(ctx context.Context, userID uint64, page, limit int) ([]domain.Notification, int64, error) {
	ctx, span := s.span(ctx, "ListPage", userID)
	span.SetAttributes(attribute.Int("page", page), attribute.Int("page_size", limit))
	defer span.End()

	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	total, err := repo.CountNotifications(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Notification{}, 0, nil
	}
	items, err := repo.ListNotificationsPage(ctx, s.DB, userID, utils.Offset(page, limit), limit)
	return items, total, err
}

// Get returns notification id if userID owns it.
func (s *NotificationService) Get(ctx context.Context, userID, id uint64) (*domain.Notification, error) {
	ctx, span := s.span(ctx, "Get", userID)
	defer span.End()

	n, err := repo.GetOwnedNotification(ctx, s.DB, id, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNotificationNotFound
	}
	return n, err
}

// MarkAsRead marks id read if userID owns it. changed is false when it was
// already read; a missing or foreign id yields ErrNotificationNotFound.
func (s *NotificationService) MarkAsRead(ctx context.Context, userID, id uint64) (changed bool, err error) {
	ctx, span := s.span(ctx, "MarkAsRead", userID)
	defer span.End()

	changed, err = repo.MarkNotificationRead(ctx, s.DB, id, userID, s.now().UTC())
	if errors.Is(err, repo.ErrNotFound) {
		return false, ErrNotificationNotFound
	}
	return changed, err
}

// MarkAllAsRead marks every unread notification of userID read.
func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID uint64) (int64, error) {
	ctx, span := s.span(ctx, "MarkAllAsRead", userID)
	defer span.End()
	return repo.MarkAllNotificationsRead(ctx, s.DB, userID, s.now().UTC())
}

// Dismiss deletes one notification owned by userID.
func (s *NotificationService) Dismiss(ctx context.Context, userID, id uint64) error {
	ctx, span := s.span(ctx, "Dismiss", userID)
	defer span.End()

	err := repo.DeleteOwnedNotification(ctx, s.DB, id, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrNotificationNotFound
	}
	return err
}

// ClearAll deletes every notification owned by userID.
func (s *NotificationService) ClearAll(ctx context.Context, userID uint64) (int64, error) {
	ctx, span := s.span(ctx, "ClearAll", userID)
	defer span.End()
	return repo.DeleteAllNotifications(ctx, s.DB, userID)
}

// Digest summarizes userID's inbox for conditional responses.
func (s *NotificationService) Digest(ctx context.Context, userID uint64) (repo.InboxDigest, error) {
	return repo.NotificationsDigest(ctx, s.DB, userID)
}

// Stats returns global statistics for staff dashboards.
func (s *NotificationService) Stats(ctx context.Context) (*repo.GlobalStats, error) {
	tr := otel.Tracer("services/NotificationService")
	ctx, span := tr.Start(ctx, "Stats")
	defer span.End()
	return repo.NotificationStats(ctx, s.DB, s.now().UTC())
}

// SendTest dispatches a low-priority system notice to userID.
func (s *NotificationService) SendTest(ctx context.Context, userID uint64) (*domain.Notification, error) {
	uid := userID
	return s.Dispatch(ctx, DispatchRequest{
		RecipientID: &uid,
		Kind:        domain.KindSystem,
		Title:       "Test notification",
		Body:        "This is a test notification to verify your notification settings.",
		Priority:    domain.PriorityLow,
	})
}

func (s *NotificationService) span(ctx context.Context, name string, userID uint64) (context.Context, trace.Span) {
	return otel.Tracer("services/NotificationService").Start(ctx, name,
		trace.WithAttributes(attribute.Int64("user.id", int64(userID))),
	)
}

const lockStripes = 64

// stripedLock hands out one of a fixed set of mutexes per key.
type stripedLock struct {
	mu [lockStripes]sync.Mutex
}

func (l *stripedLock) of(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &l.mu[h.Sum32()%lockStripes]
}
