// Notification HTTP handlers.
//
// REST endpoints for the caller's own inbox, their delivery preferences and
// the staff-only dispatch surface:
//   - GET    /notifications                (list, paginated, ETag support)
//   - GET    /notifications/unread
//   - GET    /notifications/unread/count
//   - GET    /notifications/{id}
//   - POST   /notifications/{id}/read
//   - POST   /notifications/read-all
//   - DELETE /notifications/{id}
//   - DELETE /notifications
//   - POST   /notifications/test
//   - GET    /notifications/preferences
//   - PUT    /notifications/preferences
//   - POST   /notifications                (staff, Idempotency-Key)
//   - POST   /notifications/broadcast      (staff)
//   - GET    /notifications/stats          (staff)
//
// Handlers are transport-thin: they validate input, call the services and
// translate results into HTTP responses.
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-notify-backend/internal/domain"
	"github.com/tbourn/go-notify-backend/internal/http/middleware"
	"github.com/tbourn/go-notify-backend/internal/repo"
	"github.com/tbourn/go-notify-backend/internal/services"
	"github.com/tbourn/go-notify-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// NotificationService is the inbox and dispatch surface the handlers use.
// Every per-user method is scoped to the given user.
type NotificationService interface {
	CreateIdempotent(ctx context.Context, actorID uint64, key string, req services.DispatchRequest) (*domain.Notification, bool, error)
	Broadcast(ctx context.Context, req services.BroadcastRequest) (*domain.Notification, error)
	SendTest(ctx context.Context, userID uint64) (*domain.Notification, error)

	UnreadCount(ctx context.Context, userID uint64) (int64, error)
	ListUnread(ctx context.Context, userID uint64, limit int) ([]domain.Notification, error)
	ListPage(ctx context.Context, userID uint64, page, limit int) ([]domain.Notification, int64, error)
	Get(ctx context.Context, userID, id uint64) (*domain.Notification, error)
	MarkAsRead(ctx context.Context, userID, id uint64) (bool, error)
	MarkAllAsRead(ctx context.Context, userID uint64) (int64, error)
	Dismiss(ctx context.Context, userID, id uint64) error
	ClearAll(ctx context.Context, userID uint64) (int64, error)
	Digest(ctx context.Context, userID uint64) (repo.InboxDigest, error)
	Stats(ctx context.Context) (*repo.GlobalStats, error)
}

// PreferenceService reads and writes per-user delivery preferences.
type PreferenceService interface {
	Preference(ctx context.Context, userID uint64) (*domain.Preference, error)
	SavePreference(ctx context.Context, userID uint64, p domain.Preference) (*domain.Preference, error)
}

//
// Handler wiring
//

// Handlers groups the notification endpoints.
type Handlers struct {
	notifs NotificationService
	prefs  PreferenceService
	now    func() time.Time
}

// New constructs Handlers bound to the given services.
func New(notifs NotificationService, prefs PreferenceService) *Handlers {
	return &Handlers{notifs: notifs, prefs: prefs, now: time.Now}
}

//
// DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListNotificationsResponse wraps a page of notifications.
type ListNotificationsResponse struct {
	Notifications []domain.View `json:"notifications"`
	Pagination    Pagination    `json:"pagination"`
}

// UnreadResponse lists unread notifications with their total count.
type UnreadResponse struct {
	Notifications []domain.View `json:"notifications"`
	Count         int64         `json:"count" example:"3"`
}

// CountResponse carries a single count.
type CountResponse struct {
	Count int64 `json:"count" example:"3"`
}

// MarkReadResponse reports the outcome of marking one notification read.
type MarkReadResponse struct {
	ID uint64 `json:"id" example:"42"`
	// Changed is false when the notification was already read.
	Changed bool `json:"changed" example:"true"`
}

// BulkResponse reports how many rows a bulk operation touched.
type BulkResponse struct {
	Affected int64 `json:"affected" example:"7"`
}

//
// Helpers
//

// clampPagination bounds page and page_size to defaults and limits.
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = max(utils.AtoiDefault(c.Query("page"), defaultPage), 1)
	pageSize = min(max(utils.AtoiDefault(c.Query("page_size"), defaultPageSize), 1), maxPageSize)
	return
}

// pathID parses the :id param, answering 400 itself when it is invalid.
func pathID(c *gin.Context) (uint64, bool) {
	id, valid := utils.ParseID(c.Param("id"))
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "notification id must be a positive integer")
	}
	return id, valid
}

//
// Handlers
//

// ListNotifications godoc
// @ID          listNotifications
// @Summary     List notifications (paginated)
// @Description Returns a page of the caller's notifications, newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Notifications
// @Produce     json
// @Security    BearerAuth
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"n:1:10:2:57:1:20\")
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListNotificationsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /notifications [get]
func (h *Handlers) ListNotifications(c *gin.Context) {
	ctx := c.Request.Context()
	uid := currentUser(c)
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if d, err := h.notifs.Digest(ctx, uid); err == nil {
		etag := fmt.Sprintf(`W/"n:%d:%d:%d:%d:%d:%d"`, uid, d.Total, d.Unread, d.MaxID, page, pageSize)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, total, err := h.notifs.ListPage(ctx, uid, page, pageSize)
	if err != nil {
		failService(c, err, ErrCodeListFailed, "could not list notifications")
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListNotificationsResponse{
		Notifications: domain.Views(items, h.now()),
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    utils.HasMore(page, pageSize, total),
		},
	})
}

// ListUnread godoc
// @ID          listUnreadNotifications
// @Summary     List unread notifications
// @Description Returns up to 100 of the caller's unread notifications, newest first, and the full unread count.
// @Tags        Notifications
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object} handlers.UnreadResponse
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /notifications/unread [get]
func (h *Handlers) ListUnread(c *gin.Context) {
	ctx := c.Request.Context()
	uid := currentUser(c)

	items, err := h.notifs.ListUnread(ctx, uid, 100)
	if err != nil {
		failService(c, err, ErrCodeListFailed, "could not list unread notifications")
		return
	}
	count, err := h.notifs.UnreadCount(ctx, uid)
	if err != nil {
		failService(c, err, ErrCodeListFailed, "could not count unread notifications")
		return
	}
	ok(c, http.StatusOK, UnreadResponse{Notifications: domain.Views(items, h.now()), Count: count})
}

// UnreadCount godoc
// @ID          unreadCount
// @Summary     Count unread notifications
// @Tags        Notifications
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object} handlers.CountResponse
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /notifications/unread/count [get]
func (h *Handlers) UnreadCount(c *gin.Context) {
	n, err := h.notifs.UnreadCount(c.Request.Context(), currentUser(c))
	if err != nil {
		failService(c, err, ErrCodeListFailed, "could not count unread notifications")
		return
	}
	ok(c, http.StatusOK, CountResponse{Count: n})
}

// GetNotification godoc
// @ID          getNotification
// @Summary     Get one notification
// @Description Returns a notification owned by the caller. Foreign and missing ids are both 404.
// @Tags        Notifications
// @Produce     json
// @Security    BearerAuth
// @Param       id   path     int  true  "Notification ID"  minimum(1)
// @Success     200  {object} domain.View
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Not found"
// @Router      /notifications/{id} [get]
func (h *Handlers) GetNotification(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	n, err := h.notifs.Get(c.Request.Context(), currentUser(c), id)
	if err != nil {
		failService(c, err, ErrCodeInternal, "could not load notification")
		return
	}
	ok(c, http.StatusOK, n.ToView(h.now()))
}

// MarkAsRead godoc
// @ID          markNotificationRead
// @Summary     Mark a notification read
// @Description Idempotent: marking an already-read notification succeeds with changed=false.
// @Tags        Notifications
// @Produce     json
// @Security    BearerAuth
// @Param       id   path     int  true  "Notification ID"  minimum(1)
// @Success     200  {object} handlers.MarkReadResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Not found"
// @Router      /notifications/{id}/read [post]
func (h *Handlers) MarkAsRead(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	changed, err := h.notifs.MarkAsRead(c.Request.Context(), currentUser(c), id)
	if err != nil {
		failService(c, err, ErrCodeUpdateFailed, "could not mark notification read")
		return
	}
	ok(c, http.StatusOK, MarkReadResponse{ID: id, Changed: changed})
}

// MarkAllAsRead godoc
// @ID          markAllNotificationsRead
// @Summary     Mark every notification read
// @Tags        Notifications
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object} handlers.BulkResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /notifications/read-all [post]
func (h *Handlers) MarkAllAsRead(c *gin.Context) {
	n, err := h.notifs.MarkAllAsRead(c.Request.Context(), currentUser(c))
	if err != nil {
		failService(c, err, ErrCodeUpdateFailed, "could not mark notifications read")
		return
	}
	ok(c, http.StatusOK, BulkResponse{Affected: n})
}

// Dismiss godoc
// @ID          dismissNotification
// @Summary     Delete one notification
// @Tags        Notifications
// @Security    BearerAuth
// @Param       id   path     int  true  "Notification ID"  minimum(1)
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Not found"
// @Router      /notifications/{id} [delete]
func (h *Handlers) Dismiss(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	if err := h.notifs.Dismiss(c.Request.Context(), currentUser(c), id); err != nil {
		failService(c, err, ErrCodeUpdateFailed, "could not delete notification")
		return
	}
	noContent(c)
}

// ClearAll godoc
// @ID          clearNotifications
// @Summary     Delete every notification
// @Tags        Notifications
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object} handlers.BulkResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /notifications [delete]
func (h *Handlers) ClearAll(c *gin.Context) {
	n, err := h.notifs.ClearAll(c.Request.Context(), currentUser(c))
	if err != nil {
		failService(c, err, ErrCodeUpdateFailed, "could not clear notifications")
		return
	}
	ok(c, http.StatusOK, BulkResponse{Affected: n})
}

// SendTest godoc
// @ID          sendTestNotification
// @Summary     Send a test notification to yourself
// @Description Dispatches a low-priority system notification to the caller, over the live connection too.
// @Tags        Notifications
// @Produce     json
// @Security    BearerAuth
// @Success     201  {object} domain.View
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /notifications/test [post]
func (h *Handlers) SendTest(c *gin.Context) {
	n, err := h.notifs.SendTest(c.Request.Context(), currentUser(c))
	if err != nil {
		failService(c, err, ErrCodeDispatchFailed, "could not send test notification")
		return
	}
	ok(c, http.StatusCreated, n.ToView(h.now()))
}

// GetPreferences godoc
// @ID          getNotificationPreferences
// @Summary     Get delivery preferences
// @Description Returns the caller's preferences; defaults are returned when none were saved.
// @Tags        Preferences
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object} domain.Preference
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /notifications/preferences [get]
func (h *Handlers) GetPreferences(c *gin.Context) {
	p, err := h.prefs.Preference(c.Request.Context(), currentUser(c))
	if err != nil {
		failService(c, err, ErrCodeInternal, "could not load preferences")
		return
	}
	ok(c, http.StatusOK, p)
}

// UpdatePreferences godoc
// @ID          updateNotificationPreferences
// @Summary     Replace delivery preferences
// @Tags        Preferences
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body     domain.Preference  true  "Preferences"
// @Success     200   {object} domain.Preference
// @Failure     400   {object} handlers.ErrorResponse "Bad request"
// @Failure     500   {object} handlers.ErrorResponse "Internal error"
// @Router      /notifications/preferences [put]
func (h *Handlers) UpdatePreferences(c *gin.Context) {
	var req domain.Preference
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	p, err := h.prefs.SavePreference(c.Request.Context(), currentUser(c), req)
	if err != nil {
		failService(c, err, ErrCodeUpdateFailed, "could not save preferences")
		return
	}
	ok(c, http.StatusOK, p)
}

// CreateNotification godoc
// @ID          createNotification
// @Summary     Create and dispatch a notification (staff)
// @Description Persists the notification and pushes it to the routed groups. With an Idempotency-Key a retry returns the original notification with 200 and dispatches nothing.
// @Tags        Staff
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header  string                    false "Idempotency key"  example(order-42-created)
// @Param       body             body    services.DispatchRequest  true  "Notification"
// @Success     201  {object} domain.View
// @Success     200  {object} domain.View "Replay of an earlier request"
// @Header      200  {string} Idempotent-Replay "true"
// @Failure     400  {object} handlers.ErrorResponse "Validation failed"
// @Failure     403  {object} handlers.ErrorResponse "Staff only"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /notifications [post]
func (h *Handlers) CreateNotification(c *gin.Context) {
	var req services.DispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	key, _ := middleware.GetIdempotencyKey(c)

	n, replayed, err := h.notifs.CreateIdempotent(c.Request.Context(), currentUser(c), key, req)
	if err != nil {
		failService(c, err, ErrCodeDispatchFailed, "could not dispatch notification")
		return
	}
	if replayed {
		c.Header("Idempotent-Replay", "true")
		ok(c, http.StatusOK, n.ToView(h.now()))
		return
	}
	ok(c, http.StatusCreated, n.ToView(h.now()))
}

// Broadcast godoc
// @ID          broadcastNotification
// @Summary     Broadcast to every connected client (staff)
// @Description Type must be system or promotion; expires_in_hours, when set, must be 1..720.
// @Tags        Staff
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body     services.BroadcastRequest  true  "Broadcast"
// @Success     201   {object} domain.View
// @Failure     400   {object} handlers.ErrorResponse "Validation failed"
// @Failure     403   {object} handlers.ErrorResponse "Staff only"
// @Failure     500   {object} handlers.ErrorResponse "Internal error"
// @Router      /notifications/broadcast [post]
func (h *Handlers) Broadcast(c *gin.Context) {
	var req services.BroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	n, err := h.notifs.Broadcast(c.Request.Context(), req)
	if err != nil {
		failService(c, err, ErrCodeDispatchFailed, "could not broadcast notification")
		return
	}
	ok(c, http.StatusCreated, n.ToView(h.now()))
}

// Stats godoc
// @ID          notificationStats
// @Summary     Global notification statistics (staff)
// @Tags        Staff
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object} repo.GlobalStats
// @Failure     403  {object} handlers.ErrorResponse "Staff only"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /notifications/stats [get]
func (h *Handlers) Stats(c *gin.Context) {
	st, err := h.notifs.Stats(c.Request.Context())
	if err != nil {
		failService(c, err, ErrCodeInternal, "could not compute statistics")
		return
	}
	ok(c, http.StatusOK, st)
}
