// Package handlers provides HTTP handler implementations for the public API.
//
// This file holds the response helpers every endpoint uses. Errors always
// carry an ErrorResponse with a stable code; fail logs 5xx responses through
// the request-scoped logger so they correlate with the access log.
//
// Example error response:
//
//	HTTP/1.1 404 Not Found
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "not_found",
//	  "message": "notification not found"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-notify-backend/internal/http/middleware"
	"github.com/tbourn/go-notify-backend/internal/services"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"notification not found"`
}

// fail aborts with an ErrorResponse. Statuses >= 500 are logged at error
// level.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Strs("errors", c.Errors.Errors()).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

// Fail is the exported variant of fail() for router-level fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// validationErrs are service errors caused by the request content.
var validationErrs = []error{
	services.ErrRecipientOnBroadcast,
	services.ErrInvalidKind,
	services.ErrInvalidPriority,
	services.ErrEmptyTitle,
	services.ErrTitleTooLong,
	services.ErrBroadcastKind,
	services.ErrInvalidExpiry,
	services.ErrInvalidVolume,
	services.ErrInvalidQuietHours,
}

// failService maps a service error onto a response. Unknown errors become a
// 500 with code and msg; the cause is attached to the context for the access
// log and never echoed to the client.
func failService(c *gin.Context, err error, code, msg string) {
	switch {
	case errors.Is(err, services.ErrNotificationNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "notification not found")
		return
	case errors.Is(err, services.ErrUserNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "user not found")
		return
	}
	for _, v := range validationErrs {
		if errors.Is(err, v) {
			fail(c, http.StatusBadRequest, ErrCodeValidation, v.Error())
			return
		}
	}
	_ = c.Error(err)
	fail(c, http.StatusInternalServerError, code, msg)
}

// currentUser returns the authenticated user id. Routes using it sit behind
// middleware.RequireUser.
func currentUser(c *gin.Context) uint64 {
	return middleware.PrincipalFrom(c).UserID
}
