// Package services defines the business logic for notifications, their
// delivery and per-user preferences.
// This file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer; realtime sessions map not-found errors to silent no-ops.
package services

import (
	"errors"

	"github.com/tbourn/go-notify-backend/internal/domain"
)

// Notification-related errors.
var (
	// ErrNotificationNotFound indicates that the notification does not exist
	// or is not owned by the caller. The two cases are deliberately
	// indistinguishable.
	ErrNotificationNotFound = domain.ErrNotificationNotFound

	// ErrRecipientOnBroadcast is returned when a dispatch names a recipient
	// and also sets the broadcast flag.
	ErrRecipientOnBroadcast = errors.New("a broadcast notification cannot have a recipient")

	// ErrInvalidKind is returned for a notification type outside the known set.
	ErrInvalidKind = errors.New("unknown notification type")

	// ErrInvalidPriority is returned for a priority outside low..urgent.
	ErrInvalidPriority = errors.New("unknown notification priority")

	// ErrEmptyTitle is returned when the title is blank after trimming.
	ErrEmptyTitle = errors.New("title is empty")

	// ErrTitleTooLong is returned when the title exceeds MaxTitleRunes.
	ErrTitleTooLong = errors.New("title too long")

	// ErrBroadcastKind is returned when a broadcast uses a type other than
	// system or promotion.
	ErrBroadcastKind = errors.New("broadcast type must be system or promotion")

	// ErrInvalidExpiry is returned when expires_in_hours is outside 1..720.
	ErrInvalidExpiry = errors.New("expires_in_hours must be between 1 and 720")
)

// Preference-related errors.
var (
	// ErrInvalidVolume is returned when the sound volume is outside 0..100.
	ErrInvalidVolume = errors.New("sound_volume must be between 0 and 100")

	// ErrInvalidQuietHours is returned when a quiet-hours bound is not HH:MM
	// or only one bound is given.
	ErrInvalidQuietHours = errors.New("quiet hours must be HH:MM and set together")
)

// ErrUserNotFound indicates that the user does not exist.
var ErrUserNotFound = errors.New("user not found")
