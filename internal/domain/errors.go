package domain

import "errors"

// ErrNotificationNotFound reports a notification that does not exist or is
// not owned by the caller. The two cases are never distinguished.
var ErrNotificationNotFound = errors.New("notification not found")
