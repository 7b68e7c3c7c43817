package realtime

import (
	"encoding/json"

	"github.com/tbourn/go-notify-backend/internal/domain"
)

// Inbound message types.
const (
	TypePing           = "ping"
	TypeMarkAsRead     = "mark_as_read"
	TypeMarkAllAsRead  = "mark_all_as_read"
	TypeGetUnreadCount = "get_unread_count"
	TypeGetPage        = "get_notifications"
)

// Outbound message types.
const (
	TypeConnectionEstablished = "connection_established"
	TypeInitialNotifications  = "initial_notifications"
	TypePong                  = "pong"
	TypeUnreadCount           = "unread_count"
	TypeNotificationsPage     = "notifications_page"
	TypeNotification          = "notification"
	TypeBroadcast             = "broadcast"
	TypeError                 = "error"
)

// Inbound is the envelope of every client message. Fields other than Type
// are only meaningful for the message types that use them.
type Inbound struct {
	Type           string          `json:"type"`
	Timestamp      json.RawMessage `json:"timestamp,omitempty"`
	NotificationID *uint64         `json:"notification_id,omitempty"`
	Page           *int            `json:"page,omitempty"`
	Limit          *int            `json:"limit,omitempty"`
}

type connectionEstablished struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	User    string `json:"user"`
}

type initialNotifications struct {
	Type          string        `json:"type"`
	Notifications []domain.View `json:"notifications"`
	UnreadCount   int64         `json:"unread_count"`
}

type pong struct {
	Type      string          `json:"type"`
	Timestamp json.RawMessage `json:"timestamp"`
}

type unreadCount struct {
	Type  string `json:"type"`
	Count int64  `json:"count"`
}

type notificationsPage struct {
	Type          string        `json:"type"`
	Notifications []domain.View `json:"notifications"`
	Page          int           `json:"page"`
	Limit         int           `json:"limit"`
	Total         int64         `json:"total"`
	HasMore       bool          `json:"has_more"`
}

type notificationFrame struct {
	Type         string      `json:"type"`
	Notification domain.View `json:"notification"`
}

type broadcastFrame struct {
	Type    string      `json:"type"`
	Message domain.View `json:"message"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// EncodeNotification builds the frame pushed to personal and admin groups.
func EncodeNotification(v domain.View) ([]byte, error) {
	return json.Marshal(notificationFrame{Type: TypeNotification, Notification: v})
}

// EncodeBroadcast builds the frame pushed to the public group.
func EncodeBroadcast(v domain.View) ([]byte, error) {
	return json.Marshal(broadcastFrame{Type: TypeBroadcast, Message: v})
}

func encodeError(msg string) []byte {
	b, _ := json.Marshal(errorFrame{Type: TypeError, Message: msg})
	return b
}
