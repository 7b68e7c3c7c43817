// Package domain defines the persistence models for notifications, the user
// directory they are addressed to, per-user notification preferences and
// idempotency records. These types are mapped with GORM and shared across the
// repository, service and transport layers.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Kind classifies a notification. It is serialized as "type" on the wire.
type Kind string

const (
	KindNewOrder         Kind = "new_order"
	KindOrderStatus      Kind = "order_status"
	KindPaymentConfirmed Kind = "payment_confirmed"
	KindPaymentFailed    Kind = "payment_failed"
	KindLowStock         Kind = "low_stock"
	KindOutOfStock       Kind = "out_of_stock"
	KindNewUser          Kind = "new_user"
	KindNewReview        Kind = "new_review"
	KindNewMessage       Kind = "new_message"
	KindSystem           Kind = "system"
	KindPromotion        Kind = "promotion"
	KindCouponUsed       Kind = "coupon_used"
)

var kindIcons = map[Kind]string{
	KindNewOrder:         "shopping-cart",
	KindOrderStatus:      "package",
	KindPaymentConfirmed: "credit-card",
	KindPaymentFailed:    "alert-circle",
	KindLowStock:         "alert-triangle",
	KindOutOfStock:       "x-circle",
	KindNewUser:          "user-plus",
	KindNewReview:        "star",
	KindNewMessage:       "message-circle",
	KindSystem:           "info",
	KindPromotion:        "tag",
	KindCouponUsed:       "ticket",
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	_, ok := kindIcons[k]
	return ok
}

// Icon returns the UI icon name for the kind, "bell" when unknown.
func (k Kind) Icon() string {
	if icon, ok := kindIcons[k]; ok {
		return icon
	}
	return "bell"
}

// Priority orders notifications by urgency: low < medium < high < urgent.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

var priorityRank = map[Priority]int{
	PriorityLow:    0,
	PriorityMedium: 1,
	PriorityHigh:   2,
	PriorityUrgent: 3,
}

var priorityColors = map[Priority]string{
	PriorityLow:    "gray",
	PriorityMedium: "blue",
	PriorityHigh:   "yellow",
	PriorityUrgent: "red",
}

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	_, ok := priorityRank[p]
	return ok
}

// AtLeast reports whether p ranks at or above other.
func (p Priority) AtLeast(other Priority) bool {
	return priorityRank[p] >= priorityRank[other]
}

// Color returns the UI color associated with the priority.
func (p Priority) Color() string {
	if c, ok := priorityColors[p]; ok {
		return c
	}
	return "gray"
}

// Notification is a persisted, addressable message.
//
// Fields:
//   - ID: monotonically assigned surrogate key.
//   - RecipientID: owning user; nil for admin-only or broadcast rows.
//   - Kind / Priority: classification enums (see above).
//   - Read / ReadAt: flips false->true once; ReadAt is set on that transition only.
//   - OrderID / ProductID / UserID: weak references to commerce entities.
//   - Metadata: free-form JSON passed through verbatim.
//   - ExpiresAt: optional expiry, see IsExpired.
//   - IsBroadcast: addressed to every connected client; implies RecipientID == nil.
type Notification struct {
	ID          uint64         `json:"id"           gorm:"primaryKey;autoIncrement"`
	RecipientID *uint64        `json:"recipient_id" gorm:"index:idx_notif_recipient_created,priority:1;index:idx_notif_recipient_read,priority:1"`
	Kind        Kind           `json:"type"         gorm:"type:varchar(32);not null;index"`
	Title       string         `json:"title"        gorm:"type:varchar(200);not null"`
	Body        string         `json:"message"      gorm:"type:text;not null"`
	Priority    Priority       `json:"priority"     gorm:"type:varchar(10);not null;default:'medium'"`
	Read        bool           `json:"read"         gorm:"not null;default:false;index:idx_notif_recipient_read,priority:2"`
	ReadAt      *time.Time     `json:"read_at"`
	ActionURL   *string        `json:"action_url"   gorm:"type:varchar(500)"`
	OrderID     *uint64        `json:"order_id,omitempty"`
	ProductID   *uint64        `json:"product_id,omitempty"`
	UserID      *uint64        `json:"user_id,omitempty"`
	Metadata    datatypes.JSON `json:"metadata"`
	CreatedAt   time.Time      `json:"created_at"   gorm:"not null;index:idx_notif_recipient_created,priority:2"`
	ExpiresAt   *time.Time     `json:"expires_at"`
	IsBroadcast bool           `json:"is_broadcast" gorm:"not null;default:false"`
}

// TableName returns the database table name for Notification.
func (Notification) TableName() string { return "notifications" }

// IsExpired reports whether the notification has an expiry at or before now.
func (n *Notification) IsExpired(now time.Time) bool {
	return n.ExpiresAt != nil && !now.Before(*n.ExpiresAt)
}

// View is the serialized shape pushed to clients and returned by the API.
type View struct {
	ID            uint64         `json:"id"`
	Type          Kind           `json:"type"`
	Title         string         `json:"title"`
	Message       string         `json:"message"`
	Icon          string         `json:"icon"`
	Priority      Priority       `json:"priority"`
	PriorityColor string         `json:"priority_color"`
	ActionURL     *string        `json:"action_url"`
	Metadata      datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	Read          bool           `json:"read"`
	ReadAt        *time.Time     `json:"read_at"`
	IsBroadcast   bool           `json:"is_broadcast"`
	ExpiresAt     *time.Time     `json:"expires_at,omitempty"`
	IsExpired     bool           `json:"is_expired"`
}

// ToView derives the presentation fields for n as of now.
func (n *Notification) ToView(now time.Time) View {
	return View{
		ID:            n.ID,
		Type:          n.Kind,
		Title:         n.Title,
		Message:       n.Body,
		Icon:          n.Kind.Icon(),
		Priority:      n.Priority,
		PriorityColor: n.Priority.Color(),
		ActionURL:     n.ActionURL,
		Metadata:      n.Metadata,
		CreatedAt:     n.CreatedAt,
		Read:          n.Read,
		ReadAt:        n.ReadAt,
		IsBroadcast:   n.IsBroadcast,
		ExpiresAt:     n.ExpiresAt,
		IsExpired:     n.IsExpired(now),
	}
}

// Views converts a slice of notifications preserving order.
func Views(items []Notification, now time.Time) []View {
	out := make([]View, 0, len(items))
	for i := range items {
		out = append(out, items[i].ToView(now))
	}
	return out
}
