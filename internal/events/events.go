// Package events turns commerce domain events into notifications. The
// Notifier holds one method per event; the Consumer feeds it from a Kafka
// topic carrying JSON envelopes.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Event type discriminators carried in Envelope.Type.
const (
	TypeOrderCreated         = "order.created"
	TypeOrderStatusChanged   = "order.status_changed"
	TypePaymentStatusChanged = "payment.status_changed"
	TypeStockChanged         = "product.stock_changed"
	TypeUserRegistered       = "user.registered"
	TypeCouponUsed           = "coupon.used"
	TypePromotion            = "promotion.published"
)

// ErrUnknownEvent is returned by Handle for an unrecognized Envelope.Type.
var ErrUnknownEvent = errors.New("unknown event type")

// Envelope is the wire shape of one event.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// OrderCreated is emitted when a customer places an order.
type OrderCreated struct {
	OrderID      uint64 `json:"order_id"`
	CustomerID   uint64 `json:"customer_id"`
	CustomerName string `json:"customer_name"`
	TotalAmount  string `json:"total_amount"`
	ItemsCount   int    `json:"items_count"`
}

// OrderStatusChanged is emitted when fulfillment status moves.
type OrderStatusChanged struct {
	OrderID    uint64 `json:"order_id"`
	CustomerID uint64 `json:"customer_id"`
	OldStatus  string `json:"old_status"`
	NewStatus  string `json:"new_status"`
}

// PaymentStatusChanged is emitted when a payment settles. Status is "paid"
// or "failed"; other values are ignored.
type PaymentStatusChanged struct {
	OrderID     uint64 `json:"order_id"`
	CustomerID  uint64 `json:"customer_id"`
	Status      string `json:"status"`
	TotalAmount string `json:"total_amount"`
}

// StockChanged is emitted when a product's stock level is updated.
type StockChanged struct {
	ProductID uint64 `json:"product_id"`
	Name      string `json:"name"`
	SKU       string `json:"sku"`
	Stock     int    `json:"stock"`
}

// UserRegistered is emitted when an account is created.
type UserRegistered struct {
	UserID   uint64 `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	IsStaff  bool   `json:"is_staff"`
}

// CouponUsed is emitted when a coupon is redeemed.
type CouponUsed struct {
	Code           string `json:"code"`
	Username       string `json:"username"`
	DiscountAmount string `json:"discount_amount"`
	DiscountType   string `json:"discount_type"`
	DiscountValue  string `json:"discount_value"`
}

// Promotion is a marketing message for every user.
type Promotion struct {
	Title     string `json:"title"`
	Message   string `json:"message"`
	ActionURL string `json:"action_url"`
}

// Handle decodes env and routes it to the matching Notifier method.
func (n *Notifier) Handle(ctx context.Context, env Envelope) error {
	switch env.Type {
	case TypeOrderCreated:
		var e OrderCreated
		if err := decode(env, &e); err != nil {
			return err
		}
		return n.OrderCreated(ctx, e)
	case TypeOrderStatusChanged:
		var e OrderStatusChanged
		if err := decode(env, &e); err != nil {
			return err
		}
		return n.OrderStatusChanged(ctx, e)
	case TypePaymentStatusChanged:
		var e PaymentStatusChanged
		if err := decode(env, &e); err != nil {
			return err
		}
		return n.PaymentStatusChanged(ctx, e)
	case TypeStockChanged:
		var e StockChanged
		if err := decode(env, &e); err != nil {
			return err
		}
		return n.StockChanged(ctx, e)
	case TypeUserRegistered:
		var e UserRegistered
		if err := decode(env, &e); err != nil {
			return err
		}
		return n.UserRegistered(ctx, e)
	case TypeCouponUsed:
		var e CouponUsed
		if err := decode(env, &e); err != nil {
			return err
		}
		return n.CouponUsed(ctx, e)
	case TypePromotion:
		var e Promotion
		if err := decode(env, &e); err != nil {
			return err
		}
		return n.Promotion(ctx, e)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
}

// ErrMalformedEvent wraps decoding failures of an envelope payload.
var ErrMalformedEvent = errors.New("malformed event")

func decode(env Envelope, v any) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("%w: %s has no data", ErrMalformedEvent, env.Type)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedEvent, env.Type, err)
	}
	return nil
}
