package events

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tbourn/go-notify-backend/internal/domain"
	"github.com/tbourn/go-notify-backend/internal/services"
)

// Dispatcher persists and delivers one notification.
type Dispatcher interface {
	Dispatch(ctx context.Context, req services.DispatchRequest) (*domain.Notification, error)
}

// Directory lists notification audiences and their preferences.
type Directory interface {
	ListStaff(ctx context.Context) ([]domain.User, error)
	ListActive(ctx context.Context) ([]domain.User, error)
	WantsKind(ctx context.Context, userID uint64, k domain.Kind) bool
}

// Notifier translates commerce events into Dispatch calls. Personal
// notifications are skipped for users whose preferences opt out of the kind.
type Notifier struct {
	dispatcher        Dispatcher
	users             Directory
	lowStockThreshold int
}

// NewNotifier returns a Notifier. Stock at or below lowStockThreshold raises
// an alert.
func NewNotifier(d Dispatcher, users Directory, lowStockThreshold int) *Notifier {
	return &Notifier{
		dispatcher:        d,
		users:             users,
		lowStockThreshold: lowStockThreshold,
	}
}

// statusLabel renders a status code such as "on_hold" as "On Hold". A Caser
// is not safe for concurrent use, so one is built per call.
func statusLabel(status string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(status, "_", " "))
}

var orderStatusMessages = map[string]string{
	"processing": "Your order is being processed",
	"shipped":    "Your order has been shipped",
	"delivered":  "Your order has been delivered",
	"cancelled":  "Your order has been cancelled",
}

// OrderCreated alerts every staff member and confirms the order to the
// customer.
func (n *Notifier) OrderCreated(ctx context.Context, e OrderCreated) error {
	orderID := e.OrderID
	var errs []error

	errs = append(errs, n.toStaff(ctx, services.DispatchRequest{
		Kind:      domain.KindNewOrder,
		Title:     fmt.Sprintf("New order #%d", e.OrderID),
		Body:      fmt.Sprintf("New order from %s for $%s", e.CustomerName, e.TotalAmount),
		Priority:  domain.PriorityHigh,
		ActionURL: fmt.Sprintf("/admin/orders/%d", e.OrderID),
		OrderID:   &orderID,
		Metadata: map[string]any{
			"customer_name": e.CustomerName,
			"total_amount":  e.TotalAmount,
			"items_count":   e.ItemsCount,
		},
	}))

	errs = append(errs, n.toUser(ctx, e.CustomerID, services.DispatchRequest{
		Kind:      domain.KindNewOrder,
		Title:     "Order confirmed",
		Body:      fmt.Sprintf("Your order #%d has been received and is being processed", e.OrderID),
		Priority:  domain.PriorityMedium,
		ActionURL: fmt.Sprintf("/my-orders/%d", e.OrderID),
		OrderID:   &orderID,
	}))
	return errors.Join(errs...)
}

// OrderStatusChanged tells the customer about a fulfillment transition. An
// unchanged status is ignored.
func (n *Notifier) OrderStatusChanged(ctx context.Context, e OrderStatusChanged) error {
	if e.OldStatus == e.NewStatus {
		return nil
	}
	msg, ok := orderStatusMessages[e.NewStatus]
	if !ok {
		msg = "Your order status changed to " + statusLabel(e.NewStatus)
	}
	orderID := e.OrderID
	return n.toUser(ctx, e.CustomerID, services.DispatchRequest{
		Kind:      domain.KindOrderStatus,
		Title:     fmt.Sprintf("Order #%d update", e.OrderID),
		Body:      msg,
		Priority:  domain.PriorityMedium,
		ActionURL: fmt.Sprintf("/my-orders/%d", e.OrderID),
		OrderID:   &orderID,
		Metadata: map[string]any{
			"old_status": e.OldStatus,
			"new_status": e.NewStatus,
		},
	})
}

// PaymentStatusChanged confirms a payment to the customer and staff, or warns
// the customer of a failure.
func (n *Notifier) PaymentStatusChanged(ctx context.Context, e PaymentStatusChanged) error {
	orderID := e.OrderID
	switch e.Status {
	case "paid":
		return errors.Join(
			n.toUser(ctx, e.CustomerID, services.DispatchRequest{
				Kind:      domain.KindPaymentConfirmed,
				Title:     "Payment confirmed",
				Body:      fmt.Sprintf("Payment for your order #%d has been confirmed", e.OrderID),
				Priority:  domain.PriorityMedium,
				ActionURL: fmt.Sprintf("/my-orders/%d", e.OrderID),
				OrderID:   &orderID,
			}),
			n.toStaff(ctx, services.DispatchRequest{
				Kind:      domain.KindPaymentConfirmed,
				Title:     fmt.Sprintf("Payment confirmed - order #%d", e.OrderID),
				Body:      fmt.Sprintf("Payment of $%s for order #%d has been confirmed", e.TotalAmount, e.OrderID),
				Priority:  domain.PriorityHigh,
				ActionURL: fmt.Sprintf("/admin/orders/%d", e.OrderID),
				OrderID:   &orderID,
			}),
		)
	case "failed":
		return n.toUser(ctx, e.CustomerID, services.DispatchRequest{
			Kind:      domain.KindPaymentFailed,
			Title:     "Payment failed",
			Body:      fmt.Sprintf("There was a problem processing the payment for your order #%d", e.OrderID),
			Priority:  domain.PriorityHigh,
			ActionURL: fmt.Sprintf("/my-orders/%d", e.OrderID),
			OrderID:   &orderID,
		})
	default:
		return nil
	}
}

// StockChanged alerts staff when stock drops to the threshold or below.
func (n *Notifier) StockChanged(ctx context.Context, e StockChanged) error {
	if e.Stock > n.lowStockThreshold {
		return nil
	}
	productID := e.ProductID
	req := services.DispatchRequest{
		Kind:      domain.KindLowStock,
		Title:     "Low stock: " + e.Name,
		Body:      fmt.Sprintf("Product %s has only %d units left", e.Name, e.Stock),
		Priority:  domain.PriorityMedium,
		ActionURL: fmt.Sprintf("/admin/products/edit/%d", e.ProductID),
		ProductID: &productID,
		Metadata: map[string]any{
			"product_name":  e.Name,
			"current_stock": e.Stock,
			"sku":           e.SKU,
		},
	}
	if e.Stock <= 0 {
		req.Kind = domain.KindOutOfStock
		req.Title = "Out of stock: " + e.Name
		req.Body = fmt.Sprintf("Product %s is out of stock", e.Name)
		req.Priority = domain.PriorityHigh
	}
	return n.toStaff(ctx, req)
}

// UserRegistered alerts staff about a new customer and welcomes them. Staff
// accounts are ignored.
func (n *Notifier) UserRegistered(ctx context.Context, e UserRegistered) error {
	if e.IsStaff {
		return nil
	}
	display := e.FullName
	if strings.TrimSpace(display) == "" {
		display = e.Username
	}
	userID := e.UserID
	return errors.Join(
		n.toStaff(ctx, services.DispatchRequest{
			Kind:      domain.KindNewUser,
			Title:     "New user registered",
			Body:      "A new user has registered: " + display,
			Priority:  domain.PriorityLow,
			ActionURL: fmt.Sprintf("/admin/customers/%d", e.UserID),
			UserID:    &userID,
			Metadata: map[string]any{
				"username":  e.Username,
				"email":     e.Email,
				"full_name": e.FullName,
			},
		}),
		n.toUser(ctx, e.UserID, services.DispatchRequest{
			Kind:      domain.KindSystem,
			Title:     "Welcome!",
			Body:      "Thanks for signing up. Explore our products and special offers.",
			Priority:  domain.PriorityLow,
			ActionURL: "/products",
		}),
	)
}

// CouponUsed tells staff a coupon was redeemed.
func (n *Notifier) CouponUsed(ctx context.Context, e CouponUsed) error {
	return n.toStaff(ctx, services.DispatchRequest{
		Kind:     domain.KindCouponUsed,
		Title:    "Coupon used: " + e.Code,
		Body:     fmt.Sprintf("User %s redeemed coupon %s for a discount of %s", e.Username, e.Code, e.DiscountAmount),
		Priority: domain.PriorityLow,
		Metadata: map[string]any{
			"coupon_code":     e.Code,
			"user":            e.Username,
			"discount_amount": e.DiscountAmount,
			"discount_type":   e.DiscountType,
			"discount_value":  e.DiscountValue,
		},
	})
}

// Promotion broadcasts e to every connected client and stores a personal copy
// for each active user.
func (n *Notifier) Promotion(ctx context.Context, e Promotion) error {
	if _, err := n.dispatcher.Dispatch(ctx, services.DispatchRequest{
		Kind:        domain.KindPromotion,
		Title:       e.Title,
		Body:        e.Message,
		Priority:    domain.PriorityMedium,
		ActionURL:   e.ActionURL,
		IsBroadcast: true,
	}); err != nil {
		return fmt.Errorf("broadcast promotion: %w", err)
	}

	users, err := n.users.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active users: %w", err)
	}
	var errs []error
	for _, u := range users {
		errs = append(errs, n.toUser(ctx, u.ID, services.DispatchRequest{
			Kind:      domain.KindPromotion,
			Title:     e.Title,
			Body:      e.Message,
			Priority:  domain.PriorityLow,
			ActionURL: e.ActionURL,
		}))
	}
	return errors.Join(errs...)
}

// toUser dispatches req to userID unless their preferences opt out.
func (n *Notifier) toUser(ctx context.Context, userID uint64, req services.DispatchRequest) error {
	if userID == 0 {
		return nil
	}
	if !n.users.WantsKind(ctx, userID, req.Kind) {
		log.Debug().Uint64("user_id", userID).Str("kind", string(req.Kind)).Msg("notification suppressed by preferences")
		return nil
	}
	uid := userID
	req.RecipientID = &uid
	if _, err := n.dispatcher.Dispatch(ctx, req); err != nil {
		return fmt.Errorf("dispatch %s to user %d: %w", req.Kind, userID, err)
	}
	return nil
}

// toStaff dispatches a personal copy of req to every active staff member.
func (n *Notifier) toStaff(ctx context.Context, req services.DispatchRequest) error {
	staff, err := n.users.ListStaff(ctx)
	if err != nil {
		return fmt.Errorf("list staff: %w", err)
	}
	var errs []error
	for _, u := range staff {
		errs = append(errs, n.toUser(ctx, u.ID, req))
	}
	return errors.Join(errs...)
}
