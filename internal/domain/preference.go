package domain

import "time"

// Preference holds per-user delivery toggles. A missing row means every
// category is enabled (see DefaultPreference).
type Preference struct {
	UserID       uint64 `json:"user_id"        gorm:"primaryKey;autoIncrement:false"`
	EmailEnabled bool   `json:"email_enabled"  gorm:"not null"`
	PushEnabled  bool   `json:"push_enabled"   gorm:"not null"`
	SMSEnabled   bool   `json:"sms_enabled"    gorm:"not null"`

	NewOrders      bool `json:"new_orders"      gorm:"not null"`
	OrderUpdates   bool `json:"order_updates"   gorm:"not null"`
	PaymentUpdates bool `json:"payment_updates" gorm:"not null"`
	StockAlerts    bool `json:"stock_alerts"    gorm:"not null"`
	NewUsers       bool `json:"new_users"       gorm:"not null"`
	Promotions     bool `json:"promotions"      gorm:"not null"`
	SystemUpdates  bool `json:"system_updates"  gorm:"not null"`

	SoundEnabled bool `json:"sound_enabled" gorm:"not null"`
	SoundVolume  int  `json:"sound_volume"  gorm:"not null;check:sound_volume BETWEEN 0 AND 100"`

	// Quiet hours as "HH:MM" in server local time.
	QuietHoursStart *string `json:"quiet_hours_start" gorm:"type:varchar(5)"`
	QuietHoursEnd   *string `json:"quiet_hours_end"   gorm:"type:varchar(5)"`

	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Preference.
func (Preference) TableName() string { return "notification_preferences" }

// DefaultPreference returns the settings assumed for a user with no stored row.
func DefaultPreference(userID uint64) Preference {
	return Preference{
		UserID:         userID,
		EmailEnabled:   true,
		PushEnabled:    true,
		NewOrders:      true,
		OrderUpdates:   true,
		PaymentUpdates: true,
		StockAlerts:    true,
		NewUsers:       true,
		Promotions:     true,
		SystemUpdates:  true,
		SoundEnabled:   true,
		SoundVolume:    50,
	}
}

// ShouldSend reports whether the user accepts notifications of kind k.
// Kinds without a category toggle are always accepted.
func (p *Preference) ShouldSend(k Kind) bool {
	switch k {
	case KindNewOrder:
		return p.NewOrders
	case KindOrderStatus:
		return p.OrderUpdates
	case KindPaymentConfirmed, KindPaymentFailed:
		return p.PaymentUpdates
	case KindLowStock, KindOutOfStock:
		return p.StockAlerts
	case KindNewUser:
		return p.NewUsers
	case KindPromotion:
		return p.Promotions
	case KindSystem:
		return p.SystemUpdates
	default:
		return true
	}
}
