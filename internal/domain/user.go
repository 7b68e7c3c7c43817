package domain

import "time"

// User is the minimal projection of an account the notification service
// needs: identity, display name and role flags. The commerce backend owns the
// authoritative table; this service reads it for token resolution and for
// addressing staff-wide notifications.
type User struct {
	ID          uint64    `json:"id"           gorm:"primaryKey"`
	Username    string    `json:"username"     gorm:"type:varchar(150);not null;uniqueIndex"`
	Email       string    `json:"email"        gorm:"type:varchar(254)"`
	IsStaff     bool      `json:"is_staff"     gorm:"not null"`
	IsSuperuser bool      `json:"is_superuser" gorm:"not null"`
	IsActive    bool      `json:"is_active"    gorm:"not null"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Privileged reports whether the user belongs to the staff audience.
func (u *User) Privileged() bool { return u.IsStaff || u.IsSuperuser }
