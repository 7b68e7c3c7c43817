package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-notify-backend/internal/domain"
)

// GetUser fetches a user by id, or ErrNotFound.
func GetUser(ctx context.Context, db *gorm.DB, id uint64) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// ListStaff returns active users that are staff or superusers, by id.
func ListStaff(ctx context.Context, db *gorm.DB) ([]domain.User, error) {
	var out []domain.User
	err := db.WithContext(ctx).
		Where("is_active = ? AND (is_staff = ? OR is_superuser = ?)", true, true, true).
		Order("id").
		Find(&out).Error
	return out, err
}

// ListActiveUsers returns every active user, by id.
func ListActiveUsers(ctx context.Context, db *gorm.DB) ([]domain.User, error) {
	var out []domain.User
	err := db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("id").
		Find(&out).Error
	return out, err
}

// CreateUser inserts u. The commerce backend normally owns this table; the
// helper exists for seeding and tests.
func CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) error {
	return db.WithContext(ctx).Create(u).Error
}
