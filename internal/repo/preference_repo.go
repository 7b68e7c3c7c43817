package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-notify-backend/internal/domain"
)

// GetPreference returns the stored preference for userID, or the defaults
// when the user never saved any.
func GetPreference(ctx context.Context, db *gorm.DB, userID uint64) (*domain.Preference, error) {
	var p domain.Preference
	err := db.WithContext(ctx).First(&p, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		def := domain.DefaultPreference(userID)
		return &def, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SavePreference upserts p keyed by user id.
func SavePreference(ctx context.Context, db *gorm.DB, p *domain.Preference) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			UpdateAll: true,
		}).
		Create(p).Error
}
