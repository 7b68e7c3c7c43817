package services

import (
	"context"
	"errors"
	"regexp"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-notify-backend/internal/domain"
	"github.com/tbourn/go-notify-backend/internal/repo"
)

// UserService reads the account directory and per-user preferences.
type UserService struct {
	DB *gorm.DB
}

// GetUser returns the account with id, or ErrUserNotFound.
func (s *UserService) GetUser(ctx context.Context, id uint64) (*domain.User, error) {
	u, err := repo.GetUser(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// ListStaff returns active staff and superusers.
func (s *UserService) ListStaff(ctx context.Context) ([]domain.User, error) {
	return repo.ListStaff(ctx, s.DB)
}

// ListActive returns every active user.
func (s *UserService) ListActive(ctx context.Context) ([]domain.User, error) {
	return repo.ListActiveUsers(ctx, s.DB)
}

// Preference returns userID's preferences, or the defaults if none are stored.
func (s *UserService) Preference(ctx context.Context, userID uint64) (*domain.Preference, error) {
	tr := otel.Tracer("services/UserService")
	ctx, span := tr.Start(ctx, "Preference",
		trace.WithAttributes(attribute.Int64("user.id", int64(userID))),
	)
	defer span.End()
	return repo.GetPreference(ctx, s.DB, userID)
}

var hhmm = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// SavePreference validates and stores p for userID. The user id in p is
// overwritten so callers cannot write another user's row.
func (s *UserService) SavePreference(ctx context.Context, userID uint64, p domain.Preference) (*domain.Preference, error) {
	tr := otel.Tracer("services/UserService")
	ctx, span := tr.Start(ctx, "SavePreference",
		trace.WithAttributes(attribute.Int64("user.id", int64(userID))),
	)
	defer span.End()

	if p.SoundVolume < 0 || p.SoundVolume > 100 {
		return nil, ErrInvalidVolume
	}
	if (p.QuietHoursStart == nil) != (p.QuietHoursEnd == nil) {
		return nil, ErrInvalidQuietHours
	}
	if p.QuietHoursStart != nil && (!hhmm.MatchString(*p.QuietHoursStart) || !hhmm.MatchString(*p.QuietHoursEnd)) {
		return nil, ErrInvalidQuietHours
	}

	p.UserID = userID
	if err := repo.SavePreference(ctx, s.DB, &p); err != nil {
		return nil, err
	}
	return repo.GetPreference(ctx, s.DB, userID)
}

// WantsKind reports whether userID accepts notifications of kind k. Lookup
// failures default to sending.
func (s *UserService) WantsKind(ctx context.Context, userID uint64, k domain.Kind) bool {
	p, err := s.Preference(ctx, userID)
	if err != nil {
		return true
	}
	return p.ShouldSend(k)
}
