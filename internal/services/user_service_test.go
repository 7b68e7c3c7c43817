package services

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/go-notify-backend/internal/domain"
	"github.com/tbourn/go-notify-backend/internal/repo"
)

func strptr(s string) *string { return &s }

func seedUsers(t *testing.T, svc *UserService) {
	t.Helper()
	for _, u := range []domain.User{
		{ID: 1, Username: "alice", IsActive: true},
		{ID: 2, Username: "boss", IsStaff: true, IsActive: true},
		{ID: 3, Username: "root", IsSuperuser: true, IsActive: true},
		{ID: 4, Username: "gone", IsStaff: true, IsActive: false},
	} {
		u := u
		if err := repo.CreateUser(context.Background(), svc.DB, &u); err != nil {
			t.Fatal(err)
		}
	}
}

func TestUserService_Directory(t *testing.T) {
	svc := &UserService{DB: newSvcDB(t)}
	seedUsers(t, svc)
	ctx := context.Background()

	u, err := svc.GetUser(ctx, 2)
	if err != nil || u.Username != "boss" {
		t.Fatalf("get: %v %v", u, err)
	}
	if _, err := svc.GetUser(ctx, 99); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("missing user: %v", err)
	}

	staff, err := svc.ListStaff(ctx)
	if err != nil || len(staff) != 2 || staff[0].ID != 2 || staff[1].ID != 3 {
		t.Fatalf("staff = %v, %v", staff, err)
	}
	active, err := svc.ListActive(ctx)
	if err != nil || len(active) != 3 {
		t.Fatalf("active = %v, %v", active, err)
	}
}

func TestUserService_PreferenceDefaultsAndSave(t *testing.T) {
	svc := &UserService{DB: newSvcDB(t)}
	ctx := context.Background()

	p, err := svc.Preference(ctx, 1)
	if err != nil || !p.Promotions || p.SoundVolume != 50 {
		t.Fatalf("defaults = %+v, %v", p, err)
	}

	upd := *p
	upd.UserID = 777 // ignored
	upd.Promotions = false
	upd.SoundVolume = 0
	upd.QuietHoursStart = strptr("22:00")
	upd.QuietHoursEnd = strptr("07:30")
	saved, err := svc.SavePreference(ctx, 1, upd)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.UserID != 1 || saved.Promotions || saved.SoundVolume != 0 || *saved.QuietHoursEnd != "07:30" {
		t.Fatalf("saved = %+v", saved)
	}

	if svc.WantsKind(ctx, 1, domain.KindPromotion) {
		t.Fatalf("promotions disabled but WantsKind = true")
	}
	if !svc.WantsKind(ctx, 1, domain.KindOrderStatus) {
		t.Fatalf("order updates should be on")
	}
	if !svc.WantsKind(ctx, 2, domain.KindPromotion) {
		t.Fatalf("user without row should get defaults")
	}
}

func TestUserService_SavePreferenceValidation(t *testing.T) {
	svc := &UserService{DB: newSvcDB(t)}
	base := domain.DefaultPreference(1)

	cases := []struct {
		name string
		mod  func(p *domain.Preference)
		want error
	}{
		{"volume high", func(p *domain.Preference) { p.SoundVolume = 101 }, ErrInvalidVolume},
		{"volume negative", func(p *domain.Preference) { p.SoundVolume = -1 }, ErrInvalidVolume},
		{"only start", func(p *domain.Preference) { p.QuietHoursStart = strptr("22:00") }, ErrInvalidQuietHours},
		{"bad format", func(p *domain.Preference) {
			p.QuietHoursStart = strptr("25:00")
			p.QuietHoursEnd = strptr("07:00")
		}, ErrInvalidQuietHours},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := base
			tc.mod(&p)
			if _, err := svc.SavePreference(context.Background(), 1, p); !errors.Is(err, tc.want) {
				t.Fatalf("want %v, got %v", tc.want, err)
			}
		})
	}
}
