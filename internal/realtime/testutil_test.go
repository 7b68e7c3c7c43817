package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/tbourn/go-notify-backend/internal/auth"
	"github.com/tbourn/go-notify-backend/internal/domain"
)

// recorder is a Member that keeps every frame it accepts.
type recorder struct {
	id     string
	refuse bool

	mu     sync.Mutex
	frames [][]byte
}

func (r *recorder) ID() string { return r.id }

func (r *recorder) Deliver(frame []byte) bool {
	if r.refuse {
		return false
	}
	r.mu.Lock()
	r.frames = append(r.frames, frame)
	r.mu.Unlock()
	return true
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func (r *recorder) last() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) == 0 {
		return nil
	}
	return r.frames[len(r.frames)-1]
}

// stubAuth maps raw tokens to principals.
type stubAuth map[string]auth.Principal

func (s stubAuth) Authenticate(_ context.Context, token string) auth.Principal {
	if p, ok := s[token]; ok {
		return p
	}
	return auth.Anonymous
}

var testPrincipals = stubAuth{
	"alice": {UserID: 1, Username: "alice", Authenticated: true},
	"boss":  {UserID: 2, Username: "boss", Staff: true, Authenticated: true},
}

// memInbox is an in-memory Inbox.
type memInbox struct {
	mu    sync.Mutex
	items []domain.Notification
	err   error
}

func (m *memInbox) add(userID uint64, title string, read bool) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uint64(len(m.items) + 1)
	uid := userID
	m.items = append(m.items, domain.Notification{
		ID:          id,
		RecipientID: &uid,
		Kind:        domain.KindSystem,
		Title:       title,
		Priority:    domain.PriorityMedium,
		Read:        read,
		CreatedAt:   time.Date(2026, 1, 1, 0, 0, int(id), 0, time.UTC),
	})
	return id
}

func (m *memInbox) owned(userID uint64) []domain.Notification {
	var out []domain.Notification
	for _, n := range m.items {
		if n.RecipientID != nil && *n.RecipientID == userID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (m *memInbox) UnreadCount(_ context.Context, userID uint64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	var n int64
	for _, it := range m.owned(userID) {
		if !it.Read {
			n++
		}
	}
	return n, nil
}

func (m *memInbox) ListUnread(_ context.Context, userID uint64, limit int) ([]domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.Notification
	for _, it := range m.owned(userID) {
		if !it.Read && (limit <= 0 || len(out) < limit) {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *memInbox) ListPage(_ context.Context, userID uint64, page, limit int) ([]domain.Notification, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, 0, m.err
	}
	all := m.owned(userID)
	start := (page - 1) * limit
	if start > len(all) {
		start = len(all)
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], int64(len(all)), nil
}

func (m *memInbox) MarkAsRead(_ context.Context, userID, id uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	for i := range m.items {
		n := &m.items[i]
		if n.ID != id || n.RecipientID == nil || *n.RecipientID != userID {
			continue
		}
		if n.Read {
			return false, nil
		}
		n.Read = true
		return true, nil
	}
	return false, domain.ErrNotificationNotFound
}

func (m *memInbox) MarkAllAsRead(_ context.Context, userID uint64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	var n int64
	for i := range m.items {
		it := &m.items[i]
		if it.RecipientID != nil && *it.RecipientID == userID && !it.Read {
			it.Read = true
			n++
		}
	}
	return n, nil
}

var errInboxDown = errors.New("inbox unavailable")

// nextFrame pops the next queued frame or fails after a short wait.
func nextFrame(t *testing.T, s *Session) map[string]any {
	t.Helper()
	select {
	case b := <-s.Outbound():
		var m map[string]any
		if err := json.Unmarshal(b, &m); err != nil {
			t.Fatalf("frame is not JSON: %v (%s)", err, b)
		}
		return m
	case <-time.After(time.Second):
		t.Fatalf("no frame queued")
		return nil
	}
}

// assertQuiet fails if s has a queued frame.
func assertQuiet(t *testing.T, s *Session) {
	t.Helper()
	select {
	case b := <-s.Outbound():
		t.Fatalf("unexpected frame: %s", b)
	default:
	}
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}
