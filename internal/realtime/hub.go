package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/tbourn/go-notify-backend/internal/auth"
	"github.com/tbourn/go-notify-backend/internal/domain"
	"github.com/tbourn/go-notify-backend/internal/utils"
)

// Authenticator resolves the handshake token. It never fails; unresolvable
// tokens yield auth.Anonymous.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) auth.Principal
}

// Inbox is the slice of the notification store a session needs. Every method
// is scoped to the calling user.
type Inbox interface {
	UnreadCount(ctx context.Context, userID uint64) (int64, error)
	ListUnread(ctx context.Context, userID uint64, limit int) ([]domain.Notification, error)
	ListPage(ctx context.Context, userID uint64, page, limit int) ([]domain.Notification, int64, error)
	MarkAsRead(ctx context.Context, userID, id uint64) (bool, error)
	MarkAllAsRead(ctx context.Context, userID uint64) (int64, error)
}

// HubConfig bounds per-session resources.
type HubConfig struct {
	QueueSize     int
	InitialWindow int
	InboundRPS    float64
	InboundBurst  int
}

// HandshakeParams carries what the transport extracted from the upgrade
// request.
type HandshakeParams struct {
	Token      string
	RemoteAddr string
}

// Hub owns session lifecycle and the inbound control protocol.
type Hub struct {
	registry *Registry
	auth     Authenticator
	inbox    Inbox
	cfg      HubConfig
	now      func() time.Time

	mu       sync.Mutex
	sessions map[*Session]struct{}
}

// NewHub wires a Hub. Zero config fields fall back to defaults.
func NewHub(reg *Registry, a Authenticator, inbox Inbox, cfg HubConfig) *Hub {
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 64
	}
	if cfg.InitialWindow <= 0 {
		cfg.InitialWindow = 20
	}
	if cfg.InboundRPS <= 0 {
		cfg.InboundRPS = 10
	}
	if cfg.InboundBurst < 1 {
		cfg.InboundBurst = 20
	}
	return &Hub{
		registry: reg,
		auth:     a,
		inbox:    inbox,
		cfg:      cfg,
		now:      time.Now,
		sessions: make(map[*Session]struct{}),
	}
}

// Registry exposes the hub's group registry.
func (h *Hub) Registry() *Registry { return h.registry }

// Accept authenticates the handshake and creates a session in the
// Connecting state. The transport starts draining Outbound before calling
// OnConnect.
func (h *Hub) Accept(ctx context.Context, params HandshakeParams) *Session {
	p := h.auth.Authenticate(ctx, params.Token)
	lim := rate.NewLimiter(rate.Limit(h.cfg.InboundRPS), h.cfg.InboundBurst)
	s := newSession(p, h.cfg.QueueSize, lim, h.cleanup)

	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.mu.Unlock()
	return s
}

// OnConnect opens s: it sends connection_established, joins the session's
// groups, then sends the initial unread window for authenticated principals.
// A session closed while joining is removed again before OnConnect returns.
func (h *Hub) OnConnect(ctx context.Context, s *Session) error {
	if !s.markOpen() {
		return ErrSessionClosed
	}
	sessionsActive.Inc()
	p := s.Principal()

	if err := h.send(ctx, s, connectionEstablished{
		Type:    TypeConnectionEstablished,
		Message: "Connected to the notification service",
		User:    p.Username,
	}); err != nil {
		return err
	}

	for _, g := range groupsFor(p) {
		h.registry.Join(g, s)
	}
	// Close marks the state before its LeaveAll, so either that LeaveAll
	// sees these joins or this check sees the close.
	if s.State() != StateOpen {
		h.registry.LeaveAll(s)
		return ErrSessionClosed
	}

	lg := log.With().Str("session_id", s.ID()).Uint64("user_id", p.UserID).Logger()
	if !p.Authenticated {
		lg.Info().Msg("anonymous session connected")
		return nil
	}
	lg.Info().Str("username", p.Username).Bool("staff", p.Staff).Msg("session connected")

	items, err := h.inbox.ListUnread(ctx, p.UserID, h.cfg.InitialWindow)
	if err != nil {
		lg.Error().Err(err).Msg("load initial notifications")
		return h.send(ctx, s, errorFrame{Type: TypeError, Message: "failed to load notifications"})
	}
	count, err := h.inbox.UnreadCount(ctx, p.UserID)
	if err != nil {
		lg.Error().Err(err).Msg("count unread notifications")
		return h.send(ctx, s, errorFrame{Type: TypeError, Message: "failed to load notifications"})
	}
	return h.send(ctx, s, initialNotifications{
		Type:          TypeInitialNotifications,
		Notifications: domain.Views(items, h.now()),
		UnreadCount:   count,
	})
}

// Connect is Accept followed by OnConnect, for callers that drain the
// session queue themselves afterwards.
func (h *Hub) Connect(ctx context.Context, params HandshakeParams) (*Session, error) {
	s := h.Accept(ctx, params)
	if err := h.OnConnect(ctx, s); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// OnDisconnect closes s and removes it from every group exactly once.
func (h *Hub) OnDisconnect(s *Session, reason string) {
	if s.State() >= StateClosing {
		return
	}
	log.Info().
		Str("session_id", s.ID()).
		Uint64("user_id", s.Principal().UserID).
		Str("reason", reason).
		Msg("session disconnected")
	s.Close()
}

// CloseAll disconnects every live session, used on shutdown.
func (h *Hub) CloseAll(reason string) {
	h.mu.Lock()
	all := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		all = append(all, s)
	}
	h.mu.Unlock()
	for _, s := range all {
		h.OnDisconnect(s, reason)
	}
}

// SessionCount returns the number of sessions not yet closed.
func (h *Hub) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

func (h *Hub) cleanup(s *Session) {
	h.registry.LeaveAll(s)
	h.mu.Lock()
	delete(h.sessions, s)
	h.mu.Unlock()
	if s.opened.Load() {
		sessionsActive.Dec()
	}
}

// OnMessage handles one inbound frame. Malformed input is answered with an
// error frame; requests that need authentication are ignored for anonymous
// sessions. The session stays open in every case.
func (h *Hub) OnMessage(ctx context.Context, s *Session, raw []byte) {
	if s.State() != StateOpen {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Str("session_id", s.ID()).Msg("panic handling inbound message")
			_ = s.reply(ctx, encodeError("internal error"))
		}
	}()

	if !s.allow() {
		inboundMessages.WithLabelValues("any", "rate_limited").Inc()
		_ = s.reply(ctx, encodeError("rate limit exceeded"))
		return
	}

	var msg Inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		inboundMessages.WithLabelValues("invalid", "malformed").Inc()
		_ = s.reply(ctx, encodeError("invalid message"))
		return
	}

	switch msg.Type {
	case TypePing:
		h.observe(msg.Type, h.send(ctx, s, pong{Type: TypePong, Timestamp: msg.Timestamp}))
	case TypeMarkAsRead, TypeMarkAllAsRead, TypeGetUnreadCount, TypeGetPage:
		if !s.Principal().Authenticated {
			inboundMessages.WithLabelValues(msg.Type, "ignored").Inc()
			return
		}
		h.observe(msg.Type, h.handleAuthed(ctx, s, msg))
	case "":
		inboundMessages.WithLabelValues("invalid", "malformed").Inc()
		_ = s.reply(ctx, encodeError("missing message type"))
	default:
		inboundMessages.WithLabelValues("unknown", "malformed").Inc()
		_ = s.reply(ctx, encodeError(fmt.Sprintf("unknown message type %q", msg.Type)))
	}
}

func (h *Hub) handleAuthed(ctx context.Context, s *Session, msg Inbound) error {
	uid := s.Principal().UserID

	switch msg.Type {
	case TypeMarkAsRead:
		if msg.NotificationID == nil {
			return nil
		}
		// Missing and foreign ids are indistinguishable and silently ignored.
		if _, err := h.inbox.MarkAsRead(ctx, uid, *msg.NotificationID); err != nil && !errors.Is(err, domain.ErrNotificationNotFound) {
			return h.internal(ctx, s, "mark notification as read", err)
		}
		return nil

	case TypeMarkAllAsRead:
		if _, err := h.inbox.MarkAllAsRead(ctx, uid); err != nil {
			return h.internal(ctx, s, "mark all notifications as read", err)
		}
		return nil

	case TypeGetUnreadCount:
		n, err := h.inbox.UnreadCount(ctx, uid)
		if err != nil {
			return h.internal(ctx, s, "count unread notifications", err)
		}
		return h.send(ctx, s, unreadCount{Type: TypeUnreadCount, Count: n})

	case TypeGetPage:
		page, limit := 1, 20
		if msg.Page != nil {
			page = *msg.Page
		}
		if msg.Limit != nil {
			limit = *msg.Limit
		}
		if page < 1 || limit < 1 {
			return s.reply(ctx, encodeError("page and limit must be positive"))
		}
		items, total, err := h.inbox.ListPage(ctx, uid, page, limit)
		if err != nil {
			return h.internal(ctx, s, "list notifications", err)
		}
		return h.send(ctx, s, notificationsPage{
			Type:          TypeNotificationsPage,
			Notifications: domain.Views(items, h.now()),
			Page:          page,
			Limit:         limit,
			Total:         total,
			HasMore:       utils.HasMore(page, limit, total),
		})
	}
	return nil
}

func (h *Hub) internal(ctx context.Context, s *Session, op string, err error) error {
	log.Error().Err(err).Str("session_id", s.ID()).Str("op", op).Msg("inbound request failed")
	_ = s.reply(ctx, encodeError("error processing message"))
	return err
}

func (h *Hub) send(ctx context.Context, s *Session, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.reply(ctx, b)
}

func (h *Hub) observe(typ string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	inboundMessages.WithLabelValues(typ, outcome).Inc()
}

// groupsFor returns the groups a principal joins on connect.
func groupsFor(p auth.Principal) []string {
	if !p.Authenticated {
		return []string{GroupPublic}
	}
	gs := []string{UserGroup(p.UserID)}
	if p.Staff {
		gs = append(gs, GroupAdmins)
	}
	return gs
}
