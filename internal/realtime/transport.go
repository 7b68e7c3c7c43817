package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Conn is the subset of *websocket.Conn the transport uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

// TransportConfig holds WebSocket keepalive and size limits.
type TransportConfig struct {
	WriteTimeout    time.Duration
	PongWait        time.Duration
	PingInterval    time.Duration
	MaxMessageBytes int64
}

func (c TransportConfig) withDefaults() TransportConfig {
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongWait {
		c.PingInterval = c.PongWait * 9 / 10
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 64 << 10
	}
	return c
}

// NewUpgrader returns an upgrader that accepts the given origins. An empty
// list accepts any origin.
func NewUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			_, ok := allowed[strings.ToLower(u.Scheme+"://"+u.Host)]
			return ok
		},
	}
}

// Serve runs a session over conn until either side closes. It blocks.
//
// The writer goroutine is the only one writing to conn; the calling goroutine
// reads inbound frames and hands them to the hub in arrival order.
func Serve(ctx context.Context, hub *Hub, conn Conn, params HandshakeParams, cfg TransportConfig) {
	cfg = cfg.withDefaults()
	s := hub.Accept(ctx, params)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		writeLoop(hub, s, conn, cfg)
	}()

	var reason string
	if err := hub.OnConnect(ctx, s); err != nil {
		reason = "connect failed: " + err.Error()
	} else {
		reason = readLoop(ctx, hub, s, conn, cfg)
	}

	hub.OnDisconnect(s, reason)
	wg.Wait()
	_ = conn.Close()
}

func readLoop(ctx context.Context, hub *Hub, s *Session, conn Conn, cfg TransportConfig) string {
	conn.SetReadLimit(cfg.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return closeReason(err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		hub.OnMessage(ctx, s, data)
		if s.State() != StateOpen {
			return "session closed"
		}
	}
}

func writeLoop(hub *Hub, s *Session, conn Conn, cfg TransportConfig) {
	ticker := time.NewTicker(cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-s.Outbound():
			_ = conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Debug().Err(err).Str("session_id", s.ID()).Msg("websocket write failed")
				hub.OnDisconnect(s, "write failed")
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(cfg.WriteTimeout)); err != nil {
				hub.OnDisconnect(s, "ping failed")
				_ = conn.Close()
				return
			}
		case <-s.Done():
			flush(s, conn, cfg)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(cfg.WriteTimeout))
			_ = conn.Close()
			return
		}
	}
}

// flush writes frames still queued at close time without waiting for more.
func flush(s *Session, conn Conn, cfg TransportConfig) {
	for {
		select {
		case frame := <-s.Outbound():
			_ = conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func closeReason(err error) string {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return "client closed (" + strconv.Itoa(ce.Code) + ")"
	}
	return err.Error()
}
