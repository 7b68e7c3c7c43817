package realtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/tbourn/go-notify-backend/internal/auth"
)

// State is the lifecycle stage of a Session.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// ErrSessionClosed is returned when writing to a session that has closed.
var ErrSessionClosed = errors.New("session closed")

// Session is one live client connection. The principal is fixed at creation.
// Outbound frames go through a bounded FIFO queue drained by the transport
// writer; the queue channel is never closed, Done signals shutdown instead.
type Session struct {
	id        string
	principal auth.Principal
	out       chan []byte
	done      chan struct{}
	state     atomic.Int32
	opened    atomic.Bool
	closeOnce sync.Once
	onClose   func(*Session)
	limiter   *rate.Limiter
	dropped   atomic.Uint64
}

func newSession(p auth.Principal, queueSize int, limiter *rate.Limiter, onClose func(*Session)) *Session {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Session{
		id:        uuid.NewString(),
		principal: p,
		out:       make(chan []byte, queueSize),
		done:      make(chan struct{}),
		onClose:   onClose,
		limiter:   limiter,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Principal returns the identity bound at handshake.
func (s *Session) Principal() auth.Principal { return s.principal }

// State returns the current lifecycle stage.
func (s *Session) State() State { return State(s.state.Load()) }

// Outbound is the queue the transport writer drains.
func (s *Session) Outbound() <-chan []byte { return s.out }

// Done is closed once the session starts closing.
func (s *Session) Done() <-chan struct{} { return s.done }

// Dropped returns how many pushed frames were discarded.
func (s *Session) Dropped() uint64 { return s.dropped.Load() }

// Deliver implements Member. It never blocks: when the queue is full the new
// frame is dropped, and frames pushed after close are rejected.
func (s *Session) Deliver(frame []byte) bool {
	select {
	case <-s.done:
		framesDropped.WithLabelValues("closed").Inc()
		return false
	default:
	}
	select {
	case s.out <- frame:
		return true
	default:
		s.dropped.Add(1)
		framesDropped.WithLabelValues("queue_full").Inc()
		return false
	}
}

// reply enqueues a response to the session's own request. Unlike Deliver it
// waits for queue space, so replies are not lost behind a burst of pushes.
func (s *Session) reply(ctx context.Context, frame []byte) error {
	select {
	case s.out <- frame:
		return nil
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// allow applies the inbound rate limit.
func (s *Session) allow() bool {
	return s.limiter == nil || s.limiter.Allow()
}

func (s *Session) markOpen() bool {
	if !s.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen)) {
		return false
	}
	s.opened.Store(true)
	return true
}

// Close transitions the session to Closed. It runs cleanup exactly once no
// matter how many close paths race.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosing))
		close(s.done)
		if s.onClose != nil {
			s.onClose(s)
		}
		s.state.Store(int32(StateClosed))
	})
}
