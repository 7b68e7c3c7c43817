package realtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tbourn/go-notify-backend/internal/auth"
)

func TestSession_DeliverDropsNewestWhenFull(t *testing.T) {
	s := newSession(auth.Anonymous, 2, nil, nil)
	base := testutil.ToFloat64(framesDropped.WithLabelValues("queue_full"))

	if !s.Deliver([]byte("1")) || !s.Deliver([]byte("2")) {
		t.Fatalf("queue should accept two frames")
	}
	if s.Deliver([]byte("3")) {
		t.Fatalf("third frame should be dropped")
	}
	if s.Dropped() != 1 {
		t.Fatalf("dropped = %d", s.Dropped())
	}
	if got := testutil.ToFloat64(framesDropped.WithLabelValues("queue_full")) - base; got != 1 {
		t.Fatalf("queue_full counter delta = %v", got)
	}

	// FIFO, and the oldest frames survived.
	if got := string(<-s.Outbound()); got != "1" {
		t.Fatalf("first = %q", got)
	}
	if got := string(<-s.Outbound()); got != "2" {
		t.Fatalf("second = %q", got)
	}
}

func TestSession_DeliverAfterCloseRejected(t *testing.T) {
	s := newSession(auth.Anonymous, 4, nil, nil)
	s.Close()
	if s.Deliver([]byte("x")) {
		t.Fatalf("closed session accepted a frame")
	}
	if err := s.reply(context.Background(), []byte("x")); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("reply after close: %v", err)
	}
}

func TestSession_ReplyWaitsForSpace(t *testing.T) {
	s := newSession(auth.Anonymous, 1, nil, nil)
	s.Deliver([]byte("push"))

	errc := make(chan error, 1)
	go func() { errc <- s.reply(context.Background(), []byte("reply")) }()

	select {
	case err := <-errc:
		t.Fatalf("reply returned before space was available: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	<-s.Outbound()
	if err := <-errc; err != nil {
		t.Fatalf("reply: %v", err)
	}
	if got := string(<-s.Outbound()); got != "reply" {
		t.Fatalf("got %q", got)
	}
}

func TestSession_ReplyHonorsContext(t *testing.T) {
	s := newSession(auth.Anonymous, 1, nil, nil)
	s.Deliver([]byte("push"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := s.reply(ctx, []byte("reply")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline exceeded, got %v", err)
	}
}

func TestSession_LifecycleAndSingleCleanup(t *testing.T) {
	calls := 0
	s := newSession(auth.Anonymous, 1, nil, func(*Session) { calls++ })

	if s.State() != StateConnecting {
		t.Fatalf("initial state = %s", s.State())
	}
	if !s.markOpen() {
		t.Fatalf("markOpen failed")
	}
	if s.markOpen() {
		t.Fatalf("markOpen must only succeed once")
	}
	if s.State() != StateOpen {
		t.Fatalf("state = %s", s.State())
	}

	s.Close()
	s.Close()
	if calls != 1 {
		t.Fatalf("cleanup ran %d times", calls)
	}
	if s.State() != StateClosed {
		t.Fatalf("state = %s", s.State())
	}
	select {
	case <-s.Done():
	default:
		t.Fatalf("done not closed")
	}
}

func TestSession_MarkOpenAfterCloseFails(t *testing.T) {
	s := newSession(auth.Anonymous, 1, nil, nil)
	s.Close()
	if s.markOpen() {
		t.Fatalf("closed session reopened")
	}
}

func TestState_String(t *testing.T) {
	for st, want := range map[State]string{
		StateConnecting: "connecting",
		StateOpen:       "open",
		StateClosing:    "closing",
		StateClosed:     "closed",
		State(99):       "unknown",
	} {
		if st.String() != want {
			t.Fatalf("%d: %q", st, st.String())
		}
	}
}
