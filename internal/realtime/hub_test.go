package realtime

import (
	"context"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
)

func newTestHub(inbox *memInbox, cfg HubConfig) *Hub {
	return NewHub(NewRegistry(), testPrincipals, inbox, cfg)
}

func connect(t *testing.T, h *Hub, token string) *Session {
	t.Helper()
	s, err := h.Connect(context.Background(), HandshakeParams{Token: token})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	return s
}

func send(h *Hub, s *Session, raw string) {
	h.OnMessage(context.Background(), s, []byte(raw))
}

func groups(h *Hub, s *Session) string {
	gs := h.Registry().GroupsOf(s)
	sort.Strings(gs)
	return strings.Join(gs, ",")
}

func TestHub_AnonymousConnect(t *testing.T) {
	h := newTestHub(&memInbox{}, HubConfig{})
	s := connect(t, h, "")

	f := nextFrame(t, s)
	if f["type"] != TypeConnectionEstablished || f["user"] != "anonymous" {
		t.Fatalf("welcome = %v", f)
	}
	if f["message"] == "" {
		t.Fatalf("welcome without message")
	}
	assertQuiet(t, s)

	if got := groups(h, s); got != GroupPublic {
		t.Fatalf("groups = %q", got)
	}
	if s.State() != StateOpen {
		t.Fatalf("state = %s", s.State())
	}
}

func TestHub_AuthenticatedConnectSendsInitialWindow(t *testing.T) {
	inbox := &memInbox{}
	inbox.add(1, "old", false)
	inbox.add(1, "seen", true)
	inbox.add(1, "newer", false)
	inbox.add(1, "newest", false)
	inbox.add(9, "someone else", false)

	h := newTestHub(inbox, HubConfig{InitialWindow: 2})
	s := connect(t, h, "alice")

	if f := nextFrame(t, s); f["type"] != TypeConnectionEstablished || f["user"] != "alice" {
		t.Fatalf("welcome = %v", f)
	}
	f := nextFrame(t, s)
	if f["type"] != TypeInitialNotifications {
		t.Fatalf("second frame = %v", f)
	}
	if f["unread_count"] != float64(3) {
		t.Fatalf("unread_count = %v", f["unread_count"])
	}
	items := f["notifications"].([]any)
	if len(items) != 2 {
		t.Fatalf("window size = %d", len(items))
	}
	if first := items[0].(map[string]any); first["title"] != "newest" || first["read"] != false {
		t.Fatalf("first item = %v", first)
	}
	if got := groups(h, s); got != "user:1" {
		t.Fatalf("groups = %q", got)
	}
}

func TestHub_StaffJoinsAdmins(t *testing.T) {
	h := newTestHub(&memInbox{}, HubConfig{})
	s := connect(t, h, "boss")
	if got := groups(h, s); got != "admins,user:2" {
		t.Fatalf("groups = %q", got)
	}
}

func TestHub_PingEchoesTimestamp(t *testing.T) {
	h := newTestHub(&memInbox{}, HubConfig{})
	s := connect(t, h, "")
	nextFrame(t, s)

	send(h, s, `{"type":"ping","timestamp":1234567}`)
	f := nextFrame(t, s)
	if f["type"] != TypePong || f["timestamp"] != float64(1234567) {
		t.Fatalf("pong = %v", f)
	}

	send(h, s, `{"type":"ping","timestamp":"2026-10-15T10:00:00Z"}`)
	if f := nextFrame(t, s); f["timestamp"] != "2026-10-15T10:00:00Z" {
		t.Fatalf("string timestamp not echoed: %v", f)
	}
}

func TestHub_MarkAsReadThenCount(t *testing.T) {
	inbox := &memInbox{}
	a := inbox.add(1, "a", false)
	inbox.add(1, "b", false)
	foreign := inbox.add(7, "not yours", false)

	h := newTestHub(inbox, HubConfig{})
	s := connect(t, h, "alice")
	nextFrame(t, s)
	nextFrame(t, s)

	send(h, s, `{"type":"mark_as_read","notification_id":`+strconv.FormatUint(a, 10)+`}`)
	assertQuiet(t, s)
	send(h, s, `{"type":"get_unread_count"}`)
	if f := nextFrame(t, s); f["type"] != TypeUnreadCount || f["count"] != float64(1) {
		t.Fatalf("count = %v", f)
	}

	// Foreign, unknown and missing ids are ignored without a reply.
	send(h, s, `{"type":"mark_as_read","notification_id":`+strconv.FormatUint(foreign, 10)+`}`)
	send(h, s, `{"type":"mark_as_read","notification_id":9999}`)
	send(h, s, `{"type":"mark_as_read"}`)
	assertQuiet(t, s)

	inbox.mu.Lock()
	stillUnread := !inbox.items[foreign-1].Read
	inbox.mu.Unlock()
	if !stillUnread {
		t.Fatalf("foreign notification was modified")
	}

	send(h, s, `{"type":"mark_all_as_read"}`)
	send(h, s, `{"type":"get_unread_count"}`)
	if f := nextFrame(t, s); f["count"] != float64(0) {
		t.Fatalf("count after mark all = %v", f)
	}
}

func TestHub_GetNotificationsPaging(t *testing.T) {
	inbox := &memInbox{}
	for i := 0; i < 5; i++ {
		inbox.add(1, "n", i%2 == 0)
	}
	h := newTestHub(inbox, HubConfig{})
	s := connect(t, h, "alice")
	nextFrame(t, s)
	nextFrame(t, s)

	send(h, s, `{"type":"get_notifications","page":1,"limit":2}`)
	f := nextFrame(t, s)
	if f["type"] != TypeNotificationsPage || f["total"] != float64(5) || f["has_more"] != true {
		t.Fatalf("page 1 = %v", f)
	}
	if n := len(f["notifications"].([]any)); n != 2 {
		t.Fatalf("page 1 size = %d", n)
	}

	send(h, s, `{"type":"get_notifications","page":3,"limit":2}`)
	f = nextFrame(t, s)
	if f["has_more"] != false || len(f["notifications"].([]any)) != 1 {
		t.Fatalf("page 3 = %v", f)
	}

	send(h, s, `{"type":"get_notifications","limit":150}`)
	f = nextFrame(t, s)
	if f["limit"] != float64(150) || f["page"] != float64(1) || len(f["notifications"].([]any)) != 5 {
		t.Fatalf("large limit = %v", f)
	}

	send(h, s, `{"type":"get_notifications","page":0}`)
	if f := nextFrame(t, s); f["type"] != TypeError {
		t.Fatalf("page 0 should be rejected: %v", f)
	}
	if s.State() != StateOpen {
		t.Fatalf("session closed after bad request")
	}
}

func TestHub_GetNotificationsPageSizes(t *testing.T) {
	const total = 7
	inbox := &memInbox{}
	for i := 0; i < total; i++ {
		inbox.add(1, "n", false)
	}
	h := newTestHub(inbox, HubConfig{})
	s := connect(t, h, "alice")
	nextFrame(t, s)
	nextFrame(t, s)

	for _, pl := range [][2]int{{1, 1}, {1, 7}, {1, 200}, {2, 3}, {3, 3}, {4, 3}, {2, 7}} {
		p, l := pl[0], pl[1]
		want := max(0, min(l, total-(p-1)*l))
		send(h, s, `{"type":"get_notifications","page":`+strconv.Itoa(p)+`,"limit":`+strconv.Itoa(l)+`}`)
		f := nextFrame(t, s)
		if got := len(f["notifications"].([]any)); got != want {
			t.Fatalf("page=%d limit=%d: %d items, want %d", p, l, got, want)
		}
		if hasMore := (p-1)*l+l < total; f["has_more"] != hasMore {
			t.Fatalf("page=%d limit=%d: has_more=%v", p, l, f["has_more"])
		}
	}
}

func TestHub_AnonymousAuthOnlyMessagesIgnored(t *testing.T) {
	inbox := &memInbox{}
	inbox.add(1, "alice's", false)
	h := newTestHub(inbox, HubConfig{})
	s := connect(t, h, "")
	nextFrame(t, s)

	for _, m := range []string{
		`{"type":"get_unread_count"}`,
		`{"type":"mark_as_read","notification_id":1}`,
		`{"type":"mark_all_as_read"}`,
		`{"type":"get_notifications"}`,
	} {
		send(h, s, m)
	}
	assertQuiet(t, s)
	if inbox.items[0].Read {
		t.Fatalf("anonymous session modified a notification")
	}
}

func TestHub_MalformedAndUnknownMessages(t *testing.T) {
	h := newTestHub(&memInbox{}, HubConfig{})
	s := connect(t, h, "alice")
	nextFrame(t, s)
	nextFrame(t, s)

	for _, raw := range []string{`{not json`, `{}`, `{"type":"explode"}`, `{"type":"mark_as_read","notification_id":"abc"}`} {
		send(h, s, raw)
		if f := nextFrame(t, s); f["type"] != TypeError || f["message"] == "" {
			t.Fatalf("%s: got %v", raw, f)
		}
	}
	if s.State() != StateOpen {
		t.Fatalf("session closed after malformed input")
	}

	send(h, s, `{"type":"ping"}`)
	if f := nextFrame(t, s); f["type"] != TypePong {
		t.Fatalf("session unusable after errors: %v", f)
	}
}

func TestHub_InboxFailureReportsError(t *testing.T) {
	inbox := &memInbox{}
	h := newTestHub(inbox, HubConfig{})
	s := connect(t, h, "alice")
	nextFrame(t, s)
	nextFrame(t, s)

	inbox.mu.Lock()
	inbox.err = errInboxDown
	inbox.mu.Unlock()

	send(h, s, `{"type":"get_unread_count"}`)
	if f := nextFrame(t, s); f["type"] != TypeError || f["message"] != "error processing message" {
		t.Fatalf("got %v", f)
	}
}

func TestHub_InboundRateLimit(t *testing.T) {
	h := newTestHub(&memInbox{}, HubConfig{InboundRPS: 0.001, InboundBurst: 1})
	s := connect(t, h, "")
	nextFrame(t, s)

	send(h, s, `{"type":"ping"}`)
	if f := nextFrame(t, s); f["type"] != TypePong {
		t.Fatalf("first ping = %v", f)
	}
	send(h, s, `{"type":"ping"}`)
	if f := nextFrame(t, s); f["type"] != TypeError || f["message"] != "rate limit exceeded" {
		t.Fatalf("second ping = %v", f)
	}
}

func TestHub_DisconnectRemovesFromGroups(t *testing.T) {
	h := newTestHub(&memInbox{}, HubConfig{})
	s := connect(t, h, "boss")
	other := connect(t, h, "alice")

	if h.SessionCount() != 2 {
		t.Fatalf("sessions = %d", h.SessionCount())
	}

	h.OnDisconnect(s, "test")
	h.OnDisconnect(s, "again")

	if gs := h.Registry().GroupsOf(s); len(gs) != 0 {
		t.Fatalf("still in %v", gs)
	}
	if len(h.Registry().MembersOf(GroupAdmins)) != 0 {
		t.Fatalf("admins not empty")
	}
	if s.State() != StateClosed || s.Deliver([]byte("x")) {
		t.Fatalf("closed session still accepts frames")
	}
	if h.SessionCount() != 1 {
		t.Fatalf("sessions = %d", h.SessionCount())
	}

	// Messages after close are ignored.
	send(h, s, `{"type":"ping"}`)

	h.CloseAll("shutdown")
	if other.State() != StateClosed || h.SessionCount() != 0 {
		t.Fatalf("CloseAll left sessions open")
	}
	if h.Registry().GroupCount() != 0 {
		t.Fatalf("groups left: %d", h.Registry().GroupCount())
	}
}

func TestHub_OnConnectAfterCloseFails(t *testing.T) {
	h := newTestHub(&memInbox{}, HubConfig{})
	s := h.Accept(context.Background(), HandshakeParams{})
	h.OnDisconnect(s, "gone before open")
	if err := h.OnConnect(context.Background(), s); err != ErrSessionClosed {
		t.Fatalf("want ErrSessionClosed, got %v", err)
	}
	if gs := h.Registry().GroupsOf(s); len(gs) != 0 {
		t.Fatalf("closed session joined %v", gs)
	}
}

func TestHub_CloseDuringConnectLeavesNoGroups(t *testing.T) {
	h := newTestHub(&memInbox{}, HubConfig{})
	for i := 0; i < 2000; i++ {
		s := h.Accept(context.Background(), HandshakeParams{Token: "boss"})
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for s.State() == StateConnecting {
				runtime.Gosched()
			}
			h.CloseAll("shutdown")
		}()
		_ = h.OnConnect(context.Background(), s)
		<-closed

		if gs := h.Registry().GroupsOf(s); len(gs) != 0 {
			t.Fatalf("iteration %d: closed session still in %v", i, gs)
		}
	}
	if h.SessionCount() != 0 || h.Registry().GroupCount() != 0 {
		t.Fatalf("leftover sessions=%d groups=%d", h.SessionCount(), h.Registry().GroupCount())
	}
}

func TestHub_FanoutReachesOnlyTargetGroup(t *testing.T) {
	h := newTestHub(&memInbox{}, HubConfig{})
	alice := connect(t, h, "alice")
	boss := connect(t, h, "boss")
	anon := connect(t, h, "")
	for _, s := range []*Session{alice, alice, boss, boss, anon} {
		nextFrame(t, s)
	}

	f := NewLocalFanout(h.Registry())
	if err := f.Publish(context.Background(), UserGroup(1), []byte(`{"type":"notification"}`)); err != nil {
		t.Fatal(err)
	}
	if got := nextFrame(t, alice); got["type"] != TypeNotification {
		t.Fatalf("alice got %v", got)
	}
	assertQuiet(t, boss)
	assertQuiet(t, anon)
}

func TestHub_ConcurrentConnectDisconnect(t *testing.T) {
	h := newTestHub(&memInbox{}, HubConfig{})
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok := ""
			if i%2 == 0 {
				tok = "boss"
			}
			s, err := h.Connect(context.Background(), HandshakeParams{Token: tok})
			if err != nil {
				t.Error(err)
				return
			}
			h.OnMessage(context.Background(), s, []byte(`{"type":"ping"}`))
			h.OnDisconnect(s, "done")
		}(i)
	}
	wg.Wait()

	if h.SessionCount() != 0 || h.Registry().GroupCount() != 0 {
		t.Fatalf("leftover sessions=%d groups=%d", h.SessionCount(), h.Registry().GroupCount())
	}
}
