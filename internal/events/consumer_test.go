package events

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/tbourn/go-notify-backend/internal/config"
)

// fakeReader serves queued messages, then blocks until ctx is done.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	fetchErrs []error
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.fetchErrs) > 0 {
		err := r.fetchErrs[0]
		r.fetchErrs = r.fetchErrs[1:]
		r.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

type recordingHandler struct {
	mu   sync.Mutex
	seen []string
	err  error
}

func (h *recordingHandler) Handle(_ context.Context, env Envelope) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, env.Type)
	return h.err
}

func msg(offset int64, value string) kafka.Message {
	return kafka.Message{Topic: "commerce.events", Offset: offset, Value: []byte(value)}
}

func runUntil(t *testing.T, c *Consumer, r *fakeReader, commits int) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for r.commits() < commits && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("consumer did not stop")
	}
}

func TestConsumer_HandlesAndCommitsEveryMessage(t *testing.T) {
	var buf bytes.Buffer
	old := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = old }()

	r := &fakeReader{queue: []kafka.Message{
		msg(1, `{"type":"order.created","data":{"order_id":1}}`),
		msg(2, `not json`),
		msg(3, `{"data":{}}`),
		msg(4, `{"type":"coupon.used","data":{"code":"X"}}`),
	}}
	h := &recordingHandler{}
	c := NewConsumer(r, h)

	runUntil(t, c, r, 4)

	if strings.Join(h.seen, ",") != "order.created,coupon.used" {
		t.Fatalf("handled = %v", h.seen)
	}
	if r.commits() != 4 {
		t.Fatalf("committed %v", r.committed)
	}
	if !r.closed {
		t.Fatalf("reader not closed")
	}
	if !strings.Contains(buf.String(), "skipping malformed event") {
		t.Fatalf("malformed message not logged: %s", buf.String())
	}
}

func TestConsumer_HandlerErrorsAreCounted(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{
		msg(1, `{"type":"order.created","data":{}}`),
		msg(2, `{"type":"order.refunded","data":{}}`),
	}}
	h := &recordingHandler{err: errors.New("db down")}
	c := NewConsumer(r, h)

	baseErr := testutil.ToFloat64(eventsConsumed.WithLabelValues("order.created", "error"))
	runUntil(t, c, r, 2)

	if got := testutil.ToFloat64(eventsConsumed.WithLabelValues("order.created", "error")) - baseErr; got < 1 {
		t.Fatalf("error outcome not counted")
	}
}

func TestConsumer_UnknownEventIgnored(t *testing.T) {
	d, dir := newFakes()
	r := &fakeReader{queue: []kafka.Message{msg(1, `{"type":"order.refunded","data":{}}`)}}
	base := testutil.ToFloat64(eventsConsumed.WithLabelValues("unknown", "ignored"))

	runUntil(t, NewConsumer(r, NewNotifier(d, dir, 5)), r, 1)

	if got := testutil.ToFloat64(eventsConsumed.WithLabelValues("unknown", "ignored")) - base; got != 1 {
		t.Fatalf("unknown counter delta = %v", got)
	}
	if len(d.reqs) != 0 {
		t.Fatalf("unknown event dispatched")
	}
}

func TestConsumer_RetriesAfterFetchError(t *testing.T) {
	r := &fakeReader{
		fetchErrs: []error{errors.New("broker unavailable")},
		queue:     []kafka.Message{msg(9, `{"type":"coupon.used","data":{"code":"Y"}}`)},
	}
	h := &recordingHandler{}
	c := NewConsumer(r, h)
	c.RetryDelay = time.Millisecond

	runUntil(t, c, r, 1)
	if len(h.seen) != 1 {
		t.Fatalf("message after fetch error not handled: %v", h.seen)
	}
}

func TestNewKafkaReaderConfig(t *testing.T) {
	// NewReader does not dial until the first fetch.
	r := NewKafkaReader(kafkaConfigForTest())
	defer r.Close()
	cfg := r.Config()
	if cfg.Topic != "commerce.events" || cfg.GroupID != "notification-hub" || len(cfg.Brokers) != 1 {
		t.Fatalf("reader config = %+v", cfg)
	}
}

func kafkaConfigForTest() config.KafkaConfig {
	return config.KafkaConfig{
		Brokers: []string{"127.0.0.1:9092"},
		Topic:   "commerce.events",
		GroupID: "notification-hub",
	}
}
