package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/tbourn/go-notify-backend/internal/config"
)

var eventsConsumed = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "events_consumed_total",
		Help: "Commerce events read from the event stream, by type and outcome.",
	},
	[]string{"type", "outcome"},
)

func init() {
	prometheus.MustRegister(eventsConsumed)
}

// MessageReader is the subset of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Handler processes one decoded envelope.
type Handler interface {
	Handle(ctx context.Context, env Envelope) error
}

// NewKafkaReader builds a consumer-group reader from cfg.
func NewKafkaReader(cfg config.KafkaConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  time.Second,
	})
}

// Consumer reads envelopes from a MessageReader and hands them to a Handler.
// A message is committed once handled, whether or not handling succeeded;
// failures are logged and counted.
type Consumer struct {
	reader  MessageReader
	handler Handler

	// HandleTimeout bounds one Handle call. Defaults to 30s.
	HandleTimeout time.Duration
	// RetryDelay is the pause after a fetch error. Defaults to 1s.
	RetryDelay time.Duration
}

// NewConsumer returns a Consumer over r.
func NewConsumer(r MessageReader, h Handler) *Consumer {
	return &Consumer{reader: r, handler: h, HandleTimeout: 30 * time.Second, RetryDelay: time.Second}
}

// Run consumes until ctx is done, then closes the reader.
func (c *Consumer) Run(ctx context.Context) error {
	defer func() {
		if err := c.reader.Close(); err != nil {
			log.Warn().Err(err).Msg("close event reader")
		}
	}()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error().Err(err).Msg("fetch event")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.RetryDelay):
			}
			continue
		}

		c.process(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Int64("offset", msg.Offset).Msg("commit event")
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	lg := log.With().Str("topic", msg.Topic).Int("partition", msg.Partition).Int64("offset", msg.Offset).Logger()

	var env Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil || env.Type == "" {
		eventsConsumed.WithLabelValues("invalid", "malformed").Inc()
		lg.Warn().Err(err).Msg("skipping malformed event")
		return
	}

	hctx, cancel := context.WithTimeout(ctx, c.HandleTimeout)
	defer cancel()

	err := c.handler.Handle(hctx, env)
	switch {
	case err == nil:
		eventsConsumed.WithLabelValues(env.Type, "ok").Inc()
		lg.Debug().Str("event", env.Type).Msg("event handled")
	case errors.Is(err, ErrUnknownEvent):
		eventsConsumed.WithLabelValues("unknown", "ignored").Inc()
		lg.Warn().Str("event", env.Type).Msg("ignoring unknown event type")
	case errors.Is(err, ErrMalformedEvent):
		eventsConsumed.WithLabelValues(env.Type, "malformed").Inc()
		lg.Warn().Err(err).Msg("skipping malformed event")
	default:
		eventsConsumed.WithLabelValues(env.Type, "error").Inc()
		lg.Error().Err(err).Str("event", env.Type).Msg("event handling failed")
	}
}
