package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisFanout relays frames through a Redis pub/sub channel so that every
// instance delivers to its own local sessions. Publishing never touches the
// local registry directly; the frame comes back through Run like any other.
type RedisFanout struct {
	client  *redis.Client
	channel string
	local   *LocalFanout

	readyOnce sync.Once
	ready     chan struct{}
}

type relayEnvelope struct {
	Group string          `json:"group"`
	Frame json.RawMessage `json:"frame"`
}

// NewRedisFanout returns a relay on channel delivering into local.
func NewRedisFanout(client *redis.Client, channel string, local *LocalFanout) *RedisFanout {
	return &RedisFanout{
		client:  client,
		channel: channel,
		local:   local,
		ready:   make(chan struct{}),
	}
}

// Publish implements Fanout.
func (f *RedisFanout) Publish(ctx context.Context, group string, frame []byte) error {
	b, err := json.Marshal(relayEnvelope{Group: group, Frame: frame})
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, f.channel, b).Err()
}

// Ready is closed once the subscription is confirmed.
func (f *RedisFanout) Ready() <-chan struct{} { return f.ready }

// Run subscribes and delivers relayed frames until ctx is done.
func (f *RedisFanout) Run(ctx context.Context) error {
	sub := f.client.Subscribe(ctx, f.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	f.readyOnce.Do(func() { close(f.ready) })
	log.Info().Str("channel", f.channel).Msg("redis fanout subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env relayEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil || env.Group == "" {
				log.Warn().Err(err).Str("channel", f.channel).Msg("discarding malformed relay message")
				continue
			}
			f.local.Deliver(env.Group, env.Frame)
		}
	}
}
