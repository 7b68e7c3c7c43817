package realtime

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
)

// Fanout publishes an encoded frame to every member of a group. Delivery is
// best effort: per-member failures are logged and counted, never returned.
// An error means the frame could not be handed to the delivery layer at all.
type Fanout interface {
	Publish(ctx context.Context, group string, frame []byte) error
}

// LocalFanout delivers to members registered in this process.
type LocalFanout struct {
	reg *Registry
}

// NewLocalFanout returns a Fanout over reg.
func NewLocalFanout(reg *Registry) *LocalFanout {
	return &LocalFanout{reg: reg}
}

// Publish implements Fanout.
func (f *LocalFanout) Publish(_ context.Context, group string, frame []byte) error {
	f.Deliver(group, frame)
	return nil
}

// Deliver pushes frame to a snapshot of group's members and reports how many
// accepted it.
func (f *LocalFanout) Deliver(group string, frame []byte) (delivered, dropped int) {
	label := groupClass(group)
	for _, m := range f.reg.MembersOf(group) {
		if m.Deliver(frame) {
			delivered++
			framesDelivered.WithLabelValues(label).Inc()
			continue
		}
		dropped++
		log.Warn().
			Str("group", group).
			Str("session_id", m.ID()).
			Msg("frame dropped for slow or closed session")
	}
	return delivered, dropped
}

// groupClass collapses personal groups into one metric label.
func groupClass(group string) string {
	if strings.HasPrefix(group, "user:") {
		return "user"
	}
	return group
}
