// Package realtime implements live delivery of notifications to connected
// clients: the group registry, connection sessions, the inbound control
// protocol, fan-out (process-local or relayed through Redis) and the
// WebSocket transport binding.
package realtime

import (
	"strconv"
	"sync"
)

// Well-known groups.
const (
	GroupAdmins = "admins"
	GroupPublic = "public"
)

// UserGroup returns the personal group name for userID.
func UserGroup(userID uint64) string {
	return "user:" + strconv.FormatUint(userID, 10)
}

// Member is anything the registry can address: a live session in production,
// a recorder in tests.
type Member interface {
	ID() string
	// Deliver enqueues frame without blocking and reports whether it was
	// accepted.
	Deliver(frame []byte) bool
}

// Registry maps group names to the members currently subscribed to them.
//
// A single RWMutex guards both directions of the mapping, so MembersOf is
// linearizable with Join, Leave and LeaveAll. Groups are created on first
// join and removed when their last member leaves.
type Registry struct {
	mu      sync.RWMutex
	groups  map[string]map[Member]struct{}
	members map[Member]map[string]struct{}
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		groups:  make(map[string]map[Member]struct{}),
		members: make(map[Member]map[string]struct{}),
	}
}

// Join adds m to group. Joining twice is a no-op.
func (r *Registry) Join(group string, m Member) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.groups[group]
	if !ok {
		set = make(map[Member]struct{})
		r.groups[group] = set
		groupsActive.Inc()
	}
	set[m] = struct{}{}

	gs, ok := r.members[m]
	if !ok {
		gs = make(map[string]struct{})
		r.members[m] = gs
	}
	gs[group] = struct{}{}
}

// Leave removes m from group. Leaving a group m is not in is a no-op.
func (r *Registry) Leave(group string, m Member) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(group, m)
}

// LeaveAll removes m from every group it belongs to and returns the groups
// it left.
func (r *Registry) LeaveAll(m Member) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	gs := r.members[m]
	left := make([]string, 0, len(gs))
	for g := range gs {
		left = append(left, g)
	}
	for _, g := range left {
		r.leaveLocked(g, m)
	}
	return left
}

func (r *Registry) leaveLocked(group string, m Member) {
	if set, ok := r.groups[group]; ok {
		delete(set, m)
		if len(set) == 0 {
			delete(r.groups, group)
			groupsActive.Dec()
		}
	}
	if gs, ok := r.members[m]; ok {
		delete(gs, group)
		if len(gs) == 0 {
			delete(r.members, m)
		}
	}
}

// MembersOf returns a snapshot of group's members. The slice is a copy;
// later joins or leaves do not affect it.
func (r *Registry) MembersOf(group string) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.groups[group]
	out := make([]Member, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	return out
}

// GroupsOf returns the groups m currently belongs to.
func (r *Registry) GroupsOf(m Member) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	gs := r.members[m]
	out := make([]string, 0, len(gs))
	for g := range gs {
		out = append(out, g)
	}
	return out
}

// GroupCount returns the number of non-empty groups.
func (r *Registry) GroupCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups)
}
