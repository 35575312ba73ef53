// Package wsmux implements the channel-agnostic core of the subscription
// multiplexer: group sharding, the per-group websocket state machine, and
// the reaper that keeps the fleet healthy. Market- and user-channel
// behavior is supplied by a ChannelPolicy value; this package never
// references Polymarket wire formats directly.
package wsmux

import (
	"context"
	"sync"
	"sync/atomic"
)

// GroupStatus is the published lifecycle state of a Group, collapsing the
// socket's finer-grained internal state machine (see Socket).
type GroupStatus int32

const (
	// StatusPending covers INIT and DIALING: the group exists but has no
	// confirmed live socket yet.
	StatusPending GroupStatus = iota
	// StatusAlive means the socket is open and subscribed.
	StatusAlive
	// StatusDead means the socket closed or errored; the reaper will
	// redial it next cycle if it still holds keys or is pinned.
	StatusDead
	// StatusCleanup means the group is empty and unpinned; the reaper
	// will drop it next cycle.
	StatusCleanup
)

func (s GroupStatus) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusAlive:
		return "ALIVE"
	case StatusDead:
		return "DEAD"
	case StatusCleanup:
		return "CLEANUP"
	default:
		return "UNKNOWN"
	}
}

// Auth carries opaque exchange credentials for the user channel. The
// multiplexer never inspects or validates these; they are forwarded
// verbatim into the subscription payload.
type Auth struct {
	APIKey     string
	Secret     string
	Passphrase string
}

// RawEvent is the minimal shape a ChannelPolicy's wire event must expose
// so the generic core can filter and route it without knowing the
// concrete event type.
type RawEvent interface {
	// Key returns the subscription key this event belongs to (asset_id
	// on the market channel, market on the user channel). An empty
	// string means the event lacks the discriminator and must be
	// dropped.
	Key() string
	// Kind returns the event_type discriminator. An empty string means
	// the event is malformed and must be dropped.
	Kind() string
}

// Group is a shard of subscription keys bound to at most one live
// websocket. Keys and socket are guarded by mu; Status is a separate
// atomic so the socket's own goroutine can publish status transitions
// without contending with registry-driven key mutation.
type Group struct {
	ID string

	mu             sync.RWMutex
	keys           map[string]struct{}
	socket         *Socket
	auth           *Auth
	subscribeToAll bool

	status atomic.Int32
}

func newGroup(id string, auth *Auth, subscribeToAll bool) *Group {
	g := &Group{
		ID:             id,
		keys:           make(map[string]struct{}),
		auth:           auth,
		subscribeToAll: subscribeToAll,
	}
	g.status.Store(int32(StatusPending))
	return g
}

// Status returns the group's current published status.
func (g *Group) Status() GroupStatus {
	return GroupStatus(g.status.Load())
}

func (g *Group) setStatus(s GroupStatus) {
	g.status.Store(int32(s))
}

// Pinned reports whether the group stays alive even with zero keys
// (user-variant subscribeToAll).
func (g *Group) Pinned() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.subscribeToAll
}

// Auth returns the group's credentials, or nil on the market channel.
func (g *Group) Auth() *Auth {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.auth
}

// HasKey reports whether key is currently held by this group. Safe to
// call from the socket's read goroutine without the registry lock.
func (g *Group) HasKey(key string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.keys[key]
	return ok
}

// Keys returns a snapshot of the group's current keys.
func (g *Group) Keys() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.keys))
	for k := range g.keys {
		out = append(out, k)
	}
	return out
}

// Len returns the number of keys currently held.
func (g *Group) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.keys)
}

func (g *Group) addKey(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.keys[key] = struct{}{}
}

func (g *Group) removeKey(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.keys[key]; !ok {
		return false
	}
	delete(g.keys, key)
	return true
}

func (g *Group) socketHandle() *Socket {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.socket
}

func (g *Group) setSocket(s *Socket) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.socket = s
}

// Lifecycle holds the manager-wide callbacks common to both channel
// variants. Every field is optional; a nil field is a no-op.
type Lifecycle struct {
	OnOpen  func(groupID string, keys []string)
	OnClose func(groupID string, code int, reason string)
	OnError func(err error)
}

// FireOpen invokes OnOpen if set. Safe to call on a zero Lifecycle.
func (l Lifecycle) FireOpen(groupID string, keys []string) {
	if l.OnOpen != nil {
		l.OnOpen(groupID, keys)
	}
}

// FireClose invokes OnClose if set.
func (l Lifecycle) FireClose(groupID string, code int, reason string) {
	if l.OnClose != nil {
		l.OnClose(groupID, code, reason)
	}
}

// FireError invokes OnError if set and err is non-nil.
func (l Lifecycle) FireError(err error) {
	if err != nil && l.OnError != nil {
		l.OnError(err)
	}
}

// FilterFunc filters a batch of raw events down to those the caller
// should still deliver to user handlers. Manager.filter builds
// one of these from the registry's current membership.
type FilterFunc func(events []RawEvent) []RawEvent

// ChannelPolicy supplies everything variant-specific about one channel
// (market or user): the dial URL, the subscribe payload, wire framing,
// and the full per-frame dispatch pipeline (bucketing, cache mutation,
// derived synthesis, handler invocation). The generic Socket and Manager
// never see concrete event or handler types.
type ChannelPolicy interface {
	// URL is the websocket endpoint to dial.
	URL() string
	// BuildSubscription returns the JSON-marshalable subscribe payload
	// to send once on open, using the group's current keys and auth.
	BuildSubscription(g *Group) (any, error)
	// ParseFrame decodes one server frame (single object or array) into
	// raw events.
	ParseFrame(data []byte) ([]RawEvent, error)
	// Dispatch processes one frame's worth of already-framed events for
	// the given group: receive-time filtering, bucketing, cache
	// mutation, derived synthesis, and (after applying filter)
	// invocation of user handlers.
	Dispatch(g *Group, events []RawEvent, filter FilterFunc)
	// Lifecycle returns the onOpen/onClose/onError callbacks to invoke.
	Lifecycle() Lifecycle
}

// RateLimiter fronts outbound dial attempts. Acquire blocks until a slot
// is available or ctx is done; Release gives the slot back.
type RateLimiter interface {
	Acquire(ctx context.Context) error
	Release()
}
