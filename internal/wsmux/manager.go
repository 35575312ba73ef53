package wsmux

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/johan/polymarket-mux/internal/ratelimit"
)

// Options configures a Manager. Zero values fall back to the defaults
// from spec.md §6.
type Options struct {
	// ReconnectAndCleanupInterval is how often the reaper runs. Default
	// 10s.
	ReconnectAndCleanupInterval time.Duration
	// MaxPerGroup is not read by Manager: the per-group key bound is the
	// one the GroupRegistry passed to NewManager was created with
	// (NewGroupRegistry treats <= 0 as unbounded, the market channel's
	// default).
	MaxPerGroup int
	// Limiter overrides the default dial rate limiter.
	Limiter RateLimiter
	// Dialer overrides the default websocket dialer (tests substitute
	// one pointed at an httptest server).
	Dialer *websocket.Dialer
}

func (o Options) withDefaults() Options {
	if o.ReconnectAndCleanupInterval <= 0 {
		o.ReconnectAndCleanupInterval = 10 * time.Second
	}
	if o.Limiter == nil {
		o.Limiter = ratelimit.Default()
	}
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
	return o
}

// Manager is the channel-agnostic SubscriptionManager from spec.md §4.4:
// it owns a GroupRegistry, dials/redials GroupSockets, and runs the
// periodic reaper. Market- and user-specific behavior comes entirely
// from the ChannelPolicy passed to NewManager.
type Manager struct {
	registry *GroupRegistry
	policy   ChannelPolicy
	opts     Options

	mu       sync.Mutex
	sockets  map[string]*Socket
	cancel   context.CancelFunc
	reaperWG sync.WaitGroup
	cleanup  func()
}

// NewManager creates a Manager bound to registry and policy. cleanup, if
// non-nil, runs once inside ClearState after every group's socket has
// been closed (the market variant clears its BookCache here).
func NewManager(registry *GroupRegistry, policy ChannelPolicy, opts Options, cleanup func()) *Manager {
	opts = opts.withDefaults()
	m := &Manager{
		registry: registry,
		policy:   policy,
		opts:     opts,
		sockets:  make(map[string]*Socket),
		cleanup:  cleanup,
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.startReaper(ctx)
	return m
}

func (m *Manager) filter() FilterFunc {
	return func(events []RawEvent) []RawEvent {
		return m.registry.FilterBySubscription(events, func(key string) {
			log.Printf("wsmux: key %q present in more than one group", key)
		})
	}
}

// AddSubscriptions shards keys into the registry and dials every group
// that needs a fresh connection. Dial errors are surfaced via
// Lifecycle.OnError and otherwise ignored; the reaper will retry DEAD
// groups on its own schedule.
func (m *Manager) AddSubscriptions(ctx context.Context, keys []string) {
	if len(keys) == 0 {
		return
	}
	needDial := m.registry.AddKeys(keys)
	for _, id := range needDial {
		m.dial(ctx, id)
	}
}

// RemoveSubscriptions removes keys from the registry. Sockets are not
// closed immediately — the next reconnect/cleanup cycle closes
// fully-drained, unpinned groups — trading a short window of wasted
// frames for never missing an event while the key is still logically
// subscribed.
func (m *Manager) RemoveSubscriptions(keys []string, onRemoved func(key string)) {
	if len(keys) == 0 {
		return
	}
	m.registry.RemoveKeys(keys, onRemoved)
}

func (m *Manager) dial(ctx context.Context, groupID string) {
	g, ok := m.registry.FindGroupByID(groupID)
	if !ok {
		m.policy.Lifecycle().FireError(fmt.Errorf("dialing group %s: %w", groupID, ErrGroupNotFound))
		return
	}

	sock := newSocket(g, m.policy, m.opts.Limiter, m.opts.Dialer, m.filter())

	m.mu.Lock()
	m.sockets[groupID] = sock
	m.mu.Unlock()

	if err := sock.Connect(ctx); err != nil {
		m.policy.Lifecycle().FireError(err)
	}
}

func (m *Manager) startReaper(ctx context.Context) {
	m.reaperWG.Add(1)
	go func() {
		defer m.reaperWG.Done()
		ticker := time.NewTicker(m.opts.ReconnectAndCleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.reconnectAndCleanup(ctx)
			}
		}
	}()
}

func (m *Manager) reconnectAndCleanup(ctx context.Context) {
	defer func() {
		// The reaper's outer loop never terminates on an error; any
		// panic surfaced by a policy callback is reported and
		// swallowed rather than killing the background goroutine.
		if r := recover(); r != nil {
			m.policy.Lifecycle().FireError(fmt.Errorf("reaper recovered: %v", r))
		}
	}()

	ids := m.registry.GetGroupsToReconnectAndCleanup()

	// Close the sockets of groups the registry just dropped.
	var stale []*Socket
	m.mu.Lock()
	for id, sock := range m.sockets {
		if _, ok := m.registry.FindGroupByID(id); !ok {
			stale = append(stale, sock)
			delete(m.sockets, id)
		}
	}
	m.mu.Unlock()
	for _, sock := range stale {
		if err := sock.Close(); err != nil {
			m.policy.Lifecycle().FireError(fmt.Errorf("closing drained group %s: %w", sock.group.ID, err))
		}
	}

	for _, id := range ids {
		m.dial(ctx, id)
	}
}

// ClearState stops the reaper, atomically clears the registry, closes
// every removed group's socket outside the lock, then runs the
// variant-specific cleanup hook. Per-socket close failures are reported
// via Lifecycle.OnError and do not stop the teardown.
func (m *Manager) ClearState() {
	m.cancel()
	m.reaperWG.Wait()

	removed := m.registry.ClearAllGroups()

	m.mu.Lock()
	sockets := m.sockets
	m.sockets = make(map[string]*Socket)
	m.mu.Unlock()

	for _, g := range removed {
		if sock, ok := sockets[g.ID]; ok {
			if err := sock.Close(); err != nil {
				m.policy.Lifecycle().FireError(fmt.Errorf("closing group %s: %w", g.ID, err))
			}
		}
	}

	if m.cleanup != nil {
		m.cleanup()
	}
}

// Registry exposes the underlying GroupRegistry for variant-specific
// extras (hasMarket, hasSubscribeToAll) that don't belong on the generic
// Manager surface.
func (m *Manager) Registry() *GroupRegistry {
	return m.registry
}
