package wsmux

import "sync"

// GroupRegistry shards subscription keys into Groups of bounded size. All
// mutations funnel through the registry's single mutex; the mutex is
// never held across I/O, user callbacks, or awaits (spec.md §5). Reads
// used for dispatch (FindGroupByID, HasKey) take the mutex only for the
// lookup itself; a group or key removed right after the read shows up to
// the caller as a not-found/false result on its next read.
type GroupRegistry struct {
	mu             sync.Mutex
	groups         []*Group
	maxPerGroup    int
	newID          func() string
	auth           *Auth
	subscribeToAll bool
}

// NewGroupRegistry creates an empty registry. maxPerGroup <= 0 means
// effectively unbounded (used by the market variant). newID generates
// stable, never-reused group identifiers.
func NewGroupRegistry(maxPerGroup int, newID func() string) *GroupRegistry {
	return &GroupRegistry{
		maxPerGroup: maxPerGroup,
		newID:       newID,
	}
}

// SetAuth fixes the credentials stamped onto every group this registry
// creates from now on (user variant only; a no-op for market).
func (r *GroupRegistry) SetAuth(a *Auth) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auth = a
}

// SetSubscribeToAll fixes whether newly created groups are pinned alive
// even with zero keys.
func (r *GroupRegistry) SetSubscribeToAll(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribeToAll = v
}

// HasSubscribeToAll reports the registry-wide subscribeToAll flag.
func (r *GroupRegistry) HasSubscribeToAll() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subscribeToAll
}

func (r *GroupRegistry) fits(g *Group) bool {
	if r.maxPerGroup <= 0 {
		return true
	}
	return g.Len() < r.maxPerGroup
}

// AddKeys shards newKeys across existing groups with spare capacity
// (ALIVE, PENDING, or DEAD — DEAD groups are refilled and must be
// re-dialed), creating new groups as needed. It returns the IDs of
// groups that gained at least one key and whose socket is not currently
// ALIVE, i.e. need a dial.
func (r *GroupRegistry) AddKeys(newKeys []string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	needDial := make(map[string]struct{})

	for _, key := range newKeys {
		if r.keyPresentLocked(key) {
			continue
		}

		placed := false
		for _, g := range r.groups {
			st := g.Status()
			if st != StatusAlive && st != StatusPending && st != StatusDead {
				continue
			}
			if !r.fits(g) {
				continue
			}
			g.addKey(key)
			if st != StatusAlive {
				needDial[g.ID] = struct{}{}
			}
			placed = true
			break
		}

		if !placed {
			g := newGroup(r.newID(), r.auth, r.subscribeToAll)
			g.addKey(key)
			r.groups = append(r.groups, g)
			needDial[g.ID] = struct{}{}
		}
	}

	out := make([]string, 0, len(needDial))
	for id := range needDial {
		out = append(out, id)
	}
	return out
}

func (r *GroupRegistry) keyPresentLocked(key string) bool {
	for _, g := range r.groups {
		if g.HasKey(key) {
			return true
		}
	}
	return false
}

// RemoveKeys removes oldKeys from whichever group holds them. onRemoved,
// if non-nil, is invoked while the registry mutex is held, once per key
// actually removed; it is meant for pure bookkeeping such as
// BookCache.Remove on the market variant. Emptied, unpinned groups are
// not removed immediately; the next reaper pass
// (GetGroupsToReconnectAndCleanup) drops them, so in-flight events drain
// naturally.
func (r *GroupRegistry) RemoveKeys(oldKeys []string, onRemoved func(key string)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, key := range oldKeys {
		for _, g := range r.groups {
			if g.removeKey(key) {
				if onRemoved != nil {
					onRemoved(key)
				}
				break
			}
		}
	}
}

// GetGroupsToReconnectAndCleanup classifies groups for the reaper. Groups
// with zero keys and not pinned are dropped from the registry outright.
// Groups with status DEAD that still hold keys or are pinned transition
// to PENDING and are returned for redial.
func (r *GroupRegistry) GetGroupsToReconnectAndCleanup() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.groups[:0:0]
	var toDial []string

	for _, g := range r.groups {
		if g.Len() == 0 && !g.Pinned() {
			continue // drop
		}
		if g.Status() == StatusDead {
			g.setStatus(StatusPending)
			toDial = append(toDial, g.ID)
		}
		kept = append(kept, g)
	}
	r.groups = kept

	return toDial
}

// FindGroupByID returns the group with id, or false if it is gone. This
// is a lock-free-for-callers snapshot read; a concurrent removal may
// race harmlessly with a caller that already decided to act on the ID.
func (r *GroupRegistry) FindGroupByID(id string) (*Group, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.groups {
		if g.ID == id {
			return g, true
		}
	}
	return nil, false
}

// HasKey reports whether any group in the registry currently holds key.
func (r *GroupRegistry) HasKey(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.keyPresentLocked(key)
}

// ClearAllGroups atomically swaps out the entire group list, returning
// the removed groups so the caller can close their sockets outside the
// lock.
func (r *GroupRegistry) ClearAllGroups() []*Group {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := r.groups
	r.groups = nil
	return removed
}

// Snapshot returns a shallow copy of the current group list. Test-only:
// production code should use FindGroupByID or HasKey instead of scanning
// a snapshot, to avoid acting on stale membership.
func (r *GroupRegistry) Snapshot() []*Group {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Group, len(r.groups))
	copy(out, r.groups)
	return out
}

// FilterBySubscription drops events whose key the registry no longer
// holds, unless subscribeToAll is set (in which case everything passes
// through). warn, if non-nil, is invoked once per key found in more than
// one group — the registry's no-shared-key invariant means this should
// never happen, but the source's design deliberately double-checks it
// defensively at dispatch time.
func (r *GroupRegistry) FilterBySubscription(events []RawEvent, warn func(key string)) []RawEvent {
	if r.HasSubscribeToAll() {
		return events
	}

	r.mu.Lock()
	counts := make(map[string]int, len(r.groups))
	for _, g := range r.groups {
		for _, k := range g.Keys() {
			counts[k]++
		}
	}
	r.mu.Unlock()

	out := make([]RawEvent, 0, len(events))
	warned := make(map[string]struct{})
	for _, e := range events {
		n, ok := counts[e.Key()]
		if !ok || n == 0 {
			continue
		}
		if n > 1 {
			if _, already := warned[e.Key()]; !already && warn != nil {
				warn(e.Key())
				warned[e.Key()] = struct{}{}
			}
		}
		out = append(out, e)
	}
	return out
}
