package wsmux

import "testing"

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return "g" + string(rune('0'+n))
	}
}

func TestAddKeys_ShardsAcrossGroupsByMaxPerGroup(t *testing.T) {
	r := NewGroupRegistry(2, sequentialIDs())

	needDial := r.AddKeys([]string{"a", "b", "c"})
	if len(needDial) != 2 {
		t.Fatalf("AddKeys returned %d groups needing dial, want 2", len(needDial))
	}

	groups := r.Snapshot()
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2 (one full at 2, one with the overflow key)", len(groups))
	}

	total := 0
	for _, g := range groups {
		total += g.Len()
	}
	if total != 3 {
		t.Errorf("total keys across groups = %d, want 3", total)
	}
}

func TestAddKeys_IgnoresKeyAlreadyPresent(t *testing.T) {
	r := NewGroupRegistry(0, sequentialIDs())

	r.AddKeys([]string{"a"})
	needDial := r.AddKeys([]string{"a", "b"})

	if !r.HasKey("a") || !r.HasKey("b") {
		t.Fatal("expected both a and b to be present")
	}
	// "a" was already placed; only "b" is added, joining the still-pending
	// group, so exactly one group needs a dial.
	if len(needDial) != 1 {
		t.Errorf("needDial = %v, want exactly one group to dial for key b", needDial)
	}
}

func TestAddKeys_RefillsDeadGroupAndReturnsItForDial(t *testing.T) {
	r := NewGroupRegistry(0, sequentialIDs())
	r.AddKeys([]string{"a"})

	groups := r.Snapshot()
	groups[0].setStatus(StatusDead)

	needDial := r.AddKeys([]string{"b"})
	if len(needDial) != 1 || needDial[0] != groups[0].ID {
		t.Errorf("expected dead group %s to be refilled and redialed, got %v", groups[0].ID, needDial)
	}
	if !groups[0].HasKey("b") {
		t.Error("expected key b to land in the refilled dead group")
	}
}

func TestRemoveKeys_InvokesOnRemovedOncePerKey(t *testing.T) {
	r := NewGroupRegistry(0, sequentialIDs())
	r.AddKeys([]string{"a", "b"})

	var removed []string
	r.RemoveKeys([]string{"a", "missing"}, func(key string) {
		removed = append(removed, key)
	})

	if len(removed) != 1 || removed[0] != "a" {
		t.Errorf("removed = %v, want [a]", removed)
	}
	if r.HasKey("a") {
		t.Error("expected a to be removed")
	}
	if !r.HasKey("b") {
		t.Error("expected b to remain")
	}
}

func TestGetGroupsToReconnectAndCleanup_DropsEmptyUnpinnedGroups(t *testing.T) {
	r := NewGroupRegistry(0, sequentialIDs())
	r.AddKeys([]string{"a"})
	r.RemoveKeys([]string{"a"}, nil)

	r.GetGroupsToReconnectAndCleanup()

	if len(r.Snapshot()) != 0 {
		t.Errorf("expected empty unpinned group to be dropped, got %d groups", len(r.Snapshot()))
	}
}

func TestGetGroupsToReconnectAndCleanup_RedialsDeadGroups(t *testing.T) {
	r := NewGroupRegistry(0, sequentialIDs())
	r.AddKeys([]string{"a"})
	groups := r.Snapshot()
	groups[0].setStatus(StatusDead)

	toDial := r.GetGroupsToReconnectAndCleanup()

	if len(toDial) != 1 || toDial[0] != groups[0].ID {
		t.Fatalf("toDial = %v, want [%s]", toDial, groups[0].ID)
	}
	if groups[0].Status() != StatusPending {
		t.Errorf("status = %s, want PENDING after scheduling redial", groups[0].Status())
	}
}

func TestFindGroupByID_ReturnsFalseAfterClear(t *testing.T) {
	r := NewGroupRegistry(0, sequentialIDs())
	r.AddKeys([]string{"a"})
	groups := r.Snapshot()

	r.ClearAllGroups()

	if _, ok := r.FindGroupByID(groups[0].ID); ok {
		t.Error("expected group to be gone after ClearAllGroups")
	}
}

type fakeEvent struct {
	Key_  string `json:"key"`
	Kind_ string `json:"kind"`
}

func (e fakeEvent) Key() string  { return e.Key_ }
func (e fakeEvent) Kind() string { return e.Kind_ }

func TestFilterBySubscription_DropsEventsForUnknownKeys(t *testing.T) {
	r := NewGroupRegistry(0, sequentialIDs())
	r.AddKeys([]string{"a"})

	events := []RawEvent{fakeEvent{Key_: "a"}, fakeEvent{Key_: "z"}}
	out := r.FilterBySubscription(events, nil)

	if len(out) != 1 || out[0].Key() != "a" {
		t.Errorf("got %v, want only the event for key a", out)
	}
}

func TestFilterBySubscription_PassesEverythingWhenSubscribeToAll(t *testing.T) {
	r := NewGroupRegistry(0, sequentialIDs())
	r.SetSubscribeToAll(true)

	events := []RawEvent{fakeEvent{Key_: "unknown"}}
	out := r.FilterBySubscription(events, nil)

	if len(out) != 1 {
		t.Errorf("got %d events, want 1 (subscribeToAll passes everything through)", len(out))
	}
}

func TestSetAuth_StampsNewlyCreatedGroups(t *testing.T) {
	r := NewGroupRegistry(0, sequentialIDs())
	auth := &Auth{APIKey: "k1"}
	r.SetAuth(auth)

	r.AddKeys([]string{"a"})
	groups := r.Snapshot()

	if groups[0].Auth() != auth {
		t.Error("expected newly created group to carry the registry's auth")
	}
}
