package user

import (
	"testing"

	"github.com/johan/polymarket-mux/internal/wsmux"
)

func passthrough(events []wsmux.RawEvent) []wsmux.RawEvent { return events }

func newTestGroup(t *testing.T, auth *wsmux.Auth, subscribeToAll bool, keys ...string) *wsmux.Group {
	t.Helper()
	reg := wsmux.NewGroupRegistry(100, func() string { return "g1" })
	reg.SetAuth(auth)
	reg.SetSubscribeToAll(subscribeToAll)
	reg.AddKeys(keys)
	g, ok := reg.FindGroupByID("g1")
	if !ok {
		t.Fatalf("expected group g1 to exist")
	}
	return g
}

func TestPolicy_Dispatch_BucketsOrderAndTrade(t *testing.T) {
	var orders, trades []RawEvent
	p := NewPolicy(Handlers{
		OnOrder: func(events []RawEvent) { orders = events },
		OnTrade: func(events []RawEvent) { trades = events },
	})
	g := newTestGroup(t, &wsmux.Auth{APIKey: "k"}, false, "market1")

	events := []wsmux.RawEvent{
		RawEvent{EventType: KindOrder, Market: "market1", OrderID: "o1", Status: "LIVE"},
		RawEvent{EventType: KindTrade, Market: "market1", TradeID: "t1", Size: "5"},
	}

	p.Dispatch(g, events, passthrough)

	if len(orders) != 1 || orders[0].OrderID != "o1" {
		t.Errorf("orders = %+v, want one event with OrderID o1", orders)
	}
	if len(trades) != 1 || trades[0].TradeID != "t1" {
		t.Errorf("trades = %+v, want one event with TradeID t1", trades)
	}
}

func TestPolicy_Dispatch_AppliesFilterFunc(t *testing.T) {
	var orders []RawEvent
	p := NewPolicy(Handlers{OnOrder: func(events []RawEvent) { orders = events }})
	g := newTestGroup(t, &wsmux.Auth{APIKey: "k"}, false, "market1")

	dropAll := func(events []wsmux.RawEvent) []wsmux.RawEvent { return nil }

	events := []wsmux.RawEvent{
		RawEvent{EventType: KindOrder, Market: "market1", OrderID: "o1"},
	}

	p.Dispatch(g, events, dropAll)

	if orders != nil {
		t.Errorf("orders = %+v, want nil after filter dropped everything", orders)
	}
}

func TestPolicy_BuildSubscription_IncludesAuth(t *testing.T) {
	p := NewPolicy(Handlers{})
	g := newTestGroup(t, &wsmux.Auth{APIKey: "k", Secret: "s", Passphrase: "p"}, false, "market1", "market2")

	payload, err := p.BuildSubscription(g)
	if err != nil {
		t.Fatalf("BuildSubscription failed: %v", err)
	}
	msg, ok := payload.(SubscribeMessage)
	if !ok {
		t.Fatalf("payload is %T, want SubscribeMessage", payload)
	}
	if msg.Type != "USER" {
		t.Errorf("Type = %q, want USER", msg.Type)
	}
	if msg.Auth.APIKey != "k" || msg.Auth.Secret != "s" || msg.Auth.Passphrase != "p" {
		t.Errorf("Auth = %+v, want k/s/p", msg.Auth)
	}
	if len(msg.Markets) != 2 {
		t.Errorf("Markets = %v, want 2 entries", msg.Markets)
	}
}

func TestPolicy_BuildSubscription_ErrorsWithoutAuth(t *testing.T) {
	p := NewPolicy(Handlers{})
	g := newTestGroup(t, nil, false, "market1")

	if _, err := p.BuildSubscription(g); err == nil {
		t.Fatal("expected an error when the group has no auth")
	}
}

func TestPolicy_Dispatch_UnknownEventKindFiresError(t *testing.T) {
	var gotErr error
	p := NewPolicy(Handlers{
		Lifecycle: wsmux.Lifecycle{OnError: func(err error) { gotErr = err }},
	})
	g := newTestGroup(t, &wsmux.Auth{APIKey: "k"}, false, "market1")

	events := []wsmux.RawEvent{RawEvent{EventType: "mystery", Market: "market1"}}

	p.Dispatch(g, events, passthrough)

	if gotErr == nil {
		t.Fatal("expected OnError to fire for an unknown event kind")
	}
}
