package user

import (
	"fmt"

	"github.com/johan/polymarket-mux/internal/wsmux"
)

// DefaultURL is the user channel's websocket endpoint.
const DefaultURL = "wss://ws-subscriptions-clob.polymarket.com/ws/user"

// Policy implements wsmux.ChannelPolicy for the user channel. Unlike the
// market variant it holds no cache and performs no synthesis: events are
// bucketed by kind and dispatched, full stop (spec.md §4.3's user-variant
// message pipeline).
type Policy struct {
	url      string
	handlers Handlers
}

// NewPolicy creates a user ChannelPolicy.
func NewPolicy(handlers Handlers) *Policy {
	return &Policy{
		url:      DefaultURL,
		handlers: handlers,
	}
}

// WithURL overrides the dial URL (tests point this at an httptest
// websocket server).
func (p *Policy) WithURL(url string) *Policy {
	p.url = url
	return p
}

// URL implements wsmux.ChannelPolicy.
func (p *Policy) URL() string { return p.url }

// Lifecycle implements wsmux.ChannelPolicy.
func (p *Policy) Lifecycle() wsmux.Lifecycle { return p.handlers.Lifecycle }

// BuildSubscription implements wsmux.ChannelPolicy. The auth block comes
// from the group rather than the policy, since each user group carries
// its own credentials (spec.md §3).
func (p *Policy) BuildSubscription(g *wsmux.Group) (any, error) {
	auth := g.Auth()
	if auth == nil {
		return nil, fmt.Errorf("user: group %s has no auth", g.ID)
	}
	return SubscribeMessage{
		Markets: g.Keys(),
		Type:    "USER",
		Auth: AuthPayload{
			APIKey:     auth.APIKey,
			Secret:     auth.Secret,
			Passphrase: auth.Passphrase,
		},
	}, nil
}

// ParseFrame implements wsmux.ChannelPolicy.
func (p *Policy) ParseFrame(data []byte) ([]wsmux.RawEvent, error) {
	raw, err := wsmux.ParseFrame[RawEvent](data)
	if err != nil {
		return nil, err
	}
	out := make([]wsmux.RawEvent, 0, len(raw))
	for _, e := range raw {
		if e.Market == "" || e.EventType == "" {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Dispatch implements wsmux.ChannelPolicy's user-variant message pipeline
// (spec.md §4.3): identical framing to the market variant, but events are
// bucketed into {order, trade} and dispatched with no book maintenance
// and no synthesis. Unlike the market variant, the user variant has no
// receive-time filter — the dispatch-time filter alone covers both the
// subscribeToAll pin and ordinary market-set filtering (spec.md §9).
func (p *Policy) Dispatch(g *wsmux.Group, events []wsmux.RawEvent, filter wsmux.FilterFunc) {
	var orders, trades []RawEvent
	for _, e := range events {
		re := e.(RawEvent)
		switch re.EventType {
		case KindOrder:
			orders = append(orders, re)
		case KindTrade:
			trades = append(trades, re)
		default:
			p.handlers.Lifecycle.FireError(fmt.Errorf("user: %w: %s", wsmux.ErrUnknownEventKind, re.EventType))
		}
	}

	if len(orders) > 0 {
		p.handlers.dispatchOrder(toRaw(filter, orders))
	}
	if len(trades) > 0 {
		p.handlers.dispatchTrade(toRaw(filter, trades))
	}
}

func toRaw(filter wsmux.FilterFunc, events []RawEvent) []RawEvent {
	if len(events) == 0 {
		return nil
	}
	generic := make([]wsmux.RawEvent, len(events))
	for i, e := range events {
		generic[i] = e
	}
	filtered := filter(generic)
	if len(filtered) == 0 {
		return nil
	}
	out := make([]RawEvent, len(filtered))
	for i, e := range filtered {
		out[i] = e.(RawEvent)
	}
	return out
}
