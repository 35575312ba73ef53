// Package user implements the user-channel ChannelPolicy: authenticated
// order and trade events keyed by market, with no book maintenance and no
// derived synthesis (spec.md §4.3's user-variant message pipeline).
package user

import "github.com/johan/polymarket-mux/internal/wsmux"

// Event kind discriminators, matching spec.md §6's user event_type values.
const (
	KindOrder = "order"
	KindTrade = "trade"
)

// RawEvent is the union of the order and trade wire shapes. Only the
// fields relevant to EventType are populated for a given instance,
// mirroring the market channel's flattened RawEvent.
type RawEvent struct {
	EventType string `json:"event_type"`
	Market    string `json:"market"`
	AssetID   string `json:"asset_id,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`

	// order fields
	OrderID       string `json:"id,omitempty"`
	Side          string `json:"side,omitempty"`
	Price         string `json:"price,omitempty"`
	OriginalSize  string `json:"original_size,omitempty"`
	SizeMatched   string `json:"size_matched,omitempty"`
	Status        string `json:"status,omitempty"`

	// trade fields
	TradeID    string `json:"id,omitempty"`
	MatchTime  string `json:"match_time,omitempty"`
	Size       string `json:"size,omitempty"`
	Outcome    string `json:"outcome,omitempty"`
}

// Key implements wsmux.RawEvent. The user channel's subscription key is
// the market, not the asset_id (spec.md §3).
func (e RawEvent) Key() string { return e.Market }

// Kind implements wsmux.RawEvent.
func (e RawEvent) Kind() string { return e.EventType }

// AuthPayload is the auth block sent once on open (spec.md §6).
type AuthPayload struct {
	APIKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// SubscribeMessage is sent once on open (spec.md §6).
type SubscribeMessage struct {
	Markets []string    `json:"markets"`
	Type    string      `json:"type"`
	Auth    AuthPayload `json:"auth"`
}

// Handlers is the user-channel callback record (spec.md §3). Every field
// is optional.
type Handlers struct {
	wsmux.Lifecycle

	OnOrder func(events []RawEvent)
	OnTrade func(events []RawEvent)
}

// dispatchOrder and dispatchTrade are always invoked once per frame that
// carried at least one event of that kind, with the (possibly empty)
// dispatch-filtered batch (spec.md §4.4).

func (h Handlers) dispatchOrder(filtered []RawEvent) {
	if h.OnOrder != nil {
		h.OnOrder(filtered)
	}
}

func (h Handlers) dispatchTrade(filtered []RawEvent) {
	if h.OnTrade != nil {
		h.OnTrade(filtered)
	}
}
