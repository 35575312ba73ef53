// Package market implements the market-channel ChannelPolicy: the
// per-asset order-book stream, decimal book maintenance, and derived
// price_update synthesis (spec.md §4.3, §6). Wire shapes are grounded on
// the teacher's internal/ws/types.go WSMessage, split here into distinct
// per-event-kind Go types.
package market

import "github.com/johan/polymarket-mux/internal/wsmux"

// Event kind discriminators, matching spec.md §6's event_type values.
const (
	KindBook            = "book"
	KindPriceChange     = "price_change"
	KindTickSizeChange  = "tick_size_change"
	KindLastTradePrice  = "last_trade_price"
	KindPriceUpdate     = "price_update" // synthetic, never sent on the wire
)

// WireLevel is one price/size pair as it appears on the wire (decimal
// strings, per spec.md §4.1).
type WireLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// WireChange is one price_change delta as it appears on the wire.
type WireChange struct {
	Price string `json:"price"`
	Size  string `json:"size"`
	Side  string `json:"side"`
}

// RawEvent is the union of every market wire event shape. Only the
// fields relevant to EventType are populated for a given instance,
// mirroring the teacher's single flattened WSMessage struct.
type RawEvent struct {
	EventType string      `json:"event_type"`
	AssetID   string      `json:"asset_id"`
	Timestamp string      `json:"timestamp,omitempty"`
	Bids      []WireLevel `json:"bids,omitempty"`
	Asks      []WireLevel `json:"asks,omitempty"`
	Hash      string      `json:"hash,omitempty"`
	Changes   []WireChange `json:"price_changes,omitempty"`

	OldTickSize string `json:"old_tick_size,omitempty"`
	NewTickSize string `json:"new_tick_size,omitempty"`

	Price string `json:"price,omitempty"`
	Size  string `json:"size,omitempty"`
	Side  string `json:"side,omitempty"`
}

// Key implements wsmux.RawEvent.
func (e RawEvent) Key() string { return e.AssetID }

// Kind implements wsmux.RawEvent.
func (e RawEvent) Kind() string { return e.EventType }

// PriceUpdateEvent is the synthetic event emitted to handlers when the
// local book implies a new fair price (spec.md §6's price_update shape).
// It is never sent on the wire.
type PriceUpdateEvent struct {
	AssetID         string      `json:"asset_id"`
	EventType       string      `json:"event_type"`
	TriggeringEvent RawEvent    `json:"triggeringEvent"`
	Timestamp       string      `json:"timestamp"`
	Book            BookSnapshot `json:"book"`
	Price           string      `json:"price"`
	Midpoint        string      `json:"midpoint"`
	Spread          string      `json:"spread"`
}

// BookSnapshot is the bids/asks view embedded in a PriceUpdateEvent.
type BookSnapshot struct {
	Bids []WireLevel `json:"bids"`
	Asks []WireLevel `json:"asks"`
}

// SubscribeMessage is sent once on open (spec.md §6).
type SubscribeMessage struct {
	AssetIDs     []string `json:"assets_ids"`
	Type         string   `json:"type"`
	InitialDump  bool     `json:"initial_dump"`
}

// Handlers is the market-channel callback record (spec.md §3). Every
// field is optional.
type Handlers struct {
	wsmux.Lifecycle

	OnBook           func(events []RawEvent)
	OnPriceChange    func(events []RawEvent)
	OnTickSizeChange func(events []RawEvent)
	OnLastTradePrice func(events []RawEvent)
	OnPriceUpdate    func(events []PriceUpdateEvent)
}

// dispatchBook, dispatchPriceChange, dispatchTickSizeChange and
// dispatchLastTradePrice call their handler once per non-empty raw bucket
// (original) with the registry-filtered version of that bucket
// (filtered), which may itself be empty — callers still receive the
// (possibly empty) call so they can observe that a tick occurred
// (spec.md §4.4). dispatchPriceUpdate calls OnPriceUpdate only when at
// least one synthesized update survives the filter.

func (h Handlers) dispatchBook(original, filtered []RawEvent) {
	if len(original) > 0 && h.OnBook != nil {
		h.OnBook(filtered)
	}
}

func (h Handlers) dispatchPriceChange(original, filtered []RawEvent) {
	if len(original) > 0 && h.OnPriceChange != nil {
		h.OnPriceChange(filtered)
	}
}

func (h Handlers) dispatchTickSizeChange(original, filtered []RawEvent) {
	if len(original) > 0 && h.OnTickSizeChange != nil {
		h.OnTickSizeChange(filtered)
	}
}

func (h Handlers) dispatchLastTradePrice(original, filtered []RawEvent) {
	if len(original) > 0 && h.OnLastTradePrice != nil {
		h.OnLastTradePrice(filtered)
	}
}

func (h Handlers) dispatchPriceUpdate(events []PriceUpdateEvent) {
	if len(events) > 0 && h.OnPriceUpdate != nil {
		h.OnPriceUpdate(events)
	}
}
