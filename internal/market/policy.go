package market

import (
	"fmt"
	"log"

	"github.com/johan/polymarket-mux/internal/book"
	"github.com/johan/polymarket-mux/internal/wsmux"
)

// DefaultURL is the market channel's websocket endpoint.
const DefaultURL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"

// spreadThreshold gates derived price synthesis (spec.md §4.3): below it
// a price_change can trigger an update, at or above it a
// last_trade_price can.
const spreadThreshold = 0.10

// Policy implements wsmux.ChannelPolicy for the market channel. It owns
// the BookCache and the derived price_update synthesis; it never holds a
// registry reference itself (the Manager supplies the dispatch-time
// FilterFunc), matching spec.md §9's composition-over-inheritance note.
type Policy struct {
	url      string
	handlers Handlers
	books    *book.Cache
}

// NewPolicy creates a market ChannelPolicy backed by books. Passing a
// shared *book.Cache lets callers read BookCache state directly (e.g. to
// seed it from a REST snapshot before the socket delivers its first
// "book" event).
func NewPolicy(handlers Handlers, books *book.Cache) *Policy {
	return &Policy{
		url:      DefaultURL,
		handlers: handlers,
		books:    books,
	}
}

// WithURL overrides the dial URL (tests point this at an httptest
// websocket server).
func (p *Policy) WithURL(url string) *Policy {
	p.url = url
	return p
}

// Books exposes the underlying BookCache.
func (p *Policy) Books() *book.Cache {
	return p.books
}

// URL implements wsmux.ChannelPolicy.
func (p *Policy) URL() string { return p.url }

// Lifecycle implements wsmux.ChannelPolicy.
func (p *Policy) Lifecycle() wsmux.Lifecycle { return p.handlers.Lifecycle }

// BuildSubscription implements wsmux.ChannelPolicy.
func (p *Policy) BuildSubscription(g *wsmux.Group) (any, error) {
	return SubscribeMessage{
		AssetIDs:    g.Keys(),
		Type:        "market",
		InitialDump: true,
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
		if e.AssetID == "" || e.EventType == "" {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Dispatch implements wsmux.ChannelPolicy's market-variant message
// pipeline (spec.md §4.3).
func (p *Policy) Dispatch(g *wsmux.Group, events []wsmux.RawEvent, filter wsmux.FilterFunc) {
	// Receive-time filter: drop events for assets no longer in this
	// group, preventing stale events for recently-removed assets from
	// ever reaching the BookCache.
	inGroup := make([]RawEvent, 0, len(events))
	for _, e := range events {
		re := e.(RawEvent)
		if g.HasKey(re.AssetID) {
			inGroup = append(inGroup, re)
		}
	}
	if len(inGroup) == 0 {
		return
	}

	var books, ticks, priceChanges, lastTrades []RawEvent
	for _, e := range inGroup {
		switch e.EventType {
		case KindBook:
			books = append(books, e)
		case KindTickSizeChange:
			ticks = append(ticks, e)
		case KindPriceChange:
			priceChanges = append(priceChanges, e)
		case KindLastTradePrice:
			lastTrades = append(lastTrades, e)
		default:
			p.handlers.Lifecycle.FireError(fmt.Errorf("market: %w: %s", wsmux.ErrUnknownEventKind, e.EventType))
		}
	}

	var priceUpdates []PriceUpdateEvent

	// Dispatch order within one frame: book, tick, price_change,
	// last_trade_price (spec.md §5).
	p.handlers.dispatchBook(books, toRaw(filter, books))
	for _, e := range books {
		p.applyBook(e)
	}

	p.handlers.dispatchTickSizeChange(ticks, toRaw(filter, ticks))

	p.handlers.dispatchPriceChange(priceChanges, toRaw(filter, priceChanges))
	for _, e := range priceChanges {
		if upd, ok := p.applyPriceChangeAndSynthesize(e); ok {
			priceUpdates = append(priceUpdates, upd)
		}
	}

	p.handlers.dispatchLastTradePrice(lastTrades, toRaw(filter, lastTrades))
	for _, e := range lastTrades {
		if upd, ok := p.applyLastTradeAndSynthesize(e); ok {
			priceUpdates = append(priceUpdates, upd)
		}
	}

	if len(priceUpdates) > 0 {
		p.handlers.dispatchPriceUpdate(filterPriceUpdates(filter, priceUpdates))
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
	out := make([]RawEvent, len(filtered))
	for i, e := range filtered {
		out[i] = e.(RawEvent)
	}
	return out
}

// filterPriceUpdates applies the dispatch-time subscription filter to
// synthetic price_update events, keyed by the same asset_id as the
// triggering event.
func filterPriceUpdates(filter wsmux.FilterFunc, updates []PriceUpdateEvent) []PriceUpdateEvent {
	wrapped := make([]wsmux.RawEvent, len(updates))
	for i, u := range updates {
		wrapped[i] = priceUpdateKey{u}
	}
	filtered := filter(wrapped)
	out := make([]PriceUpdateEvent, len(filtered))
	for i, e := range filtered {
		out[i] = e.(priceUpdateKey).PriceUpdateEvent
	}
	return out
}

// priceUpdateKey adapts a PriceUpdateEvent to wsmux.RawEvent so it can
// flow through the same FilterFunc as raw wire events.
type priceUpdateKey struct {
	PriceUpdateEvent
}

func (p priceUpdateKey) Key() string  { return p.AssetID }
func (p priceUpdateKey) Kind() string { return KindPriceUpdate }

func (p *Policy) applyBook(e RawEvent) {
	bids, err := parseLevels(e.Bids)
	if err != nil {
		p.handlers.Lifecycle.FireError(fmt.Errorf("market: book %s: %w", e.AssetID, err))
		return
	}
	asks, err := parseLevels(e.Asks)
	if err != nil {
		p.handlers.Lifecycle.FireError(fmt.Errorf("market: book %s: %w", e.AssetID, err))
		return
	}
	p.books.ReplaceBook(book.BookSnapshot{
		AssetID: e.AssetID,
		Bids:    bids,
		Asks:    asks,
		Hash:    e.Hash,
	})
}

func parseLevels(levels []WireLevel) ([]book.Level, error) {
	out := make([]book.Level, 0, len(levels))
	for _, l := range levels {
		price, err := book.ParseDecimal(l.Price)
		if err != nil {
			return nil, err
		}
		size, err := book.ParseDecimal(l.Size)
		if err != nil {
			return nil, err
		}
		out = append(out, book.Level{Price: price, Size: size})
	}
	return out, nil
}

// applyPriceChangeAndSynthesize applies e's deltas to the BookCache and,
// when the asset's spread is below spreadThreshold and the midpoint has
// changed, synthesizes a price_update (spec.md §4.3 bullet 5).
func (p *Policy) applyPriceChangeAndSynthesize(e RawEvent) (PriceUpdateEvent, bool) {
	deltas := make([]book.Delta, 0, len(e.Changes))
	for _, c := range e.Changes {
		price, err := book.ParseDecimal(c.Price)
		if err != nil {
			p.handlers.Lifecycle.FireError(fmt.Errorf("market: price_change %s: %w", e.AssetID, err))
			return PriceUpdateEvent{}, false
		}
		size, err := book.ParseDecimal(c.Size)
		if err != nil {
			p.handlers.Lifecycle.FireError(fmt.Errorf("market: price_change %s: %w", e.AssetID, err))
			return PriceUpdateEvent{}, false
		}
		deltas = append(deltas, book.Delta{Price: price, Size: size, Side: book.Side(c.Side)})
	}

	if err := p.books.UpsertPriceChange(e.AssetID, deltas); err != nil {
		log.Printf("market: skipping price_change for %s: %v", e.AssetID, err)
		return PriceUpdateEvent{}, false
	}

	atOrAbove, err := p.books.SpreadOver(e.AssetID, spreadThreshold)
	if err != nil {
		log.Printf("market: skipping derived price for %s: %v", e.AssetID, err)
		return PriceUpdateEvent{}, false
	}
	if atOrAbove {
		// spread >= threshold: price_change never synthesizes here.
		return PriceUpdateEvent{}, false
	}

	mid, err := p.books.Midpoint(e.AssetID)
	if err != nil {
		log.Printf("market: skipping derived price for %s: %v", e.AssetID, err)
		return PriceUpdateEvent{}, false
	}

	entry := p.books.GetBookEntry(e.AssetID)
	if entry == nil || entry.Price == mid {
		return PriceUpdateEvent{}, false
	}

	p.books.SetPrice(e.AssetID, mid)
	return p.buildPriceUpdate(e, entry, mid), true
}

// applyLastTradeAndSynthesize synthesizes a price_update from a
// last_trade_price event when the asset's spread is at or above
// spreadThreshold (spec.md §4.3 bullet 5, second clause).
func (p *Policy) applyLastTradeAndSynthesize(e RawEvent) (PriceUpdateEvent, bool) {
	atOrAbove, err := p.books.SpreadOver(e.AssetID, spreadThreshold)
	if err != nil {
		log.Printf("market: skipping derived price for %s: %v", e.AssetID, err)
		return PriceUpdateEvent{}, false
	}
	if !atOrAbove {
		return PriceUpdateEvent{}, false
	}

	price, err := book.ParseDecimal(e.Price)
	if err != nil {
		p.handlers.Lifecycle.FireError(fmt.Errorf("market: last_trade_price %s: %w", e.AssetID, err))
		return PriceUpdateEvent{}, false
	}
	normalized := book.NormalizeTradePrice(price)

	entry := p.books.GetBookEntry(e.AssetID)
	if entry == nil || entry.Price == normalized {
		return PriceUpdateEvent{}, false
	}

	p.books.SetPrice(e.AssetID, normalized)
	return p.buildPriceUpdate(e, entry, normalized), true
}

func (p *Policy) buildPriceUpdate(trigger RawEvent, entry *book.Entry, price string) PriceUpdateEvent {
	return PriceUpdateEvent{
		AssetID:         trigger.AssetID,
		EventType:       KindPriceUpdate,
		TriggeringEvent: trigger,
		Timestamp:       trigger.Timestamp,
		Book:            toWireBook(entry),
		Price:           price,
		Midpoint:        entry.Midpoint,
		Spread:          entry.Spread,
	}
}

func toWireBook(entry *book.Entry) BookSnapshot {
	bids := make([]WireLevel, len(entry.Bids))
	for i, l := range entry.Bids {
		bids[i] = WireLevel{Price: l.Price.String(), Size: l.Size.String()}
	}
	asks := make([]WireLevel, len(entry.Asks))
	for i, l := range entry.Asks {
		asks[i] = WireLevel{Price: l.Price.String(), Size: l.Size.String()}
	}
	return BookSnapshot{Bids: bids, Asks: asks}
}
