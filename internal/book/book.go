// Package book maintains the local L2 order-book replica (BookCache) and
// derives the midpoint/spread/synthetic-price signal described in
// spec.md §4.1. All price/size arithmetic goes through
// github.com/shopspring/decimal so storage never rounds through binary
// floating point; float64 is used only for the spec's >=0.01-granularity
// threshold comparisons.
package book

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Sentinel errors for cache lookups.
var (
	ErrBookNotFound   = errors.New("book: asset has no snapshot yet")
	ErrIncompleteBook = errors.New("book: one side of the book is empty")
)

// Side identifies which side of the book a price_change delta applies
// to.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Level is one price/size pair in an L2 book.
type Level struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Delta is one price_change entry: a level to upsert (or remove, when
// Size is zero) on the given side.
type Delta struct {
	Price decimal.Decimal
	Size  decimal.Decimal
	Side  Side
}

// Entry is the per-asset book replica plus its last-announced derived
// values, mirroring spec.md's BookEntry.
type Entry struct {
	Bids []Level // descending by price
	Asks []Level // ascending by price

	Midpoint string
	Spread   string
	Price    string

	Hash      string
	Timestamp time.Time
}

func (e *Entry) bestBid() (decimal.Decimal, bool) {
	if len(e.Bids) == 0 {
		return decimal.Zero, false
	}
	return e.Bids[0].Price, true
}

func (e *Entry) bestAsk() (decimal.Decimal, bool) {
	if len(e.Asks) == 0 {
		return decimal.Zero, false
	}
	return e.Asks[0].Price, true
}

func (e *Entry) recomputeDerived() {
	bid, hasBid := e.bestBid()
	ask, hasAsk := e.bestAsk()
	if !hasBid || !hasAsk {
		e.Midpoint = ""
		e.Spread = ""
		return
	}
	mid := bid.Add(ask).Div(decimal.NewFromInt(2))
	e.Midpoint = stripTrailingZeros(mid)
	e.Spread = stripTrailingZeros(ask.Sub(bid))
}

// Cache is a BookCache: a concurrency-safe mapping of asset_id to Entry.
// Per spec.md §5, each asset's Entry has a single writer (the consumer of
// its owning group's messages); the mutex here guards the map itself and
// the rare cross-goroutine read (getBookEntry, spreadOver from a
// different goroutine than the writer).
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewCache creates an empty BookCache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]*Entry)}
}

// BookSnapshot is the input to ReplaceBook: a full L2 snapshot for one
// asset.
type BookSnapshot struct {
	AssetID   string
	Bids      []Level
	Asks      []Level
	Hash      string
	Timestamp time.Time
}

// ReplaceBook replaces the asset's bids/asks/hash/timestamp wholesale and
// recomputes midpoint/spread. Levels are sorted into the book's
// canonical order (bids descending, asks ascending) regardless of the
// order the snapshot arrived in.
func (c *Cache) ReplaceBook(snap BookSnapshot) {
	bids := append([]Level(nil), snap.Bids...)
	asks := append([]Level(nil), snap.Asks...)
	sortDescending(bids)
	sortAscending(asks)

	e := &Entry{
		Bids:      bids,
		Asks:      asks,
		Hash:      snap.Hash,
		Timestamp: snap.Timestamp,
	}

	c.mu.Lock()
	if existing, ok := c.entries[snap.AssetID]; ok {
		e.Price = existing.Price
	}
	e.recomputeDerived()
	c.entries[snap.AssetID] = e
	c.mu.Unlock()
}

// UpsertPriceChange applies deltas to the asset's book in order,
// preserving sort order; a zero-size delta removes that level. Returns
// ErrBookNotFound if the asset has never received a snapshot.
func (c *Cache) UpsertPriceChange(assetID string, deltas []Delta) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[assetID]
	if !ok {
		return ErrBookNotFound
	}

	for _, d := range deltas {
		switch d.Side {
		case SideBuy:
			e.Bids = applyDelta(e.Bids, d, true)
		case SideSell:
			e.Asks = applyDelta(e.Asks, d, false)
		}
	}
	e.recomputeDerived()
	return nil
}

func applyDelta(levels []Level, d Delta, descending bool) []Level {
	idx := -1
	for i, l := range levels {
		if l.Price.Equal(d.Price) {
			idx = i
			break
		}
	}

	if d.Size.IsZero() {
		if idx >= 0 {
			levels = append(levels[:idx], levels[idx+1:]...)
		}
		return levels
	}

	if idx >= 0 {
		levels[idx].Size = d.Size
		return levels
	}

	levels = append(levels, Level{Price: d.Price, Size: d.Size})
	if descending {
		sortDescending(levels)
	} else {
		sortAscending(levels)
	}
	return levels
}

// SpreadOver reports whether the asset's current spread is >= threshold.
// Threshold comparison uses float64 per spec.md's >=0.01-granularity
// allowance; storage itself stays decimal.
func (c *Cache) SpreadOver(assetID string, threshold float64) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[assetID]
	if !ok {
		return false, ErrBookNotFound
	}
	bid, hasBid := e.bestBid()
	ask, hasAsk := e.bestAsk()
	if !hasBid || !hasAsk {
		return false, ErrIncompleteBook
	}
	spread, _ := ask.Sub(bid).Float64()
	return spread >= threshold, nil
}

// Spread returns the asset's current decimal spread, for callers that
// need the exact value rather than a threshold comparison.
func (c *Cache) Spread(assetID string) (decimal.Decimal, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[assetID]
	if !ok {
		return decimal.Zero, ErrBookNotFound
	}
	bid, hasBid := e.bestBid()
	ask, hasAsk := e.bestAsk()
	if !hasBid || !hasAsk {
		return decimal.Zero, ErrIncompleteBook
	}
	return ask.Sub(bid), nil
}

// Midpoint returns the asset's current midpoint as a string.
func (c *Cache) Midpoint(assetID string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[assetID]
	if !ok {
		return "", ErrBookNotFound
	}
	if e.Midpoint == "" {
		return "", ErrIncompleteBook
	}
	return e.Midpoint, nil
}

// GetBookEntry returns a copy of the asset's entry, or nil if absent.
func (c *Cache) GetBookEntry(assetID string) *Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[assetID]
	if !ok {
		return nil
	}
	cp := *e
	cp.Bids = append([]Level(nil), e.Bids...)
	cp.Asks = append([]Level(nil), e.Asks...)
	return &cp
}

// SetPrice records the last-announced synthesized price for the asset,
// used to detect whether a future derived value is actually new. It is a
// no-op if the asset has no snapshot.
func (c *Cache) SetPrice(assetID, price string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[assetID]; ok {
		e.Price = price
	}
}

// Remove drops the asset's entry entirely.
func (c *Cache) Remove(assetID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, assetID)
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*Entry)
}

func sortDescending(levels []Level) {
	insertionSort(levels, func(a, b decimal.Decimal) bool { return a.GreaterThan(b) })
}

func sortAscending(levels []Level) {
	insertionSort(levels, func(a, b decimal.Decimal) bool { return a.LessThan(b) })
}

// insertionSort keeps levels sorted by price according to before. Book
// updates touch at most one or two levels at a time, so a simple
// insertion sort avoids pulling in sort.Slice's closure overhead for
// what is typically a handful of levels.
func insertionSort(levels []Level, before func(a, b decimal.Decimal) bool) {
	for i := 1; i < len(levels); i++ {
		j := i
		for j > 0 && before(levels[j].Price, levels[j-1].Price) {
			levels[j], levels[j-1] = levels[j-1], levels[j]
			j--
		}
	}
}

// stripTrailingZeros renders d with no trailing fractional zeros, per
// spec.md §4.1's requirement when re-serializing a synthesized price.
func stripTrailingZeros(d decimal.Decimal) string {
	s := d.Truncate(4).String()
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	if s == "" || s == "-" {
		return "0"
	}
	return s
}

// ParseDecimal parses a wire price/size string into a decimal.Decimal,
// wrapping shopspring/decimal's parse error with the offending value.
func ParseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &ParseError{Value: s, Err: err}
	}
	return d, nil
}

// ParseError reports a malformed decimal wire value.
type ParseError struct {
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return "book: parsing decimal " + e.Value + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }

// NormalizeTradePrice is the public entry point policies use to strip
// trailing zeros from a last_trade_price wire value before comparing it
// against an entry's stored price (spec.md §4.3's "normalize the trade
// price" step).
func NormalizeTradePrice(price decimal.Decimal) string {
	return stripTrailingZeros(price)
}
