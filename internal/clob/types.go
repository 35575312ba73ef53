// Package clob provides a client for the Polymarket CLOB REST API. Its
// FetchBook result seeds internal/book's BookCache before the market
// channel's first "book" websocket event arrives (SPEC_FULL.md's domain
// stack), closing the window where a price_change could otherwise land
// against an empty book.
package clob

import "github.com/johan/polymarket-mux/internal/market"

// BookSnapshot represents an order book snapshot from the CLOB API.
type BookSnapshot struct {
	Market         string             `json:"market"`
	AssetID        string             `json:"asset_id"`
	Timestamp      string             `json:"timestamp"`
	Hash           string             `json:"hash"`
	Bids           []market.WireLevel `json:"bids"`
	Asks           []market.WireLevel `json:"asks"`
	MinOrderSize   string             `json:"min_order_size"`
	TickSize       string             `json:"tick_size"`
	NegRisk        bool               `json:"neg_risk"`
	LastTradePrice string             `json:"last_trade_price"`
}

// MidpointResponse represents the response from the midpoint endpoint.
type MidpointResponse struct {
	Mid string `json:"mid"`
}

// SpreadResponse represents the response from the spread endpoint.
type SpreadResponse struct {
	Spread string `json:"spread"`
}

// CLOBMarket represents a market from the CLOB API.
type CLOBMarket struct {
	ConditionID      string       `json:"condition_id"`
	Question         string       `json:"question"`
	MarketSlug       string       `json:"market_slug"`
	MinimumOrderSize float64      `json:"minimum_order_size"`
	MinimumTickSize  float64      `json:"minimum_tick_size"`
	Tokens           []CLOBToken  `json:"tokens"`
	Active           bool         `json:"active"`
	Closed           bool         `json:"closed"`
	NegRisk          bool         `json:"neg_risk"`
}

// CLOBToken represents a token in a CLOB market.
type CLOBToken struct {
	TokenID string  `json:"token_id"`
	Outcome string  `json:"outcome"`
	Price   float64 `json:"price"`
	Winner  bool    `json:"winner"`
}

// MarketsResponse represents the paginated response from the markets endpoint.
type MarketsResponse struct {
	Data       []CLOBMarket `json:"data"`
	NextCursor string       `json:"next_cursor"`
	Limit      int          `json:"limit"`
	Count      int          `json:"count"`
}
