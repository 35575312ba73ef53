// Package session ports the teacher's per-market collection lifecycle
// (grace-period expiry, one output file per market) onto the generic
// subscription multiplexer: each MarketSession owns its own BookCache,
// market.Policy, and wsmux.Manager scoped to one market's token IDs,
// instead of a single-purpose ws.Client.
package session

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/johan/polymarket-mux/internal/book"
	"github.com/johan/polymarket-mux/internal/gamma"
	"github.com/johan/polymarket-mux/internal/market"
	"github.com/johan/polymarket-mux/internal/storage"
	"github.com/johan/polymarket-mux/internal/wsmux"
)

// MarketSession manages data collection for a single market instance: one
// BookCache and one wsmux.Manager subscribed to that market's token IDs,
// writing every book/price_change/last_trade_price/price_update event to
// a dedicated gzip-compressed JSONL file.
type MarketSession struct {
	SeriesSlug  string
	MarketID    string
	ConditionID string
	TokenIDs    []string
	EndDate     time.Time
	GracePeriod time.Duration

	outputDir string

	books   *book.Cache
	manager *wsmux.Manager
	sink    *storage.GzipFileStorage

	mu           sync.Mutex
	started      bool
	stopped      bool
	messageCount int64
}

// SessionMetadata is written at the start of each data file.
type SessionMetadata struct {
	Type        string    `json:"type"`
	SeriesSlug  string    `json:"series_slug"`
	MarketID    string    `json:"market_id"`
	ConditionID string    `json:"condition_id"`
	TokenIDs    []string  `json:"token_ids"`
	EndDate     time.Time `json:"end_date"`
	StartTime   time.Time `json:"start_time"`
}

// NewMarketSession creates a session for collecting a market's data,
// deriving its token IDs from mkt's clobTokenIds JSON field.
func NewMarketSession(mkt gamma.Market, seriesSlug, outputDir string, gracePeriod time.Duration) (*MarketSession, error) {
	tokenIDs, err := mkt.ParseTokenIDs()
	if err != nil {
		return nil, fmt.Errorf("parsing token IDs: %w", err)
	}
	if len(tokenIDs) == 0 {
		return nil, fmt.Errorf("no token IDs found for market %s", mkt.ID)
	}

	return &MarketSession{
		SeriesSlug:  seriesSlug,
		MarketID:    mkt.ID,
		ConditionID: mkt.ConditionID,
		TokenIDs:    tokenIDs,
		EndDate:     mkt.EndDate,
		GracePeriod: gracePeriod,
		outputDir:   outputDir,
	}, nil
}

// Start begins collecting data for this market.
func (s *MarketSession) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	seriesDir := filepath.Join(s.outputDir, s.shortSlug())
	filename := fmt.Sprintf("%s_%d.jsonl.gz", s.EndDate.Format("2006-01-02"), s.EndDate.Unix())
	sink, err := storage.NewGzipFileStorage(filepath.Join(seriesDir, filename))
	if err != nil {
		return fmt.Errorf("opening output file: %w", err)
	}
	s.sink = sink

	startTime := time.Now()
	sink.Write(SessionMetadata{
		Type:        "metadata",
		SeriesSlug:  s.SeriesSlug,
		MarketID:    s.MarketID,
		ConditionID: s.ConditionID,
		TokenIDs:    s.TokenIDs,
		EndDate:     s.EndDate,
		StartTime:   startTime,
	})

	s.books = book.NewCache()
	handlers := market.Handlers{
		Lifecycle: wsmux.Lifecycle{
			OnError: func(err error) {
				log.Printf("[%s] market error for %s: %v", s.shortSlug(), s.shortMarketID(), err)
			},
		},
		OnBook:           s.record,
		OnPriceChange:    s.record,
		OnTickSizeChange: s.record,
		OnLastTradePrice: s.record,
		OnPriceUpdate:    s.recordPriceUpdates,
	}

	policy := market.NewPolicy(handlers, s.books)
	registry := wsmux.NewGroupRegistry(0, uuid.NewString)
	s.manager = wsmux.NewManager(registry, policy, wsmux.Options{}, nil)
	s.manager.AddSubscriptions(ctx, s.TokenIDs)

	log.Printf("[%s] Session started for market %s, ends at %s",
		s.shortSlug(), s.shortMarketID(), s.EndDate.Format("15:04:05"))

	return nil
}

// record writes each event in events to the session's sink.
func (s *MarketSession) record(events []market.RawEvent) {
	if s.stoppedNow() {
		return
	}
	for _, e := range events {
		if err := s.sink.Write(e); err != nil {
			log.Printf("[%s] write error: %v", s.shortSlug(), err)
			continue
		}
		atomic.AddInt64(&s.messageCount, 1)
	}
}

func (s *MarketSession) recordPriceUpdates(events []market.PriceUpdateEvent) {
	if s.stoppedNow() {
		return
	}
	for _, e := range events {
		if err := s.sink.Write(e); err != nil {
			log.Printf("[%s] write error: %v", s.shortSlug(), err)
			continue
		}
		atomic.AddInt64(&s.messageCount, 1)
	}
}

func (s *MarketSession) stoppedNow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Stop gracefully stops the session, tearing down its manager and
// flushing its sink.
func (s *MarketSession) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	if s.manager != nil {
		s.manager.ClearState()
	}

	var err error
	if s.sink != nil {
		err = s.sink.Close()
	}

	log.Printf("[%s] Session stopped for market %s, collected %d messages",
		s.shortSlug(), s.shortMarketID(), atomic.LoadInt64(&s.messageCount))

	return err
}

// ShouldClose reports whether the market's end date plus its grace
// period has passed.
func (s *MarketSession) ShouldClose() bool {
	return time.Now().After(s.EndDate.Add(s.GracePeriod))
}

// MessageCount returns the number of events collected.
func (s *MarketSession) MessageCount() int64 {
	return atomic.LoadInt64(&s.messageCount)
}

func (s *MarketSession) shortSlug() string {
	slug := s.SeriesSlug
	if len(slug) > 20 && (slug[:3] == "eth" || slug[:3] == "btc") {
		crypto := slug[:3]
		for _, tf := range []string{"15m", "hourly", "daily", "weekly", "monthly", "5m", "4h"} {
			if len(slug) > len(tf) && slug[len(slug)-len(tf):] == tf {
				return crypto + "-" + tf
			}
		}
	}
	return slug
}

func (s *MarketSession) shortMarketID() string {
	if len(s.MarketID) > 8 {
		return s.MarketID[:8]
	}
	return s.MarketID
}
