package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/johan/polymarket-mux/internal/config"
	"github.com/johan/polymarket-mux/internal/gamma"
)

// MarketManager orchestrates data collection across multiple market
// sessions, scanning configured series for newly-tradeable markets and
// tearing down sessions once their grace period elapses.
type MarketManager struct {
	gamma  *gamma.Client
	config *config.ManagerConfig
	output string

	mu       sync.RWMutex
	sessions map[string]*MarketSession // key: marketID
}

// NewMarketManager creates a new market manager.
func NewMarketManager(gammaClient *gamma.Client, cfg *config.ManagerConfig, outputDir string) *MarketManager {
	return &MarketManager{
		gamma:    gammaClient,
		config:   cfg,
		output:   outputDir,
		sessions: make(map[string]*MarketSession),
	}
}

// Run starts the manager and runs until the context is cancelled.
func (m *MarketManager) Run(ctx context.Context) error {
	log.Println("Starting market manager...")

	if err := m.discoverMarkets(ctx); err != nil {
		log.Printf("Warning: initial market discovery failed: %v", err)
	}
	m.printStatus()

	scanTicker := time.NewTicker(m.config.ScanInterval)
	defer scanTicker.Stop()

	cleanupTicker := time.NewTicker(10 * time.Second)
	defer cleanupTicker.Stop()

	statusTicker := time.NewTicker(60 * time.Second)
	defer statusTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Shutting down market manager...")
			m.stopAllSessions()
			return ctx.Err()

		case <-scanTicker.C:
			if err := m.discoverMarkets(ctx); err != nil {
				log.Printf("Warning: market discovery failed: %v", err)
			}

		case <-cleanupTicker.C:
			m.cleanupExpiredSessions()

		case <-statusTicker.C:
			m.printStatus()
		}
	}
}

func (m *MarketManager) discoverMarkets(ctx context.Context) error {
	for _, seriesCfg := range m.config.Series {
		if !seriesCfg.Enabled {
			continue
		}

		markets, err := m.gamma.FetchActiveMarketsForSeries(ctx, seriesCfg.Slug)
		if err != nil {
			log.Printf("[%s] Error fetching markets: %v", seriesCfg.Slug, err)
			continue
		}

		for _, mkt := range markets {
			m.mu.RLock()
			_, exists := m.sessions[mkt.ID]
			m.mu.RUnlock()
			if exists {
				continue
			}

			if err := m.startSession(ctx, mkt, seriesCfg.Slug); err != nil {
				log.Printf("[%s] Error starting session for market %s: %v", seriesCfg.Slug, mkt.ID, err)
			}
		}
	}

	return nil
}

func (m *MarketManager) startSession(ctx context.Context, mkt gamma.Market, seriesSlug string) error {
	sess, err := NewMarketSession(mkt, seriesSlug, m.output, m.config.GracePeriod)
	if err != nil {
		return err
	}
	if err := sess.Start(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	m.sessions[mkt.ID] = sess
	m.mu.Unlock()

	return nil
}

func (m *MarketManager) cleanupExpiredSessions() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, sess := range m.sessions {
		if sess.ShouldClose() {
			sess.Stop()
			delete(m.sessions, id)
		}
	}
}

func (m *MarketManager) stopAllSessions() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, sess := range m.sessions {
		sess.Stop()
		delete(m.sessions, id)
	}
}

func (m *MarketManager) printStatus() {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.sessions) == 0 {
		log.Println("No active sessions")
		return
	}

	log.Printf("Active sessions: %d", len(m.sessions))
	for _, sess := range m.sessions {
		remaining := time.Until(sess.EndDate)
		if remaining < 0 {
			remaining = 0
		}
		log.Printf("  [%s] market=%s msgs=%d ends_in=%v",
			sess.shortSlug(), sess.shortMarketID(), sess.MessageCount(), remaining.Round(time.Second))
	}
}

// SessionCount returns the number of active sessions.
func (m *MarketManager) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// GetSessions returns a copy of all active sessions.
func (m *MarketManager) GetSessions() []*MarketSession {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*MarketSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}
