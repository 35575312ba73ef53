// Package collector provides the main data collection service: it wires
// Gamma market discovery into the market-channel subscription
// multiplexer and forwards every event to a storage.Storage sink.
package collector

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/johan/polymarket-mux/internal/book"
	"github.com/johan/polymarket-mux/internal/config"
	"github.com/johan/polymarket-mux/internal/gamma"
	"github.com/johan/polymarket-mux/internal/market"
	"github.com/johan/polymarket-mux/internal/ratelimit"
	"github.com/johan/polymarket-mux/internal/storage"
	"github.com/johan/polymarket-mux/internal/wsmux"
)

// Service is the main data collection service.
type Service struct {
	config  *config.Config
	gamma   *gamma.Client
	storage storage.Storage
	books   *book.Cache
	manager *wsmux.Manager

	mu       sync.Mutex
	tokenIDs []string
}

// NewService creates a new collector service.
func NewService(cfg *config.Config) (*Service, error) {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	gammaClient := gamma.NewClient(httpClient)

	var stor storage.Storage
	var err error
	switch cfg.Storage.Type {
	case "file":
		stor, err = storage.NewFileStorage(cfg.Storage.OutputDir, cfg.Storage.RotationInterval)
		if err != nil {
			return nil, fmt.Errorf("creating file storage: %w", err)
		}
	case "none":
		stor = storage.NewNullStorage()
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Storage.Type)
	}

	s := &Service{
		config:  cfg,
		gamma:   gammaClient,
		storage: stor,
		books:   book.NewCache(),
	}

	handlers := market.Handlers{
		Lifecycle: wsmux.Lifecycle{
			OnOpen: func(groupID string, keys []string) {
				log.Printf("group %s open with %d keys", groupID, len(keys))
			},
			OnClose: func(groupID string, code int, reason string) {
				log.Printf("group %s closed: %d %s", groupID, code, reason)
			},
			OnError: func(err error) {
				log.Printf("collector error: %v", err)
			},
		},
		OnBook:           s.write,
		OnPriceChange:    s.write,
		OnTickSizeChange: s.write,
		OnLastTradePrice: s.write,
		OnPriceUpdate:    s.writePriceUpdates,
	}

	policy := market.NewPolicy(handlers, s.books)
	if cfg.Mux.MarketURL != "" {
		policy.WithURL(cfg.Mux.MarketURL)
	}

	limiter := ratelimit.Default()
	if cfg.Mux.RateLimitTokensPerSecond > 0 || cfg.Mux.RateLimitBurst > 0 || cfg.Mux.RateLimitMaxConcurrent > 0 {
		tokens := cfg.Mux.RateLimitTokensPerSecond
		if tokens <= 0 {
			tokens = ratelimit.DefaultTokensPerSecond
		}
		burst := cfg.Mux.RateLimitBurst
		if burst <= 0 {
			burst = ratelimit.DefaultBurst
		}
		maxConcurrent := cfg.Mux.RateLimitMaxConcurrent
		if maxConcurrent <= 0 {
			maxConcurrent = ratelimit.DefaultMaxConcurrent
		}
		limiter = ratelimit.New(tokens, burst, maxConcurrent)
	}

	registry := wsmux.NewGroupRegistry(cfg.Mux.MaxMarketsPerWS, uuid.NewString)
	s.manager = wsmux.NewManager(registry, policy, wsmux.Options{
		ReconnectAndCleanupInterval: cfg.Mux.ReconnectAndCleanupInterval,
		MaxPerGroup:                 cfg.Mux.MaxMarketsPerWS,
		Limiter:                     limiter,
	}, s.books.Clear)

	return s, nil
}

// Run starts the collector service.
func (s *Service) Run(ctx context.Context) error {
	log.Println("Starting collector service...")

	if err := s.discoverMarkets(ctx); err != nil {
		return fmt.Errorf("initial market discovery: %w", err)
	}
	if len(s.tokenIDs) == 0 {
		return fmt.Errorf("no markets discovered")
	}
	log.Printf("Discovered %d tokens to track", len(s.tokenIDs))

	s.manager.AddSubscriptions(ctx, s.tokenIDs)
	log.Println("Subscribed to market feed. Collecting data...")

	refreshTicker := time.NewTicker(s.config.Discovery.RefreshInterval)
	defer refreshTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Shutting down collector service...")
			s.manager.ClearState()
			return s.storage.Close()

		case <-refreshTicker.C:
			log.Println("Refreshing market list...")
			before := s.currentTokenIDs()
			if err := s.discoverMarkets(ctx); err != nil {
				log.Printf("Warning: market refresh failed: %v", err)
				continue
			}
			after := s.currentTokenIDs()
			s.manager.AddSubscriptions(ctx, diff(after, before))
			s.manager.RemoveSubscriptions(diff(before, after), s.books.Remove)
			log.Printf("Updated subscription with %d tokens", len(after))
		}
	}
}

// discoverMarkets fetches active markets and extracts token IDs.
func (s *Service) discoverMarkets(ctx context.Context) error {
	var allTokenIDs []string
	active := s.config.Discovery.ActiveOnly

	if len(s.config.Discovery.Tags) > 0 {
		for _, tag := range s.config.Discovery.Tags {
			events, err := s.gamma.FetchEvents(ctx, &gamma.Filter{
				Active:  &active,
				TagSlug: tag,
				Limit:   s.config.Discovery.MaxMarkets,
			})
			if err != nil {
				log.Printf("Warning: failed to fetch events for tag %s: %v", tag, err)
				continue
			}

			for _, event := range events {
				for _, mkt := range event.Markets {
					tokenIDs, err := mkt.ParseTokenIDs()
					if err != nil {
						log.Printf("Warning: failed to parse token IDs for market %s: %v", mkt.ID, err)
						continue
					}
					allTokenIDs = append(allTokenIDs, tokenIDs...)
				}
			}
		}
	} else {
		markets, err := s.gamma.FetchMarkets(ctx, &gamma.Filter{
			Active: &active,
			Limit:  s.config.Discovery.MaxMarkets,
		})
		if err != nil {
			return fmt.Errorf("fetching markets: %w", err)
		}

		for _, mkt := range markets {
			tokenIDs, err := mkt.ParseTokenIDs()
			if err != nil {
				log.Printf("Warning: failed to parse token IDs for market %s: %v", mkt.ID, err)
				continue
			}
			allTokenIDs = append(allTokenIDs, tokenIDs...)
		}
	}

	if s.config.Discovery.MaxMarkets > 0 && len(allTokenIDs) > s.config.Discovery.MaxMarkets*2 {
		allTokenIDs = allTokenIDs[:s.config.Discovery.MaxMarkets*2]
	}

	s.mu.Lock()
	s.tokenIDs = allTokenIDs
	s.mu.Unlock()

	return nil
}

func (s *Service) currentTokenIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.tokenIDs))
	copy(out, s.tokenIDs)
	return out
}

// diff returns the elements of a not present in b.
func diff(a, b []string) []string {
	inB := make(map[string]struct{}, len(b))
	for _, k := range b {
		inB[k] = struct{}{}
	}
	var out []string
	for _, k := range a {
		if _, ok := inB[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}

func (s *Service) write(events []market.RawEvent) {
	for _, e := range events {
		if err := s.storage.Write(e); err != nil {
			log.Printf("Error writing event: %v", err)
		}
	}
}

func (s *Service) writePriceUpdates(events []market.PriceUpdateEvent) {
	for _, e := range events {
		if err := s.storage.Write(e); err != nil {
			log.Printf("Error writing price_update: %v", err)
		}
	}
}

// Close shuts down the service.
func (s *Service) Close() error {
	if s.manager != nil {
		s.manager.ClearState()
	}
	if s.storage != nil {
		return s.storage.Close()
	}
	return nil
}
