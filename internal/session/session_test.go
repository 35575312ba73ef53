package session

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/johan/polymarket-mux/internal/gamma"
)

func testMarket(t *testing.T, id string, endDate time.Time) gamma.Market {
	t.Helper()
	tokenIDs, err := json.Marshal([]string{"tok1", "tok2"})
	if err != nil {
		t.Fatalf("marshaling token ids: %v", err)
	}
	return gamma.Market{
		ID:           id,
		ConditionID:  "cond-" + id,
		EndDate:      endDate,
		ClobTokenIds: string(tokenIDs),
	}
}

func TestNewMarketSession_ParsesTokenIDs(t *testing.T) {
	mkt := testMarket(t, "m1", time.Now().Add(time.Hour))

	sess, err := NewMarketSession(mkt, "eth-up-or-down-15m", t.TempDir(), 30*time.Second)
	if err != nil {
		t.Fatalf("NewMarketSession: %v", err)
	}

	if len(sess.TokenIDs) != 2 {
		t.Fatalf("TokenIDs = %v, want 2 entries", sess.TokenIDs)
	}
	if sess.MarketID != "m1" || sess.ConditionID != "cond-m1" {
		t.Errorf("MarketID/ConditionID = %s/%s, want m1/cond-m1", sess.MarketID, sess.ConditionID)
	}
}

func TestNewMarketSession_ErrorsWithNoTokenIDs(t *testing.T) {
	mkt := gamma.Market{ID: "m2", ClobTokenIds: `[]`}

	if _, err := NewMarketSession(mkt, "eth-up-or-down-15m", t.TempDir(), 30*time.Second); err == nil {
		t.Error("expected error for market with no token IDs, got nil")
	}
}

func TestMarketSession_StartWritesMetadataAndIsIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("Start dials the live market channel, skipping in short mode")
	}
	dir := t.TempDir()
	mkt := testMarket(t, "m3", time.Now().Add(time.Hour))

	sess, err := NewMarketSession(mkt, "eth-up-or-down-15m", dir, 30*time.Second)
	if err != nil {
		t.Fatalf("NewMarketSession: %v", err)
	}

	ctx := context.Background()
	if err := sess.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Starting again must be a no-op, not open a second file.
	if err := sess.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	defer sess.Stop()

	seriesDir := filepath.Join(dir, sess.shortSlug())
	entries, err := os.ReadDir(seriesDir)
	if err != nil {
		t.Fatalf("reading series dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d files in series dir, want 1", len(entries))
	}
}

func TestMarketSession_ShouldCloseAfterGracePeriod(t *testing.T) {
	mkt := testMarket(t, "m4", time.Now().Add(-time.Hour))
	sess, err := NewMarketSession(mkt, "eth-up-or-down-15m", t.TempDir(), time.Millisecond)
	if err != nil {
		t.Fatalf("NewMarketSession: %v", err)
	}

	if !sess.ShouldClose() {
		t.Error("expected session past end date + grace period to be closeable")
	}
}

func TestMarketSession_ShouldNotCloseBeforeGracePeriod(t *testing.T) {
	mkt := testMarket(t, "m5", time.Now().Add(time.Hour))
	sess, err := NewMarketSession(mkt, "eth-up-or-down-15m", t.TempDir(), 30*time.Second)
	if err != nil {
		t.Fatalf("NewMarketSession: %v", err)
	}

	if sess.ShouldClose() {
		t.Error("expected session with future end date to not be closeable")
	}
}

func TestMarketSession_StopIsIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("Start dials the live market channel, skipping in short mode")
	}
	dir := t.TempDir()
	mkt := testMarket(t, "m6", time.Now().Add(time.Hour))
	sess, err := NewMarketSession(mkt, "eth-up-or-down-15m", dir, 30*time.Second)
	if err != nil {
		t.Fatalf("NewMarketSession: %v", err)
	}

	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := sess.Stop(); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if err := sess.Stop(); err != nil {
		t.Errorf("second Stop returned error: %v", err)
	}
}
