package hashcache

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestCanonicalHashesIncludeOffsetVariants(t *testing.T) {
	hashes := CanonicalHashes("BTCUSDT", decimal.NewFromInt(100000), decimal.NewFromFloat(0.1), false, decimal.Zero, decimal.Zero)
	want := baseHash("BTCUSDT", decimal.NewFromInt(100050), decimal.NewFromFloat(0.1))
	found := false
	for _, h := range hashes {
		if h == want {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected +50 offset variant among hashes: %v", hashes)
	}
}

func TestOrderHashesDedupIdempotence(t *testing.T) {
	now := time.Now()
	cache := NewOrderHashes()

	hashes := CanonicalHashes("BTCUSDT", decimal.NewFromInt(100000), decimal.NewFromFloat(0.1), false, decimal.Zero, decimal.Zero)
	if cache.AnyPresent(hashes, now) {
		t.Fatal("fresh cache should not report presence")
	}
	cache.Insert(hashes, now)

	// Same order observed again on a later tick must be recognized as a
	// duplicate regardless of which variant is checked.
	again := CanonicalHashes("BTCUSDT", decimal.NewFromInt(100000), decimal.NewFromFloat(0.1), false, decimal.Zero, decimal.Zero)
	if !cache.AnyPresent(again, now.Add(time.Second)) {
		t.Fatal("expected duplicate order to be detected via canonical hash")
	}
}

func TestOrderHashesExpireAfterTTL(t *testing.T) {
	now := time.Now()
	cache := NewOrderHashes()
	hashes := CanonicalHashes("BTCUSDT", decimal.NewFromInt(50000), decimal.NewFromFloat(1), false, decimal.Zero, decimal.Zero)
	cache.Insert(hashes, now)

	later := now.Add(4 * time.Minute)
	if cache.AnyPresent(hashes, later) {
		t.Fatal("expected hash to have expired after TTL")
	}
}

func TestCancelRetryCountForceCleanupThreshold(t *testing.T) {
	c := NewCancelRetryCount()
	id := "src-1"
	for i := 0; i < 9; i++ {
		c.Increment(id)
	}
	if c.Count(id) >= 10 {
		t.Fatalf("expected below force-cleanup threshold, got %d", c.Count(id))
	}
	c.Increment(id)
	if c.Count(id) != 10 {
		t.Fatalf("expected exactly 10 attempts, got %d", c.Count(id))
	}
	c.Reset(id)
	if c.Count(id) != 0 {
		t.Fatal("expected reset to clear the counter")
	}
}

func TestRecentlyProcessedTTL(t *testing.T) {
	now := time.Now()
	r := NewRecentlyProcessed()
	r.Mark("src-1", now)
	if !r.WasProcessed("src-1", now) {
		t.Fatal("expected mark to register as processed")
	}
	if r.WasProcessed("src-1", now.Add(16*time.Second)) {
		t.Fatal("expected 15s TTL to have expired")
	}
}
