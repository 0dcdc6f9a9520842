package cache_test

import (
	"testing"
	"time"

	cdbsup "github.com/CapulusCodeNinja/mcp-nexus-cdb"
	"github.com/CapulusCodeNinja/mcp-nexus-cdb/cache"
)

func result(text string) cdbsup.CommandResult {
	now := time.Now()
	return cdbsup.NewSuccessResult(text, []string{text}, nil, now, now, now)
}

func TestStoreAndGetRoundTrip(t *testing.T) {
	c := cache.New(cache.DefaultOptions())
	c.Store("a", result("a-out"))

	got, ok := c.Get("a")
	if !ok {
		t.Fatal("Get(a) = not found, want found")
	}
	if got.OutputText != "a-out" {
		t.Errorf("OutputText = %q, want a-out", got.OutputText)
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	c := cache.New(cache.DefaultOptions())
	if _, ok := c.Get("missing"); ok {
		t.Error("Get(missing) = found, want not found")
	}
}

func TestHardBoundMaxResultsEvictsLRU(t *testing.T) {
	c := cache.New(cache.Options{MaxResults: 2, MaxMemoryBytes: cache.DefaultMaxMemoryBytes})
	c.Store("a", result("a"))
	time.Sleep(time.Millisecond)
	c.Store("b", result("b"))
	time.Sleep(time.Millisecond)
	// Touch "a" so "b" becomes the least-recently-accessed.
	c.Get("a")
	time.Sleep(time.Millisecond)
	c.Store("c", result("c"))

	if c.Has("b") {
		t.Error("Has(b) = true, want false (should have been LRU-evicted)")
	}
	if !c.Has("a") || !c.Has("c") {
		t.Error("expected a and c to survive eviction")
	}
	if c.Stats().Count != 2 {
		t.Errorf("Count = %d, want 2", c.Stats().Count)
	}
}

func TestHardBoundMaxMemoryBytesEvicts(t *testing.T) {
	big := result("x")
	big.ApproximateSizeBytes = 1000
	small := result("y")
	small.ApproximateSizeBytes = 10

	c := cache.New(cache.Options{MaxResults: 100, MaxMemoryBytes: 1005})
	c.Store("big", big)
	time.Sleep(time.Millisecond)
	c.Store("small1", small) // pushes total to 1010, over 1005: evicts oldest (big)
	time.Sleep(time.Millisecond)
	c.Store("small2", small)

	if c.Has("big") {
		t.Error("Has(big) = true, want false (should be evicted over byte bound)")
	}
	if !c.Has("small1") || !c.Has("small2") {
		t.Error("expected both small entries to survive")
	}
}

func TestOlderUnaccessedEntryEvictedFirst(t *testing.T) {
	c := cache.New(cache.Options{MaxResults: 1, MaxMemoryBytes: cache.DefaultMaxMemoryBytes})
	c.Store("first", result("first"))
	c.Store("second", result("second"))

	if c.Has("first") {
		t.Error("Has(first) = true, want false (the earlier-stored, never-accessed entry should evict first)")
	}
	if !c.Has("second") {
		t.Error("Has(second) = false, want true")
	}
}

type stubPressure struct {
	load, threshold uint64
	err             error
}

func (s stubPressure) MemoryLoadBytes() (uint64, error)                { return s.load, s.err }
func (s stubPressure) HighMemoryLoadThresholdBytes() (uint64, error)   { return s.threshold, s.err }

func TestAdaptivePressureEvictsAboveStrictThreshold(t *testing.T) {
	c := cache.New(cache.Options{
		MaxResults:     100,
		MaxMemoryBytes: cache.DefaultMaxMemoryBytes,
		SystemPressure: stubPressure{load: 86, threshold: 100}, // 0.86 > 0.85
	})
	c.Store("a", result("a"))
	c.Store("b", result("b"))

	if c.Stats().Count != 0 {
		t.Errorf("Count = %d, want 0 (all entries evicted under pressure)", c.Stats().Count)
	}
	if c.Stats().Evictions == 0 {
		t.Error("Evictions = 0, want > 0")
	}
}

func TestAdaptivePressureDoesNotEvictAtExactThreshold(t *testing.T) {
	c := cache.New(cache.Options{
		MaxResults:     100,
		MaxMemoryBytes: cache.DefaultMaxMemoryBytes,
		SystemPressure: stubPressure{load: 85, threshold: 100}, // exactly 0.85, not > 0.85
	})
	c.Store("a", result("a"))

	if !c.Has("a") {
		t.Error("Has(a) = false, want true: exact-equality pressure must not evict")
	}
}

func TestAdaptivePressureProviderErrorFallsBackToHardBoundsOnly(t *testing.T) {
	c := cache.New(cache.Options{
		MaxResults:     100,
		MaxMemoryBytes: cache.DefaultMaxMemoryBytes,
		SystemPressure: stubPressure{err: errBoom},
	})
	c.Store("a", result("a"))

	if !c.Has("a") {
		t.Error("Has(a) = false, want true: a provider error must be treated as no pressure")
	}
}

var errBoom = &stubError{"boom"}

type stubError struct{ msg string }

func (e *stubError) Error() string { return e.msg }

func TestRemoveAndClear(t *testing.T) {
	c := cache.New(cache.DefaultOptions())
	c.Store("a", result("a"))
	c.Remove("a")
	if c.Has("a") {
		t.Error("Has(a) = true after Remove, want false")
	}

	c.Store("b", result("b"))
	c.Store("d", result("d"))
	c.Clear()
	if c.Stats().Count != 0 {
		t.Errorf("Count = %d after Clear, want 0", c.Stats().Count)
	}
}

func TestDisposedCacheRejectsStoresAndReads(t *testing.T) {
	c := cache.New(cache.DefaultOptions())
	c.Store("a", result("a"))
	c.Dispose()

	c.Store("b", result("b"))
	if c.Has("a") || c.Has("b") {
		t.Error("disposed cache still reports entries present")
	}
	if _, ok := c.Get("a"); ok {
		t.Error("Get on disposed cache = found, want not found")
	}
}
