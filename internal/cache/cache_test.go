package cache

import (
	"context"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

func TestLRUCache(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		err := cache.Set(ctx, "key1", []byte("value1"), time.Minute)
		if err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := cache.Get(ctx, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}

		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for cache miss, got: %v", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, "key2", []byte("value2"), time.Minute)

		err := cache.Delete(ctx, "key2")
		if err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		val, _ := cache.Get(ctx, "key2")
		if val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		_ = cache.Set(ctx, "expiring", []byte("temp"), 10*time.Millisecond)

		// Should be available immediately
		val, _ := cache.Get(ctx, "expiring")
		if val == nil {
			t.Error("expected value before expiration")
		}

		// Wait for expiration
		time.Sleep(20 * time.Millisecond)

		val, _ = cache.Get(ctx, "expiring")
		if val != nil {
			t.Error("expected nil after expiration")
		}
	})

	t.Run("LRUEviction", func(t *testing.T) {
		smallCache := NewLRUCache(3)

		_ = smallCache.Set(ctx, "a", []byte("1"), time.Minute)
		_ = smallCache.Set(ctx, "b", []byte("2"), time.Minute)
		_ = smallCache.Set(ctx, "c", []byte("3"), time.Minute)

		// Touch "a" so "b" becomes the eviction candidate
		_, _ = smallCache.Get(ctx, "a")

		_ = smallCache.Set(ctx, "d", []byte("4"), time.Minute)

		val, _ := smallCache.Get(ctx, "b")
		if val != nil {
			t.Error("expected 'b' to be evicted")
		}
		val, _ = smallCache.Get(ctx, "a")
		if val == nil {
			t.Error("expected 'a' to survive eviction")
		}
	})
}

func TestLRUCacheCounters(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		n, err := cache.IncrementCounter(ctx, "acct-1", time.Minute)
		if err != nil {
			t.Fatalf("IncrementCounter failed: %v", err)
		}
		if n != i {
			t.Errorf("count = %d, want %d", n, i)
		}
	}

	n, err := cache.GetCounter(ctx, "acct-1")
	if err != nil {
		t.Fatalf("GetCounter failed: %v", err)
	}
	if n != 3 {
		t.Errorf("GetCounter = %d, want 3", n)
	}

	// A read must not increment
	if n, _ = cache.GetCounter(ctx, "acct-1"); n != 3 {
		t.Errorf("GetCounter after read = %d, want 3", n)
	}

	if n, _ = cache.GetCounter(ctx, "unknown"); n != 0 {
		t.Errorf("unknown counter = %d, want 0", n)
	}
}

func TestLRUCacheCounterWindowReset(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()

	_, _ = cache.IncrementCounter(ctx, "acct-2", 10*time.Millisecond)
	_, _ = cache.IncrementCounter(ctx, "acct-2", 10*time.Millisecond)

	time.Sleep(20 * time.Millisecond)

	n, err := cache.IncrementCounter(ctx, "acct-2", time.Minute)
	if err != nil {
		t.Fatalf("IncrementCounter failed: %v", err)
	}
	if n != 1 {
		t.Errorf("count after window expiry = %d, want 1", n)
	}
}

func TestLRUCacheProfileReports(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()

	report := &domain.ProfileReport{
		CustomerID:      "CUST-1",
		ProfileType:     domain.ProfileStudent,
		AvgMonthlySpend: 3000,
		RiskIndicator:   domain.RiskLow,
	}
	if err := cache.SetProfileReport(ctx, "CUST-1", report, time.Minute); err != nil {
		t.Fatalf("SetProfileReport failed: %v", err)
	}

	got, err := cache.GetProfileReport(ctx, "CUST-1")
	if err != nil {
		t.Fatalf("GetProfileReport failed: %v", err)
	}
	if got == nil || got.CustomerID != "CUST-1" || got.ProfileType != domain.ProfileStudent {
		t.Errorf("unexpected report: %+v", got)
	}

	missing, err := cache.GetProfileReport(ctx, "CUST-404")
	if err != nil {
		t.Fatalf("GetProfileReport failed: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown customer, got %+v", missing)
	}
}

func TestNewCacheFactory(t *testing.T) {
	c, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 10})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := c.(*LRUCache); !ok {
		t.Errorf("expected LRUCache, got %T", c)
	}

	if _, err := New(domain.CacheConfig{Type: "bogus"}); err == nil {
		t.Error("expected error for unsupported cache type")
	}
}
