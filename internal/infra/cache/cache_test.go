package cache_test

import (
	"testing"
	"time"

	"github.com/boddenberg/church-ledger-bfa-go/internal/infra/cache"
)

func TestCache_SetAndGet(t *testing.T) {
	c := cache.New[string](5 * time.Minute)

	c.Set("CHQ-001", "value1")
	val, ok := c.Get("CHQ-001")
	if !ok {
		t.Fatal("expected key to exist")
	}
	if val != "value1" {
		t.Errorf("expected 'value1', got '%s'", val)
	}
}

func TestCache_GetMiss(t *testing.T) {
	c := cache.New[string](5 * time.Minute)

	_, ok := c.Get("nonexistent")
	if ok {
		t.Fatal("expected cache miss for nonexistent key")
	}
}

func TestCache_Expiration(t *testing.T) {
	c := cache.New[string](50 * time.Millisecond)

	c.Set("CHQ-001", "value1")
	time.Sleep(100 * time.Millisecond)

	_, ok := c.Get("CHQ-001")
	if ok {
		t.Fatal("expected cache entry to be expired")
	}
	if c.Len() != 0 {
		t.Errorf("expected no live entries, got %d", c.Len())
	}
}

func TestCache_Delete(t *testing.T) {
	c := cache.New[string](5 * time.Minute)

	c.Set("CHQ-001", "value1")
	c.Delete("CHQ-001")

	_, ok := c.Get("CHQ-001")
	if ok {
		t.Fatal("expected key to be deleted")
	}
}

func TestCache_NonPositiveTTL(t *testing.T) {
	c := cache.New[int](0)

	c.Set("k", 1)
	if v, ok := c.Get("k"); !ok || v != 1 {
		t.Fatalf("expected default TTL to keep the entry, got %d %v", v, ok)
	}
}
