// file: internal/cache/ttl_test.go
// version: 1.0.0
// guid: e2b8f4a6-1c39-4d75-8a0e-5f7c3b9d1e48

package cache

import (
	"testing"
	"time"
)

func TestTTLGetSet(t *testing.T) {
	c := NewTTL[string](time.Minute)
	c.Set("k", "v")
	v, ok := c.Get("k")
	if !ok || v != "v" {
		t.Fatalf("expected v, got %q ok=%v", v, ok)
	}
}

func TestTTLExpiry(t *testing.T) {
	c := NewTTL[int](time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }
	c.Set("k", 42)

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected expired entry")
	}
	v, fresh, ok := c.Peek("k")
	if !ok || fresh || v != 42 {
		t.Fatalf("expected stale 42, got %d fresh=%v ok=%v", v, fresh, ok)
	}
}

func TestTTLInvalidate(t *testing.T) {
	c := NewTTL[string](time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")
	c.Invalidate("a")
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected a to be invalidated")
	}
	if v, ok := c.Get("b"); !ok || v != "2" {
		t.Fatal("expected b to remain")
	}
	c.InvalidateAll()
	if _, _, ok := c.Peek("b"); ok {
		t.Fatal("expected all invalidated")
	}
}
