package cache

import (
	"fmt"
	"testing"
	"time"
)

func TestGetSetAndEviction(t *testing.T) {
	c := NewLRUCache[int](3, time.Minute)

	for i := 0; i < 3; i++ {
		c.Set(fmt.Sprintf("k%d", i), i)
	}
	if got, ok := c.Get("k0"); !ok || got != 0 {
		t.Fatalf("Get(k0) = %d, %v", got, ok)
	}

	// k1 is now the least recently used and gets evicted.
	c.Set("k3", 3)
	if _, ok := c.Get("k1"); ok {
		t.Error("k1 should have been evicted")
	}
	if _, ok := c.Get("k0"); !ok {
		t.Error("k0 should have survived, it was used most recently")
	}
	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}
}

func TestTTLExpiry(t *testing.T) {
	c := NewLRUCache[string](10, 10*time.Millisecond)
	c.Set("k", "v")

	if _, ok := c.Get("k"); !ok {
		t.Fatal("entry should be live immediately after Set")
	}

	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Error("entry should have expired")
	}
}

func TestInvalidateAndPurge(t *testing.T) {
	c := NewLRUCache[string](10, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")

	c.Invalidate("a")
	if _, ok := c.Get("a"); ok {
		t.Error("a should be gone after Invalidate")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("b should still be present")
	}

	c.Purge()
	if c.Len() != 0 {
		t.Errorf("Len() after Purge = %d, want 0", c.Len())
	}
}

func TestSetOverwritesExisting(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("k", 1)
	c.Set("k", 2)

	if got, _ := c.Get("k"); got != 2 {
		t.Errorf("Get(k) = %d, want 2", got)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}
