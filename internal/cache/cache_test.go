package cache

import (
	"testing"
	"time"
)

func TestGetSet(t *testing.T) {
	c := New[int](8, time.Minute)
	if _, ok := c.Get("missing"); ok {
		t.Error("empty cache returned a hit")
	}

	c.Set("a", 42)
	v, ok := c.Get("a")
	if !ok || v != 42 {
		t.Errorf("Get(a) = %d, %v", v, ok)
	}
}

func TestInvalidate(t *testing.T) {
	c := New[string](8, time.Minute)
	c.Set("board", "cached")
	c.Invalidate("board")
	if _, ok := c.Get("board"); ok {
		t.Error("invalidated key still present")
	}
}

func TestTTLExpiry(t *testing.T) {
	c := New[int](8, 20*time.Millisecond)
	c.Set("a", 1)
	time.Sleep(60 * time.Millisecond)
	if _, ok := c.Get("a"); ok {
		t.Error("entry survived past its TTL")
	}
}
