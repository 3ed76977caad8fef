package cache

import (
	"testing"
	"time"
)

func TestRegionBasicOperations(t *testing.T) {
	c := New(0, "names")
	defer c.Close()

	r, ok := c.Region("names")
	if !ok {
		t.Fatal("region should be defined")
	}

	r.Set("key1", "value1", 0)

	if value, exists := r.Get("key1"); !exists || value != "value1" {
		t.Errorf("Expected value1, got %v (exists: %t)", value, exists)
	}

	if _, ok := r.Get("key1"); !ok {
		t.Error("Key should exist")
	}

	if r.Len() != 1 {
		t.Errorf("Expected length 1, got %d", r.Len())
	}

	if !r.Del("key1") {
		t.Error("Delete should return true")
	}

	if _, ok := r.Get("key1"); ok {
		t.Error("Key should not exist after deletion")
	}

	if r.Del("key1") {
		t.Error("Second delete should return false")
	}
}

func TestUndefinedRegion(t *testing.T) {
	c := New(0, "names")
	defer c.Close()

	if _, ok := c.Region("missing"); ok {
		t.Error("undefined region should be absent")
	}

	if got := c.Define("names"); got == nil {
		t.Error("Define should return the existing region")
	}

	regions := c.Regions()
	if len(regions) != 1 || regions[0] != "names" {
		t.Errorf("Expected [names], got %v", regions)
	}
}

func TestRegionsAreIndependent(t *testing.T) {
	c := New(0, "a", "b")
	defer c.Close()

	a, _ := c.Region("a")
	b, _ := c.Region("b")

	a.Set("k", "in-a", 0)

	if _, exists := b.Get("k"); exists {
		t.Error("key leaked across regions")
	}
	if a.Len() != 1 || b.Len() != 0 {
		t.Errorf("Expected sizes 1/0, got %d/%d", a.Len(), b.Len())
	}
}

func TestRegionExpiration(t *testing.T) {
	c := New(0, "names")
	defer c.Close()
	r, _ := c.Region("names")

	r.Set("temp_key", "temp_value", 100*time.Millisecond)

	if value, exists := r.Get("temp_key"); !exists || value != "temp_value" {
		t.Errorf("Expected temp_value, got %v (exists: %t)", value, exists)
	}
	if ttl := r.TTL("temp_key"); ttl <= 0 {
		t.Errorf("Expected positive TTL, got %v", ttl)
	}

	time.Sleep(150 * time.Millisecond)

	if value, exists := r.Get("temp_key"); exists {
		t.Errorf("Key should have expired, but got %v", value)
	}
	if r.Len() != 0 {
		t.Errorf("Expired entry should not count, got %d", r.Len())
	}
	if ttl := r.TTL("temp_key"); ttl != -2*time.Second {
		t.Errorf("Expected -2s for expired key, got %v", ttl)
	}
}

func TestCleanupPurgesExpired(t *testing.T) {
	c := New(20*time.Millisecond, "names")
	defer c.Close()
	r, _ := c.Region("names")

	r.Set("gone", "x", 10*time.Millisecond)
	r.Set("kept", "y", 0)

	time.Sleep(100 * time.Millisecond)

	r.mu.RLock()
	_, stillThere := r.data["gone"]
	r.mu.RUnlock()
	if stillThere {
		t.Error("cleanup should have purged the expired entry")
	}
	if r.TTL("kept") != -1*time.Second {
		t.Error("persistent entry should report -1s")
	}
}

func TestClearAndStats(t *testing.T) {
	c := New(0, "a", "b")
	defer c.Close()
	a, _ := c.Region("a")
	b, _ := c.Region("b")

	a.Set("1", 1, 0)
	a.Set("2", 2, 0)
	b.Set("1", 1, 0)

	stats := c.Stats()
	if stats["entries"] != 3 || stats["regions"] != 2 || stats["region:a"] != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	if n := a.Clear(); n != 2 {
		t.Errorf("Expected 2 cleared, got %d", n)
	}
	if a.Len() != 0 {
		t.Error("region should be empty after Clear")
	}
}
