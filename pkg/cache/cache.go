// Package cache provides the in-memory region engine shared by the embedded
// backend and the cachemir cache server.
//
// A Cache holds a fixed set of named regions. Each region is an independent
// key/value namespace with optional per-entry expiration and its own size.
// Regions must be defined before use: looking up an undefined region reports
// absence instead of creating it, so a misconfigured caller notices at once.
//
// Example usage:
//
//	c := cache.New(time.Minute, "basque-names")
//	defer c.Close()
//
//	region, ok := c.Region("basque-names")
//	if !ok {
//		log.Fatal("region not configured")
//	}
//
//	region.Set("0", "Aitor", 0)
//	value, exists := region.Get("0")
//	fmt.Println(value, exists, region.Len())
//
// All operations are thread-safe. Values are stored as-is; the engine never
// copies or serializes them.
package cache

import (
	"sort"
	"sync"
	"time"
)

// DefaultCleanupInterval is how often expired entries are purged.
const DefaultCleanupInterval = time.Minute

// Value represents a single region entry with its data and expiration.
type Value struct {
	Data      interface{} // The stored value
	ExpiresAt time.Time   // When this value expires (zero means no expiration)
}

func (v *Value) expired(now time.Time) bool {
	return !v.ExpiresAt.IsZero() && now.After(v.ExpiresAt)
}

// Cache is a set of named regions with background expiration cleanup.
//
// Example:
//
//	c := cache.New(0, "sessions", "profiles")
//	defer c.Close()
//
//	profiles, _ := c.Region("profiles")
//	profiles.Set("user:1", profile, 30*time.Minute)
type Cache struct {
	regions map[string]*Region // Defined regions by name
	stop    chan struct{}      // Closed by Close to end cleanup
	mu      sync.RWMutex       // Protects regions
	once    sync.Once
}

// New creates a Cache with the given regions defined and starts the background
// cleanup goroutine. A non-positive interval selects DefaultCleanupInterval.
//
// Parameters:
//   - cleanupInterval: How often expired entries are removed
//   - regions: Names of the regions to define up front
//
// Returns:
//   - A new Cache ready for use; call Close to stop the cleanup goroutine
func New(cleanupInterval time.Duration, regions ...string) *Cache {
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}

	c := &Cache{
		regions: make(map[string]*Region),
		stop:    make(chan struct{}),
	}
	for _, name := range regions {
		c.Define(name)
	}

	go c.cleanupExpired(cleanupInterval)
	return c
}

// Define creates the named region if it does not exist yet and returns it.
func (c *Cache) Define(name string) *Region {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r, ok := c.regions[name]; ok {
		return r
	}
	r := &Region{name: name, data: make(map[string]*Value)}
	c.regions[name] = r
	return r
}

// Region returns the named region and whether it is defined.
func (c *Cache) Region(name string) (*Region, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	r, ok := c.regions[name]
	return r, ok
}

// Regions returns the defined region names in sorted order.
func (c *Cache) Regions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.regions))
	for name := range c.regions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close stops the background cleanup. Stored data stays readable.
func (c *Cache) Close() {
	c.once.Do(func() { close(c.stop) })
}

// cleanupExpired runs in a background goroutine and removes expired entries
// from every region on each tick until Close is called.
func (c *Cache) cleanupExpired(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case now := <-ticker.C:
			c.mu.RLock()
			regions := make([]*Region, 0, len(c.regions))
			for _, r := range c.regions {
				regions = append(regions, r)
			}
			c.mu.RUnlock()

			for _, r := range regions {
				r.purge(now)
			}
		}
	}
}

// Stats returns per-region entry counts plus the number of regions.
//
// Returns:
//   - Map containing:
//   - "regions": number of defined regions
//   - "entries": total live entries across all regions
//   - "region:<name>": live entries in that region
func (c *Cache) Stats() map[string]interface{} {
	stats := make(map[string]interface{})
	total := 0
	for _, name := range c.Regions() {
		r, ok := c.Region(name)
		if !ok {
			continue
		}
		n := r.Len()
		stats["region:"+name] = n
		total += n
	}
	stats["regions"] = len(c.Regions())
	stats["entries"] = total
	return stats
}

// Region is a single named key/value namespace.
type Region struct {
	data map[string]*Value // Entries by key
	name string
	mu   sync.RWMutex // Protects data
}

// Name returns the region name.
func (r *Region) Name() string {
	return r.name
}

// Get retrieves a value. Returns false if the key is absent or expired.
//
// Example:
//
//	if v, ok := region.Get("0"); ok {
//		fmt.Printf("cached: %v\n", v)
//	}
func (r *Region) Get(key string) (interface{}, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	value, exists := r.data[key]
	if !exists || value.expired(time.Now()) {
		return nil, false
	}
	return value.Data, true
}

// Set stores a value. A zero ttl means the entry does not expire.
//
// Parameters:
//   - key: The key to store
//   - val: The value to store
//   - ttl: Time-to-live duration (0 for no expiration)
func (r *Region) Set(key string, val interface{}, ttl time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	value := &Value{Data: val}
	if ttl > 0 {
		value.ExpiresAt = time.Now().Add(ttl)
	}
	r.data[key] = value
}

// Del removes a key. Returns true if a live entry was removed.
func (r *Region) Del(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	value, exists := r.data[key]
	if !exists {
		return false
	}
	delete(r.data, key)
	return !value.expired(time.Now())
}

// TTL returns the remaining time to live of a key.
// Returns -2s if the key does not exist and -1s if it never expires.
func (r *Region) TTL(key string) time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now()
	value, exists := r.data[key]
	if !exists || value.expired(now) {
		return -2 * time.Second
	}
	if value.ExpiresAt.IsZero() {
		return -1 * time.Second
	}
	return value.ExpiresAt.Sub(now)
}

// Len returns the number of live entries.
func (r *Region) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now()
	n := 0
	for _, value := range r.data {
		if !value.expired(now) {
			n++
		}
	}
	return n
}

// Clear removes every entry and returns how many live entries were dropped.
func (r *Region) Clear() int {
	n := r.Len()

	r.mu.Lock()
	r.data = make(map[string]*Value)
	r.mu.Unlock()
	return n
}

func (r *Region) purge(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, value := range r.data {
		if value.expired(now) {
			delete(r.data, key)
		}
	}
}
