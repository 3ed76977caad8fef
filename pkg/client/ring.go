package client

import (
	"sort"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// ring is a consistent hash ring that maps routing keys to nodes.
//
// Each physical node is placed on the ring at several virtual positions so
// keys spread evenly and only about 1/n of them move when a node joins or
// leaves. Lookups walk clockwise to the first position at or after the key's
// hash and wrap around at the end.
type ring struct {
	owners       map[uint64]string // Position -> node
	nodes        map[string]bool   // Active nodes
	sorted       []uint64          // Positions, ascending, for binary search
	virtualNodes int               // Positions per node
	mu           sync.RWMutex
}

func newRing(virtualNodes int) *ring {
	if virtualNodes <= 0 {
		virtualNodes = 150
	}
	return &ring{
		owners:       make(map[uint64]string),
		nodes:        make(map[string]bool),
		virtualNodes: virtualNodes,
	}
}

func (r *ring) add(node string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.nodes[node] {
		return
	}
	r.nodes[node] = true
	for i := 0; i < r.virtualNodes; i++ {
		pos := position(node, i)
		r.owners[pos] = node
		r.sorted = append(r.sorted, pos)
	}
	sort.Slice(r.sorted, func(i, j int) bool { return r.sorted[i] < r.sorted[j] })
}

func (r *ring) remove(node string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.nodes[node] {
		return
	}
	delete(r.nodes, node)
	for i := 0; i < r.virtualNodes; i++ {
		delete(r.owners, position(node, i))
	}

	kept := r.sorted[:0]
	for _, pos := range r.sorted {
		if _, ok := r.owners[pos]; ok {
			kept = append(kept, pos)
		}
	}
	r.sorted = kept
}

// get returns the node owning key, or "" when the ring is empty.
func (r *ring) get(key string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.sorted) == 0 {
		return ""
	}
	h := xxhash.Sum64String(key)
	idx := sort.Search(len(r.sorted), func(i int) bool { return r.sorted[i] >= h })
	if idx == len(r.sorted) {
		idx = 0
	}
	return r.owners[r.sorted[idx]]
}

// members returns the active nodes in sorted order.
func (r *ring) members() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	nodes := make([]string, 0, len(r.nodes))
	for node := range r.nodes {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	return nodes
}

func position(node string, replica int) uint64 {
	return xxhash.Sum64String(node + "#" + strconv.Itoa(replica))
}
