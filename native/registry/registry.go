// Package registry maintains an insertion-ordered set of uniquely keyed
// values. Identifiers are allocated from a monotonic counter, so a removed id
// is never handed out again, and every entry carries links to its neighbours
// so removal does not need to scan the chain.
//
// The registry is not safe for concurrent use. Owners serialize access.
package registry

import (
	"errors"
	"iter"
	"math"
)

// ErrIDSpaceExhausted is returned once every non-zero uint64 has been issued.
var ErrIDSpaceExhausted = errors.New("registry: identifier space exhausted")

type node[V any] struct {
	prev  uint64
	next  uint64
	value V
}

// Registry maps ids to values and threads the live ids through a doubly
// linked chain. The id 0 is the "absent" sentinel for every traversal call.
type Registry[V any] struct {
	nodes  map[uint64]*node[V]
	head   uint64
	tail   uint64
	lastID uint64
	count  int
}

// New returns an empty registry.
func New[V any]() *Registry[V] {
	return &Registry[V]{nodes: make(map[uint64]*node[V])}
}

// Generate allocates the next id and appends it to the tail of the chain with
// the zero value stored against it.
func (r *Registry[V]) Generate() (uint64, error) {
	if r.lastID == math.MaxUint64 {
		return 0, ErrIDSpaceExhausted
	}
	if r.nodes == nil {
		r.nodes = make(map[uint64]*node[V])
	}
	r.lastID++
	id := r.lastID
	entry := &node[V]{prev: r.tail}
	if r.tail != 0 {
		r.nodes[r.tail].next = id
	} else {
		r.head = id
	}
	r.tail = id
	r.nodes[id] = entry
	r.count++
	return id, nil
}

// Insert allocates an id and stores v against it in one step.
func (r *Registry[V]) Insert(v V) (uint64, error) {
	id, err := r.Generate()
	if err != nil {
		return 0, err
	}
	r.nodes[id].value = v
	return id, nil
}

// Set replaces the value stored for a live id. It reports false when the id
// is not present.
func (r *Registry[V]) Set(id uint64, v V) bool {
	entry, ok := r.nodes[id]
	if !ok {
		return false
	}
	entry.value = v
	return true
}

// Get returns the value stored for id.
func (r *Registry[V]) Get(id uint64) (V, bool) {
	entry, ok := r.nodes[id]
	if !ok {
		var zero V
		return zero, false
	}
	return entry.value, true
}

// Contains reports whether id is live.
func (r *Registry[V]) Contains(id uint64) bool {
	_, ok := r.nodes[id]
	return ok
}

// Remove unlinks id from the chain and drops its value. Absent ids, including
// the 0 sentinel, are reported with false and leave the chain untouched.
func (r *Registry[V]) Remove(id uint64) bool {
	entry, ok := r.nodes[id]
	if !ok {
		return false
	}
	if entry.prev != 0 {
		r.nodes[entry.prev].next = entry.next
	} else {
		r.head = entry.next
	}
	if entry.next != 0 {
		r.nodes[entry.next].prev = entry.prev
	} else {
		r.tail = entry.prev
	}
	delete(r.nodes, id)
	r.count--
	return true
}

// First returns the oldest live id, or 0 when empty.
func (r *Registry[V]) First() uint64 { return r.head }

// Last returns the newest live id, or 0 when empty.
func (r *Registry[V]) Last() uint64 { return r.tail }

// Next returns the successor of id, or 0 after the last element. An absent id
// also yields 0.
func (r *Registry[V]) Next(id uint64) uint64 {
	entry, ok := r.nodes[id]
	if !ok {
		return 0
	}
	return entry.next
}

// Len returns the number of live entries.
func (r *Registry[V]) Len() int { return r.count }

// LastIssued returns the most recently generated id, live or not.
func (r *Registry[V]) LastIssued() uint64 { return r.lastID }

// All iterates the live entries in insertion order. The successor is read
// before each yield, so the loop body may remove the entry it was handed.
func (r *Registry[V]) All() iter.Seq2[uint64, V] {
	return func(yield func(uint64, V) bool) {
		for id := r.head; id != 0; {
			entry, ok := r.nodes[id]
			if !ok {
				return
			}
			next := entry.next
			if !yield(id, entry.value) {
				return
			}
			id = next
		}
	}
}

// IDs returns a snapshot of the live ids in traversal order.
func (r *Registry[V]) IDs() []uint64 {
	out := make([]uint64, 0, r.count)
	for id := r.head; id != 0; id = r.nodes[id].next {
		out = append(out, id)
	}
	return out
}
