// SPDX-License-Identifier: EPL-2.0

package adjust

import (
	"fmt"
	"sync"
)

// Handle is a generation checked reference into a Registry. A handle whose
// slot was released or recycled resolves to nothing.
type Handle struct {
	index      uint32
	generation uint32
}

type source struct {
	b     *Bindable
	unsub func()
}

type node struct {
	local   [propertyCount]float64
	sources [propertyCount][]source

	parents  []Handle
	children []Handle

	validators [propertyCount]Validator

	cache   [propertyCount]float64
	dirty   bool
	version uint64
}

type slot struct {
	generation uint32
	node       *node
}

// Registry is the arena holding every adjustment node. Links between nodes
// are handles, so a node never keeps another one reachable.
type Registry struct {
	mu    sync.Mutex
	slots []slot
	free  []uint32

	// pending overrides the value of one source of one node while a
	// guarded Bindable write is being checked.
	pending      *Bindable
	pendingNode  *node
	pendingValue float64
}

// DefaultRegistry is used by New when no registry is given.
var DefaultRegistry = NewRegistry()

// NewRegistry creates an empty arena.
func NewRegistry() *Registry {
	return &Registry{}
}

// Len is the number of live nodes.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.slots) - len(r.free)
}

// Valid reports whether h still resolves to a live node.
func (r *Registry) Valid(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.lookup(h) != nil
}

func (r *Registry) alloc() Handle {
	n := &node{dirty: true, version: 1}
	for _, p := range Properties {
		n.local[p] = p.Neutral()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if k := len(r.free); k > 0 {
		idx := r.free[k-1]
		r.free = r.free[:k-1]
		r.slots[idx].node = n

		return Handle{index: idx, generation: r.slots[idx].generation}
	}

	r.slots = append(r.slots, slot{node: n})

	return Handle{index: uint32(len(r.slots) - 1)}
}

func (r *Registry) lookup(h Handle) *node {
	if int(h.index) >= len(r.slots) {
		return nil
	}

	s := r.slots[h.index]
	if s.generation != h.generation {
		return nil
	}

	return s.node
}

func (r *Registry) release(h Handle) {
	r.mu.Lock()

	n := r.lookup(h)
	if n == nil {
		r.mu.Unlock()
		return
	}

	for _, c := range n.children {
		if child := r.lookup(c); child != nil {
			r.invalidate(child)
		}
	}

	for _, p := range n.parents {
		if parent := r.lookup(p); parent != nil {
			parent.children = removeHandle(parent.children, h)
		}
	}

	var unsubs []func()
	for _, list := range n.sources {
		for _, s := range list {
			unsubs = append(unsubs, s.unsub)
		}
	}

	r.slots[h.index] = slot{generation: h.generation + 1}
	r.free = append(r.free, h.index)
	r.mu.Unlock()

	for _, fn := range unsubs {
		fn()
	}
}

// invalidate marks n and its descendants dirty. A dirty node always has
// dirty descendants, so reaching one ends the walk.
func (r *Registry) invalidate(n *node) {
	if n.dirty {
		return
	}

	n.dirty = true
	n.version++

	for _, c := range n.children {
		if child := r.lookup(c); child != nil {
			r.invalidate(child)
		}
	}
}

func (r *Registry) invalidateHandle(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n := r.lookup(h); n != nil {
		r.invalidate(n)
	}
}

// resolve refreshes the cached aggregates of n, dropping parents whose
// slots are gone.
func (r *Registry) resolve(n *node) {
	if !n.dirty {
		return
	}

	live := n.parents[:0]
	for _, h := range n.parents {
		if parent := r.lookup(h); parent != nil {
			r.resolve(parent)
			live = append(live, h)
		}
	}
	clear(n.parents[len(live):])
	n.parents = live

	for _, p := range Properties {
		n.cache[p] = r.compose(n, p, n.local[p])
	}

	n.dirty = false
}

// compose combines local with the sources of n and the cached parent
// aggregates. Parents must be resolved.
func (r *Registry) compose(n *node, p Property, local float64) float64 {
	v := local

	for _, s := range n.sources[p] {
		if n == r.pendingNode && s.b == r.pending {
			v = p.combine(v, r.pendingValue)
			continue
		}
		v = p.combine(v, s.b.Value())
	}

	for _, h := range n.parents {
		if parent := r.lookup(h); parent != nil {
			v = p.combine(v, parent.cache[p])
		}
	}

	return p.finish(v)
}

// validate resolves n and its descendants and runs their validators for
// props. n must have been invalidated by the change under test.
func (r *Registry) validate(n *node, props ...Property) error {
	r.resolve(n)

	for _, p := range props {
		if fn := n.validators[p]; fn != nil {
			if err := fn(n.cache[p]); err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
		}
	}

	for _, c := range n.children {
		if child := r.lookup(c); child != nil {
			if err := r.validate(child, props...); err != nil {
				return err
			}
		}
	}

	return nil
}

// revalidate re-dirties n and its descendants after a check, whatever
// caches the check left behind.
func (r *Registry) revalidate(n *node) {
	n.dirty = false
	r.invalidate(n)
}

// checkSource vets v as the next value of src, a source of p on the node
// at h, against that node and everything below it.
func (r *Registry) checkSource(h Handle, p Property, src *Bindable, v float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.lookup(h)
	if n == nil {
		return nil
	}

	r.pending, r.pendingNode, r.pendingValue = src, n, v
	r.revalidate(n)
	err := r.validate(n, p)
	r.pending, r.pendingNode = nil, nil
	r.revalidate(n)

	return err
}

// isAncestor reports whether target is reachable upward from h.
func (r *Registry) isAncestor(h, target Handle) bool {
	if h == target {
		return true
	}

	n := r.lookup(h)
	if n == nil {
		return false
	}

	for _, p := range n.parents {
		if r.isAncestor(p, target) {
			return true
		}
	}

	return false
}

func removeHandle(list []Handle, h Handle) []Handle {
	for i, x := range list {
		if x == h {
			return append(list[:i], list[i+1:]...)
		}
	}

	return list
}

func containsHandle(list []Handle, h Handle) bool {
	for _, x := range list {
		if x == h {
			return true
		}
	}

	return false
}
