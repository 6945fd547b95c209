// SPDX-License-Identifier: EPL-2.0

// Package adjust implements the adjustment graph: per component volume,
// balance, frequency and tempo values combined with external sources and
// weakly bound parents.
package adjust

import (
	"fmt"
	"runtime"
	"sync/atomic"
)

// Validator checks the aggregate a property would have after a change.
type Validator func(aggregate float64) error

// Adjustments owns one node of the graph. When the owner becomes
// unreachable its node is released and children stop seeing it.
type Adjustments struct {
	reg      *Registry
	handle   Handle
	cleanup  runtime.Cleanup
	released atomic.Bool
}

// New allocates a node in reg, or in DefaultRegistry when reg is nil.
func New(reg *Registry) *Adjustments {
	if reg == nil {
		reg = DefaultRegistry
	}

	h := reg.alloc()
	a := &Adjustments{reg: reg, handle: h}
	a.cleanup = runtime.AddCleanup(a, func(h Handle) { reg.release(h) }, h)

	return a
}

// Handle returns the node handle.
func (a *Adjustments) Handle() Handle { return a.handle }

// Registry returns the arena holding the node.
func (a *Adjustments) Registry() *Registry { return a.reg }

// Release frees the node immediately. Children drop the binding.
func (a *Adjustments) Release() {
	if a.released.Swap(true) {
		return
	}

	a.cleanup.Stop()
	a.reg.release(a.handle)
}

// SetValidator installs fn to vet every change of the aggregate of p,
// whether it comes from a local value, a source or an ancestor. The
// change is refused where it is made. A nil fn removes it.
func (a *Adjustments) SetValidator(p Property, fn Validator) {
	if !p.Valid() {
		return
	}

	a.reg.mu.Lock()
	defer a.reg.mu.Unlock()

	if n := a.reg.lookup(a.handle); n != nil {
		n.validators[p] = fn
	}
}

// Get returns the local value of p.
func (a *Adjustments) Get(p Property) float64 {
	if !p.Valid() {
		return 0
	}

	a.reg.mu.Lock()
	defer a.reg.mu.Unlock()

	n := a.reg.lookup(a.handle)
	if n == nil {
		return p.Neutral()
	}

	return n.local[p]
}

// Set changes the local value of p after validating the resulting
// aggregates of this node and every descendant.
func (a *Adjustments) Set(p Property, v float64) error {
	if !p.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownProperty, int(p))
	}

	a.reg.mu.Lock()
	defer a.reg.mu.Unlock()

	n := a.reg.lookup(a.handle)
	if n == nil {
		return ErrReleased
	}

	if n.local[p] == v {
		return nil
	}

	old := n.local[p]
	n.local[p] = v
	a.reg.revalidate(n)

	if err := a.reg.validate(n, p); err != nil {
		n.local[p] = old
		a.reg.revalidate(n)
		return fmt.Errorf("set adjustment: %w", err)
	}

	return nil
}

func (a *Adjustments) SetVolume(v float64) error    { return a.Set(Volume, v) }
func (a *Adjustments) SetBalance(v float64) error   { return a.Set(Balance, v) }
func (a *Adjustments) SetFrequency(v float64) error { return a.Set(Frequency, v) }
func (a *Adjustments) SetTempo(v float64) error     { return a.Set(Tempo, v) }

// AddAdjustment binds src as a direct source of p.
func (a *Adjustments) AddAdjustment(p Property, src *Bindable) error {
	if !p.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownProperty, int(p))
	}

	a.reg.mu.Lock()

	n := a.reg.lookup(a.handle)
	if n == nil {
		a.reg.mu.Unlock()
		return ErrReleased
	}

	for _, s := range n.sources[p] {
		if s.b == src {
			a.reg.mu.Unlock()
			return fmt.Errorf("%s: %w", p, ErrDuplicateAdjustment)
		}
	}

	reg, h := a.reg, a.handle
	n.sources[p] = append(n.sources[p], source{b: src})
	a.reg.revalidate(n)

	if err := a.reg.validate(n, p); err != nil {
		n.sources[p] = n.sources[p][:len(n.sources[p])-1]
		a.reg.revalidate(n)
		a.reg.mu.Unlock()
		return fmt.Errorf("add adjustment: %w", err)
	}
	a.reg.mu.Unlock()

	unguard := src.Guard(func(v float64) error { return reg.checkSource(h, p, src, v) })
	unwatch := src.Subscribe(func(float64) { reg.invalidateHandle(h) })
	unsub := func() {
		unguard()
		unwatch()
	}

	a.reg.mu.Lock()
	defer a.reg.mu.Unlock()

	if n := a.reg.lookup(h); n != nil {
		for i := range n.sources[p] {
			if n.sources[p][i].b == src && n.sources[p][i].unsub == nil {
				n.sources[p][i].unsub = unsub
				return nil
			}
		}
	}

	// Released or removed while subscribing.
	unsub()

	return nil
}

// RemoveAdjustment unbinds src from p. Absent sources are ignored.
func (a *Adjustments) RemoveAdjustment(p Property, src *Bindable) {
	if !p.Valid() {
		return
	}

	a.reg.mu.Lock()

	n := a.reg.lookup(a.handle)
	if n == nil {
		a.reg.mu.Unlock()
		return
	}

	var unsub func()
	for i, s := range n.sources[p] {
		if s.b == src {
			unsub = s.unsub
			n.sources[p] = append(n.sources[p][:i], n.sources[p][i+1:]...)
			a.reg.invalidate(n)
			break
		}
	}
	a.reg.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// RemoveAllAdjustments drops every direct source of p. The local value and
// parent bindings are kept.
func (a *Adjustments) RemoveAllAdjustments(p Property) {
	if !p.Valid() {
		return
	}

	a.reg.mu.Lock()

	n := a.reg.lookup(a.handle)
	if n == nil {
		a.reg.mu.Unlock()
		return
	}

	removed := n.sources[p]
	n.sources[p] = nil
	if len(removed) > 0 {
		a.reg.invalidate(n)
	}
	a.reg.mu.Unlock()

	for _, s := range removed {
		if s.unsub != nil {
			s.unsub()
		}
	}
}

// BindAdjustments makes parent's aggregates feed into a's for every
// property. The link is weak: it ends when parent is released or collected.
func (a *Adjustments) BindAdjustments(parent *Adjustments) error {
	if parent == nil || parent.reg != a.reg {
		return nil
	}

	a.reg.mu.Lock()
	defer a.reg.mu.Unlock()

	n := a.reg.lookup(a.handle)
	if n == nil {
		return ErrReleased
	}

	p := a.reg.lookup(parent.handle)
	if p == nil || containsHandle(n.parents, parent.handle) {
		return nil
	}

	if a.reg.isAncestor(parent.handle, a.handle) {
		return ErrBindingCycle
	}

	n.parents = append(n.parents, parent.handle)
	p.children = append(p.children, a.handle)
	a.reg.revalidate(n)

	if err := a.reg.validate(n, Properties[:]...); err != nil {
		n.parents = removeHandle(n.parents, parent.handle)
		p.children = removeHandle(p.children, a.handle)
		a.reg.revalidate(n)
		return fmt.Errorf("bind adjustments: %w", err)
	}

	return nil
}

// UnbindAdjustments removes a parent link. Unknown or collected parents are ignored.
func (a *Adjustments) UnbindAdjustments(parent *Adjustments) {
	if parent == nil || parent.reg != a.reg {
		return
	}

	a.reg.mu.Lock()
	defer a.reg.mu.Unlock()

	n := a.reg.lookup(a.handle)
	if n == nil || !containsHandle(n.parents, parent.handle) {
		return
	}

	n.parents = removeHandle(n.parents, parent.handle)
	if p := a.reg.lookup(parent.handle); p != nil {
		p.children = removeHandle(p.children, a.handle)
	}
	a.reg.invalidate(n)
}

// Aggregate returns the composed value of p.
func (a *Adjustments) Aggregate(p Property) float64 {
	if !p.Valid() {
		return 0
	}

	a.reg.mu.Lock()
	defer a.reg.mu.Unlock()

	n := a.reg.lookup(a.handle)
	if n == nil {
		return p.Neutral()
	}

	a.reg.resolve(n)

	return n.cache[p]
}

// Aggregates returns all four composed values in Property order.
func (a *Adjustments) Aggregates() [4]float64 {
	a.reg.mu.Lock()
	defer a.reg.mu.Unlock()

	n := a.reg.lookup(a.handle)
	if n == nil {
		return [4]float64{1, 0, 1, 1}
	}

	a.reg.resolve(n)

	return n.cache
}

func (a *Adjustments) AggregateVolume() float64    { return a.Aggregate(Volume) }
func (a *Adjustments) AggregateBalance() float64   { return a.Aggregate(Balance) }
func (a *Adjustments) AggregateFrequency() float64 { return a.Aggregate(Frequency) }
func (a *Adjustments) AggregateTempo() float64     { return a.Aggregate(Tempo) }

// Version changes whenever any aggregate of the node may have changed.
func (a *Adjustments) Version() uint64 {
	a.reg.mu.Lock()
	defer a.reg.mu.Unlock()

	n := a.reg.lookup(a.handle)
	if n == nil {
		return 0
	}

	return n.version
}
