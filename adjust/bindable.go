// SPDX-License-Identifier: EPL-2.0

package adjust

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
)

// Bindable is an observable number owned outside the adjustment graph,
// such as a user facing volume setting.
type Bindable struct {
	bits atomic.Uint64

	clamp    bool
	min, max float64

	// setMu orders checked writes so a guard never vets a stale value.
	setMu sync.Mutex

	mu     sync.Mutex
	subs   map[uint64]func(float64)
	guards map[uint64]func(float64) error
	next   uint64
}

// NewBindable creates an unbounded bindable.
func NewBindable(v float64) *Bindable {
	b := &Bindable{}
	b.bits.Store(math.Float64bits(v))

	return b
}

// NewBindableRange creates a bindable whose values are clamped to [lo, hi].
func NewBindableRange(v, lo, hi float64) *Bindable {
	b := &Bindable{clamp: true, min: lo, max: hi}
	b.bits.Store(math.Float64bits(b.limit(v)))

	return b
}

// Value returns the current value.
func (b *Bindable) Value() float64 {
	return math.Float64frombits(b.bits.Load())
}

// Set stores v and notifies subscribers when the value changed. A value
// rejected by a guard is dropped; use SetChecked to see why.
func (b *Bindable) Set(v float64) {
	_ = b.SetChecked(v)
}

// SetChecked stores v unless a guard rejects it, then notifies
// subscribers when the value changed.
func (b *Bindable) SetChecked(v float64) error {
	v = b.limit(v)

	b.setMu.Lock()
	defer b.setMu.Unlock()

	if math.Float64bits(v) == b.bits.Load() {
		return nil
	}

	b.mu.Lock()
	guards := make([]func(float64) error, 0, len(b.guards))
	for _, fn := range b.guards {
		guards = append(guards, fn)
	}
	b.mu.Unlock()

	var errs []error
	for _, fn := range guards {
		if err := fn(v); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	b.bits.Store(math.Float64bits(v))

	b.mu.Lock()
	subs := make([]func(float64), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.Unlock()

	for _, fn := range subs {
		fn(v)
	}

	return nil
}

// Subscribe registers fn for value changes. The returned func removes it.
func (b *Bindable) Subscribe(fn func(float64)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs == nil {
		b.subs = make(map[uint64]func(float64))
	}

	id := b.next
	b.next++
	b.subs[id] = fn

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Guard registers fn to vet every new value before it is stored. The
// returned func removes it.
func (b *Bindable) Guard(fn func(float64) error) (remove func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.guards == nil {
		b.guards = make(map[uint64]func(float64) error)
	}

	id := b.next
	b.next++
	b.guards[id] = fn

	return func() {
		b.mu.Lock()
		delete(b.guards, id)
		b.mu.Unlock()
	}
}

// Subscribers is the number of registered callbacks.
func (b *Bindable) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.subs)
}

func (b *Bindable) limit(v float64) float64 {
	if !b.clamp {
		return v
	}

	return min(max(v, b.min), b.max)
}
