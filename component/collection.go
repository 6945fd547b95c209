// SPDX-License-Identifier: EPL-2.0

package component

import (
	"context"
	"fmt"
	"sync"

	"github.com/ik5/audrt/scheduler"
)

// Collection owns components on the audio thread. Items may be added from
// any goroutine; everything else happens inside Update.
type Collection[T Component] struct {
	*Base

	mu      sync.Mutex
	pending []T

	itemsMu sync.RWMutex
	items   []T
	spare   []T
}

// NewCollection creates an empty, open collection.
func NewCollection[T Component](base *Base) *Collection[T] {
	return &Collection[T]{Base: base}
}

// Add stages item for the next Update. It never fails; once the collection
// is disposed, staged items are disposed as soon as they are drained.
func (c *Collection[T]) Add(item T) {
	c.mu.Lock()
	c.pending = append(c.pending, item)
	c.mu.Unlock()
}

// Update drains staged items, updates every live item and finalizes the
// ones that were disposed. Must be called from the audio thread.
func (c *Collection[T]) Update(ctx context.Context) {
	ctx = scheduler.OnAudioThread(ctx)
	c.Base.Update(ctx)

	closed := c.IsDisposed()

	c.mu.Lock()
	staged := c.pending
	c.pending = nil
	c.mu.Unlock()

	live := c.spare[:0]

	visit := func(item T) {
		if closed {
			item.Dispose()
		}

		if item.IsAlive() {
			c.updateItem(ctx, item)
		}

		if item.IsAlive() {
			live = append(live, item)
			return
		}

		c.finalizeItem(ctx, item)
	}

	for _, item := range c.items {
		visit(item)
	}

	for _, item := range staged {
		visit(item)
	}

	c.itemsMu.Lock()
	old := c.items
	c.items = live
	c.itemsMu.Unlock()

	clear(old)
	c.spare = old[:0]
}

// Items returns a snapshot of the live items.
func (c *Collection[T]) Items() []T {
	c.itemsMu.RLock()
	defer c.itemsMu.RUnlock()

	out := make([]T, len(c.items))
	copy(out, c.items)

	return out
}

// Len is the number of live items.
func (c *Collection[T]) Len() int {
	c.itemsMu.RLock()
	defer c.itemsMu.RUnlock()

	return len(c.items)
}

// PendingLen is the number of staged items not yet drained.
func (c *Collection[T]) PendingLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.pending)
}

// TornDown reports whether the collection was disposed and holds nothing.
func (c *Collection[T]) TornDown() bool {
	return c.IsDisposed() && c.Len() == 0 && c.PendingLen() == 0
}

// IsAlive keeps a disposed collection alive until it finished draining,
// so an owning collection keeps updating it.
func (c *Collection[T]) IsAlive() bool { return !c.TornDown() }

func (c *Collection[T]) updateItem(ctx context.Context, item T) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().
				Err(fmt.Errorf("%w: %v", scheduler.ErrPanic, r)).
				Str("item", item.ID().String()).
				Msg("component update failed")
		}
	}()

	item.Update(ctx)
}

func (c *Collection[T]) finalizeItem(ctx context.Context, item T) {
	f, ok := any(item).(Finalizer)
	if !ok {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.log.Error().
				Err(fmt.Errorf("%w: %v", scheduler.ErrPanic, r)).
				Str("item", item.ID().String()).
				Msg("component finalize failed")
		}
	}()

	f.Finalize(ctx)
}
