// SPDX-License-Identifier: EPL-2.0

// Package component provides the base audio component and the
// disposal-safe collection that owns components on the audio thread.
package component

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ik5/audrt/scheduler"
)

// Component is a unit of audio state updated once per audio thread frame.
type Component interface {
	ID() uuid.UUID
	Update(ctx context.Context)
	IsAlive() bool
	Dispose()
}

// Finalizer is implemented by components that need audio thread cleanup
// once their collection removed them.
type Finalizer interface {
	Finalize(ctx context.Context)
}

// Base carries identity, the disposed flag and the pending action queue
// shared by every component. Embed it by pointer.
type Base struct {
	id       uuid.UUID
	disposed atomic.Bool
	sched    *scheduler.Scheduler
	log      zerolog.Logger
}

// NewBase creates a live component base.
func NewBase(kind string, log zerolog.Logger) *Base {
	id := uuid.New()
	log = log.With().Str("component", kind).Str("id", id.String()).Logger()

	return &Base{
		id:    id,
		sched: scheduler.New(log),
		log:   log,
	}
}

// ID returns the component identity.
func (b *Base) ID() uuid.UUID { return b.id }

// Logger returns the component scoped logger.
func (b *Base) Logger() *zerolog.Logger { return &b.log }

// Scheduler exposes the component's pending action queue.
func (b *Base) Scheduler() *scheduler.Scheduler { return b.sched }

// IsDisposed reports whether Dispose was called.
func (b *Base) IsDisposed() bool { return b.disposed.Load() }

// IsAlive is the inverse of IsDisposed.
func (b *Base) IsAlive() bool { return !b.disposed.Load() }

// CheckDisposed returns ErrDisposed once the component is disposed.
func (b *Base) CheckDisposed() error {
	if b.disposed.Load() {
		return ErrDisposed
	}

	return nil
}

// Dispose marks the component disposed. It is safe to call more than once
// and from any goroutine; resources are released by the owning collection.
func (b *Base) Dispose() { b.disposed.Store(true) }

// EnqueueAction schedules fn on the audio thread. On the audio thread it
// runs inline and the returned channel is already resolved. The action is
// skipped with ErrDisposed if the component is disposed when it runs.
func (b *Base) EnqueueAction(ctx context.Context, fn scheduler.Action) <-chan error {
	if scheduler.IsAudioThread(ctx) {
		return scheduler.Done(b.sched.Run(ctx, b.guard(fn)))
	}

	return b.sched.Enqueue(b.guard(fn))
}

// RunAction is the synchronous form of EnqueueAction.
func (b *Base) RunAction(ctx context.Context, fn scheduler.Action) error {
	if err := b.CheckDisposed(); err != nil {
		return err
	}

	return b.sched.Run(ctx, b.guard(fn))
}

// Update drains the actions queued since the previous frame.
func (b *Base) Update(ctx context.Context) {
	b.sched.RunPendingOnce(ctx)
}

// Finalize resolves whatever is still queued so no caller waits on a
// component that will never be updated again.
func (b *Base) Finalize(ctx context.Context) {
	b.sched.RunPendingOnce(ctx)
}

func (b *Base) guard(fn scheduler.Action) scheduler.Action {
	return func(ctx context.Context) error {
		if b.disposed.Load() {
			return ErrDisposed
		}

		return fn(ctx)
	}
}
