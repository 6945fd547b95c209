// SPDX-License-Identifier: EPL-2.0

package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTimeout bounds synchronous waits on the audio thread.
const DefaultTimeout = 10 * time.Second

// Action is a unit of work executed on the audio thread.
type Action func(ctx context.Context) error

type task struct {
	action Action
	result chan error
}

// Scheduler is a FIFO of actions drained on the audio thread.
//
// Enqueue may be called from any goroutine. RunPendingOnce must only be
// called from the audio thread.
type Scheduler struct {
	mu      sync.Mutex
	pending []task

	timeout time.Duration
	log     zerolog.Logger
}

// New creates an empty scheduler.
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		timeout: DefaultTimeout,
		log:     log,
	}
}

// SetTimeout changes the bound used by Run. Non-positive values restore the default.
func (s *Scheduler) SetTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultTimeout
	}

	s.mu.Lock()
	s.timeout = d
	s.mu.Unlock()
}

// Enqueue schedules action for the next drain. The returned channel receives
// the action's result once it ran and is then closed.
func (s *Scheduler) Enqueue(action Action) <-chan error {
	result := make(chan error, 1)

	s.mu.Lock()
	s.pending = append(s.pending, task{action: action, result: result})
	s.mu.Unlock()

	return result
}

// Pending reports the number of queued actions.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.pending)
}

// RunPendingOnce executes every action queued before the call, in order.
// Actions enqueued while draining are left for the next call.
func (s *Scheduler) RunPendingOnce(ctx context.Context) int {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return 0
	}
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	ctx = OnAudioThread(ctx)

	for i := range batch {
		t := batch[i]
		t.result <- s.execute(ctx, t.action)
		close(t.result)
		batch[i] = task{}
	}

	return len(batch)
}

// Run executes action on the audio thread and waits for it. When ctx is
// already on the audio thread the action runs inline.
func (s *Scheduler) Run(ctx context.Context, action Action) error {
	if IsAudioThread(ctx) {
		return s.execute(ctx, action)
	}

	s.mu.Lock()
	timeout := s.timeout
	s.mu.Unlock()

	return Wait(ctx, s.Enqueue(action), timeout)
}

func (s *Scheduler) execute(ctx context.Context, action Action) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
			s.log.Error().Err(err).Msg("scheduled action panicked")
		}
	}()

	err = action(ctx)
	if err != nil {
		s.log.Debug().Err(err).Msg("scheduled action returned an error")
	}

	return err
}

// Wait blocks until done yields, ctx ends or timeout elapses.
func Wait(ctx context.Context, done <-chan error, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%w", ctx.Err())
	case <-timer.C:
		return ErrTimeout
	}
}

// Done returns an already completed result channel carrying err.
func Done(err error) <-chan error {
	result := make(chan error, 1)
	result <- err
	close(result)

	return result
}

type audioThreadKey struct{}

// OnAudioThread marks ctx as belonging to the audio thread.
func OnAudioThread(ctx context.Context) context.Context {
	if IsAudioThread(ctx) {
		return ctx
	}

	return context.WithValue(ctx, audioThreadKey{}, true)
}

// IsAudioThread reports whether ctx was marked by OnAudioThread.
func IsAudioThread(ctx context.Context) bool {
	if ctx == nil {
		return false
	}

	on, _ := ctx.Value(audioThreadKey{}).(bool)
	return on
}
