// SPDX-License-Identifier: EPL-2.0

package playback

import (
	"math"
	"slices"
	"sync"
	"sync/atomic"
)

// State is the transport state of a track or sample channel. A paused
// channel is Stopped with its position retained.
type State int32

const (
	Stopped State = iota
	Playing
	Completed
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

type atomicFloat struct{ bits atomic.Uint64 }

func (f *atomicFloat) Load() float64   { return math.Float64frombits(f.bits.Load()) }
func (f *atomicFloat) Store(v float64) { f.bits.Store(math.Float64bits(v)) }

// transport holds the state shared by every playable type. It is written on
// the audio thread and readable from anywhere.
type transport struct {
	running   atomic.Bool
	completed atomic.Bool
	looping   atomic.Bool
	failed    atomic.Bool
	restart   atomicFloat
	length    atomicFloat
	current   atomicFloat

	mu          sync.Mutex
	onCompleted []func()
	onFailed    []func(error)
}

// IsRunning reports whether playback is in progress.
func (t *transport) IsRunning() bool { return t.running.Load() }

// HasCompleted reports whether playback reached the end without looping.
func (t *transport) HasCompleted() bool { return t.completed.Load() }

// State folds the flags into a single transport state.
func (t *transport) State() State {
	switch {
	case t.running.Load():
		return Playing
	case t.completed.Load():
		return Completed
	default:
		return Stopped
	}
}

// Looping reports whether reaching the end restarts playback.
func (t *transport) Looping() bool { return t.looping.Load() }

// SetLooping changes the looping flag.
func (t *transport) SetLooping(v bool) { t.looping.Store(v) }

// RestartPoint is the position in milliseconds Restart and looping jump to.
func (t *transport) RestartPoint() float64 { return t.restart.Load() }

// SetRestartPoint changes the restart position.
func (t *transport) SetRestartPoint(ms float64) { t.restart.Store(max(ms, 0)) }

// Length in milliseconds; 0 while unknown.
func (t *transport) Length() float64 { return t.length.Load() }

// CurrentTime is the audible position in milliseconds.
func (t *transport) CurrentTime() float64 { return t.current.Load() }

// OnCompleted registers fn to run on the audio thread when playback ends.
func (t *transport) OnCompleted(fn func()) {
	t.mu.Lock()
	t.onCompleted = append(t.onCompleted, fn)
	t.mu.Unlock()
}

// OnFailed registers fn to run on the audio thread when decoding fails.
func (t *transport) OnFailed(fn func(error)) {
	t.mu.Lock()
	t.onFailed = append(t.onFailed, fn)
	t.mu.Unlock()
}

// complete stops a running transport and notifies once per stop.
func (t *transport) complete() bool {
	if !t.running.CompareAndSwap(true, false) {
		return false
	}

	t.completed.Store(true)

	t.mu.Lock()
	fns := slices.Clone(t.onCompleted)
	t.mu.Unlock()

	for _, fn := range fns {
		fn()
	}

	return true
}

// fail stops the transport and notifies at most once.
func (t *transport) fail(err error) bool {
	if !t.failed.CompareAndSwap(false, true) {
		return false
	}

	t.running.Store(false)

	t.mu.Lock()
	fns := slices.Clone(t.onFailed)
	t.mu.Unlock()

	for _, fn := range fns {
		fn(err)
	}

	return true
}

// conservativeSeek reports whether target lies within [0, length]. An
// unknown length counts as unbounded.
func conservativeSeek(target, length float64) bool {
	if length <= 0 {
		length = math.MaxFloat64
	}

	return target >= 0 && target <= length
}
