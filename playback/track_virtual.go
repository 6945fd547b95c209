// SPDX-License-Identifier: EPL-2.0

package playback

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ik5/audrt/adjust"
	"github.com/ik5/audrt/audio"
	"github.com/ik5/audrt/component"
)

// Clock supplies the time base of a virtual track in milliseconds.
type Clock interface {
	Now() float64
}

type wallClock struct{ start time.Time }

func (c wallClock) Now() float64 {
	return float64(time.Since(c.start)) / float64(time.Millisecond)
}

// WallClock returns a clock following real time.
func WallClock() Clock { return wallClock{start: time.Now()} }

// TrackVirtual is a silent track whose position follows a clock. It shares
// the transport semantics of Track and stands in when no device or
// decoder is available.
type TrackVirtual struct {
	*component.Base
	*adjust.Adjustments
	transport

	clock Clock

	// Audio thread only.
	origin    float64
	originPos float64
	rate      float64
	applied   uint64
}

// NewTrackVirtual creates a stopped virtual track of length ms. A nil
// clock follows real time.
func NewTrackVirtual(length float64, clock Clock, reg *adjust.Registry, log zerolog.Logger) *TrackVirtual {
	if clock == nil {
		clock = WallClock()
	}

	t := &TrackVirtual{
		Base:        component.NewBase("track_virtual", log),
		Adjustments: adjust.New(reg),
		clock:       clock,
		rate:        1,
	}
	t.length.Store(max(length, 0))
	t.SetValidator(adjust.Tempo, audio.ValidateTempo)

	return t
}

// IsReversed reports whether the aggregate frequency is negative.
func (t *TrackVirtual) IsReversed() bool { return t.AggregateFrequency() < 0 }

// Rate is the effective speed: aggregate frequency times aggregate tempo.
func (t *TrackVirtual) Rate() float64 {
	agg := t.Aggregates()
	return agg[adjust.Frequency] * agg[adjust.Tempo]
}

// Start resumes playback unless the track rests at its end.
func (t *TrackVirtual) Start(ctx context.Context) error {
	return t.RunAction(ctx, t.start)
}

// StartAsync is the asynchronous form of Start.
func (t *TrackVirtual) StartAsync(ctx context.Context) <-chan error {
	return t.EnqueueAction(ctx, t.start)
}

func (t *TrackVirtual) start(context.Context) error {
	if t.IsRunning() || t.atEnd() {
		return nil
	}

	t.applied = t.Version()
	t.rate = t.Rate()
	t.anchor(t.CurrentTime())
	t.running.Store(true)
	t.completed.Store(false)

	return nil
}

// Stop pauses playback, keeping the position.
func (t *TrackVirtual) Stop(ctx context.Context) error {
	return t.RunAction(ctx, t.stop)
}

// StopAsync is the asynchronous form of Stop.
func (t *TrackVirtual) StopAsync(ctx context.Context) <-chan error {
	return t.EnqueueAction(ctx, t.stop)
}

func (t *TrackVirtual) stop(context.Context) error {
	if t.IsRunning() {
		t.advance()
		t.running.Store(false)
	}

	return nil
}

// Seek moves to ms clamped to [0, Length] and reports whether ms was in
// range.
func (t *TrackVirtual) Seek(ctx context.Context, ms float64) (bool, error) {
	ok := conservativeSeek(ms, t.Length())

	return ok, t.RunAction(ctx, func(context.Context) error {
		t.seek(ms)
		return nil
	})
}

// SeekAsync is the asynchronous form of Seek.
func (t *TrackVirtual) SeekAsync(ctx context.Context, ms float64) (bool, <-chan error) {
	ok := conservativeSeek(ms, t.Length())

	return ok, t.EnqueueAction(ctx, func(context.Context) error {
		t.seek(ms)
		return nil
	})
}

func (t *TrackVirtual) seek(ms float64) {
	ms = min(max(ms, 0), t.Length())
	if ms < t.Length() {
		t.completed.Store(false)
	}

	t.anchor(ms)
}

// Restart plays from the restart point regardless of the current state.
func (t *TrackVirtual) Restart(ctx context.Context) error {
	return t.RunAction(ctx, t.restartAction)
}

// RestartAsync is the asynchronous form of Restart.
func (t *TrackVirtual) RestartAsync(ctx context.Context) <-chan error {
	return t.EnqueueAction(ctx, t.restartAction)
}

func (t *TrackVirtual) restartAction(context.Context) error {
	t.seek(t.RestartPoint())
	t.running.Store(true)
	t.completed.Store(false)

	return nil
}

// Update advances the clock driven position.
func (t *TrackVirtual) Update(ctx context.Context) {
	t.Base.Update(ctx)

	if t.IsDisposed() {
		t.running.Store(false)
		return
	}

	if v := t.Version(); v != t.applied {
		t.applied = v
		t.advance()
		t.rate = t.Rate()
	}

	if !t.IsRunning() {
		return
	}

	t.advance()

	if cur := t.CurrentTime(); (t.rate >= 0 && cur < t.Length()) || (t.rate < 0 && cur > 0) {
		return
	}

	if t.Looping() {
		t.seek(t.RestartPoint())
		return
	}

	t.complete()
}

// Dispose stops the track. The position freezes at the last update.
func (t *TrackVirtual) Dispose() {
	t.Base.Dispose()
	t.running.Store(false)
}

// Finalize releases the adjustment node.
func (t *TrackVirtual) Finalize(ctx context.Context) {
	t.Base.Finalize(ctx)
	t.Adjustments.Release()
}

func (t *TrackVirtual) anchor(pos float64) {
	t.origin = t.clock.Now()
	t.originPos = pos
	t.current.Store(pos)
}

// advance folds the time elapsed since the anchor into the position.
func (t *TrackVirtual) advance() {
	if !t.IsRunning() {
		return
	}

	now := t.clock.Now()
	pos := t.originPos + (now-t.origin)*t.rate
	pos = min(max(pos, 0), t.Length())

	t.origin = now
	t.originPos = pos
	t.current.Store(pos)
}

func (t *TrackVirtual) atEnd() bool {
	if t.IsReversed() {
		return t.CurrentTime() <= 0
	}

	return t.CurrentTime() >= t.Length()
}
