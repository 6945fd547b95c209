// SPDX-License-Identifier: EPL-2.0

package playback

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/ik5/audrt/adjust"
	"github.com/ik5/audrt/audio"
	"github.com/ik5/audrt/component"
	"github.com/ik5/audrt/mixer"
)

// amplitudeWindowMS is the span Amplitudes looks ahead.
const amplitudeWindowMS = 1000.0 / 60

// Amplitudes holds the peak level per side of the upcoming audio.
type Amplitudes struct {
	Left, Right float32
}

// Track plays a decoded stream that arrives incrementally through
// ReceiveData. It is a mixer channel and an adjustment graph node.
type Track struct {
	*component.Base
	*adjust.Adjustments
	mixer.Membership
	transport

	name string

	mu     sync.Mutex
	player *Player

	loaded  atomic.Bool
	bitrate atomic.Int64
	volume  atomicFloat
	balance atomicFloat

	applied uint64

	amplitudeRequested atomic.Bool
	amplitudes         atomic.Pointer[Amplitudes]
	peek               []float32
	lastPeek           float64

	cancel context.CancelFunc
}

// NewTrack creates a stopped track producing samples in format. Its
// adjustments live in reg (adjust.DefaultRegistry when nil).
func NewTrack(name string, format audio.Format, reg *adjust.Registry, log zerolog.Logger) *Track {
	base := component.NewBase("track", log.With().Str("track", name).Logger())

	t := &Track{
		Base:        base,
		Adjustments: adjust.New(reg),
		name:        name,
		player:      NewPlayer(format, *base.Logger()),
		cancel:      func() {},
	}
	t.volume.Store(1)
	t.amplitudes.Store(&Amplitudes{})
	t.SetValidator(adjust.Tempo, audio.ValidateTempo)

	return t
}

// Name is the resource name the track was created from.
func (t *Track) Name() string { return t.name }

// IsLoaded reports whether decoded data started arriving.
func (t *Track) IsLoaded() bool { return t.loaded.Load() }

// Bitrate of the source in bits per second, 0 when unknown.
func (t *Track) Bitrate() int { return int(t.bitrate.Load()) }

// IsReversed reports whether the aggregate frequency is negative.
func (t *Track) IsReversed() bool { return t.AggregateFrequency() < 0 }

// Rate is the effective speed: aggregate frequency times aggregate tempo.
func (t *Track) Rate() float64 {
	agg := t.Aggregates()
	return agg[adjust.Frequency] * agg[adjust.Tempo]
}

// ReceiveData appends decoded samples. done marks the last chunk. Called
// from the decoding goroutine.
func (t *Track) ReceiveData(samples []float32, info audio.Info, done bool) {
	if t.IsDisposed() {
		return
	}

	t.mu.Lock()
	t.player.Prepare(info)
	t.player.Put(samples)
	if done {
		t.player.DonePutting()
	}
	length := t.player.Length()
	t.mu.Unlock()

	t.length.Store(length)
	t.bitrate.Store(int64(info.Bitrate))
	t.loaded.Store(true)
}

// Fail reports a decoding failure. OnFailed handlers run on the audio
// thread.
func (t *Track) Fail(err error) {
	err = fmt.Errorf("%s: %w: %w", t.name, ErrDecode, err)
	t.Logger().Error().Err(err).Msg("track failed")

	t.EnqueueAction(context.Background(), func(context.Context) error {
		t.fail(err)
		return nil
	})
}

// Start resumes playback. A track resting at its end stays there.
func (t *Track) Start(ctx context.Context) error {
	return t.RunAction(ctx, t.start)
}

// StartAsync is the asynchronous form of Start.
func (t *Track) StartAsync(ctx context.Context) <-chan error {
	return t.EnqueueAction(ctx, t.start)
}

func (t *Track) start(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.player.AtEnd() {
		return nil
	}

	t.player.ClearDone()
	t.running.Store(true)
	t.completed.Store(false)

	return nil
}

// Stop pauses playback, keeping the position.
func (t *Track) Stop(ctx context.Context) error {
	return t.RunAction(ctx, t.stop)
}

// StopAsync is the asynchronous form of Stop.
func (t *Track) StopAsync(ctx context.Context) <-chan error {
	return t.EnqueueAction(ctx, t.stop)
}

func (t *Track) stop(context.Context) error {
	t.running.Store(false)
	return nil
}

// Seek moves to ms, clamped to the track. It reports whether ms itself was
// within range; while the length is unknown every positive target is.
func (t *Track) Seek(ctx context.Context, ms float64) (bool, error) {
	ok := conservativeSeek(ms, t.Length())

	return ok, t.RunAction(ctx, func(context.Context) error {
		t.seek(ms)
		return nil
	})
}

// SeekAsync is the asynchronous form of Seek.
func (t *Track) SeekAsync(ctx context.Context, ms float64) (bool, <-chan error) {
	ok := conservativeSeek(ms, t.Length())

	return ok, t.EnqueueAction(ctx, func(context.Context) error {
		t.seek(ms)
		return nil
	})
}

func (t *Track) seek(ms float64) {
	t.mu.Lock()
	t.player.Seek(ms)
	if length := t.player.Length(); length == 0 || ms < length {
		t.completed.Store(false)
	}
	t.current.Store(t.player.CurrentTime())
	t.mu.Unlock()
}

// Restart plays from the restart point regardless of the current state.
func (t *Track) Restart(ctx context.Context) error {
	return t.RunAction(ctx, t.restartAction)
}

// RestartAsync is the asynchronous form of Restart.
func (t *Track) RestartAsync(ctx context.Context) <-chan error {
	return t.EnqueueAction(ctx, t.restartAction)
}

func (t *Track) restartAction(context.Context) error {
	t.seek(t.RestartPoint())
	t.running.Store(true)
	t.completed.Store(false)

	return nil
}

// Amplitudes returns the peak levels of the audio about to play. The first
// call enables the measurement.
func (t *Track) Amplitudes() Amplitudes {
	t.amplitudeRequested.Store(true)

	if !t.IsRunning() {
		return Amplitudes{}
	}

	return *t.amplitudes.Load()
}

// Playing is true while the mixer should pull samples.
func (t *Track) Playing() bool {
	return t.IsRunning() && !t.player.Done()
}

// Gains returns the aggregate volume and balance.
func (t *Track) Gains() (float64, float64) {
	return t.volume.Load(), t.balance.Load()
}

// ReadSamples is called by the mixer, usually from the device callback.
func (t *Track) ReadSamples(dst []float32) int {
	if !t.loaded.Load() || t.failed.Load() {
		return 0
	}

	t.mu.Lock()
	n, err := t.player.ReadSamples(dst)
	t.current.Store(t.player.CurrentTime())
	t.mu.Unlock()

	if err != nil {
		t.Fail(err)
		return 0
	}

	return n
}

// Update applies adjustment changes and advances the state machine.
func (t *Track) Update(ctx context.Context) {
	t.Base.Update(ctx)

	if t.IsDisposed() {
		return
	}

	t.applyAdjustments()

	if t.player.Done() && t.IsRunning() {
		if t.Looping() {
			t.seek(t.RestartPoint())
		} else {
			t.complete()
		}
	}

	if t.IsRunning() && t.AggregateTempo() != 1 {
		t.mu.Lock()
		err := t.player.Fill()
		t.mu.Unlock()

		if err != nil {
			t.Logger().Error().Err(err).Msg("tempo fill")
		}
	}

	if t.amplitudeRequested.Load() && t.IsRunning() {
		t.updateAmplitudes()
	}
}

func (t *Track) applyAdjustments() {
	v := t.Version()
	if v == t.applied {
		return
	}

	agg := t.Aggregates()
	t.applied = v

	t.volume.Store(agg[adjust.Volume])
	t.balance.Store(agg[adjust.Balance])

	t.mu.Lock()
	t.player.SetReverse(agg[adjust.Frequency] < 0)
	t.player.SetRate(agg[adjust.Frequency])
	err := t.player.SetTempo(agg[adjust.Tempo])
	t.current.Store(t.player.CurrentTime())
	t.mu.Unlock()

	if err != nil {
		t.Logger().Warn().Err(err).Float64("tempo", agg[adjust.Tempo]).Msg("tempo not applied")
	}
}

func (t *Track) updateAmplitudes() {
	now := t.CurrentTime()
	if now == t.lastPeek {
		return
	}
	t.lastPeek = now

	t.mu.Lock()
	src := t.player.SourceFormat()
	if !src.Valid() {
		t.mu.Unlock()
		return
	}

	if size := int(src.MSToFrames(amplitudeWindowMS)) * src.Channels; len(t.peek) != size {
		t.peek = make([]float32, size)
	}
	n := t.player.Peek(t.peek)
	t.mu.Unlock()

	second := min(1, src.Channels-1)

	var amp Amplitudes
	for i := 0; i+src.Channels <= n; i += src.Channels {
		amp.Left = max(amp.Left, float32(math.Abs(float64(t.peek[i]))))
		amp.Right = max(amp.Right, float32(math.Abs(float64(t.peek[i+second]))))
	}

	amp.Left, amp.Right = min(amp.Left, 1), min(amp.Right, 1)
	t.amplitudes.Store(&amp)
}

// Dispose stops the track and detaches it from its mixer.
func (t *Track) Dispose() {
	if t.IsDisposed() {
		return
	}

	t.Base.Dispose()
	t.running.Store(false)
	t.cancel()

	if m := t.Mixer(); m != nil {
		m.Release(t)
	}
}

// Finalize releases the decoded data and the adjustment node.
func (t *Track) Finalize(ctx context.Context) {
	t.Base.Finalize(ctx)

	t.mu.Lock()
	t.player.Close()
	t.mu.Unlock()

	t.Adjustments.Release()
}
