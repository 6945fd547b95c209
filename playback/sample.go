// SPDX-License-Identifier: EPL-2.0

package playback

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ik5/audrt/adjust"
	"github.com/ik5/audrt/audio"
	"github.com/ik5/audrt/component"
	"github.com/ik5/audrt/mixer"
)

// DefaultConcurrency is the number of channels of one sample allowed to
// play at once.
const DefaultConcurrency = 2

// Sample is a fully decoded sound that spawns channels playing
// independently. Channels inherit the sample's adjustments.
type Sample struct {
	*component.Base
	*adjust.Adjustments

	name   string
	format audio.Format
	mixer  *mixer.Mixer
	reg    *adjust.Registry

	channels *component.Collection[*SampleChannel]

	mu          sync.RWMutex
	data        []float32
	info        audio.Info
	loaded      bool
	err         error
	concurrency int

	// Audio thread only; oldest first.
	playing []*SampleChannel
}

// NewSample creates an empty sample whose channels join m.
func NewSample(name string, format audio.Format, m *mixer.Mixer, reg *adjust.Registry, log zerolog.Logger) *Sample {
	log = log.With().Str("sample", name).Logger()

	return &Sample{
		Base:        component.NewBase("sample", log),
		Adjustments: adjust.New(reg),
		name:        name,
		format:      format,
		mixer:       m,
		reg:         reg,
		channels:    component.NewCollection[*SampleChannel](component.NewBase("sample_channels", log)),
		concurrency: DefaultConcurrency,
	}
}

// Name is the resource name the sample was created from.
func (s *Sample) Name() string { return s.name }

// Load stores the decoded samples. Called once by the decoder.
func (s *Sample) Load(samples []float32, info audio.Info) {
	info.Frames = int64(len(samples) / max(info.Channels, 1))

	s.mu.Lock()
	s.data = samples
	s.info = info
	s.loaded = true
	s.mu.Unlock()
}

// Fail marks the sample undecodable. Its channels stop and report err
// through OnFailed on their next update.
func (s *Sample) Fail(err error) {
	err = fmt.Errorf("%s: %w: %w", s.name, ErrDecode, err)
	s.Logger().Error().Err(err).Msg("sample failed")

	s.mu.Lock()
	if s.err == nil && !s.loaded {
		s.err = err
	}
	s.mu.Unlock()
}

// Err is the decoding failure, nil unless Fail was called.
func (s *Sample) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.err
}

// IsLoaded reports whether the data arrived.
func (s *Sample) IsLoaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.loaded
}

// Length in milliseconds, 0 until loaded.
func (s *Sample) Length() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.loaded {
		return 0
	}

	return s.info.Duration()
}

// Concurrency is the playing channel limit.
func (s *Sample) Concurrency() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.concurrency
}

// SetConcurrency changes the playing channel limit; values below 1 mean 1.
func (s *Sample) SetConcurrency(n int) {
	s.mu.Lock()
	s.concurrency = max(n, 1)
	s.mu.Unlock()
}

// Channels returns the live channels.
func (s *Sample) Channels() []*SampleChannel { return s.channels.Items() }

// GetChannel creates a stopped channel bound to this sample.
func (s *Sample) GetChannel(ctx context.Context) (*SampleChannel, error) {
	if err := s.CheckDisposed(); err != nil {
		return nil, err
	}

	ch := newSampleChannel(s, *s.Logger())
	if err := ch.BindAdjustments(s.Adjustments); err != nil {
		return nil, fmt.Errorf("bind channel: %w", err)
	}

	s.channels.Add(ch)
	if s.mixer != nil {
		s.mixer.AddAsync(ctx, ch)
	}

	return ch, nil
}

// Play creates a channel and starts it.
func (s *Sample) Play(ctx context.Context) (*SampleChannel, error) {
	ch, err := s.GetChannel(ctx)
	if err != nil {
		return nil, err
	}

	if err := ch.Play(ctx); err != nil {
		return nil, err
	}

	return ch, nil
}

func (s *Sample) snapshot() ([]float32, audio.Info, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.data, s.info, s.loaded
}

// claim registers ch as playing and stops the oldest channels beyond the
// limit.
func (s *Sample) claim(ch *SampleChannel) {
	s.release(ch)
	s.playing = append(s.playing, ch)

	for len(s.playing) > s.Concurrency() {
		oldest := s.playing[0]
		s.playing = s.playing[1:]
		oldest.running.Store(false)
	}
}

func (s *Sample) release(ch *SampleChannel) {
	if i := slices.Index(s.playing, ch); i >= 0 {
		s.playing = slices.Delete(s.playing, i, i+1)
	}
}

// Update drains actions and updates the channels.
func (s *Sample) Update(ctx context.Context) {
	s.Base.Update(ctx)
	s.channels.Update(ctx)
}

// Dispose disposes every channel with the sample.
func (s *Sample) Dispose() {
	s.Base.Dispose()
	s.channels.Dispose()
}

// Finalize tears down the channels and releases the data.
func (s *Sample) Finalize(ctx context.Context) {
	s.Base.Finalize(ctx)
	s.channels.Update(ctx)
	s.playing = nil

	s.mu.Lock()
	s.data = nil
	s.mu.Unlock()

	s.Adjustments.Release()
}

// SampleChannel is one playback of a sample.
type SampleChannel struct {
	*component.Base
	*adjust.Adjustments
	mixer.Membership
	transport

	sample *Sample

	mu     sync.Mutex
	player *Player

	volume  atomicFloat
	balance atomicFloat
	applied uint64
}

func newSampleChannel(s *Sample, log zerolog.Logger) *SampleChannel {
	base := component.NewBase("sample_channel", log)

	c := &SampleChannel{
		Base:        base,
		Adjustments: adjust.New(s.reg),
		sample:      s,
		player:      NewPlayer(s.format, *base.Logger()),
	}
	c.volume.Store(1)
	c.SetValidator(adjust.Tempo, audio.ValidateTempo)

	return c
}

// Sample returns the parent sample.
func (c *SampleChannel) Sample() *Sample { return c.sample }

// Play starts the channel from the beginning when it ended, or resumes it.
func (c *SampleChannel) Play(ctx context.Context) error {
	return c.RunAction(ctx, c.play)
}

// PlayAsync is the asynchronous form of Play.
func (c *SampleChannel) PlayAsync(ctx context.Context) <-chan error {
	return c.EnqueueAction(ctx, c.play)
}

func (c *SampleChannel) play(context.Context) error {
	if err := c.sample.Err(); err != nil {
		c.fail(err)
		return nil
	}

	c.mu.Lock()
	c.load()
	if c.player.AtEnd() || c.completed.Load() {
		c.player.Seek(0)
		c.current.Store(0)
	}
	c.player.ClearDone()
	c.mu.Unlock()

	c.running.Store(true)
	c.completed.Store(false)
	c.sample.claim(c)

	return nil
}

// Stop pauses the channel.
func (c *SampleChannel) Stop(ctx context.Context) error {
	return c.RunAction(ctx, c.stop)
}

// StopAsync is the asynchronous form of Stop.
func (c *SampleChannel) StopAsync(ctx context.Context) <-chan error {
	return c.EnqueueAction(ctx, c.stop)
}

func (c *SampleChannel) stop(context.Context) error {
	c.running.Store(false)
	c.sample.release(c)

	return nil
}

// load hands the sample data to the player once available. Caller holds mu.
func (c *SampleChannel) load() {
	if c.player.Prepared() {
		return
	}

	data, info, ok := c.sample.snapshot()
	if !ok {
		return
	}

	c.player.Load(data, info)
	c.length.Store(c.player.Length())
}

// Playing is true while the mixer should pull samples.
func (c *SampleChannel) Playing() bool {
	return c.IsRunning() && !c.player.Done()
}

// Gains returns the aggregate volume and balance.
func (c *SampleChannel) Gains() (float64, float64) {
	return c.volume.Load(), c.balance.Load()
}

// ReadSamples is called by the mixer.
func (c *SampleChannel) ReadSamples(dst []float32) int {
	c.mu.Lock()
	n, err := c.player.ReadSamples(dst)
	c.current.Store(c.player.CurrentTime())
	c.mu.Unlock()

	if err != nil {
		c.Logger().Error().Err(err).Msg("sample channel read")
		return 0
	}

	return n
}

// Update applies adjustments and advances the state machine.
func (c *SampleChannel) Update(ctx context.Context) {
	c.Base.Update(ctx)

	if c.IsDisposed() {
		return
	}

	c.mu.Lock()
	c.load()
	c.mu.Unlock()

	if err := c.sample.Err(); err != nil {
		c.sample.release(c)
		c.fail(err)

		return
	}

	if v := c.Version(); v != c.applied {
		agg := c.Aggregates()
		c.applied = v

		c.volume.Store(agg[adjust.Volume])
		c.balance.Store(agg[adjust.Balance])

		c.mu.Lock()
		c.player.SetReverse(agg[adjust.Frequency] < 0)
		c.player.SetRate(agg[adjust.Frequency])
		err := c.player.SetTempo(agg[adjust.Tempo])
		c.mu.Unlock()

		if err != nil {
			c.Logger().Warn().Err(err).Msg("tempo not applied")
		}
	}

	if !c.IsRunning() {
		c.sample.release(c)
		return
	}

	if !c.player.Done() {
		return
	}

	if c.Looping() {
		c.mu.Lock()
		c.player.Seek(c.RestartPoint())
		c.current.Store(c.player.CurrentTime())
		c.mu.Unlock()

		return
	}

	c.sample.release(c)
	c.complete()
}

// Dispose stops the channel and detaches it from its mixer.
func (c *SampleChannel) Dispose() {
	if c.IsDisposed() {
		return
	}

	c.Base.Dispose()
	c.running.Store(false)

	if m := c.Mixer(); m != nil {
		m.Release(c)
	}
}

// Finalize releases the adjustment node.
func (c *SampleChannel) Finalize(ctx context.Context) {
	c.Base.Finalize(ctx)
	c.sample.release(c)

	c.mu.Lock()
	c.player.Close()
	c.mu.Unlock()

	c.Adjustments.Release()
}
