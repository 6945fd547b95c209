// SPDX-License-Identifier: EPL-2.0

package audrt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ik5/audrt/adjust"
	"github.com/ik5/audrt/audio"
	"github.com/ik5/audrt/component"
	"github.com/ik5/audrt/config"
	"github.com/ik5/audrt/device"
	"github.com/ik5/audrt/mixer"
	"github.com/ik5/audrt/playback"
	"github.com/ik5/audrt/scheduler"
	"github.com/ik5/audrt/store"
	"github.com/ik5/audrt/utils"
)

// maxTeardownPasses bounds the updates Close runs to drain nested
// collections.
const maxTeardownPasses = 16

// Manager owns the audio thread, the global mixers and stores and the
// output device.
type Manager struct {
	*component.Collection[component.Component]
	*adjust.Adjustments

	cfg      config.Config
	format   audio.Format
	log      zerolog.Logger
	backend  device.Backend
	registry *adjust.Registry
	thread   *scheduler.Thread

	// VolumeTrack scales every track, VolumeSample every sample.
	VolumeTrack  *adjust.Bindable
	VolumeSample *adjust.Bindable

	trackMixer  *mixer.Mixer
	sampleMixer *mixer.Mixer
	tracks      *playback.TrackStore
	samples     *playback.SampleStore

	mixersMu sync.RWMutex
	mixers   []*mixer.Mixer
	mixerID  atomic.Int64

	devices   deviceState
	started   atomic.Bool
	closeOnce sync.Once
}

// New wires a manager for cfg. Nothing runs until Start, except through
// RenderOffline.
func New(cfg config.Config, backend device.Backend, trackStore, sampleStore store.Store, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = adjust.NewRegistry()
	}
	if o.decoders == nil {
		o.decoders = DefaultDecoders()
	}

	log := o.log.With().Str("component", "manager").Logger()
	format := audio.Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels}

	base := component.NewBase("manager", o.log)
	base.Scheduler().SetTimeout(cfg.SyncTimeout)

	m := &Manager{
		Collection:   component.NewCollection[component.Component](base),
		Adjustments:  adjust.New(o.registry),
		cfg:          cfg,
		format:       format,
		log:          log,
		backend:      backend,
		registry:     o.registry,
		VolumeTrack:  adjust.NewBindableRange(1, 0, 1),
		VolumeSample: adjust.NewBindableRange(1, 0, 1),
	}
	m.devices.preferred = cfg.Device
	m.thread = scheduler.NewThread("audio", cfg.UpdateHz, m.Update, o.log)

	m.trackMixer = mixer.NewDefault("TrackMixer", format, o.log)
	m.sampleMixer = mixer.NewDefault("SampleMixer", format, o.log)
	m.addMixer(m.trackMixer)
	m.addMixer(m.sampleMixer)

	m.tracks = playback.NewTrackStore(playback.StoreConfig{
		Resources: trackStore,
		Decoders:  o.decoders,
		Mixer:     m.trackMixer,
		Registry:  o.registry,
		Log:       o.log,
	})
	m.samples = playback.NewSampleStore(playback.StoreConfig{
		Resources: sampleStore,
		Decoders:  o.decoders,
		Mixer:     m.sampleMixer,
		Registry:  o.registry,
		Log:       o.log,
	})
	m.samples.SetConcurrency(cfg.SampleConcurrency)

	if err := m.tracks.BindAdjustments(m.Adjustments); err != nil {
		return nil, fmt.Errorf("bind track store: %w", err)
	}
	if err := m.samples.BindAdjustments(m.Adjustments); err != nil {
		return nil, fmt.Errorf("bind sample store: %w", err)
	}
	if err := m.tracks.AddAdjustment(adjust.Volume, m.VolumeTrack); err != nil {
		return nil, fmt.Errorf("track volume: %w", err)
	}
	if err := m.samples.AddAdjustment(adjust.Volume, m.VolumeSample); err != nil {
		return nil, fmt.Errorf("sample volume: %w", err)
	}

	m.Add(m.tracks)
	m.Add(m.samples)

	return m, nil
}

// Format is the output format every mixer renders.
func (m *Manager) Format() audio.Format { return m.format }

// Config returns the configuration the manager was built with.
func (m *Manager) Config() config.Config { return m.cfg }

// Tracks is the global track store, routed into TrackMixer.
func (m *Manager) Tracks() *playback.TrackStore { return m.tracks }

// Samples is the global sample store, routed into SampleMixer.
func (m *Manager) Samples() *playback.SampleStore { return m.samples }

// TrackMixer receives every track by default.
func (m *Manager) TrackMixer() *mixer.Mixer { return m.trackMixer }

// DefaultMixer receives samples and the channels of destroyed user mixers.
func (m *Manager) DefaultMixer() *mixer.Mixer { return m.sampleMixer }

// Thread exposes the audio thread.
func (m *Manager) Thread() *scheduler.Thread { return m.thread }

// CreateMixer adds a user mixer falling back to DefaultMixer. An empty
// name gets a generated one.
func (m *Manager) CreateMixer(name string) (*mixer.Mixer, error) {
	if err := m.CheckDisposed(); err != nil {
		return nil, err
	}

	if name == "" {
		name = fmt.Sprintf("user #%d", m.mixerID.Add(1))
	}

	mx := mixer.New(name, m.sampleMixer, m.format, m.log)
	m.addMixer(mx)

	return mx, nil
}

// Mixers returns the mixers the device renders from.
func (m *Manager) Mixers() []*mixer.Mixer {
	m.mixersMu.RLock()
	defer m.mixersMu.RUnlock()

	out := make([]*mixer.Mixer, len(m.mixers))
	copy(out, m.mixers)

	return out
}

// RunOnAudioThread runs fn on the audio thread and waits for it.
func (m *Manager) RunOnAudioThread(ctx context.Context, fn scheduler.Action) error {
	return m.RunAction(ctx, fn)
}

// Start initialises the backend, starts the audio thread and opens the
// configured device. A device that cannot be opened is not an error; the
// poll loop keeps retrying and DeviceValid reports the outcome.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.CheckDisposed(); err != nil {
		return ErrClosed
	}

	if !m.started.CompareAndSwap(false, true) {
		return ErrStarted
	}

	if err := m.backend.Init(); err != nil {
		m.started.Store(false)
		return fmt.Errorf("%s backend: %w", m.backend.Name(), err)
	}

	if err := m.thread.Start(); err != nil {
		m.started.Store(false)
		return err
	}

	return m.RunAction(ctx, func(context.Context) error {
		m.refreshDevices()
		m.setDevice(m.devices.preferredName())
		m.devices.lastPoll = time.Now()
		return nil
	})
}

// Update runs one audio thread frame: queued manager actions, every
// component, then the periodic device check.
func (m *Manager) Update(ctx context.Context) {
	ctx = scheduler.OnAudioThread(ctx)
	m.Collection.Update(ctx)
	m.pruneMixers()

	if m.started.Load() && !m.IsDisposed() {
		m.pollDevices(time.Now())
	}
}

// Close stops the thread, disposes every component, closes the device and
// terminates the backend. It is safe to call more than once.
func (m *Manager) Close() error {
	var err error

	m.closeOnce.Do(func() {
		m.thread.Stop()
		m.Dispose()

		ctx := scheduler.OnAudioThread(context.Background())
		for range maxTeardownPasses {
			m.Collection.Update(ctx)
			if m.TornDown() {
				break
			}
		}
		m.pruneMixers()

		if !m.TornDown() {
			m.log.Warn().Int("left", m.Len()).Msg("teardown incomplete")
		}

		m.Adjustments.Release()

		if m.started.Load() {
			if cerr := m.backend.CloseDevice(); cerr != nil {
				m.log.Warn().Err(cerr).Msg("close device")
			}
			err = m.backend.Terminate()
		}

		m.devices.valid.Store(false)
		m.log.Info().Msg("manager closed")
	})

	return err
}

// RenderOffline advances the runtime by frames without a device and
// returns the mixed output. Each block of BufferFrames runs one frame of
// updates first. It is meant for tests and offline bouncing and fails
// while the audio thread runs.
func (m *Manager) RenderOffline(ctx context.Context, frames int) ([]float32, error) {
	if err := m.CheckDisposed(); err != nil {
		return nil, ErrClosed
	}
	if m.thread.Running() {
		return nil, ErrStarted
	}

	ctx = scheduler.OnAudioThread(ctx)
	block := max(m.cfg.BufferFrames, 1)
	channels := m.format.Channels
	out := make([]float32, frames*channels)

	for pos := 0; pos < frames; pos += block {
		if err := ctx.Err(); err != nil {
			return out[:pos*channels], err
		}

		m.Update(ctx)

		n := min(block, frames-pos)
		m.render(out[pos*channels : (pos+n)*channels])
	}

	return out, nil
}

// render mixes every mixer into out. It runs on the device callback.
func (m *Manager) render(out []float32) {
	m.mixersMu.RLock()
	for _, mx := range m.mixers {
		mx.MixChannelsInto(out)
	}
	m.mixersMu.RUnlock()

	for i, v := range out {
		out[i] = utils.Clamp(v)
	}
}

func (m *Manager) addMixer(mx *mixer.Mixer) {
	m.mixersMu.Lock()
	m.mixers = append(m.mixers, mx)
	m.mixersMu.Unlock()

	m.Add(mx)
}

// pruneMixers drops finalized mixers from the render list.
func (m *Manager) pruneMixers() {
	m.mixersMu.Lock()
	defer m.mixersMu.Unlock()

	live := m.mixers[:0]
	for _, mx := range m.mixers {
		if mx.IsAlive() {
			live = append(live, mx)
		}
	}

	clear(m.mixers[len(live):])
	m.mixers = live
}
