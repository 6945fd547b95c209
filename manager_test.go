// SPDX-License-Identifier: EPL-2.0

package audrt

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ik5/audrt/audio"
	"github.com/ik5/audrt/component"
	"github.com/ik5/audrt/config"
	"github.com/ik5/audrt/device"
	"github.com/ik5/audrt/internal/audiotest"
	"github.com/ik5/audrt/scheduler"
	"github.com/ik5/audrt/store"
)

const testRate = 8000

var usbDAC = device.Descriptor{ID: "usb:1", Name: "USB DAC", MaxOutputChannels: 2, DefaultSampleRate: 48000}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.SampleRate = testRate
	cfg.BufferFrames = 64
	cfg.DevicePollInterval = time.Hour
	cfg.SyncTimeout = 5 * time.Second

	return cfg
}

// toneDecoders decodes ".tone" resources into one second of 0.5.
func toneDecoders() *audio.Registry {
	reg := audio.NewRegistry()
	reg.Register("tone", audio.DecoderFunc(func(io.Reader) (audio.Source, error) {
		samples := audiotest.Samples(2, testRate, func(int, int) float32 { return 0.5 })
		return audio.NewBufferSource(samples, testRate, 2), nil
	}))

	return reg
}

func newTestManager(t *testing.T, cfg config.Config) (*Manager, *device.NullBackend) {
	t.Helper()

	res := store.NewMemoryStore()
	res.Put("theme.tone", []byte{0})
	res.Put("click.tone", []byte{0})

	nb := device.NewNullBackend(zerolog.Nop())

	m, err := New(cfg, nb, res, res, WithDecoders(toneDecoders()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	return m, nb
}

func audioCtx() context.Context { return scheduler.OnAudioThread(context.Background()) }

// forcePoll runs a device check on the audio thread regardless of the
// poll interval.
func forcePoll(t *testing.T, m *Manager) {
	t.Helper()

	require.NoError(t, m.RunOnAudioThread(context.Background(), func(context.Context) error {
		m.refreshDevices()
		m.checkDevice()
		return nil
	}))
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Channels = 0

	_, err := New(cfg, device.NewNullBackend(zerolog.Nop()), store.NewMemoryStore(), store.NewMemoryStore())
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestDefaultMixers(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t, testConfig())

	assert.True(t, m.DefaultMixer().IsDefault())
	assert.True(t, m.TrackMixer().IsDefault())
	assert.NotSame(t, m.DefaultMixer(), m.TrackMixer())
	assert.Len(t, m.Mixers(), 2)
	assert.Equal(t, audio.Format{SampleRate: testRate, Channels: 2}, m.Format())
}

func TestCreateMixerFallsBackToDefault(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t, testConfig())

	mx, err := m.CreateMixer("")
	require.NoError(t, err)
	assert.Equal(t, "user #1", mx.Name())
	assert.Same(t, m.DefaultMixer(), mx.Default())
	assert.Len(t, m.Mixers(), 3)

	_, err = m.RenderOffline(context.Background(), 64)
	require.NoError(t, err)

	mx.Dispose()
	_, err = m.RenderOffline(context.Background(), 64)
	require.NoError(t, err)

	assert.Len(t, m.Mixers(), 2)
	assert.False(t, mx.IsAlive())
}

func TestRenderOfflineMixesTracks(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t, testConfig())

	tr, err := m.Tracks().Get(context.Background(), "theme.tone")
	require.NoError(t, err)
	require.Eventually(t, tr.IsLoaded, 5*time.Second, time.Millisecond)
	require.NoError(t, tr.Start(audioCtx()))

	out, err := m.RenderOffline(context.Background(), 256)
	require.NoError(t, err)
	require.Len(t, out, 512)

	assert.Same(t, m.TrackMixer(), tr.Mixer())
	assert.InDelta(t, 0.5, out[len(out)-1], 0.05)
	for _, v := range out {
		assert.LessOrEqual(t, v, float32(1))
		assert.GreaterOrEqual(t, v, float32(-1))
	}
}

func TestVolumeTrackSilencesTracks(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t, testConfig())

	tr, err := m.Tracks().Get(context.Background(), "theme.tone")
	require.NoError(t, err)
	require.Eventually(t, tr.IsLoaded, 5*time.Second, time.Millisecond)
	require.NoError(t, tr.Start(audioCtx()))

	m.VolumeTrack.Set(0)

	out, err := m.RenderOffline(context.Background(), 128)
	require.NoError(t, err)

	assert.InDelta(t, 0, tr.AggregateVolume(), 1e-9)
	for _, v := range out {
		assert.Zero(t, v)
	}
}

func TestSamplesPlayThroughDefaultMixer(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t, testConfig())

	smp, err := m.Samples().Get("click.tone")
	require.NoError(t, err)
	require.Eventually(t, smp.IsLoaded, 5*time.Second, time.Millisecond)
	assert.Equal(t, config.Default().SampleConcurrency, smp.Concurrency())

	ch, err := smp.Play(audioCtx())
	require.NoError(t, err)

	out, err := m.RenderOffline(context.Background(), 256)
	require.NoError(t, err)

	assert.Same(t, m.DefaultMixer(), ch.Mixer())
	assert.InDelta(t, 0.5, out[len(out)-1], 0.05)
}

func TestRenderOfflineHonoursCancellation(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := m.RenderOffline(ctx, 256)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, out)
}

func TestStartOpensPreferredDevice(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Device = usbDAC.Name

	m, nb := newTestManager(t, cfg)
	nb.AddDevice(usbDAC)

	require.NoError(t, m.Start(context.Background()))

	cur, ok := m.CurrentDevice()
	require.True(t, ok)
	assert.Equal(t, usbDAC.ID, cur.ID)
	assert.True(t, m.DeviceValid())
	assert.ElementsMatch(t, []string{"Null Output", "USB DAC"}, m.DeviceNames())

	f := nb.Format()
	assert.Equal(t, testRate, f.SampleRate)
	assert.Equal(t, 64, f.BufferFrames)

	out, err := nb.Render(64)
	require.NoError(t, err)
	assert.Len(t, out, 128)

	assert.ErrorIs(t, m.Start(context.Background()), ErrStarted)
	_, err = m.RenderOffline(context.Background(), 64)
	assert.ErrorIs(t, err, ErrStarted)
}

func TestStartFallsBackToDefaultDevice(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Device = "HDMI"

	m, nb := newTestManager(t, cfg)
	require.NoError(t, m.Start(context.Background()))

	cur, ok := nb.Current()
	require.True(t, ok)
	assert.Equal(t, "Null Output", cur.Name)
	assert.True(t, m.DeviceValid())
}

func TestStartReportsInitFailure(t *testing.T) {
	t.Parallel()

	errNoDriver := errors.New("no driver")

	m, nb := newTestManager(t, testConfig())
	nb.SetInitError(errNoDriver)

	assert.ErrorIs(t, m.Start(context.Background()), errNoDriver)
	assert.False(t, m.Thread().Running())
	assert.False(t, m.DeviceValid())
}

func TestDeviceOpenFailureIsRecoveredByPolling(t *testing.T) {
	t.Parallel()

	m, nb := newTestManager(t, testConfig())
	nb.SetOpenError(errors.New("busy"))

	require.NoError(t, m.Start(context.Background()))
	assert.False(t, m.DeviceValid())

	nb.SetOpenError(nil)
	forcePoll(t, m)

	assert.True(t, m.DeviceValid())
}

func TestDeviceLossAndReturn(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Device = usbDAC.ID

	m, nb := newTestManager(t, cfg)
	nb.AddDevice(usbDAC)

	var (
		mu         sync.Mutex
		added, got []string
	)
	m.OnNewDevice(func(name string) {
		mu.Lock()
		added = append(added, name)
		mu.Unlock()
	})
	m.OnLostDevice(func(name string) {
		mu.Lock()
		got = append(got, name)
		mu.Unlock()
	})

	require.NoError(t, m.Start(context.Background()))

	nb.RemoveDevice(usbDAC.ID)
	forcePoll(t, m)

	cur, ok := m.CurrentDevice()
	require.True(t, ok)
	assert.Equal(t, "Null Output", cur.Name)

	nb.AddDevice(usbDAC)
	forcePoll(t, m)

	cur, ok = m.CurrentDevice()
	require.True(t, ok)
	assert.Equal(t, usbDAC.ID, cur.ID)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"USB DAC"}, got)
	assert.Equal(t, []string{"USB DAC"}, added)
}

func TestDevicePollingWaitsForInterval(t *testing.T) {
	t.Parallel()

	m, nb := newTestManager(t, testConfig())

	var seen []string
	m.OnNewDevice(func(name string) { seen = append(seen, name) })

	require.NoError(t, m.Start(context.Background()))
	nb.AddDevice(usbDAC)

	now := time.Now()
	require.NoError(t, m.RunOnAudioThread(context.Background(), func(context.Context) error {
		m.devices.lastPoll = now
		m.pollDevices(now.Add(time.Minute))
		return nil
	}))
	assert.Empty(t, m.DeviceNames()[1:])

	require.NoError(t, m.RunOnAudioThread(context.Background(), func(context.Context) error {
		m.pollDevices(now.Add(time.Hour))
		return nil
	}))
	assert.Equal(t, []string{"USB DAC"}, seen)
	assert.Equal(t, []string{"Null Output", "USB DAC"}, m.DeviceNames())
}

func TestSetAudioDevice(t *testing.T) {
	t.Parallel()

	m, nb := newTestManager(t, testConfig())
	nb.AddDevice(usbDAC)

	ok, err := m.SetAudioDevice(context.Background(), "USB DAC")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Start(context.Background()))
	cur, _ := nb.Current()
	assert.Equal(t, usbDAC.ID, cur.ID)

	ok, err = m.SetAudioDevice(context.Background(), "HDMI")
	require.NoError(t, err)
	assert.False(t, ok)
	cur, _ = nb.Current()
	assert.Equal(t, "Null Output", cur.Name)

	ok, err = m.SetAudioDevice(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, m.DeviceValid())
}

func TestRunOnAudioThread(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t, testConfig())
	require.NoError(t, m.Start(context.Background()))

	var inline bool
	err := m.RunOnAudioThread(context.Background(), func(ctx context.Context) error {
		if !scheduler.IsAudioThread(ctx) {
			return errors.New("not on the audio thread")
		}

		return m.RunOnAudioThread(ctx, func(context.Context) error {
			inline = true
			return nil
		})
	})

	require.NoError(t, err)
	assert.True(t, inline)
}

func TestCloseTearsEverythingDown(t *testing.T) {
	t.Parallel()

	m, nb := newTestManager(t, testConfig())

	tr, err := m.Tracks().Get(context.Background(), "theme.tone")
	require.NoError(t, err)
	mx, err := m.CreateMixer("fx")
	require.NoError(t, err)

	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.Close())

	assert.True(t, m.TornDown())
	assert.True(t, tr.IsDisposed())
	assert.False(t, mx.IsAlive())
	assert.False(t, m.DefaultMixer().IsAlive())
	assert.Empty(t, m.Mixers())
	assert.False(t, m.DeviceValid())
	assert.False(t, m.Thread().Running())

	_, open := nb.Current()
	assert.False(t, open)

	require.NoError(t, m.Close())
	assert.ErrorIs(t, m.Start(context.Background()), ErrClosed)

	_, err = m.CreateMixer("late")
	assert.ErrorIs(t, err, component.ErrDisposed)

	_, err = m.RenderOffline(context.Background(), 64)
	assert.ErrorIs(t, err, ErrClosed)
}
