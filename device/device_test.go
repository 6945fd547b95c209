// SPDX-License-Identifier: EPL-2.0

package device

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ik5/audrt/audio"
)

var stereo = Format{Format: audio.Format{SampleRate: 48000, Channels: 2}, BufferFrames: 256}

func TestSelectNull(t *testing.T) {
	b, err := Select(NullName, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, NullName, b.Name())
	assert.Contains(t, Backends(), NullName)
}

func TestSelectUnknown(t *testing.T) {
	_, err := Select("carrier-pigeon", zerolog.Nop())
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestRegisterTwicePanics(t *testing.T) {
	assert.Panics(t, func() {
		Register(NullName, func(zerolog.Logger) Backend { return nil })
	})
}

func TestFind(t *testing.T) {
	devices := []Descriptor{
		{ID: "a", Name: "Speakers"},
		{ID: "b", Name: "Headphones", IsDefault: true},
	}

	d, ok := Find(devices, "")
	require.True(t, ok)
	assert.Equal(t, "b", d.ID)

	d, ok = Find(devices, "Speakers")
	require.True(t, ok)
	assert.Equal(t, "a", d.ID)

	_, ok = Find(devices, "HDMI")
	assert.False(t, ok)

	_, ok = Find(nil, "")
	assert.False(t, ok)

	assert.Equal(t, []string{"Speakers", "Headphones"}, Names(devices))
}

func TestNullRequiresInit(t *testing.T) {
	n := NewNullBackend(zerolog.Nop())

	_, err := n.EnumerateDevices()
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, n.OpenDevice(DefaultID, stereo, nil), ErrNotInitialized)
	assert.False(t, n.IsCurrentDeviceValid())
}

func TestNullInitError(t *testing.T) {
	n := NewNullBackend(zerolog.Nop())
	boom := errors.New("no sound server")
	n.SetInitError(boom)

	assert.ErrorIs(t, n.Init(), boom)
}

func TestNullOpenAndRender(t *testing.T) {
	n := NewNullBackend(zerolog.Nop())
	require.NoError(t, n.Init())

	calls := 0
	require.NoError(t, n.OpenDevice(DefaultID, stereo, func(out []float32) {
		calls++
		for i := range out {
			out[i] = 0.5
		}
	}))
	assert.True(t, n.IsCurrentDeviceValid())

	out, err := n.Render(128)
	require.NoError(t, err)
	assert.Len(t, out, 256)
	assert.InDelta(t, 0.5, out[255], 1e-6)
	assert.Equal(t, 1, calls)
	assert.EqualValues(t, 128, n.Rendered())

	d, ok := n.Current()
	require.True(t, ok)
	assert.True(t, d.IsDefault)
	assert.Equal(t, stereo, n.Format())
}

func TestNullOpenInvalidFormat(t *testing.T) {
	n := NewNullBackend(zerolog.Nop())
	require.NoError(t, n.Init())

	err := n.OpenDevice(DefaultID, Format{}, nil)
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestNullOpenUnknownDevice(t *testing.T) {
	n := NewNullBackend(zerolog.Nop())
	require.NoError(t, n.Init())

	err := n.OpenDevice("HDMI", stereo, nil)
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
}

func TestNullDeviceLoss(t *testing.T) {
	n := NewNullBackend(zerolog.Nop())
	require.NoError(t, n.Init())
	n.AddDevice(Descriptor{ID: "usb", Name: "USB DAC"})
	require.NoError(t, n.OpenDevice("USB DAC", stereo, nil))
	require.True(t, n.IsCurrentDeviceValid())

	n.RemoveDevice("usb")
	assert.False(t, n.IsCurrentDeviceValid())

	_, err := n.Render(16)
	assert.ErrorIs(t, err, ErrDeviceUnavailable)

	require.NoError(t, n.OpenDevice(DefaultID, stereo, nil))
	assert.True(t, n.IsCurrentDeviceValid())
}

func TestNullTerminateClosesStream(t *testing.T) {
	n := NewNullBackend(zerolog.Nop())
	require.NoError(t, n.Init())
	require.NoError(t, n.OpenDevice(DefaultID, stereo, nil))

	require.NoError(t, n.Terminate())
	assert.False(t, n.IsCurrentDeviceValid())

	_, err := n.Render(16)
	assert.ErrorIs(t, err, ErrNotInitialized)
}
