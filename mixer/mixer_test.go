// SPDX-License-Identifier: EPL-2.0

package mixer

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ik5/audrt/audio"
	"github.com/ik5/audrt/scheduler"
)

type fakeChannel struct {
	Membership

	disposed atomic.Bool
	playing  atomic.Bool
	volume   float64
	balance  float64
	value    float32
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{volume: 1, value: 0.5}
}

func (c *fakeChannel) IsAlive() bool { return !c.disposed.Load() }
func (c *fakeChannel) Playing() bool { return c.playing.Load() }
func (c *fakeChannel) Gains() (float64, float64) {
	return c.volume, c.balance
}

func (c *fakeChannel) ReadSamples(dst []float32) int {
	for i := range dst {
		dst[i] = c.value
	}
	return len(dst)
}

var stereo = audio.Format{SampleRate: 44100, Channels: 2}

func audioCtx() context.Context { return scheduler.OnAudioThread(context.Background()) }

func newMixers() (def, other *Mixer) {
	def = NewDefault("default", stereo, zerolog.Nop())
	other = New("other", def, stereo, zerolog.Nop())
	return def, other
}

func TestAddToDefault(t *testing.T) {
	t.Parallel()

	def, _ := newMixers()
	ch := newFakeChannel()

	require.NoError(t, def.Add(audioCtx(), ch))
	assert.Same(t, def, ch.Mixer())
	assert.True(t, def.Contains(ch))
}

func TestAddMovesBetweenMixers(t *testing.T) {
	t.Parallel()

	def, other := newMixers()
	ch := newFakeChannel()
	ch.playing.Store(true)

	require.NoError(t, def.Add(audioCtx(), ch))
	require.NoError(t, other.Add(audioCtx(), ch))

	assert.Same(t, other, ch.Mixer())
	assert.False(t, def.Contains(ch))
	assert.True(t, other.Contains(ch))
	assert.True(t, ch.Playing())

	require.NoError(t, other.Add(audioCtx(), ch))
	assert.Equal(t, 1, other.Len())
}

func TestRemoveFallsBackToDefault(t *testing.T) {
	t.Parallel()

	def, other := newMixers()
	ch := newFakeChannel()

	require.NoError(t, other.Add(audioCtx(), ch))
	require.NoError(t, other.Remove(audioCtx(), ch))

	assert.Same(t, def, ch.Mixer())
	assert.True(t, def.Contains(ch))
	assert.False(t, other.Contains(ch))
}

func TestRemoveFromDefaultIsNoop(t *testing.T) {
	t.Parallel()

	def, _ := newMixers()
	ch := newFakeChannel()

	require.NoError(t, def.Add(audioCtx(), ch))
	require.NoError(t, def.Remove(audioCtx(), ch))
	require.NoError(t, <-def.RemoveAsync(context.Background(), ch))

	assert.Same(t, def, ch.Mixer())
	assert.True(t, def.Contains(ch))
}

func TestRemoveChannelOwnedElsewhere(t *testing.T) {
	t.Parallel()

	def, other := newMixers()
	ch := newFakeChannel()

	require.NoError(t, def.Add(audioCtx(), ch))
	require.NoError(t, other.Remove(audioCtx(), ch))

	assert.Same(t, def, ch.Mixer())
}

func TestDisposedMixerMigratesToDefault(t *testing.T) {
	t.Parallel()

	def, other := newMixers()
	a, b := newFakeChannel(), newFakeChannel()
	b.disposed.Store(true)

	require.NoError(t, other.Add(audioCtx(), a))
	other.attachForTest(b)

	other.Dispose()
	other.Finalize(audioCtx())

	assert.Same(t, def, a.Mixer())
	assert.True(t, def.Contains(a))
	assert.Nil(t, b.Mixer())
	assert.Zero(t, other.Len())
}

func TestAddIgnoresDisposedChannel(t *testing.T) {
	t.Parallel()

	def, _ := newMixers()
	ch := newFakeChannel()
	ch.disposed.Store(true)

	require.NoError(t, def.Add(audioCtx(), ch))
	assert.Nil(t, ch.Mixer())
	assert.Zero(t, def.Len())
}

func TestReleaseLeavesNoMixer(t *testing.T) {
	t.Parallel()

	def, _ := newMixers()
	ch := newFakeChannel()
	require.NoError(t, def.Add(audioCtx(), ch))

	ch.disposed.Store(true)
	def.Release(ch)

	assert.Nil(t, ch.Mixer())
	assert.False(t, def.Contains(ch))
}

func TestMixPrunesDeadChannels(t *testing.T) {
	t.Parallel()

	def, _ := newMixers()
	ch := newFakeChannel()
	require.NoError(t, def.Add(audioCtx(), ch))

	ch.disposed.Store(true)
	def.MixChannelsInto(make([]float32, 8))

	assert.Nil(t, ch.Mixer())
	assert.Zero(t, def.Len())
}

func TestAsyncAddResolvesOnUpdate(t *testing.T) {
	t.Parallel()

	def, other := newMixers()
	ch := newFakeChannel()
	require.NoError(t, def.Add(audioCtx(), ch))

	done := other.AddAsync(context.Background(), ch)
	assert.Same(t, def, ch.Mixer())

	other.Update(context.Background())
	require.NoError(t, <-done)
	assert.Same(t, other, ch.Mixer())
}

func TestDefaultDisposeRefusedWhileReferenced(t *testing.T) {
	t.Parallel()

	def, other := newMixers()

	def.Dispose()
	assert.True(t, def.IsAlive())

	other.Dispose()
	other.Finalize(audioCtx())

	def.Dispose()
	assert.False(t, def.IsAlive())
}

func TestMixPanLaw(t *testing.T) {
	t.Parallel()

	def, _ := newMixers()
	ch := newFakeChannel()
	ch.playing.Store(true)
	ch.volume, ch.balance = 0.5, 0.5

	require.NoError(t, def.Add(audioCtx(), ch))

	dst := []float32{0.1, 0.1, 0.1, 0.1}
	def.MixChannelsInto(dst)

	assert.InDelta(t, 0.1+0.125, dst[0], 1e-6)
	assert.InDelta(t, 0.1+0.25, dst[1], 1e-6)
	assert.InDelta(t, 0.1+0.125, dst[2], 1e-6)
	assert.InDelta(t, 0.1+0.25, dst[3], 1e-6)
}

func TestMixSumsPlayingChannelsOnly(t *testing.T) {
	t.Parallel()

	def, other := newMixers()
	a, b, stopped := newFakeChannel(), newFakeChannel(), newFakeChannel()
	a.playing.Store(true)
	b.playing.Store(true)

	require.NoError(t, def.Add(audioCtx(), a))
	require.NoError(t, def.Add(audioCtx(), b))
	require.NoError(t, other.Add(audioCtx(), stopped))

	dst := make([]float32, 4)
	def.MixChannelsInto(dst)
	other.MixChannelsInto(dst)

	for _, v := range dst {
		assert.InDelta(t, 1.0, v, 1e-6)
	}
}

func (m *Mixer) attachForTest(ch Channel) {
	ch.membership().swap(m)
	m.mu.Lock()
	m.channels = append(m.channels, ch)
	m.mu.Unlock()
}
