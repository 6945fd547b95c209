// SPDX-License-Identifier: EPL-2.0

package mixer

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ik5/audrt/audio"
)

type reverbParameters struct{ RoomSize float64 }

func TestEffectListOperations(t *testing.T) {
	t.Parallel()

	l := &EffectList{}
	low := BiQuadParameters{Type: audio.LowPass, Frequency: 1000, Q: 0.7}
	high := BiQuadParameters{Type: audio.HighPass, Frequency: 200, Q: 0.7}
	rev := reverbParameters{RoomSize: 0.5}

	l.Add(low)
	l.Add(high)
	require.NoError(t, l.Insert(0, rev))
	assert.Equal(t, 3, l.Len())
	assert.Equal(t, 0, l.IndexOf(rev))
	assert.Equal(t, 2, l.IndexOf(high))

	require.NoError(t, l.Move(0, 2))
	assert.Equal(t, 0, l.IndexOf(low))
	assert.Equal(t, 2, l.IndexOf(rev))

	require.NoError(t, l.Set(1, rev))
	e, err := l.At(1)
	require.NoError(t, err)
	assert.Equal(t, rev, e)

	require.NoError(t, l.RemoveAt(1))
	assert.True(t, l.Remove(rev))
	assert.False(t, l.Remove(rev))
	assert.Equal(t, 1, l.Len())

	l.Clear()
	assert.Zero(t, l.Len())
}

func TestEffectListBounds(t *testing.T) {
	t.Parallel()

	l := &EffectList{}
	l.Add(reverbParameters{})

	require.ErrorIs(t, l.Insert(2, nil), ErrIndexOutOfRange)
	require.ErrorIs(t, l.RemoveAt(1), ErrIndexOutOfRange)
	require.ErrorIs(t, l.Move(0, 1), ErrIndexOutOfRange)
	require.ErrorIs(t, l.Set(-1, nil), ErrIndexOutOfRange)

	_, err := l.At(3)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestEffectPriorityDecreasesWithPosition(t *testing.T) {
	t.Parallel()

	l := &EffectList{}
	for range 4 {
		l.Add(reverbParameters{})
	}

	for i := 1; i < l.Len(); i++ {
		assert.Greater(t, l.Priority(i-1), l.Priority(i))
	}
}

func TestNonComparableEffects(t *testing.T) {
	t.Parallel()

	l := &EffectList{}
	l.Add([]float64{1, 2})

	assert.Equal(t, -1, l.IndexOf([]float64{1, 2}))
	assert.False(t, l.Remove([]float64{1, 2}))
}

func TestEffectChainFollowsListOnUpdate(t *testing.T) {
	t.Parallel()

	m := NewDefault("fx", stereo, zerolog.Nop())
	low := BiQuadParameters{Type: audio.LowPass, Frequency: 1000, Q: 0.7}
	flat := BiQuadParameters{Type: audio.PeakingEQ, Frequency: 1000, Q: 1}

	m.Effects().Add(low)
	m.Effects().Add(reverbParameters{})
	assert.Empty(t, m.chain)

	m.Update(audioCtx())
	require.Len(t, m.chain, 2)
	assert.NotNil(t, m.chain[0].proc)
	assert.Nil(t, m.chain[1].proc)

	lowProc := m.chain[0].proc

	m.Effects().Add(flat)
	require.NoError(t, m.Effects().Move(2, 0))
	m.Update(audioCtx())

	require.Len(t, m.chain, 3)
	assert.Equal(t, flat, m.chain[0].params)
	assert.Same(t, lowProc, m.chain[1].proc)
	assert.Equal(t, reverbParameters{}, m.chain[2].params)
}

func TestFlatEffectLeavesMixUnchanged(t *testing.T) {
	t.Parallel()

	m := NewDefault("fx", stereo, zerolog.Nop())
	m.Effects().Add(BiQuadParameters{Type: audio.PeakingEQ, Frequency: 1000, Q: 1})
	m.Effects().Add(reverbParameters{})
	m.Update(audioCtx())

	ch := newFakeChannel()
	ch.playing.Store(true)
	require.NoError(t, m.Add(audioCtx(), ch))

	dst := make([]float32, 8)
	m.MixChannelsInto(dst)

	for _, v := range dst {
		assert.InDelta(t, 0.5, v, 1e-5)
	}
}
