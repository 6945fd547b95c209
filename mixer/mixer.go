// SPDX-License-Identifier: EPL-2.0

// Package mixer routes channels through mixers. Every live channel belongs
// to exactly one mixer; channels leaving a regular mixer fall back to the
// default mixer.
package mixer

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/ik5/audrt/audio"
	"github.com/ik5/audrt/component"
	"github.com/ik5/audrt/scheduler"
	"github.com/ik5/audrt/utils"
)

// Mixer owns a set of channels and an effect chain. Membership changes run
// on the audio thread; MixChannelsInto may be called from the device
// callback.
type Mixer struct {
	*component.Base

	name   string
	def    *Mixer
	format audio.Format

	effects      *EffectList
	chainVersion uint64

	// dependents counts regular mixers falling back to this one.
	dependents atomic.Int32

	mu       sync.Mutex
	channels []Channel
	chain    []chainSlot
	scratch  []float32
	sum      []float32
}

// NewDefault creates the fallback mixer.
func NewDefault(name string, format audio.Format, log zerolog.Logger) *Mixer {
	return newMixer(name, nil, format, log)
}

// New creates a mixer whose channels fall back to def.
func New(name string, def *Mixer, format audio.Format, log zerolog.Logger) *Mixer {
	m := newMixer(name, def, format, log)
	def.dependents.Add(1)

	return m
}

func newMixer(name string, def *Mixer, format audio.Format, log zerolog.Logger) *Mixer {
	return &Mixer{
		Base:    component.NewBase("mixer", log.With().Str("mixer", name).Logger()),
		name:    name,
		def:     def,
		format:  format,
		effects: &EffectList{},
	}
}

// Name returns the mixer identifier.
func (m *Mixer) Name() string { return m.name }

// IsDefault reports whether this is the fallback mixer.
func (m *Mixer) IsDefault() bool { return m.def == nil }

// Default returns the fallback mixer; the default mixer returns itself.
func (m *Mixer) Default() *Mixer {
	if m.def == nil {
		return m
	}

	return m.def
}

// Format is the sample format channels must deliver.
func (m *Mixer) Format() audio.Format { return m.format }

// Effects returns the ordered effect chain.
func (m *Mixer) Effects() *EffectList { return m.effects }

// Add moves ch into this mixer, detaching it from its current one first.
// The channel's playback state is untouched. Disposed channels are ignored.
func (m *Mixer) Add(ctx context.Context, ch Channel) error {
	return m.RunAction(ctx, func(context.Context) error {
		m.attach(ch)
		return nil
	})
}

// AddAsync is the asynchronous form of Add.
func (m *Mixer) AddAsync(ctx context.Context, ch Channel) <-chan error {
	return m.EnqueueAction(ctx, func(context.Context) error {
		m.attach(ch)
		return nil
	})
}

// Remove detaches ch and hands it to the default mixer. It is a no-op on
// the default mixer and for channels owned elsewhere.
func (m *Mixer) Remove(ctx context.Context, ch Channel) error {
	if m.IsDefault() {
		return nil
	}

	return m.RunAction(ctx, func(context.Context) error {
		m.remove(ch)
		return nil
	})
}

// RemoveAsync is the asynchronous form of Remove.
func (m *Mixer) RemoveAsync(ctx context.Context, ch Channel) <-chan error {
	if m.IsDefault() {
		return scheduler.Done(nil)
	}

	return m.EnqueueAction(ctx, func(context.Context) error {
		m.remove(ch)
		return nil
	})
}

// Release detaches ch without any fallback. Disposing channels call it
// from the audio thread; afterwards the channel has no mixer.
func (m *Mixer) Release(ch Channel) {
	ch.membership().clearIf(m)
	m.detach(ch)
}

// Contains reports whether ch is a member.
func (m *Mixer) Contains(ch Channel) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return slices.Contains(m.channels, ch)
}

// Channels returns a snapshot of the members.
func (m *Mixer) Channels() []Channel {
	m.mu.Lock()
	defer m.mu.Unlock()

	return slices.Clone(m.channels)
}

// Len is the number of members.
func (m *Mixer) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.channels)
}

// Dispose marks the mixer for removal; its members migrate to the default
// mixer when it is finalized. A default mixer still referenced by regular
// mixers refuses.
func (m *Mixer) Dispose() {
	if m.IsDefault() {
		if n := m.dependents.Load(); n > 0 {
			m.Logger().Warn().Err(ErrDefaultInUse).Int32("dependents", n).Msg("dispose ignored")
			return
		}
	}

	m.Base.Dispose()
}

// Update drains pending actions and applies effect list changes.
func (m *Mixer) Update(ctx context.Context) {
	m.Base.Update(ctx)

	effects, version := m.effects.snapshot()
	if version == m.chainVersion {
		return
	}

	m.mu.Lock()
	m.chain = buildChain(effects, m.chain, m.format)
	m.mu.Unlock()

	m.chainVersion = version
}

// Finalize migrates every live member to the default mixer.
func (m *Mixer) Finalize(ctx context.Context) {
	m.Base.Finalize(ctx)

	m.mu.Lock()
	members := m.channels
	m.channels = nil
	m.chain = nil
	m.mu.Unlock()

	for _, ch := range members {
		if m.def != nil && ch.IsAlive() {
			m.def.attach(ch)
			continue
		}

		ch.membership().clearIf(m)
	}

	if m.def != nil {
		m.def.dependents.Add(-1)
	}

	m.Logger().Debug().Int("migrated", len(members)).Msg("mixer finalized")
}

func (m *Mixer) attach(ch Channel) {
	if !ch.IsAlive() {
		return
	}

	prev := ch.membership().swap(m)
	if prev == m {
		return
	}

	if prev != nil {
		prev.detach(ch)
	}

	m.mu.Lock()
	m.channels = append(m.channels, ch)
	m.mu.Unlock()
}

func (m *Mixer) remove(ch Channel) {
	if ch.membership().Mixer() != m {
		return
	}

	if ch.IsAlive() {
		m.def.attach(ch)
		return
	}

	m.Release(ch)
}

func (m *Mixer) detach(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if i := slices.Index(m.channels, ch); i >= 0 {
		m.channels = slices.Delete(m.channels, i, i+1)
	}
}

// MixChannelsInto adds the output of every playing member, after gain,
// pan and the effect chain, to dst. Dead members are pruned.
func (m *Mixer) MixChannelsInto(dst []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(dst)
	if cap(m.scratch) < n {
		m.scratch = make([]float32, n)
		m.sum = make([]float32, n)
	}
	scratch, sum := m.scratch[:n], m.sum[:n]
	clear(sum)

	live := m.channels[:0]
	mixed := false

	for _, ch := range m.channels {
		if !ch.IsAlive() {
			ch.membership().clearIf(m)
			continue
		}
		live = append(live, ch)

		if !ch.Playing() {
			continue
		}

		got := ch.ReadSamples(scratch)
		if got <= 0 {
			continue
		}

		volume, balance := ch.Gains()
		m.accumulate(sum, scratch[:min(got, n)], volume, balance)
		mixed = true
	}

	clear(m.channels[len(live):])
	m.channels = live

	if !mixed {
		return
	}

	for _, slot := range m.chain {
		if slot.proc != nil {
			slot.proc.Process(sum)
		}
	}

	for i, v := range sum {
		dst[i] += v
	}
}

func (m *Mixer) accumulate(sum, src []float32, volume, balance float64) {
	left, right := utils.PanGains(volume, balance)
	gain := float32(volume)

	switch m.format.Channels {
	case 1:
		for i, v := range src {
			sum[i] += v * gain
		}
	case 2:
		for i := 0; i+1 < len(src); i += 2 {
			sum[i] += src[i] * left
			sum[i+1] += src[i+1] * right
		}
	default:
		ch := max(m.format.Channels, 1)
		for i, v := range src {
			switch i % ch {
			case 0:
				sum[i] += v * left
			case 1:
				sum[i] += v * right
			default:
				sum[i] += v * gain
			}
		}
	}
}
