// SPDX-License-Identifier: EPL-2.0

package mixer

import (
	"fmt"
	"slices"
	"sync"

	"github.com/ik5/audrt/audio"
)

// Effect is an effect parameter object. Types the mixer does not know keep
// their slot in the chain without processing.
type Effect any

// BiQuadParameters configures a biquad filter effect.
type BiQuadParameters struct {
	Type audio.FilterType
	// Frequency is the cutoff or centre frequency in Hz.
	Frequency float64
	Q         float64
	// GainDB applies to peaking and shelf filters.
	GainDB float64
}

// EffectList is the ordered effect chain of a mixer. The first effect has
// the highest priority. Changes reach the processing chain on the mixer's
// next Update.
type EffectList struct {
	mu      sync.Mutex
	items   []Effect
	version uint64
}

// Add appends e.
func (l *EffectList) Add(e Effect) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.items = append(l.items, e)
	l.version++
}

// Insert places e at index i, shifting later effects.
func (l *EffectList) Insert(i int, e Effect) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if i < 0 || i > len(l.items) {
		return fmt.Errorf("insert at %d: %w", i, ErrIndexOutOfRange)
	}

	l.items = slices.Insert(l.items, i, e)
	l.version++

	return nil
}

// RemoveAt deletes the effect at index i.
func (l *EffectList) RemoveAt(i int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if i < 0 || i >= len(l.items) {
		return fmt.Errorf("remove at %d: %w", i, ErrIndexOutOfRange)
	}

	l.items = slices.Delete(l.items, i, i+1)
	l.version++

	return nil
}

// Remove deletes the first effect equal to e and reports whether one was found.
func (l *EffectList) Remove(e Effect) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, x := range l.items {
		if sameEffect(x, e) {
			l.items = slices.Delete(l.items, i, i+1)
			l.version++
			return true
		}
	}

	return false
}

// Move relocates the effect at from so that it ends up at index to.
func (l *EffectList) Move(from, to int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if from < 0 || from >= len(l.items) || to < 0 || to >= len(l.items) {
		return fmt.Errorf("move %d to %d: %w", from, to, ErrIndexOutOfRange)
	}

	if from == to {
		return nil
	}

	e := l.items[from]
	l.items = slices.Insert(slices.Delete(l.items, from, from+1), to, e)
	l.version++

	return nil
}

// Set replaces the effect at index i.
func (l *EffectList) Set(i int, e Effect) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if i < 0 || i >= len(l.items) {
		return fmt.Errorf("set %d: %w", i, ErrIndexOutOfRange)
	}

	l.items[i] = e
	l.version++

	return nil
}

// At returns the effect at index i.
func (l *EffectList) At(i int) (Effect, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if i < 0 || i >= len(l.items) {
		return nil, fmt.Errorf("at %d: %w", i, ErrIndexOutOfRange)
	}

	return l.items[i], nil
}

// Clear removes every effect.
func (l *EffectList) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.items) == 0 {
		return
	}

	l.items = nil
	l.version++
}

// Len is the number of effects.
func (l *EffectList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.items)
}

// IndexOf returns the position of e, or -1.
func (l *EffectList) IndexOf(e Effect) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, x := range l.items {
		if sameEffect(x, e) {
			return i
		}
	}

	return -1
}

// Priority of the effect at index i; it strictly decreases with position.
func (l *EffectList) Priority(i int) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.items) - i
}

func (l *EffectList) snapshot() ([]Effect, uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return slices.Clone(l.items), l.version
}

// processor is an instantiated effect; nil processors pass audio through.
type processor interface {
	Process(buf []float32)
}

type chainSlot struct {
	params Effect
	proc   processor
}

// buildChain instantiates effects, reusing processors (and their filter
// history) whose parameters did not change.
func buildChain(effects []Effect, old []chainSlot, format audio.Format) []chainSlot {
	used := make([]bool, len(old))
	chain := make([]chainSlot, len(effects))

	for i, e := range effects {
		chain[i].params = e

		for j, s := range old {
			if !used[j] && s.proc != nil && sameEffect(s.params, e) {
				chain[i].proc = s.proc
				used[j] = true
				break
			}
		}

		if chain[i].proc != nil {
			continue
		}

		switch p := e.(type) {
		case BiQuadParameters:
			chain[i].proc = audio.NewBiQuad(format.Channels, p.Type, float64(format.SampleRate), p.Frequency, p.Q, p.GainDB)
		}
	}

	return chain
}

// sameEffect compares effects, treating non comparable values as distinct.
func sameEffect(a, b Effect) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()

	return a == b
}
