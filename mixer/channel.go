// SPDX-License-Identifier: EPL-2.0

package mixer

import "sync"

// Channel is a playable unit routed through exactly one mixer. Implement
// it by embedding Membership.
type Channel interface {
	IsAlive() bool
	Playing() bool
	// Gains returns the aggregate volume and balance to mix with.
	Gains() (volume, balance float64)
	// ReadSamples fills dst in the mixer format and returns the number of
	// samples written.
	ReadSamples(dst []float32) int

	membership() *Membership
}

// Membership records which mixer currently owns a channel.
type Membership struct {
	mu    sync.Mutex
	mixer *Mixer
}

func (m *Membership) membership() *Membership { return m }

// Mixer returns the owning mixer, or nil once the channel was released.
func (m *Membership) Mixer() *Mixer {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.mixer
}

// swap sets the owner and returns the previous one.
func (m *Membership) swap(next *Mixer) *Mixer {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.mixer
	m.mixer = next

	return prev
}

// clearIf drops the owner only while it is still owner.
func (m *Membership) clearIf(owner *Mixer) {
	m.mu.Lock()
	if m.mixer == owner {
		m.mixer = nil
	}
	m.mu.Unlock()
}
