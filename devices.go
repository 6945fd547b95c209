// SPDX-License-Identifier: EPL-2.0

package audrt

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ik5/audrt/device"
)

// DeviceFunc receives a device name.
type DeviceFunc func(name string)

// deviceState is only written from the audio thread; mu guards the parts
// read by other goroutines.
type deviceState struct {
	mu        sync.Mutex
	preferred string
	list      []device.Descriptor
	known     bool
	current   device.Descriptor
	onNew     []DeviceFunc
	onLost    []DeviceFunc

	valid    atomic.Bool
	lastPoll time.Time
}

func (s *deviceState) preferredName() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.preferred
}

func (s *deviceState) snapshot() []device.Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.list)
}

// OnNewDevice registers fn for devices that appear after Start. It runs on
// the audio thread.
func (m *Manager) OnNewDevice(fn DeviceFunc) {
	m.devices.mu.Lock()
	m.devices.onNew = append(m.devices.onNew, fn)
	m.devices.mu.Unlock()
}

// OnLostDevice registers fn for devices that disappear. It runs on the
// audio thread.
func (m *Manager) OnLostDevice(fn DeviceFunc) {
	m.devices.mu.Lock()
	m.devices.onLost = append(m.devices.onLost, fn)
	m.devices.mu.Unlock()
}

// DeviceNames returns the names seen by the last device poll.
func (m *Manager) DeviceNames() []string {
	return device.Names(m.devices.snapshot())
}

// DeviceValid reports whether a device is open and still present.
func (m *Manager) DeviceValid() bool { return m.devices.valid.Load() }

// CurrentDevice returns the open device.
func (m *Manager) CurrentDevice() (device.Descriptor, bool) {
	m.devices.mu.Lock()
	defer m.devices.mu.Unlock()

	return m.devices.current, m.devices.valid.Load()
}

// SetAudioDevice makes name the preferred device, empty meaning the system
// default, and switches to it. It reports false when the device could not
// be opened; playback then continues on the default or any other device.
// Before Start it only records the preference.
func (m *Manager) SetAudioDevice(ctx context.Context, name string) (bool, error) {
	if err := m.CheckDisposed(); err != nil {
		return false, ErrClosed
	}

	m.devices.mu.Lock()
	m.devices.preferred = name
	m.devices.mu.Unlock()

	if !m.started.Load() {
		return false, nil
	}

	var ok bool
	err := m.RunAction(ctx, func(context.Context) error {
		m.refreshDevices()
		ok = m.setDevice(name)
		return nil
	})

	return ok, err
}

// pollDevices refreshes the device list every poll interval and recovers
// from device loss.
func (m *Manager) pollDevices(now time.Time) {
	if now.Sub(m.devices.lastPoll) < m.cfg.DevicePollInterval {
		return
	}
	m.devices.lastPoll = now

	m.refreshDevices()
	m.checkDevice()
}

// refreshDevices enumerates the backend and fires device events for the
// difference with the previous list. The first successful enumeration
// only seeds the list.
func (m *Manager) refreshDevices() {
	list, err := m.backend.EnumerateDevices()
	if err != nil {
		m.log.Warn().Err(err).Msg("enumerate devices")
		return
	}

	m.devices.mu.Lock()
	prev := device.Names(m.devices.list)
	seeded := m.devices.known
	m.devices.list = list
	m.devices.known = true
	onNew := slices.Clone(m.devices.onNew)
	onLost := slices.Clone(m.devices.onLost)
	m.devices.mu.Unlock()

	if !seeded {
		return
	}

	names := device.Names(list)

	for _, name := range names {
		if slices.Contains(prev, name) {
			continue
		}

		m.log.Info().Str("device", name).Msg("new audio device")
		for _, fn := range onNew {
			fn(name)
		}
	}

	for _, name := range prev {
		if slices.Contains(names, name) {
			continue
		}

		m.log.Info().Str("device", name).Msg("lost audio device")
		for _, fn := range onLost {
			fn(name)
		}
	}
}

// checkDevice reopens a lost device and moves back to the preferred one
// once it is available again.
func (m *Manager) checkDevice() {
	preferred := m.devices.preferredName()

	if !m.backend.IsCurrentDeviceValid() {
		if m.devices.valid.Swap(false) {
			cur, _ := m.CurrentDevice()
			m.log.Warn().Str("device", cur.Name).Msg("audio device lost")
		}

		m.setDevice(preferred)
		return
	}

	if preferred == "" {
		return
	}

	cur, _ := m.CurrentDevice()
	if cur.ID == preferred || cur.Name == preferred {
		return
	}

	if _, ok := device.Find(m.devices.snapshot(), preferred); ok {
		m.log.Info().Str("device", preferred).Msg("preferred audio device is back")
		m.setDevice(preferred)
	}
}

// setDevice opens name, falling back to the default and then to any
// listed device. It reports whether name itself was opened.
func (m *Manager) setDevice(name string) bool {
	list := m.devices.snapshot()

	if d, ok := device.Find(list, name); ok && m.openDevice(d) {
		return true
	}

	if name != "" {
		m.log.Warn().Str("device", name).Msg("audio device unavailable, using default")

		if d, ok := device.Find(list, device.DefaultID); ok && m.openDevice(d) {
			return false
		}
	}

	for _, d := range list {
		if m.openDevice(d) {
			return false
		}
	}

	m.devices.mu.Lock()
	m.devices.current = device.Descriptor{}
	m.devices.valid.Store(false)
	m.devices.mu.Unlock()

	m.log.Error().Msg("no audio device could be opened")
	return false
}

func (m *Manager) openDevice(d device.Descriptor) bool {
	format := device.Format{Format: m.format, BufferFrames: m.cfg.BufferFrames}

	if err := m.backend.OpenDevice(d.ID, format, m.render); err != nil {
		m.log.Warn().Err(err).Str("device", d.Name).Msg("open audio device")
		return false
	}

	m.devices.mu.Lock()
	m.devices.current = d
	m.devices.valid.Store(true)
	m.devices.mu.Unlock()

	m.log.Info().Str("device", d.Name).Stringer("format", m.format).Msg("audio device opened")
	return true
}
