// SPDX-License-Identifier: EPL-2.0

// Package device defines the output device backend capability used by the
// runtime. Concrete backends live in sub packages and register themselves
// with Register; the runtime only ever talks to the Backend interface.
package device

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ik5/audrt/audio"
)

// DefaultID selects the system default output device.
const DefaultID = ""

// Descriptor describes one output device.
type Descriptor struct {
	ID                string
	Name              string
	IsDefault         bool
	MaxOutputChannels int
	DefaultSampleRate float64
}

// Format is the stream format requested from a device.
type Format struct {
	audio.Format
	// BufferFrames is the callback period in frames, 0 lets the backend pick.
	BufferFrames int
}

// Validate checks the sample rate and channel count.
func (f Format) Validate() error {
	if !f.Valid() || f.BufferFrames < 0 {
		return fmt.Errorf("%v: %w", f.Format, ErrInvalidFormat)
	}

	return nil
}

// RenderFunc fills out with interleaved float32 samples. It is invoked
// from the backend's callback goroutine; out is zeroed beforehand.
type RenderFunc func(out []float32)

// Backend is an output device implementation.
type Backend interface {
	Name() string
	Init() error
	Terminate() error
	EnumerateDevices() ([]Descriptor, error)
	// OpenDevice closes any open stream and starts rendering to id.
	// DefaultID opens the system default.
	OpenDevice(id string, format Format, render RenderFunc) error
	CloseDevice() error
	// IsCurrentDeviceValid reports whether a stream is open and its device
	// is still present.
	IsCurrentDeviceValid() bool
}

// Constructor builds a backend.
type Constructor func(log zerolog.Logger) Backend

var (
	registryMu sync.RWMutex
	registry   = map[string]Constructor{}
)

// Register makes a backend constructor available to Select. Backends call
// it from init; registering a name twice panics.
func Register(name string, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if ctor == nil {
		panic("device: Register constructor is nil")
	}
	if _, dup := registry[name]; dup {
		panic("device: Register called twice for backend " + name)
	}
	registry[name] = ctor
}

// Select builds the backend registered under name.
func Select(name string, log zerolog.Logger) (Backend, error) {
	registryMu.RLock()
	ctor, ok := registry[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownBackend)
	}

	return ctor(log.With().Str("backend", name).Logger()), nil
}

// Backends lists the registered backend names.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Find returns the descriptor whose ID or Name equals key. An empty key
// resolves to the default device.
func Find(devices []Descriptor, key string) (Descriptor, bool) {
	if key == "" {
		i := slices.IndexFunc(devices, func(d Descriptor) bool { return d.IsDefault })
		if i < 0 {
			return Descriptor{}, false
		}
		return devices[i], true
	}

	for _, d := range devices {
		if d.ID == key || d.Name == key {
			return d, true
		}
	}

	return Descriptor{}, false
}

// Names returns the device names in order.
func Names(devices []Descriptor) []string {
	names := make([]string, len(devices))
	for i, d := range devices {
		names[i] = d.Name
	}

	return names
}
