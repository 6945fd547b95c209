// SPDX-License-Identifier: EPL-2.0

package device

import (
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog"
)

// NullName is the registry name of the headless backend.
const NullName = "null"

func init() {
	Register(NullName, func(log zerolog.Logger) Backend { return NewNullBackend(log) })
}

// NullBackend is a headless backend. Nothing is rendered on its own; call
// Render to pull audio through the open stream. Device loss and errors can
// be injected for tests.
type NullBackend struct {
	log zerolog.Logger

	mu          sync.Mutex
	initialized bool
	devices     []Descriptor
	current     Descriptor
	open        bool
	format      Format
	render      RenderFunc
	buf         []float32
	rendered    int64

	initErr      error
	enumerateErr error
	openErr      error
}

// NewNullBackend creates a backend exposing a single default device.
func NewNullBackend(log zerolog.Logger) *NullBackend {
	return &NullBackend{
		log: log,
		devices: []Descriptor{{
			ID:                "null:0",
			Name:              "Null Output",
			IsDefault:         true,
			MaxOutputChannels: 8,
			DefaultSampleRate: 44100,
		}},
	}
}

// Name returns NullName.
func (n *NullBackend) Name() string { return NullName }

// SetInitError makes the next Init calls fail with err.
func (n *NullBackend) SetInitError(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.initErr = err
}

// SetEnumerateError makes EnumerateDevices fail with err.
func (n *NullBackend) SetEnumerateError(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enumerateErr = err
}

// SetOpenError makes OpenDevice fail with err.
func (n *NullBackend) SetOpenError(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.openErr = err
}

// SetDevices replaces the device list. Removing the open device makes it
// invalid, like unplugging it.
func (n *NullBackend) SetDevices(devices []Descriptor) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.devices = slices.Clone(devices)
}

// AddDevice appends d to the device list.
func (n *NullBackend) AddDevice(d Descriptor) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.devices = append(n.devices, d)
}

// RemoveDevice drops every device with the given ID.
func (n *NullBackend) RemoveDevice(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.devices = slices.DeleteFunc(n.devices, func(d Descriptor) bool { return d.ID == id })
}

// Init marks the backend initialized.
func (n *NullBackend) Init() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.initErr != nil {
		return fmt.Errorf("null init: %w", n.initErr)
	}
	n.initialized = true

	return nil
}

// Terminate closes the stream and uninitializes the backend.
func (n *NullBackend) Terminate() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.closeLocked()
	n.initialized = false

	return nil
}

// EnumerateDevices returns the configured device list.
func (n *NullBackend) EnumerateDevices() ([]Descriptor, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.initialized {
		return nil, ErrNotInitialized
	}
	if n.enumerateErr != nil {
		return nil, n.enumerateErr
	}

	return slices.Clone(n.devices), nil
}

// OpenDevice opens id for rendering.
func (n *NullBackend) OpenDevice(id string, format Format, render RenderFunc) error {
	if err := format.Validate(); err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.initialized {
		return ErrNotInitialized
	}
	if n.openErr != nil {
		return fmt.Errorf("open %q: %w", id, n.openErr)
	}

	d, ok := Find(n.devices, id)
	if !ok {
		return fmt.Errorf("%q: %w", id, ErrDeviceUnavailable)
	}

	n.closeLocked()
	n.current, n.open = d, true
	n.format, n.render = format, render

	n.log.Debug().Str("device", d.Name).Stringer("format", format.Format).Msg("device opened")
	return nil
}

// CloseDevice closes the open stream, if any.
func (n *NullBackend) CloseDevice() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.closeLocked()
	return nil
}

// IsCurrentDeviceValid reports whether the open device is still listed.
func (n *NullBackend) IsCurrentDeviceValid() bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.validLocked()
}

// Current returns the open device.
func (n *NullBackend) Current() (Descriptor, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.current, n.open
}

// Format returns the format of the open stream.
func (n *NullBackend) Format() Format {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.format
}

// Rendered is the number of frames pulled through Render so far.
func (n *NullBackend) Rendered() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.rendered
}

// Render pulls frames through the open stream and returns the interleaved
// output. The returned slice is reused by the next call. A lost device
// renders nothing and returns ErrDeviceUnavailable.
func (n *NullBackend) Render(frames int) ([]float32, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.open {
		return nil, ErrNotInitialized
	}
	if !n.validLocked() {
		return nil, fmt.Errorf("%q: %w", n.current.Name, ErrDeviceUnavailable)
	}

	size := frames * n.format.Channels
	if cap(n.buf) < size {
		n.buf = make([]float32, size)
	}
	out := n.buf[:size]
	clear(out)

	if n.render != nil {
		n.render(out)
	}
	n.rendered += int64(frames)

	return out, nil
}

func (n *NullBackend) validLocked() bool {
	if !n.initialized || !n.open {
		return false
	}

	return slices.ContainsFunc(n.devices, func(d Descriptor) bool { return d.ID == n.current.ID })
}

func (n *NullBackend) closeLocked() {
	if !n.open {
		return
	}

	n.log.Debug().Str("device", n.current.Name).Msg("device closed")
	n.current, n.open, n.render = Descriptor{}, false, nil
}
