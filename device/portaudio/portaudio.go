// SPDX-License-Identifier: EPL-2.0

// Package portaudio is a device backend on top of PortAudio. Importing it
// registers the "portaudio" backend.
package portaudio

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"

	"github.com/ik5/audrt/device"
)

// Name is the registry name of the backend.
const Name = "portaudio"

func init() {
	device.Register(Name, func(log zerolog.Logger) device.Backend { return New(log) })
}

// Backend renders through a PortAudio callback stream.
type Backend struct {
	log zerolog.Logger

	mu          sync.Mutex
	initialized bool
	stream      *portaudio.Stream
	current     device.Descriptor
	render      atomic.Pointer[device.RenderFunc]
}

// New creates an uninitialized PortAudio backend.
func New(log zerolog.Logger) *Backend {
	return &Backend{log: log}
}

// Name returns the registry name.
func (b *Backend) Name() string { return Name }

// Init initializes the PortAudio library.
func (b *Backend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.initialized {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	b.initialized = true

	return nil
}

// Terminate closes the stream and shuts the library down.
func (b *Backend) Terminate() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized {
		return nil
	}

	b.closeLocked()
	b.initialized = false

	return portaudio.Terminate()
}

// EnumerateDevices lists devices with at least one output channel.
func (b *Backend) EnumerateDevices() ([]device.Descriptor, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized {
		return nil, device.ErrNotInitialized
	}

	_, descriptors, err := b.enumerateLocked()
	return descriptors, err
}

// OpenDevice opens an output stream on id.
func (b *Backend) OpenDevice(id string, format device.Format, render device.RenderFunc) error {
	if err := format.Validate(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized {
		return device.ErrNotInitialized
	}

	infos, descriptors, err := b.enumerateLocked()
	if err != nil {
		return err
	}

	d, ok := device.Find(descriptors, id)
	if !ok {
		return fmt.Errorf("%q: %w", id, device.ErrDeviceUnavailable)
	}
	info := infos[d.ID]

	b.closeLocked()

	params := portaudio.HighLatencyParameters(nil, info)
	params.Output.Channels = format.Channels
	params.SampleRate = float64(format.SampleRate)
	if format.BufferFrames > 0 {
		params.FramesPerBuffer = format.BufferFrames
	}

	b.render.Store(&render)
	stream, err := portaudio.OpenStream(params, b.process)
	if err != nil {
		return fmt.Errorf("failed to open output stream on %q: %w", d.Name, err)
	}

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return fmt.Errorf("failed to start output stream on %q: %w", d.Name, err)
	}

	b.stream, b.current = stream, d
	b.log.Info().Str("device", d.Name).Stringer("format", format.Format).Msg("device opened")

	return nil
}

// CloseDevice stops and closes the open stream.
func (b *Backend) CloseDevice() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.closeLocked()
}

// IsCurrentDeviceValid reports whether the stream is open and its device
// is still enumerated.
func (b *Backend) IsCurrentDeviceValid() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized || b.stream == nil {
		return false
	}

	infos, _, err := b.enumerateLocked()
	if err != nil {
		return false
	}

	_, ok := infos[b.current.ID]
	return ok
}

func (b *Backend) process(out []float32) {
	clear(out)

	if render := b.render.Load(); render != nil && *render != nil {
		(*render)(out)
	}
}

func (b *Backend) enumerateLocked() (map[string]*portaudio.DeviceInfo, []device.Descriptor, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list devices: %w", err)
	}

	def, _ := portaudio.DefaultOutputDevice()

	infos := make(map[string]*portaudio.DeviceInfo, len(devices))
	descriptors := make([]device.Descriptor, 0, len(devices))

	for _, info := range devices {
		if info.MaxOutputChannels <= 0 {
			continue
		}

		id := strconv.Itoa(info.Index)
		infos[id] = info
		descriptors = append(descriptors, device.Descriptor{
			ID:                id,
			Name:              info.Name,
			IsDefault:         def != nil && def.Index == info.Index,
			MaxOutputChannels: info.MaxOutputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
		})
	}

	return infos, descriptors, nil
}

func (b *Backend) closeLocked() error {
	if b.stream == nil {
		return nil
	}

	stream := b.stream
	b.stream = nil

	if err := stream.Stop(); err != nil {
		b.log.Warn().Err(err).Str("device", b.current.Name).Msg("stop stream")
	}
	b.render.Store(nil)

	b.log.Debug().Str("device", b.current.Name).Msg("device closed")
	b.current = device.Descriptor{}

	return stream.Close()
}
