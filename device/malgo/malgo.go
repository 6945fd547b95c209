// SPDX-License-Identifier: EPL-2.0

// Package malgo is a device backend on top of miniaudio through malgo.
// Importing it registers the "malgo" backend.
package malgo

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog"

	"github.com/ik5/audrt/device"
)

// Name is the registry name of the backend.
const Name = "malgo"

func init() {
	device.Register(Name, func(log zerolog.Logger) device.Backend { return New(log) })
}

// Backend renders through a miniaudio playback device.
type Backend struct {
	log zerolog.Logger

	mu       sync.Mutex
	ctx      *malgo.AllocatedContext
	dev      *malgo.Device
	deviceID malgo.DeviceID
	current  device.Descriptor
	channels int

	// lost is set by miniaudio's stop callback when the device stops
	// without CloseDevice.
	lost    atomic.Bool
	closing atomic.Bool

	render atomic.Pointer[device.RenderFunc]
	// buf is only touched from the data callback.
	buf []float32
}

// New creates an uninitialized malgo backend.
func New(log zerolog.Logger) *Backend {
	return &Backend{log: log}
}

// Name returns the registry name.
func (b *Backend) Name() string { return Name }

// Init creates the miniaudio context.
func (b *Backend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ctx != nil {
		return nil
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		b.log.Debug().Str("message", message).Msg("miniaudio")
	})
	if err != nil {
		return fmt.Errorf("failed to initialize miniaudio: %w", err)
	}
	b.ctx = ctx

	return nil
}

// Terminate closes the device and frees the context.
func (b *Backend) Terminate() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ctx == nil {
		return nil
	}

	b.closeLocked()

	err := b.ctx.Uninit()
	b.ctx.Free()
	b.ctx = nil

	return err
}

// EnumerateDevices lists playback devices.
func (b *Backend) EnumerateDevices() ([]device.Descriptor, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, descriptors, err := b.enumerateLocked()
	return descriptors, err
}

// OpenDevice starts a playback device on id.
func (b *Backend) OpenDevice(id string, format device.Format, render device.RenderFunc) error {
	if err := format.Validate(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	infos, descriptors, err := b.enumerateLocked()
	if err != nil {
		return err
	}

	d, ok := device.Find(descriptors, id)
	if !ok {
		return fmt.Errorf("%q: %w", id, device.ErrDeviceUnavailable)
	}

	b.closeLocked()

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatF32
	cfg.Playback.Channels = uint32(format.Channels)
	cfg.SampleRate = uint32(format.SampleRate)
	if format.BufferFrames > 0 {
		cfg.PeriodSizeInFrames = uint32(format.BufferFrames)
	}

	b.deviceID = infos[d.ID].ID
	cfg.Playback.DeviceID = b.deviceID.Pointer()

	b.render.Store(&render)
	b.channels = format.Channels
	b.lost.Store(false)

	dev, err := malgo.InitDevice(b.ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: b.process,
		Stop: b.stopped,
	})
	if err != nil {
		b.render.Store(nil)
		return fmt.Errorf("failed to open %q: %w", d.Name, err)
	}

	if err := dev.Start(); err != nil {
		dev.Uninit()
		b.render.Store(nil)
		return fmt.Errorf("failed to start %q: %w", d.Name, err)
	}

	b.dev, b.current = dev, d
	b.log.Info().Str("device", d.Name).Stringer("format", format.Format).Msg("device opened")

	return nil
}

// CloseDevice stops and releases the playback device.
func (b *Backend) CloseDevice() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closeLocked()
	return nil
}

// IsCurrentDeviceValid reports whether the device is started, did not stop
// on its own and is still enumerated.
func (b *Backend) IsCurrentDeviceValid() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ctx == nil || b.dev == nil || b.lost.Load() || !b.dev.IsStarted() {
		return false
	}

	infos, _, err := b.enumerateLocked()
	if err != nil {
		return false
	}

	_, ok := infos[b.current.ID]
	return ok
}

func (b *Backend) process(out, _ []byte, frames uint32) {
	n := int(frames) * b.channels
	if cap(b.buf) < n {
		b.buf = make([]float32, n)
	}
	samples := b.buf[:n]
	clear(samples)

	if render := b.render.Load(); render != nil && *render != nil {
		(*render)(samples)
	}

	for i, v := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
}

func (b *Backend) stopped() {
	if b.closing.Load() {
		return
	}

	b.lost.Store(true)
	b.log.Warn().Str("device", b.current.Name).Msg("device stopped unexpectedly")
}

func (b *Backend) enumerateLocked() (map[string]malgo.DeviceInfo, []device.Descriptor, error) {
	if b.ctx == nil {
		return nil, nil, device.ErrNotInitialized
	}

	devices, err := b.ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list devices: %w", err)
	}

	infos := make(map[string]malgo.DeviceInfo, len(devices))
	descriptors := make([]device.Descriptor, 0, len(devices))

	for _, info := range devices {
		id := info.ID.String()
		infos[id] = info
		descriptors = append(descriptors, device.Descriptor{
			ID:        id,
			Name:      info.Name(),
			IsDefault: info.IsDefault != 0,
		})
	}

	return infos, descriptors, nil
}

func (b *Backend) closeLocked() {
	if b.dev == nil {
		return
	}

	b.closing.Store(true)
	defer b.closing.Store(false)

	if err := b.dev.Stop(); err != nil {
		b.log.Warn().Err(err).Str("device", b.current.Name).Msg("stop device")
	}
	b.dev.Uninit()
	b.dev = nil
	b.render.Store(nil)

	b.log.Debug().Str("device", b.current.Name).Msg("device closed")
	b.current = device.Descriptor{}
}
