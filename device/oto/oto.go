// SPDX-License-Identifier: EPL-2.0

// Package oto is a device backend on top of ebitengine/oto. Oto exposes
// only the system default output and allows one context per process, so
// the first opened format is kept for the lifetime of the program.
// Importing it registers the "oto" backend.
package oto

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/rs/zerolog"

	"github.com/ik5/audrt/device"
)

// Name is the registry name of the backend.
const Name = "oto"

const defaultID = "oto:default"

func init() {
	device.Register(Name, func(log zerolog.Logger) device.Backend { return New(log) })
}

var (
	sharedMu     sync.Mutex
	sharedCtx    *oto.Context
	sharedFormat device.Format
)

// Backend renders through an oto player reading from the runtime.
type Backend struct {
	log zerolog.Logger

	mu          sync.Mutex
	initialized bool
	player      *oto.Player
	format      device.Format

	render atomic.Pointer[device.RenderFunc]
	// buf is only touched from the player's Read goroutine.
	buf []float32
}

// New creates an uninitialized oto backend.
func New(log zerolog.Logger) *Backend {
	return &Backend{log: log}
}

// Name returns the registry name.
func (b *Backend) Name() string { return Name }

// Init marks the backend usable. The oto context is created lazily by
// OpenDevice since its format is fixed at creation.
func (b *Backend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.initialized = true
	return nil
}

// Terminate closes the player and suspends the shared context.
func (b *Backend) Terminate() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized {
		return nil
	}

	err := b.closeLocked()
	b.initialized = false

	sharedMu.Lock()
	if sharedCtx != nil {
		if serr := sharedCtx.Suspend(); serr != nil && err == nil {
			err = serr
		}
	}
	sharedMu.Unlock()

	return err
}

// EnumerateDevices returns the single default output.
func (b *Backend) EnumerateDevices() ([]device.Descriptor, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized {
		return nil, device.ErrNotInitialized
	}

	return []device.Descriptor{b.descriptor()}, nil
}

// OpenDevice starts a player on the default output.
func (b *Backend) OpenDevice(id string, format device.Format, render device.RenderFunc) error {
	if err := format.Validate(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized {
		return device.ErrNotInitialized
	}

	if _, ok := device.Find([]device.Descriptor{b.descriptor()}, id); !ok {
		return fmt.Errorf("%q: %w", id, device.ErrDeviceUnavailable)
	}

	ctx, err := sharedContext(format)
	if err != nil {
		return err
	}

	if err := b.closeLocked(); err != nil {
		b.log.Warn().Err(err).Msg("close previous player")
	}

	b.render.Store(&render)
	b.format = format

	player := ctx.NewPlayer(b)
	if format.BufferFrames > 0 {
		player.SetBufferSize(format.BufferFrames * format.Channels * 4)
	}
	player.Play()
	b.player = player

	b.log.Info().Stringer("format", format.Format).Msg("device opened")
	return nil
}

// CloseDevice stops the player.
func (b *Backend) CloseDevice() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.closeLocked()
}

// IsCurrentDeviceValid reports whether a player is running and the shared
// context has not failed.
func (b *Backend) IsCurrentDeviceValid() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized || b.player == nil {
		return false
	}

	sharedMu.Lock()
	defer sharedMu.Unlock()

	return sharedCtx != nil && sharedCtx.Err() == nil
}

// Read implements io.Reader for the oto player: it renders float32
// samples and encodes them little endian.
func (b *Backend) Read(p []byte) (int, error) {
	n := len(p) / 4
	if cap(b.buf) < n {
		b.buf = make([]float32, n)
	}
	samples := b.buf[:n]
	clear(samples)

	if render := b.render.Load(); render != nil && *render != nil {
		(*render)(samples)
	}

	for i, v := range samples {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(v))
	}

	return n * 4, nil
}

func (b *Backend) descriptor() device.Descriptor {
	return device.Descriptor{
		ID:                defaultID,
		Name:              "System Default",
		IsDefault:         true,
		MaxOutputChannels: 2,
		DefaultSampleRate: 48000,
	}
}

func (b *Backend) closeLocked() error {
	if b.player == nil {
		return nil
	}

	player := b.player
	b.player = nil

	err := player.Close()
	b.render.Store(nil)
	b.log.Debug().Msg("device closed")

	return err
}

// sharedContext returns the process wide oto context, creating it for format on
// first use and resuming it after Terminate.
func sharedContext(format device.Format) (*oto.Context, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if sharedCtx != nil {
		if sharedFormat.Format != format.Format {
			return nil, fmt.Errorf("oto context already running at %v: %w", sharedFormat.Format, device.ErrInvalidFormat)
		}
		if err := sharedCtx.Resume(); err != nil {
			return nil, fmt.Errorf("resume oto context: %w", err)
		}
		return sharedCtx, nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
		Format:       oto.FormatFloat32LE,
	}
	if format.BufferFrames > 0 {
		op.BufferSize = time.Duration(format.BufferFrames) * time.Second / time.Duration(format.SampleRate)
	}

	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", device.ErrDeviceUnavailable, err)
	}
	<-ready

	sharedCtx, sharedFormat = ctx, format
	return ctx, nil
}
