// SPDX-License-Identifier: EPL-2.0

// Package audiotest holds deterministic sources and a manual clock for tests.
package audiotest

import (
	"io"
	"math"
	"sync"
)

// Waveform returns the value of channel ch at frame.
type Waveform func(frame, ch int) float32

// Generator is a finite synthetic source. It implements audio.Source
// without importing the package.
type Generator struct {
	sampleRate int
	channels   int
	frames     int
	pos        int
	wave       Waveform

	// starve makes every other read return no data.
	starve  bool
	starved bool
}

// NewGenerator creates a source producing frames frames of wave.
func NewGenerator(sampleRate, channels, frames int, wave Waveform) *Generator {
	return &Generator{
		sampleRate: sampleRate,
		channels:   channels,
		frames:     frames,
		wave:       wave,
	}
}

// NewSilentSource produces zeros.
func NewSilentSource(sampleRate, channels, frames int) *Generator {
	return NewGenerator(sampleRate, channels, frames, func(int, int) float32 { return 0 })
}

// NewConstantSource produces value on every channel.
func NewConstantSource(sampleRate, channels, frames int, value float32) *Generator {
	return NewGenerator(sampleRate, channels, frames, func(int, int) float32 { return value })
}

// NewSineSource produces a sine of frequency Hz on every channel.
func NewSineSource(sampleRate, channels, frames int, frequency float64) *Generator {
	return NewGenerator(sampleRate, channels, frames, func(frame, _ int) float32 {
		t := float64(frame) / float64(sampleRate)
		return float32(math.Sin(2 * math.Pi * frequency * t))
	})
}

// NewRampSource produces frame/frames on every channel, useful to check
// positions after processing.
func NewRampSource(sampleRate, channels, frames int) *Generator {
	return NewGenerator(sampleRate, channels, frames, func(frame, _ int) float32 {
		return float32(frame) / float32(frames)
	})
}

// Starving makes every other read return nothing, like a decoder that has
// not caught up.
func (g *Generator) Starving() *Generator {
	g.starve = true
	return g
}

func (g *Generator) SampleRate() int { return g.sampleRate }
func (g *Generator) Channels() int   { return g.channels }
func (g *Generator) BufSize() int    { return 4096 }
func (g *Generator) Close() error    { return nil }

// Position is the number of frames produced so far.
func (g *Generator) Position() int { return g.pos }

// Reset rewinds the generator.
func (g *Generator) Reset() { g.pos = 0 }

func (g *Generator) ReadSamples(dst []float32) (int, error) {
	if g.pos >= g.frames {
		return 0, io.EOF
	}

	if g.starve {
		g.starved = !g.starved
		if g.starved {
			return 0, nil
		}
	}

	n := min(len(dst)/g.channels, g.frames-g.pos)
	for f := range n {
		for ch := range g.channels {
			dst[f*g.channels+ch] = g.wave(g.pos+f, ch)
		}
	}
	g.pos += n

	if g.pos >= g.frames {
		return n * g.channels, io.EOF
	}

	return n * g.channels, nil
}

// Samples renders the whole waveform as interleaved samples.
func Samples(channels, frames int, wave Waveform) []float32 {
	out := make([]float32, channels*frames)
	for f := range frames {
		for ch := range channels {
			out[f*channels+ch] = wave(f, ch)
		}
	}

	return out
}

// Clock is a manually advanced millisecond clock.
type Clock struct {
	mu  sync.Mutex
	now float64
}

// Now returns the current time in milliseconds.
func (c *Clock) Now() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

// Advance moves the clock forward by ms milliseconds.
func (c *Clock) Advance(ms float64) {
	c.mu.Lock()
	c.now += ms
	c.mu.Unlock()
}
