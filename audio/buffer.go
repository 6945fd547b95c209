// SPDX-License-Identifier: EPL-2.0

package audio

import "io"

// BufferSource plays interleaved samples held in memory.
type BufferSource struct {
	samples    []float32
	sampleRate int
	channels   int
	pos        int
}

// NewBufferSource wraps samples without copying them.
func NewBufferSource(samples []float32, sampleRate, channels int) *BufferSource {
	channels = max(channels, 1)

	return &BufferSource{
		samples:    samples[:len(samples)-len(samples)%channels],
		sampleRate: sampleRate,
		channels:   channels,
	}
}

func (b *BufferSource) SampleRate() int { return b.sampleRate }
func (b *BufferSource) Channels() int   { return b.channels }
func (b *BufferSource) BufSize() int    { return 4096 }
func (b *BufferSource) Close() error    { return nil }

func (b *BufferSource) Info() Info {
	return Info{
		SampleRate: b.sampleRate,
		Channels:   b.channels,
		Frames:     int64(len(b.samples) / b.channels),
	}
}

func (b *BufferSource) ReadSamples(dst []float32) (int, error) {
	if b.pos >= len(b.samples) {
		return 0, io.EOF
	}

	n := copy(dst[:len(dst)-len(dst)%b.channels], b.samples[b.pos:])
	b.pos += n

	if b.pos >= len(b.samples) {
		return n, io.EOF
	}

	return n, nil
}

// Rewind restarts playback from the first frame.
func (b *BufferSource) Rewind() { b.pos = 0 }
