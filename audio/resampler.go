// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"errors"
	"fmt"
	"io"

	"github.com/ik5/audrt/utils"
)

const resamplerChunkFrames = 1024

// Resampler streams from src to a target sample rate using cubic
// interpolation. Works on interleaved samples; preserves channel count.
// A relative rate scales the playback speed (and pitch) on top of the
// sample rate conversion. Includes basic anti-aliasing filtering when the
// effective step exceeds one source frame.
type Resampler struct {
	src      Source
	srcRate  float64
	dstRate  float64
	rate     float64
	step     float64 // source frames per output frame
	channels int

	// frames[0] = t-1, frames[1] = t0, frames[2] = t+1, frames[3] = t+2
	frames   [4][]float32
	hasFrame [4]bool
	filled   int
	primed   bool

	// Position between frames[1] and frames[2], in source frames
	pos float64

	in     []float32
	inPos  int
	inLen  int
	eof    bool
	srcErr error

	filterState  []float32
	filterPrimed bool
	filterAlpha  float32
}

// NewResampler converts src to dstRate.
func NewResampler(src Source, dstRate int) *Resampler {
	channels := max(src.Channels(), 1)

	r := &Resampler{
		src:         src,
		srcRate:     float64(src.SampleRate()),
		dstRate:     float64(dstRate),
		rate:        1,
		channels:    channels,
		in:          make([]float32, resamplerChunkFrames*channels),
		filterState: make([]float32, channels),
		// One-pole low-pass used while downsampling
		filterAlpha: 0.5,
	}

	for i := range r.frames {
		r.frames[i] = make([]float32, channels)
	}

	r.updateStep()

	return r
}

func (r *Resampler) SampleRate() int { return int(r.dstRate) }
func (r *Resampler) Channels() int   { return r.channels }
func (r *Resampler) BufSize() int    { return r.src.BufSize() }

func (r *Resampler) Close() error {
	err := r.src.Close()
	if err != nil {
		return fmt.Errorf("%w", err)
	}
	return nil
}

// SetRelativeRate changes the playback speed multiplier. Negative values
// are treated by magnitude; direction is the source's concern.
func (r *Resampler) SetRelativeRate(rate float64) {
	if rate < 0 {
		rate = -rate
	}

	r.rate = rate
	r.updateStep()
}

// RelativeRate returns the current speed multiplier.
func (r *Resampler) RelativeRate() float64 { return r.rate }

// Retarget swaps the upstream source and forgets all buffered state.
func (r *Resampler) Retarget(src Source) {
	r.src = src
	r.srcRate = float64(src.SampleRate())
	r.updateStep()
	r.Reset()
}

// Reset drops interpolation history and buffered input, e.g. after a seek.
func (r *Resampler) Reset() {
	r.primed = false
	r.filled = 0
	r.hasFrame = [4]bool{}
	r.pos = 0
	r.inPos, r.inLen = 0, 0
	r.eof = false
	r.srcErr = nil
	r.filterPrimed = false
}

// Latency is the number of source frames read but not yet played.
func (r *Resampler) Latency() float64 {
	buffered := float64(r.inLen-r.inPos) / float64(r.channels)
	if !r.primed {
		return buffered + float64(r.filled)
	}

	ahead := 0
	for _, has := range r.hasFrame[2:] {
		if has {
			ahead++
		}
	}

	return buffered + float64(ahead) + 1 - r.pos
}

func (r *Resampler) updateStep() {
	if r.dstRate <= 0 {
		r.step = 0
		return
	}

	r.step = r.srcRate / r.dstRate * r.rate
}

// nextFrame copies one source frame into dst. It returns false when the
// source is starved or finished.
func (r *Resampler) nextFrame(dst []float32) bool {
	if r.inPos >= r.inLen {
		if r.eof || r.srcErr != nil {
			return false
		}

		n, err := r.src.ReadSamples(r.in)
		n -= n % r.channels
		r.inPos, r.inLen = 0, n

		if errors.Is(err, io.EOF) {
			r.eof = true
		} else if err != nil {
			r.srcErr = fmt.Errorf("%w", err)
		}

		if n == 0 {
			return false
		}
	}

	copy(dst, r.in[r.inPos:r.inPos+r.channels])
	r.inPos += r.channels

	if r.step > 1 {
		if !r.filterPrimed {
			copy(r.filterState, dst)
			r.filterPrimed = true
		}

		for c := range r.channels {
			// y[n] = alpha * x[n] + (1-alpha) * y[n-1]
			dst[c] = r.filterAlpha*dst[c] + (1-r.filterAlpha)*r.filterState[c]
			r.filterState[c] = dst[c]
		}
	}

	return true
}

// prime fills frames[1..3]; frames[0] duplicates the first frame. It can
// be resumed after a stall.
func (r *Resampler) prime() bool {
	for r.filled < 3 {
		i := r.filled + 1

		if !r.nextFrame(r.frames[i]) {
			if !r.ended() || r.filled == 0 {
				return false
			}

			copy(r.frames[i], r.frames[i-1])
			r.hasFrame[i] = false
			r.filled++
			continue
		}

		r.hasFrame[i] = true
		if r.filled == 0 {
			copy(r.frames[0], r.frames[1])
			r.hasFrame[0] = true
		}
		r.filled++
	}

	r.primed = true
	return true
}

// advance shifts the frame ring by one. Past the end of the source the
// last frame is repeated until frames[2] runs out.
func (r *Resampler) advance() bool {
	first, had := r.frames[0], r.hasFrame[0]
	copy(r.frames[:], r.frames[1:])
	r.frames[3] = first
	copy(r.hasFrame[:], r.hasFrame[1:])

	r.hasFrame[3] = r.nextFrame(r.frames[3])
	if !r.hasFrame[3] {
		if !r.ended() {
			// Starved: undo the shift so the read can resume later.
			copy(r.frames[1:], r.frames[:3])
			r.frames[0] = first
			copy(r.hasFrame[1:], r.hasFrame[:3])
			r.hasFrame[0] = had
			return false
		}

		copy(r.frames[3], r.frames[2])
	}

	return r.hasFrame[2]
}

func (r *Resampler) ended() bool { return r.eof || r.srcErr != nil }

// ReadSamples produces dst samples at the target rate.
// dst length should be a multiple of r.channels. A short read with a nil
// error means the source is starved.
func (r *Resampler) ReadSamples(dst []float32) (int, error) {
	if len(dst)%r.channels != 0 {
		return 0, ErrInvalidDstSize
	}

	if !r.primed && !r.prime() {
		return 0, r.endErr()
	}

	written := 0
	framesNeeded := len(dst) / r.channels

	for written < framesNeeded {
		for r.pos >= 1.0 {
			if !r.advance() {
				return written * r.channels, r.endErr()
			}
			r.pos -= 1.0
		}

		if !r.hasFrame[2] {
			return written * r.channels, r.endErr()
		}

		alpha := float32(r.pos)
		out := dst[written*r.channels : (written+1)*r.channels]

		for c := range r.channels {
			y3 := r.frames[2][c]
			if r.hasFrame[3] {
				y3 = r.frames[3][c]
			}

			out[c] = utils.CubicInterpolate(r.frames[0][c], r.frames[1][c], r.frames[2][c], y3, alpha)
		}

		written++
		r.pos += r.step
	}

	return written * r.channels, nil
}

func (r *Resampler) endErr() error {
	if r.srcErr != nil {
		return r.srcErr
	}

	if r.eof && r.inPos >= r.inLen {
		return io.EOF
	}

	return nil
}
