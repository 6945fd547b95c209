// SPDX-License-Identifier: EPL-2.0

package playback

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/ik5/audrt/audio"
)

const (
	rawBufSize = 4096
	// fillAheadMS is how much stretched audio Fill keeps ready.
	fillAheadMS = 100
)

// Player turns decoded samples into mixer ready output. The pipeline is
// raw reader (forward or reverse, deferred seek) -> tempo -> resampler ->
// remixer. A Player is not safe for concurrent use; its owner serializes
// access with a lock held only while copying.
type Player struct {
	out audio.Format
	src audio.Format
	log zerolog.Logger

	data     []float32
	frames   int64
	total    int64
	prepared bool
	loaded   bool

	pos       int64
	saved     int64
	pendingMS float64
	reverse   bool
	done      atomic.Bool

	rate      float64
	tempoWant float64

	tempo *audio.TempoSource
	rs    *audio.Resampler
	pipe  audio.Source
}

// NewPlayer creates a player producing out. The source format is learnt
// from the first Prepare.
func NewPlayer(out audio.Format, log zerolog.Logger) *Player {
	return &Player{
		out:       out,
		log:       log,
		total:     -1,
		saved:     -1,
		rate:      1,
		tempoWant: 1,
	}
}

// Prepare sets the decoded format and expected length. Only the first call
// has an effect.
func (p *Player) Prepare(info audio.Info) {
	if p.prepared {
		return
	}

	p.src = audio.Format{SampleRate: info.SampleRate, Channels: max(info.Channels, 1)}
	p.total = info.Frames
	if info.Frames > 0 {
		p.data = make([]float32, 0, info.Frames*int64(p.src.Channels))
	}

	p.tempo = audio.NewTempoSource(rawReader{p})
	p.rs = audio.NewResampler(p.tempo, p.out.SampleRate)
	p.rs.SetRelativeRate(p.rate)
	p.pipe = p.rs
	if p.src.Channels != p.out.Channels {
		p.pipe = audio.NewRemixer(p.rs, p.out.Channels)
	}

	p.prepared = true

	if p.tempoWant != 1 {
		if _, err := p.tempo.SetTempo(p.tempoWant); err != nil {
			p.log.Warn().Err(err).Msg("tempo rejected")
		}
	}

	if p.pendingMS > 0 {
		p.Seek(p.pendingMS)
		p.pendingMS = 0
	}
}

// Prepared reports whether the source format is known.
func (p *Player) Prepared() bool { return p.prepared }

// Put appends interleaved samples in the source format.
func (p *Player) Put(samples []float32) {
	if !p.prepared || p.loaded {
		return
	}

	p.data = append(p.data, samples...)
	p.frames = int64(len(p.data) / p.src.Channels)
}

// DonePutting marks the data complete. A deferred seek past the end is
// dropped.
func (p *Player) DonePutting() {
	if !p.prepared || p.loaded {
		return
	}

	p.loaded = true
	p.total = p.frames

	if p.saved > p.frames {
		p.saved = -1
	}
}

// Load prepares the player with complete data. samples is shared, not
// copied, and must not change afterwards.
func (p *Player) Load(samples []float32, info audio.Info) {
	info.Frames = -1
	p.Prepare(info)

	if p.loaded {
		return
	}

	p.data = samples
	p.frames = int64(len(samples) / p.src.Channels)
	p.DonePutting()
}

// Loaded reports whether every sample was received.
func (p *Player) Loaded() bool { return p.loaded }

// Length in milliseconds, or 0 while unknown.
func (p *Player) Length() float64 {
	if !p.prepared || p.total < 0 {
		return 0
	}

	return p.src.FramesToMS(float64(p.total))
}

// Done reports whether the pipeline hit the end of the data.
func (p *Player) Done() bool { return p.done.Load() }

// ClearDone forgets a previous end of data.
func (p *Player) ClearDone() { p.done.Store(false) }

// AtEnd reports whether the read cursor rests on the boundary playback is
// heading to.
func (p *Player) AtEnd() bool {
	if !p.loaded || p.saved >= 0 {
		return false
	}

	if p.reverse {
		return p.pos <= 0
	}

	return p.pos >= p.frames
}

// Reversed reports the read direction.
func (p *Player) Reversed() bool { return p.reverse }

// SetReverse changes the read direction, restarting the pipeline at the
// currently audible frame.
func (p *Player) SetReverse(reverse bool) {
	if p.reverse == reverse {
		return
	}

	if !p.prepared {
		p.reverse = reverse
		return
	}

	audible := int64(math.Round(p.src.MSToFrames(p.CurrentTime())))
	p.reverse = reverse
	if p.saved < 0 {
		p.pos = min(max(audible, 0), p.frames)
	}
	p.flush()
}

// SetRate changes the resampling speed multiplier.
func (p *Player) SetRate(rate float64) {
	p.rate = math.Abs(rate)
	if p.prepared {
		p.rs.SetRelativeRate(p.rate)
	}
}

// SetTempo changes the time stretch factor. Returning to 1 rewinds the
// read cursor by the material the stretcher held.
func (p *Player) SetTempo(tempo float64) error {
	if err := audio.ValidateTempo(tempo); err != nil {
		return err
	}

	p.tempoWant = math.Abs(tempo)
	if !p.prepared {
		return nil
	}

	latency, err := p.tempo.SetTempo(tempo)
	if err != nil {
		return fmt.Errorf("%w", err)
	}

	if shift := int64(math.Round(latency)); shift > 0 && p.saved < 0 {
		if p.reverse {
			p.pos = min(p.pos+shift, p.frames)
		} else {
			p.pos = max(p.pos-shift, 0)
		}
	}

	return nil
}

// Fill keeps the stretcher ahead of the device callback.
func (p *Player) Fill() error {
	if !p.prepared || !p.tempo.Stretching() {
		return nil
	}

	frames := int(p.src.MSToFrames(fillAheadMS))
	if err := p.tempo.Fill(frames); err != nil {
		return fmt.Errorf("fill: %w", err)
	}

	return nil
}

// Seek moves to ms. Targets beyond the decoded data are remembered until
// decoding reaches them.
func (p *Player) Seek(ms float64) {
	if !p.prepared {
		p.pendingMS = max(ms, 0)
		return
	}

	frame := int64(math.Floor(p.src.MSToFrames(ms)))

	if !p.loaded && frame > p.frames {
		p.saved = frame
		p.flush()
		return
	}

	p.saved = -1
	p.pos = min(max(frame, 0), p.frames)
	p.flush()
}

func (p *Player) flush() {
	p.tempo.Reset()
	p.rs.Reset()
	p.done.Store(false)
}

// CurrentTime is the audible position in milliseconds: the read cursor
// corrected by the material buffered in the pipeline.
func (p *Player) CurrentTime() float64 {
	if !p.prepared {
		return p.pendingMS
	}

	if p.saved >= 0 {
		return p.src.FramesToMS(float64(p.saved))
	}

	ms := p.src.FramesToMS(float64(p.pos))
	if p.done.Load() {
		return ms
	}

	latency := p.src.FramesToMS(p.Latency())
	if p.reverse {
		return min(ms+latency, p.src.FramesToMS(float64(p.frames)))
	}

	return max(ms-latency, 0)
}

// Latency is the buffered material in source frames.
func (p *Player) Latency() float64 {
	if !p.prepared {
		return 0
	}

	return p.tempo.Latency() + p.rs.Latency()*p.tempo.Tempo()
}

// ReadSamples fills dst in the output format. It returns fewer samples
// when the data is not decoded yet or ended.
func (p *Player) ReadSamples(dst []float32) (int, error) {
	if !p.prepared || p.rate == 0 || p.done.Load() {
		return 0, nil
	}

	n := 0
	for n < len(dst) {
		got, err := p.pipe.ReadSamples(dst[n:])
		n += got

		if errors.Is(err, io.EOF) {
			p.done.Store(true)
			break
		}

		if err != nil {
			return n, fmt.Errorf("read: %w", err)
		}

		if got == 0 {
			break
		}
	}

	return n, nil
}

// Peek copies upcoming source samples without moving the cursor.
func (p *Player) Peek(dst []float32) int {
	if !p.prepared {
		return 0
	}

	start := p.pos * int64(p.src.Channels)
	if start >= int64(len(p.data)) {
		return 0
	}

	return copy(dst, p.data[start:])
}

// SourceFormat is the decoded format; zero until prepared.
func (p *Player) SourceFormat() audio.Format { return p.src }

// Close drops the decoded data.
func (p *Player) Close() {
	p.data = nil
	p.frames = 0
	p.pos = 0
	p.done.Store(true)
}

// rawReader exposes the decoded buffer as the head of the pipeline.
type rawReader struct{ p *Player }

func (r rawReader) SampleRate() int { return r.p.src.SampleRate }
func (r rawReader) Channels() int   { return r.p.src.Channels }
func (r rawReader) BufSize() int    { return rawBufSize }
func (r rawReader) Close() error    { return nil }

// ReadSamples returns (0, nil) while the requested data is not decoded yet.
func (r rawReader) ReadSamples(dst []float32) (int, error) {
	p := r.p
	ch := p.src.Channels

	want := int64(len(dst) / ch)
	if want == 0 {
		return 0, audio.ErrInvalidDstSize
	}

	if p.saved >= 0 {
		if p.frames <= p.saved {
			return 0, nil
		}

		p.pos = p.saved
		p.saved = -1
	}

	if p.reverse {
		n := int64(0)
		for n < want && p.pos > 0 {
			p.pos--
			copy(dst[n*int64(ch):(n+1)*int64(ch)], p.data[p.pos*int64(ch):(p.pos+1)*int64(ch)])
			n++
		}

		if n == 0 {
			return 0, io.EOF
		}

		return int(n) * ch, nil
	}

	n := min(want, p.frames-p.pos)
	if n <= 0 {
		if p.loaded {
			return 0, io.EOF
		}

		p.log.Debug().Int64("position", p.pos).Msg("underrun while loading")

		return 0, nil
	}

	copy(dst, p.data[p.pos*int64(ch):(p.pos+n)*int64(ch)])
	p.pos += n

	return int(n) * ch, nil
}
