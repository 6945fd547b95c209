// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"errors"
	"fmt"
	"io"
	"math"
)

// MinimumTempo is the smallest tempo magnitude the stretcher supports.
const MinimumTempo = 0.05

// TempoSource changes the tempo of src. While the tempo is 1 samples pass
// straight through; a Stretcher exists only while the tempo differs.
type TempoSource struct {
	src   Source
	tempo float64
	st    *Stretcher

	buf []float32
	eof bool
}

// NewTempoSource wraps src at tempo 1.
func NewTempoSource(src Source) *TempoSource {
	return &TempoSource{
		src:   src,
		tempo: 1,
		buf:   make([]float32, 1024*max(src.Channels(), 1)),
	}
}

func (t *TempoSource) SampleRate() int { return t.src.SampleRate() }
func (t *TempoSource) Channels() int   { return t.src.Channels() }
func (t *TempoSource) BufSize() int    { return t.src.BufSize() }
func (t *TempoSource) Close() error {
	if err := t.src.Close(); err != nil {
		return fmt.Errorf("%w", err)
	}

	return nil
}

// Tempo returns the current tempo.
func (t *TempoSource) Tempo() float64 { return t.tempo }

// Stretching reports whether a stretcher is active.
func (t *TempoSource) Stretching() bool { return t.st != nil }

// ValidateTempo rejects magnitudes below MinimumTempo.
func ValidateTempo(tempo float64) error {
	if math.Abs(tempo) < MinimumTempo || math.IsNaN(tempo) {
		return fmt.Errorf("%w: %g < %g", ErrTempoTooLow, tempo, MinimumTempo)
	}

	return nil
}

// SetTempo changes the tempo. When the stretcher is torn down the returned
// latency, in source frames, is the material it held; the caller rewinds
// its read cursor by that much to keep the position continuous.
func (t *TempoSource) SetTempo(tempo float64) (float64, error) {
	if err := ValidateTempo(tempo); err != nil {
		return 0, err
	}

	tempo = math.Abs(tempo)
	if tempo == t.tempo {
		return 0, nil
	}
	t.tempo = tempo

	if tempo == 1 {
		latency := t.Latency()
		t.st = nil
		t.eof = false

		return latency, nil
	}

	if t.st == nil {
		t.st = NewStretcher(t.src.SampleRate(), t.src.Channels())
	}
	t.st.SetTempo(tempo)

	return 0, nil
}

// Fill pulls source samples until frames output frames are ready, the
// source is starved or it ended.
func (t *TempoSource) Fill(frames int) error {
	if t.st == nil {
		return nil
	}

	for t.st.Available() < frames && !t.eof {
		n, err := t.src.ReadSamples(t.buf)
		if n > 0 {
			t.st.PutSamples(t.buf[:n])
		}

		if errors.Is(err, io.EOF) {
			t.eof = true
			t.st.Flush()
			break
		}

		if err != nil {
			return fmt.Errorf("%w", err)
		}

		if n == 0 {
			break
		}
	}

	return nil
}

// ReadSamples returns stretched samples, or the source's own while the
// tempo is neutral.
func (t *TempoSource) ReadSamples(dst []float32) (int, error) {
	if t.st == nil {
		return t.src.ReadSamples(dst)
	}

	ch := max(t.src.Channels(), 1)
	if len(dst)%ch != 0 {
		return 0, ErrInvalidDstSize
	}

	if err := t.Fill(len(dst) / ch); err != nil {
		return 0, err
	}

	n := t.st.ReceiveSamples(dst)
	if n == 0 && t.eof {
		return 0, io.EOF
	}

	return n, nil
}

// Latency is the source material held by the stretcher, in source frames.
func (t *TempoSource) Latency() float64 {
	if t.st == nil {
		return 0
	}

	return t.st.Latency()
}

// Reset discards buffered material, e.g. after a seek.
func (t *TempoSource) Reset() {
	if t.st != nil {
		t.st.Clear()
	}
	t.eof = false
}
