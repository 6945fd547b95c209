// SPDX-License-Identifier: EPL-2.0

package audio

import "math"

// WSOLA window sizes.
const (
	SequenceMS   = 40
	SeekWindowMS = 15
	OverlapMS    = 8
)

// Stretcher changes the tempo of interleaved audio without changing its
// pitch, using waveform similarity overlap-add. Samples are pushed with
// PutSamples and pulled with ReceiveSamples.
type Stretcher struct {
	channels int
	tempo    float64

	seqLen     int
	seekLen    int
	overlapLen int
	sampleReq  int

	nominalSkip float64
	skipFract   float64

	input  []float32
	output []float32

	mid       []float32
	midPrimed bool
}

// NewStretcher creates a stretcher for the given stream format at tempo 1.
func NewStretcher(sampleRate, channels int) *Stretcher {
	channels = max(channels, 1)

	s := &Stretcher{
		channels:   channels,
		seqLen:     max(sampleRate*SequenceMS/1000, 16),
		seekLen:    max(sampleRate*SeekWindowMS/1000, 1),
		overlapLen: max(sampleRate*OverlapMS/1000, 8),
	}
	s.mid = make([]float32, s.overlapLen*channels)
	s.SetTempo(1)

	return s
}

// SetTempo sets the speed multiplier; 2 plays twice as fast.
func (s *Stretcher) SetTempo(tempo float64) {
	s.tempo = tempo
	s.nominalSkip = tempo * float64(s.seqLen-s.overlapLen)

	intSkip := int(s.nominalSkip + 0.5)
	s.sampleReq = max(intSkip+s.overlapLen, s.seqLen) + s.seekLen
}

// Tempo returns the current speed multiplier.
func (s *Stretcher) Tempo() float64 { return s.tempo }

// PutSamples appends interleaved input and processes whatever is possible.
func (s *Stretcher) PutSamples(samples []float32) {
	s.input = append(s.input, samples[:len(samples)-len(samples)%s.channels]...)
	s.process()
}

// ReceiveSamples moves processed samples into dst and returns how many
// samples were written.
func (s *Stretcher) ReceiveSamples(dst []float32) int {
	n := min(len(dst)-len(dst)%s.channels, len(s.output))
	copy(dst, s.output[:n])
	s.output = s.output[:copy(s.output, s.output[n:])]

	return n
}

// Available is the number of processed frames ready to be received.
func (s *Stretcher) Available() int { return len(s.output) / s.channels }

// Unprocessed is the number of input frames waiting for processing.
func (s *Stretcher) Unprocessed() int { return len(s.input) / s.channels }

// Latency is the amount of source material, in source frames, held inside
// the stretcher and not yet delivered.
func (s *Stretcher) Latency() float64 {
	return float64(s.Unprocessed()) + float64(s.Available())*s.tempo
}

// Clear drops all buffered input and output.
func (s *Stretcher) Clear() {
	s.input = s.input[:0]
	s.output = s.output[:0]
	s.midPrimed = false
	s.skipFract = 0
}

// Flush processes the remaining input at end of stream, padding with
// silence and trimming the result to the expected length.
func (s *Stretcher) Flush() {
	pending := s.Unprocessed()
	if pending == 0 {
		return
	}

	expected := s.Available() + int(float64(pending)/s.tempo)

	s.input = append(s.input, make([]float32, s.sampleReq*s.channels)...)
	s.process()

	if s.Available() > expected {
		s.output = s.output[:expected*s.channels]
	}
	s.input = s.input[:0]
}

func (s *Stretcher) process() {
	ch := s.channels
	ovl := s.overlapLen * ch

	for len(s.input)/ch >= s.sampleReq {
		if !s.midPrimed {
			copy(s.mid, s.input[:ovl])
			s.midPrimed = true
		}

		base := s.bestOffset() * ch

		// Cross-fade the previous tail into the best matching window.
		for i := range s.overlapLen {
			in := float32(i) / float32(s.overlapLen)
			out := 1 - in
			for c := range ch {
				j := i*ch + c
				s.output = append(s.output, s.mid[j]*out+s.input[base+j]*in)
			}
		}

		body := base + (s.seqLen-s.overlapLen)*ch
		s.output = append(s.output, s.input[base+ovl:body]...)
		copy(s.mid, s.input[body:body+ovl])

		s.skipFract += s.nominalSkip
		skip := int(s.skipFract)
		s.skipFract -= float64(skip)

		s.input = s.input[:copy(s.input, s.input[skip*ch:])]
	}
}

// bestOffset finds the offset within the seek window whose overlap region
// correlates best with the previous tail.
func (s *Stretcher) bestOffset() int {
	n := s.overlapLen * s.channels

	best := 0
	bestCorr := math.Inf(-1)

	for off := range s.seekLen {
		seg := s.input[off*s.channels : off*s.channels+n]

		var corr, norm float64
		for j, v := range seg {
			corr += float64(s.mid[j] * v)
			norm += float64(v * v)
		}

		if norm > 1e-12 {
			corr /= math.Sqrt(norm)
		}

		if corr > bestCorr {
			best, bestCorr = off, corr
		}
	}

	return best
}
