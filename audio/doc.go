// SPDX-License-Identifier: EPL-2.0

// Package audio provides the sample processing primitives used by the
// playback pipeline.
//
//   - Source interface for audio input, with optional Info metadata
//   - Resampler for sample rate conversion and relative playback rate
//   - Remixer for channel layout conversion
//   - Stretcher and TempoSource for pitch preserving tempo changes
//   - BiQuad filters used by mixer effects
//   - Registry of decoders keyed by format
//
// # Source Interface
//
// All decoders and processors implement Source, so they can be chained:
//
//	type Source interface {
//	    SampleRate() int
//	    Channels() int
//	    ReadSamples(dst []float32) (int, error)
//	    BufSize() int
//	    Close() error
//	}
//
// ReadSamples returns io.EOF once the stream is finished. A read returning
// no samples and no error means the source is starved (for example a track
// that is still decoding); callers retry on the next cycle.
//
// # Resampling
//
//	resampler := audio.NewResampler(source, 48000)
//	resampler.SetRelativeRate(1.5) // faster and higher
//
// Latency reports how many source frames were consumed but not yet played.
// Reset drops that state after a seek.
//
// # Tempo
//
// TempoSource passes samples through while the tempo is 1. Any other tempo
// lazily builds a WSOLA Stretcher; returning to 1 tears it down and reports
// the source frames it held so the caller can rewind its read cursor:
//
//	ts := audio.NewTempoSource(raw)
//	ts.SetTempo(1.25)
//	...
//	latency, _ := ts.SetTempo(1)
//	raw.Seek(raw.Position() - latency)
//
// Tempo magnitudes below MinimumTempo return ErrTempoTooLow.
//
// # Sample Format
//
// Audio samples are float32 in the range [-1.0, 1.0], interleaved by frame.
package audio
