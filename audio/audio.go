// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// Source is a pull based stream of interleaved float32 samples.
type Source interface {
	// SampleRate of the PCM stream in Hz.
	SampleRate() int
	// Channels count (e.g., 1=mono, 2=stereo).
	Channels() int
	// ReadSamples fills dst with interleaved float32 samples in [-1,1].
	// Returns number of float32 values written (not frames). When n == 0
	// with err == io.EOF, the stream is finished. n == 0 with a nil error
	// means no data is available yet.
	ReadSamples(dst []float32) (n int, err error)

	BufSize() int

	// Close releases any resources.
	Close() error
}

// Format is a sample rate and channel count pair.
type Format struct {
	SampleRate int
	Channels   int
}

// Valid reports whether both fields are positive.
func (f Format) Valid() bool { return f.SampleRate > 0 && f.Channels > 0 }

func (f Format) String() string { return fmt.Sprintf("%d Hz/%d ch", f.SampleRate, f.Channels) }

// FramesToMS converts a frame count to milliseconds.
func (f Format) FramesToMS(frames float64) float64 {
	if f.SampleRate <= 0 {
		return 0
	}

	return frames * 1000 / float64(f.SampleRate)
}

// MSToFrames converts milliseconds to a frame count.
func (f Format) MSToFrames(ms float64) float64 {
	return ms * float64(f.SampleRate) / 1000
}

// Info describes a decoded stream.
type Info struct {
	SampleRate int
	Channels   int
	// Frames is the total length in frames, or -1 when unknown.
	Frames int64
	// Bitrate in bits per second, 0 when unknown.
	Bitrate int
}

// Duration returns the length in milliseconds, or -1 when unknown.
func (i Info) Duration() float64 {
	if i.Frames < 0 || i.SampleRate <= 0 {
		return -1
	}

	return float64(i.Frames) * 1000 / float64(i.SampleRate)
}

// InfoSource is implemented by sources that know their metadata up front.
type InfoSource interface {
	Source
	Info() Info
}

// InfoOf returns src metadata, with Frames set to -1 when src cannot tell.
func InfoOf(src Source) Info {
	if is, ok := src.(InfoSource); ok {
		return is.Info()
	}

	return Info{
		SampleRate: src.SampleRate(),
		Channels:   src.Channels(),
		Frames:     -1,
	}
}

// Decoder constructs a Source from an input reader.
type Decoder interface {
	Decode(r io.Reader) (Source, error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(r io.Reader) (Source, error)

func (f DecoderFunc) Decode(r io.Reader) (Source, error) { return f(r) }

// Registry for decoders by format key (e.g., "wav", "mp3", "ogg").
type Registry struct {
	codecs map[string]Decoder

	mtx *sync.Mutex
}

func NewRegistry() *Registry {
	return &Registry{
		codecs: make(map[string]Decoder),
		mtx:    &sync.Mutex{},
	}
}

func (r *Registry) Register(format string, d Decoder) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	r.codecs[strings.ToLower(format)] = d
}

func (r *Registry) Get(format string) (Decoder, bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	d, ok := r.codecs[strings.ToLower(format)]
	return d, ok
}

// Formats lists the registered format keys in sorted order.
func (r *Registry) Formats() []string {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	out := make([]string, 0, len(r.codecs))
	for k := range r.codecs {
		out = append(out, k)
	}
	slices.Sort(out)

	return out
}

// DecoderFor picks a decoder from the extension of name.
func (r *Registry) DecoderFor(name string) (Decoder, error) {
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	if ext == "" {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownFormat)
	}

	d, ok := r.Get(ext)
	if !ok {
		return nil, fmt.Errorf("%q: %w", ext, ErrUnknownFormat)
	}

	return d, nil
}

// Decode runs the decoder registered for the extension of name over rd.
func (r *Registry) Decode(name string, rd io.Reader) (Source, error) {
	d, err := r.DecoderFor(name)
	if err != nil {
		return nil, err
	}

	src, err := d.Decode(rd)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}

	return src, nil
}
