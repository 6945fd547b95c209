// SPDX-License-Identifier: EPL-2.0

// Package pcm adapts go-audio integer PCM decoders to audio.Source.
package pcm

import (
	"bytes"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"

	"github.com/ik5/audrt/audio"
	"github.com/ik5/audrt/utils"
)

// Reader is the part of the go-audio wav and aiff decoders used here.
type Reader interface {
	Format() *goaudio.Format
	PCMBuffer(buf *goaudio.IntBuffer) (int, error)
}

// IntSource converts integer PCM from a Reader to float32 samples.
type IntSource struct {
	dec      Reader
	info     audio.Info
	bitDepth int
	offset   int
	intBuf   *goaudio.IntBuffer
	done     bool
}

// NewIntSource wraps dec. frames is the stream length or -1. unsigned8
// marks 8-bit data stored as unsigned bytes, as WAV does.
func NewIntSource(dec Reader, bitDepth int, frames int64, unsigned8 bool) (*IntSource, error) {
	format := dec.Format()
	if format == nil || format.NumChannels <= 0 || format.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: missing format", audio.ErrInvalidFormat)
	}

	offset := 0
	if unsigned8 && bitDepth == 8 {
		offset = 128
	}

	return &IntSource{
		dec:      dec,
		bitDepth: bitDepth,
		offset:   offset,
		info: audio.Info{
			SampleRate: format.SampleRate,
			Channels:   format.NumChannels,
			Frames:     frames,
			Bitrate:    format.SampleRate * format.NumChannels * bitDepth,
		},
	}, nil
}

func (s *IntSource) SampleRate() int  { return s.info.SampleRate }
func (s *IntSource) Channels() int    { return s.info.Channels }
func (s *IntSource) Info() audio.Info { return s.info }
func (s *IntSource) Close() error     { return nil }

func (s *IntSource) BufSize() int {
	if s.intBuf != nil {
		return cap(s.intBuf.Data)
	}

	return 4096
}

// ReadSamples fills dst with whole frames.
func (s *IntSource) ReadSamples(dst []float32) (int, error) {
	if s.done {
		return 0, io.EOF
	}

	want := len(dst) - len(dst)%s.info.Channels
	if want == 0 {
		return 0, nil
	}

	if s.intBuf == nil || cap(s.intBuf.Data) < want {
		s.intBuf = &goaudio.IntBuffer{
			Data:           make([]int, want),
			Format:         s.dec.Format(),
			SourceBitDepth: s.bitDepth,
		}
	}
	s.intBuf.Data = s.intBuf.Data[:want]

	n, err := s.dec.PCMBuffer(s.intBuf)
	for i := range n {
		dst[i] = utils.IntToFloat32(s.intBuf.Data[i]-s.offset, s.bitDepth)
	}

	switch {
	case err != nil && err != io.EOF:
		return n, fmt.Errorf("%w", err)
	case err == io.EOF || n < want:
		s.done = true
		if n == 0 {
			return 0, io.EOF
		}
	}

	return n, nil
}

// Seekable returns r as an io.ReadSeeker, buffering it in memory when it
// cannot seek. go-audio decoders require seeking.
func Seekable(r io.Reader) (io.ReadSeeker, error) {
	if rs, ok := r.(io.ReadSeeker); ok {
		return rs, nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("buffering input: %w", err)
	}

	return bytes.NewReader(data), nil
}
