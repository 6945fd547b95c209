// SPDX-License-Identifier: EPL-2.0

package vorbis

import (
	"fmt"
	"io"

	"github.com/jfreymuth/oggvorbis"

	"github.com/ik5/audrt/audio"
)

// oggReader is an interface for oggvorbis.Reader to allow testing
type oggReader interface {
	SampleRate() int
	Channels() int
	Read([]float32) (int, error)
}

type source struct {
	dec  oggReader
	info audio.Info
}

func newSource(dec oggReader, frames int64, bitrate int) *source {
	if frames <= 0 {
		frames = -1
	}

	return &source{
		dec: dec,
		info: audio.Info{
			SampleRate: dec.SampleRate(),
			Channels:   dec.Channels(),
			Frames:     frames,
			Bitrate:    bitrate,
		},
	}
}

func (s *source) SampleRate() int  { return s.info.SampleRate }
func (s *source) Channels() int    { return s.info.Channels }
func (s *source) Info() audio.Info { return s.info }
func (s *source) Close() error     { return nil }
func (s *source) BufSize() int     { return 4096 }

// ReadSamples decodes whole frames straight into dst. oggvorbis returns
// the number of samples written, always a multiple of the channel count.
func (s *source) ReadSamples(dst []float32) (int, error) {
	want := len(dst) - len(dst)%s.info.Channels
	if want == 0 {
		return 0, nil
	}

	n, err := s.dec.Read(dst[:want])
	if err != nil && err != io.EOF {
		return n, fmt.Errorf("%w", err)
	}
	if n == 0 && err == io.EOF {
		return 0, io.EOF
	}

	return n, nil
}

type Decoder struct{}

func (Decoder) Decode(r io.Reader) (audio.Source, error) {
	dec, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w", err)
	}

	return newSource(dec, dec.Length(), dec.Bitrate().Nominal), nil
}
