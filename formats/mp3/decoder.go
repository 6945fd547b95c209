// SPDX-License-Identifier: EPL-2.0

package mp3

import (
	"fmt"
	"io"

	gomp3 "github.com/hajimehoshi/go-mp3"

	"github.com/ik5/audrt/audio"
	"github.com/ik5/audrt/utils"
)

// go-mp3 always decodes to interleaved 16-bit stereo.
const (
	channels  = 2
	frameSize = channels * 2
)

// mp3Reader is an interface for gomp3.Decoder to allow testing
type mp3Reader interface {
	Read([]byte) (int, error)
	SampleRate() int
}

type source struct {
	dec  mp3Reader
	info audio.Info
	buf  []byte
	// carry holds a trailing odd byte between reads.
	carry []byte
}

func newSource(dec mp3Reader, frames int64, bitrate int) *source {
	return &source{
		dec: dec,
		info: audio.Info{
			SampleRate: dec.SampleRate(),
			Channels:   channels,
			Frames:     frames,
			Bitrate:    bitrate,
		},
		buf: make([]byte, 8192),
	}
}

func (s *source) SampleRate() int  { return s.info.SampleRate }
func (s *source) Channels() int    { return channels }
func (s *source) Info() audio.Info { return s.info }
func (s *source) Close() error     { return nil }
func (s *source) BufSize() int     { return cap(s.buf) / 2 }

func (s *source) ReadSamples(dst []float32) (int, error) {
	bytesNeeded := len(dst) * 2
	if bytesNeeded == 0 {
		return 0, nil
	}
	if cap(s.buf) < bytesNeeded {
		s.buf = make([]byte, bytesNeeded)
	}
	s.buf = s.buf[:bytesNeeded]

	held := copy(s.buf, s.carry)
	s.carry = s.carry[:0]

	n, err := s.dec.Read(s.buf[held:])
	n += held

	samples := n / 2
	for i := range samples {
		v := int16(uint16(s.buf[2*i]) | uint16(s.buf[2*i+1])<<8)
		dst[i] = utils.Int16ToFloat32(v)
	}

	if n%2 == 1 {
		s.carry = append(s.carry, s.buf[n-1])
	}

	if err != nil && err != io.EOF {
		return samples, fmt.Errorf("%w", err)
	}
	if samples == 0 && err == io.EOF {
		return 0, io.EOF
	}

	return samples, nil
}

type Decoder struct{}

// Decode reads the first frame header. When r can seek, the stream length
// is known and the average bitrate is derived from the input size.
func (Decoder) Decode(r io.Reader) (audio.Source, error) {
	size := int64(-1)
	if rs, ok := r.(io.Seeker); ok {
		if end, err := rs.Seek(0, io.SeekEnd); err == nil {
			size = end
		}
		if _, err := rs.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("%w", err)
		}
	}

	dec, err := gomp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("%w", err)
	}

	frames := int64(-1)
	bitrate := 0
	if length := dec.Length(); length > 0 {
		frames = length / frameSize

		if size > 0 && dec.SampleRate() > 0 {
			seconds := float64(frames) / float64(dec.SampleRate())
			bitrate = int(float64(size*8) / seconds)
		}
	}

	return newSource(dec, frames, bitrate), nil
}
