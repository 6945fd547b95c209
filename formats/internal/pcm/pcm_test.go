// SPDX-License-Identifier: EPL-2.0

package pcm

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	goaudio "github.com/go-audio/audio"

	"github.com/ik5/audrt/audio"
)

// mockReader simulates the go-audio decoders for testing
type mockReader struct {
	format  *goaudio.Format
	samples []int
	offset  int
	err     error
}

func (m *mockReader) Format() *goaudio.Format { return m.format }

func (m *mockReader) PCMBuffer(buf *goaudio.IntBuffer) (int, error) {
	if m.err != nil {
		return 0, m.err
	}

	n := copy(buf.Data, m.samples[m.offset:])
	m.offset += n

	return n, nil
}

func stereo(samples ...int) *mockReader {
	return &mockReader{
		format:  &goaudio.Format{SampleRate: 44100, NumChannels: 2},
		samples: samples,
	}
}

func TestNewIntSource_Format(t *testing.T) {
	t.Parallel()

	if _, err := NewIntSource(&mockReader{}, 16, -1, false); !errors.Is(err, audio.ErrInvalidFormat) {
		t.Errorf("nil format error = %v", err)
	}

	src, err := NewIntSource(stereo(), 24, 10, false)
	if err != nil {
		t.Fatal(err)
	}

	want := audio.Info{SampleRate: 44100, Channels: 2, Frames: 10, Bitrate: 44100 * 2 * 24}
	if got := src.Info(); got != want {
		t.Errorf("Info() = %+v, want %+v", got, want)
	}
}

func TestIntSource_Normalization(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		bitDepth  int
		unsigned8 bool
		in        []int
		want      []float32
	}{
		{"16", 16, false, []int{16384, -32768}, []float32{0.5, -1}},
		{"24", 24, false, []int{4194304, -8388608}, []float32{0.5, -1}},
		{"32", 32, false, []int{1073741824, 0}, []float32{0.5, 0}},
		{"8 signed", 8, false, []int{64, -128}, []float32{0.5, -1}},
		{"8 unsigned", 8, true, []int{192, 0}, []float32{0.5, -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			src, err := NewIntSource(stereo(tt.in...), tt.bitDepth, -1, tt.unsigned8)
			if err != nil {
				t.Fatal(err)
			}

			dst := make([]float32, 4)
			n, err := src.ReadSamples(dst)
			if err != nil || n != len(tt.want) {
				t.Fatalf("ReadSamples() = %d, %v", n, err)
			}
			for i, w := range tt.want {
				if dst[i] != w {
					t.Errorf("sample %d = %v, want %v", i, dst[i], w)
				}
			}
		})
	}
}

func TestIntSource_WholeFramesAndEOF(t *testing.T) {
	t.Parallel()

	src, err := NewIntSource(stereo(1, 2, 3, 4, 5, 6), 16, 3, false)
	if err != nil {
		t.Fatal(err)
	}

	dst := make([]float32, 5)
	if n, err := src.ReadSamples(dst); n != 4 || err != nil {
		t.Fatalf("first read = %d, %v, want 4, nil", n, err)
	}
	if n, err := src.ReadSamples(dst); n != 2 || err != nil {
		t.Fatalf("second read = %d, %v, want 2, nil", n, err)
	}
	if n, err := src.ReadSamples(dst); n != 0 || err != io.EOF {
		t.Errorf("third read = %d, %v, want 0, EOF", n, err)
	}
	if n, err := src.ReadSamples(dst[:1]); n != 0 || err != io.EOF {
		t.Errorf("after EOF = %d, %v", n, err)
	}
}

func TestIntSource_Error(t *testing.T) {
	t.Parallel()

	boom := errors.New("truncated chunk")
	m := stereo()
	m.err = boom

	src, err := NewIntSource(m, 16, -1, false)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := src.ReadSamples(make([]float32, 4)); !errors.Is(err, boom) {
		t.Errorf("ReadSamples() error = %v, want %v", err, boom)
	}
}

func TestSeekable(t *testing.T) {
	t.Parallel()

	br := bytes.NewReader([]byte("abc"))
	rs, err := Seekable(br)
	if err != nil || rs != io.ReadSeeker(br) {
		t.Errorf("Seekable(bytes.Reader) = %v, %v, want same reader", rs, err)
	}

	rs, err = Seekable(io.MultiReader(strings.NewReader("ab"), strings.NewReader("cd")))
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(rs)
	if string(data) != "abcd" {
		t.Errorf("buffered = %q", data)
	}
}
