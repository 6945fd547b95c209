// SPDX-License-Identifier: EPL-2.0

package vorbis

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

// mockOggVorbisReader simulates the oggvorbis.Reader for testing
type mockOggVorbisReader struct {
	sampleRate int
	channels   int
	samples    []float32
	offset     int
	err        error
}

func (m *mockOggVorbisReader) SampleRate() int { return m.sampleRate }
func (m *mockOggVorbisReader) Channels() int   { return m.channels }

func (m *mockOggVorbisReader) Read(buf []float32) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	if m.offset >= len(m.samples) {
		return 0, io.EOF
	}

	n := copy(buf, m.samples[m.offset:])
	m.offset += n

	return n, nil
}

func TestDecoder_InvalidInput(t *testing.T) {
	t.Parallel()

	for _, data := range [][]byte{nil, []byte("This is not Ogg Vorbis data")} {
		if _, err := (Decoder{}).Decode(bytes.NewReader(data)); err == nil {
			t.Errorf("Decode(%q) error = nil", data)
		}
	}
}

func TestSource_Metadata(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		frames     int64
		wantFrames int64
	}{
		{"known", 48000, 48000},
		{"unknown", 0, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			src := newSource(&mockOggVorbisReader{sampleRate: 48000, channels: 2}, tt.frames, 160000)
			info := src.Info()

			if info.SampleRate != 48000 || info.Channels != 2 || info.Bitrate != 160000 {
				t.Errorf("Info() = %+v", info)
			}
			if info.Frames != tt.wantFrames {
				t.Errorf("Frames = %d, want %d", info.Frames, tt.wantFrames)
			}
		})
	}
}

func TestSource_ReadsWholeFrames(t *testing.T) {
	t.Parallel()

	mock := &mockOggVorbisReader{
		sampleRate: 44100,
		channels:   3,
		samples:    []float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6},
	}
	src := newSource(mock, 2, 0)

	dst := make([]float32, 5)
	n, err := src.ReadSamples(dst)
	if err != nil || n != 3 {
		t.Fatalf("ReadSamples() = %d, %v, want 3, nil", n, err)
	}

	n, err = src.ReadSamples(dst)
	if err != nil || n != 3 || dst[0] != 0.4 {
		t.Fatalf("second read = %d, %v, %v", n, err, dst[:n])
	}

	if n, err := src.ReadSamples(dst); n != 0 || err != io.EOF {
		t.Errorf("at end: %d, %v, want 0, EOF", n, err)
	}

	if n, err := src.ReadSamples(dst[:2]); n != 0 || err != nil {
		t.Errorf("short buffer: %d, %v, want 0, nil", n, err)
	}
}

func TestSource_ReadError(t *testing.T) {
	t.Parallel()

	boom := errors.New("bad packet")
	src := newSource(&mockOggVorbisReader{sampleRate: 8000, channels: 1, err: boom}, -1, 0)

	if _, err := src.ReadSamples(make([]float32, 4)); !errors.Is(err, boom) {
		t.Errorf("ReadSamples() error = %v, want %v", err, boom)
	}
}

func BenchmarkSource_ReadSamples(b *testing.B) {
	samples := make([]float32, 44100*2)
	dst := make([]float32, 4096)

	b.ReportAllocs()
	for b.Loop() {
		src := newSource(&mockOggVorbisReader{sampleRate: 44100, channels: 2, samples: samples}, -1, 0)
		for {
			if _, err := src.ReadSamples(dst); err != nil {
				break
			}
		}
	}
}
