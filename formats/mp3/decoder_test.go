// SPDX-License-Identifier: EPL-2.0

package mp3

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"testing"
)

// mockMP3Reader simulates the gomp3.Decoder for testing
type mockMP3Reader struct {
	sampleRate int
	data       []byte
	offset     int
	// chunk limits the bytes returned per Read, 0 for unlimited.
	chunk int
	err   error
}

func newMock(sampleRate int, samples []int16) *mockMP3Reader {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}

	return &mockMP3Reader{sampleRate: sampleRate, data: data}
}

func (m *mockMP3Reader) SampleRate() int { return m.sampleRate }

func (m *mockMP3Reader) Read(buf []byte) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	if m.offset >= len(m.data) {
		return 0, io.EOF
	}

	n := len(buf)
	if m.chunk > 0 {
		n = min(n, m.chunk)
	}
	n = copy(buf[:n], m.data[m.offset:])
	m.offset += n

	return n, nil
}

func TestDecoder_InvalidInput(t *testing.T) {
	t.Parallel()

	for _, data := range [][]byte{nil, []byte("This is not MP3 data")} {
		if _, err := (Decoder{}).Decode(bytes.NewReader(data)); err == nil {
			t.Errorf("Decode(%q) error = nil", data)
		}
	}
}

func TestSource_Metadata(t *testing.T) {
	t.Parallel()

	src := newSource(newMock(22050, nil), 1000, 128000)

	if src.SampleRate() != 22050 || src.Channels() != 2 {
		t.Errorf("format = %d/%d, want 22050/2", src.SampleRate(), src.Channels())
	}
	if info := src.Info(); info.Frames != 1000 || info.Bitrate != 128000 {
		t.Errorf("Info() = %+v", info)
	}
	if src.BufSize() != 4096 {
		t.Errorf("BufSize() = %d, want 4096", src.BufSize())
	}
}

func TestSource_ReadSamples(t *testing.T) {
	t.Parallel()

	src := newSource(newMock(44100, []int16{0, 16384, -16384, 32767}), -1, 0)

	dst := make([]float32, 8)
	n, err := src.ReadSamples(dst)
	if err != nil || n != 4 {
		t.Fatalf("ReadSamples() = %d, %v, want 4, nil", n, err)
	}

	want := []float32{0, 0.5, -0.5, 32767.0 / 32768}
	for i := range want {
		if math.Abs(float64(dst[i]-want[i])) > 1e-6 {
			t.Errorf("sample %d = %v, want %v", i, dst[i], want[i])
		}
	}

	if n, err := src.ReadSamples(dst); n != 0 || err != io.EOF {
		t.Errorf("at end: %d, %v, want 0, EOF", n, err)
	}
}

func TestSource_OddByteReads(t *testing.T) {
	t.Parallel()

	mock := newMock(44100, []int16{1000, -1000, 2000, -2000})
	mock.chunk = 3
	src := newSource(mock, -1, 0)

	var got []float32
	dst := make([]float32, 4)
	for range 16 {
		n, err := src.ReadSamples(dst)
		got = append(got, dst[:n]...)
		if err == io.EOF {
			break
		}
	}

	want := []int16{1000, -1000, 2000, -2000}
	if len(got) != len(want) {
		t.Fatalf("decoded %d samples, want %d", len(got), len(want))
	}
	for i, w := range want {
		if g := int16(math.Round(float64(got[i]) * 32768)); g != w {
			t.Errorf("sample %d = %d, want %d", i, g, w)
		}
	}
}

func TestSource_ReadError(t *testing.T) {
	t.Parallel()

	boom := errors.New("corrupt frame")
	mock := newMock(44100, nil)
	mock.err = boom

	_, err := newSource(mock, -1, 0).ReadSamples(make([]float32, 4))
	if !errors.Is(err, boom) {
		t.Errorf("ReadSamples() error = %v, want %v", err, boom)
	}
}

func TestSource_EmptyBuffer(t *testing.T) {
	t.Parallel()

	n, err := newSource(newMock(44100, []int16{1, 2}), -1, 0).ReadSamples(nil)
	if n != 0 || err != nil {
		t.Errorf("ReadSamples(nil) = %d, %v", n, err)
	}
}

func BenchmarkSource_ReadSamples(b *testing.B) {
	samples := make([]int16, 44100*2)
	dst := make([]float32, 4096)

	b.ReportAllocs()
	for b.Loop() {
		src := newSource(newMock(44100, samples), -1, 0)
		for {
			if _, err := src.ReadSamples(dst); err != nil {
				break
			}
		}
	}
}
