// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"errors"
	"math"
	"testing"

	"github.com/ik5/audrt/internal/audiotest"
)

func channelLevels(frame, ch int) float32 { return float32(ch+1) / 10 }

func TestRemixer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   int
		out  int
		want []float32
	}{
		{name: "stereo to mono", in: 2, out: 1, want: []float32{0.15}},
		{name: "quad to mono", in: 4, out: 1, want: []float32{0.25}},
		{name: "five to mono", in: 5, out: 1, want: []float32{0.3}},
		{name: "mono to stereo", in: 1, out: 2, want: []float32{0.1, 0.1}},
		{name: "stereo to three", in: 2, out: 3, want: []float32{0.1, 0.2, 0.1}},
		{name: "six to stereo", in: 6, out: 2, want: []float32{0.3, 0.4}},
		{name: "three to stereo", in: 3, out: 2, want: []float32{0.2, 0.2}},
		{name: "same layout", in: 2, out: 2, want: []float32{0.1, 0.2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			src := audiotest.NewGenerator(8000, tt.in, 10, channelLevels)
			m := NewRemixer(src, tt.out)

			if m.Channels() != tt.out {
				t.Fatalf("Channels() = %d, want %d", m.Channels(), tt.out)
			}

			buf := make([]float32, 4*tt.out)
			n, err := m.ReadSamples(buf)
			if err != nil {
				t.Fatalf("ReadSamples() error = %v", err)
			}

			if n != len(buf) {
				t.Fatalf("ReadSamples() = %d, want %d", n, len(buf))
			}

			for f := range 4 {
				for c, want := range tt.want {
					got := buf[f*tt.out+c]
					if math.Abs(float64(got-want)) > 1e-6 {
						t.Errorf("frame %d channel %d = %v, want %v", f, c, got, want)
					}
				}
			}
		})
	}
}

func TestRemixer_ReturnsEOF(t *testing.T) {
	t.Parallel()

	m := NewMonoMixer(audiotest.NewConstantSource(8000, 2, 3, 0.5))
	out := drain(t, m, 8)

	if len(out) != 3 {
		t.Errorf("got %d samples, want 3", len(out))
	}
}

func TestRemixer_InvalidDstSize(t *testing.T) {
	t.Parallel()

	m := NewRemixer(audiotest.NewSilentSource(8000, 1, 10), 2)
	if _, err := m.ReadSamples(make([]float32, 3)); !errors.Is(err, ErrInvalidDstSize) {
		t.Errorf("ReadSamples(3) error = %v, want ErrInvalidDstSize", err)
	}

	if n, err := m.ReadSamples(nil); n != 0 || err != nil {
		t.Errorf("ReadSamples(nil) = (%d, %v), want (0, nil)", n, err)
	}
}

func TestRemixer_ZeroAllocs(t *testing.T) {
	m := NewMonoMixer(audiotest.NewSineSource(44100, 2, 1<<30, 440))
	buf := make([]float32, 1024)

	allocs := testing.AllocsPerRun(100, func() {
		_, _ = m.ReadSamples(buf)
	})

	if allocs != 0 {
		t.Errorf("ReadSamples allocates %v times per run", allocs)
	}
}
