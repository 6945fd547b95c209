// SPDX-License-Identifier: EPL-2.0

package utils

import (
	"math"
	"testing"
)

func TestFloat32ToInt16(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input float32
		want  int16
	}{
		{name: "zero", input: 0, want: 0},
		{name: "max positive", input: 1, want: math.MaxInt16},
		{name: "max negative", input: -1, want: math.MinInt16},
		{name: "half positive", input: 0.5, want: 16384},
		{name: "half negative", input: -0.5, want: -16384},
		{name: "small positive", input: 0.001, want: 32},
		{name: "clamp over max", input: 1.5, want: math.MaxInt16},
		{name: "clamp under min", input: -100, want: math.MinInt16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := Float32ToInt16(tt.input); got != tt.want {
				t.Errorf("Float32ToInt16(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestFloat32ToInt16Monotonic(t *testing.T) {
	t.Parallel()

	prev := Float32ToInt16(-1)
	for f := -0.99; f <= 1.0; f += 0.01 {
		curr := Float32ToInt16(float32(f))
		if curr < prev {
			t.Fatalf("not monotonic at %v: %v < %v", f, curr, prev)
		}
		prev = curr
	}
}

func TestIntToFloat32(t *testing.T) {
	t.Parallel()

	tests := []struct {
		v, depth int
		want     float32
	}{
		{v: 64, depth: 8, want: 0.5},
		{v: -16384, depth: 16, want: -0.5},
		{v: 4194304, depth: 24, want: 0.5},
		{v: -1073741824, depth: 32, want: -0.5},
		{v: 16384, depth: 12, want: 0.5},
	}

	for _, tt := range tests {
		if got := IntToFloat32(tt.v, tt.depth); got != tt.want {
			t.Errorf("IntToFloat32(%d, %d) = %v, want %v", tt.v, tt.depth, got, tt.want)
		}
	}
}

func TestInt16RoundTrip(t *testing.T) {
	t.Parallel()

	for _, v := range []int16{math.MinInt16, -1000, 0, 1000} {
		if got := Float32ToInt16(Int16ToFloat32(v)); got != v {
			t.Errorf("round trip of %d = %d", v, got)
		}
	}
}

func TestClamp(t *testing.T) {
	t.Parallel()

	if Clamp(2) != 1 || Clamp(-2) != -1 || Clamp(0.3) != 0.3 {
		t.Error("Clamp does not limit to [-1, 1]")
	}
}

func TestFloat32ToInt16_BatchZeroAllocs(t *testing.T) {
	floatBuf := make([]float32, 1024)
	int16Buf := make([]int16, 1024)

	allocs := testing.AllocsPerRun(100, func() {
		for i := range floatBuf {
			int16Buf[i] = Float32ToInt16(floatBuf[i])
		}
	})

	if allocs > 0 {
		t.Errorf("batch conversion allocated %v times, want 0", allocs)
	}
}

func BenchmarkFloat32ToInt16(b *testing.B) {
	samples := make([]float32, 8000)
	out := make([]int16, 8000)
	for i := range samples {
		samples[i] = float32(math.Sin(float64(i) * 0.1))
	}

	b.ReportAllocs()
	for b.Loop() {
		for j := range samples {
			out[j] = Float32ToInt16(samples[j])
		}
	}
}
