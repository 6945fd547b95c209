// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"errors"
	"math"
	"testing"

	"github.com/ik5/audrt/internal/audiotest"
)

func TestValidateTempo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		tempo   float64
		wantErr bool
	}{
		{tempo: 1},
		{tempo: MinimumTempo},
		{tempo: -0.5},
		{tempo: 0.049, wantErr: true},
		{tempo: 0, wantErr: true},
		{tempo: -0.01, wantErr: true},
		{tempo: math.NaN(), wantErr: true},
	}

	for _, tt := range tests {
		err := ValidateTempo(tt.tempo)
		if tt.wantErr != errors.Is(err, ErrTempoTooLow) {
			t.Errorf("ValidateTempo(%v) = %v, wantErr %v", tt.tempo, err, tt.wantErr)
		}
	}
}

func TestTempoSource_PassThroughAtNeutral(t *testing.T) {
	t.Parallel()

	want := drain(t, audiotest.NewRampSource(8000, 2, 500), 64)
	ts := NewTempoSource(audiotest.NewRampSource(8000, 2, 500))

	if ts.Stretching() {
		t.Fatal("stretcher built at tempo 1")
	}

	got := drain(t, ts, 64)
	if len(got) != len(want) {
		t.Fatalf("got %d samples, want %d", len(got), len(want))
	}

	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("sample %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestTempoSource_RejectsLowTempo(t *testing.T) {
	t.Parallel()

	ts := NewTempoSource(audiotest.NewSilentSource(8000, 1, 10))

	if _, err := ts.SetTempo(0.01); !errors.Is(err, ErrTempoTooLow) {
		t.Errorf("SetTempo(0.01) error = %v, want ErrTempoTooLow", err)
	}

	if ts.Tempo() != 1 || ts.Stretching() {
		t.Errorf("rejected tempo changed state: tempo %v stretching %v", ts.Tempo(), ts.Stretching())
	}
}

func TestTempoSource_LazyStretcher(t *testing.T) {
	t.Parallel()

	const frames = 44100

	ts := NewTempoSource(audiotest.NewSineSource(44100, 2, frames, 440))

	if _, err := ts.SetTempo(1.5); err != nil {
		t.Fatalf("SetTempo(1.5) error = %v", err)
	}

	if !ts.Stretching() {
		t.Fatal("no stretcher at tempo 1.5")
	}

	got := len(drain(t, ts, 2048)) / 2
	if want := frames / 1.5; math.Abs(float64(got)-want) > 2000 {
		t.Errorf("got %d frames, want about %.0f", got, want)
	}
}

func TestTempoSource_TeardownReportsLatency(t *testing.T) {
	t.Parallel()

	src := audiotest.NewRampSource(44100, 1, 44100)
	ts := NewTempoSource(src)

	if _, err := ts.SetTempo(1.5); err != nil {
		t.Fatalf("SetTempo(1.5) error = %v", err)
	}

	buf := make([]float32, 1024)
	if _, err := ts.ReadSamples(buf); err != nil {
		t.Fatalf("ReadSamples() error = %v", err)
	}

	held := ts.Latency()
	if held <= 0 {
		t.Fatalf("Latency() = %v, want > 0 while stretching", held)
	}

	latency, err := ts.SetTempo(1)
	if err != nil {
		t.Fatalf("SetTempo(1) error = %v", err)
	}

	if latency != held {
		t.Errorf("teardown latency = %v, want %v", latency, held)
	}

	if ts.Stretching() || ts.Latency() != 0 {
		t.Error("stretcher still active after returning to tempo 1")
	}

	// Played material plus latency accounts for everything read.
	played := 1024 * 1.5
	if math.Abs(played+latency-float64(src.Position())) > float64(NewStretcher(44100, 1).seqLen) {
		t.Errorf("played %v + latency %v far from source position %d", played, latency, src.Position())
	}
}

func TestTempoSource_FillPreBuffers(t *testing.T) {
	t.Parallel()

	ts := NewTempoSource(audiotest.NewSineSource(44100, 1, 44100, 440))
	if _, err := ts.SetTempo(0.8); err != nil {
		t.Fatalf("SetTempo() error = %v", err)
	}

	if err := ts.Fill(4096); err != nil {
		t.Fatalf("Fill() error = %v", err)
	}

	if ts.st.Available() < 4096 {
		t.Errorf("Available() = %d after Fill(4096)", ts.st.Available())
	}

	ts.Reset()
	if ts.Latency() != 0 {
		t.Errorf("Latency() after Reset = %v", ts.Latency())
	}
}
