// SPDX-License-Identifier: EPL-2.0

package audio

import "math"

// FilterType selects a biquad response.
type FilterType int

const (
	LowPass FilterType = iota
	HighPass
	BandPassSkirt
	BandPassPeak
	Notch
	AllPass
	PeakingEQ
	LowShelf
	HighShelf
)

func (f FilterType) String() string {
	switch f {
	case LowPass:
		return "lowpass"
	case HighPass:
		return "highpass"
	case BandPassSkirt:
		return "bandpass-skirt"
	case BandPassPeak:
		return "bandpass-peak"
	case Notch:
		return "notch"
	case AllPass:
		return "allpass"
	case PeakingEQ:
		return "peaking-eq"
	case LowShelf:
		return "lowshelf"
	case HighShelf:
		return "highshelf"
	default:
		return "unknown"
	}
}

// BiQuad is a second order IIR filter applied to interleaved samples,
// with coefficients from the RBJ audio EQ cookbook.
type BiQuad struct {
	channels int

	b0, b1, b2, a1, a2 float64

	// Per channel history: x[n-1], x[n-2], y[n-1], y[n-2]
	state [][4]float64
}

// NewBiQuad designs a filter. cutoff is in Hz, gainDB only affects the
// peaking and shelf types.
func NewBiQuad(channels int, kind FilterType, sampleRate, cutoff, q, gainDB float64) *BiQuad {
	f := &BiQuad{
		channels: max(channels, 1),
		state:    make([][4]float64, max(channels, 1)),
	}
	f.Design(kind, sampleRate, cutoff, q, gainDB)

	return f
}

// Design recomputes the coefficients while keeping the filter history.
func (f *BiQuad) Design(kind FilterType, sampleRate, cutoff, q, gainDB float64) {
	if q <= 0 {
		q = math.Sqrt2 / 2
	}

	nyquist := sampleRate / 2
	cutoff = min(max(cutoff, 1), nyquist*0.999)

	w0 := 2 * math.Pi * cutoff / sampleRate
	cosW, sinW := math.Cos(w0), math.Sin(w0)
	alpha := sinW / (2 * q)
	a := math.Pow(10, gainDB/40)

	var b0, b1, b2, a0, a1, a2 float64

	switch kind {
	case LowPass:
		b0, b1, b2 = (1-cosW)/2, 1-cosW, (1-cosW)/2
		a0, a1, a2 = 1+alpha, -2*cosW, 1-alpha
	case HighPass:
		b0, b1, b2 = (1+cosW)/2, -(1 + cosW), (1+cosW)/2
		a0, a1, a2 = 1+alpha, -2*cosW, 1-alpha
	case BandPassSkirt:
		b0, b1, b2 = q*alpha, 0, -q*alpha
		a0, a1, a2 = 1+alpha, -2*cosW, 1-alpha
	case BandPassPeak:
		b0, b1, b2 = alpha, 0, -alpha
		a0, a1, a2 = 1+alpha, -2*cosW, 1-alpha
	case Notch:
		b0, b1, b2 = 1, -2*cosW, 1
		a0, a1, a2 = 1+alpha, -2*cosW, 1-alpha
	case AllPass:
		b0, b1, b2 = 1-alpha, -2*cosW, 1+alpha
		a0, a1, a2 = 1+alpha, -2*cosW, 1-alpha
	case PeakingEQ:
		b0, b1, b2 = 1+alpha*a, -2*cosW, 1-alpha*a
		a0, a1, a2 = 1+alpha/a, -2*cosW, 1-alpha/a
	case LowShelf:
		sq := 2 * math.Sqrt(a) * alpha
		b0 = a * ((a + 1) - (a-1)*cosW + sq)
		b1 = 2 * a * ((a - 1) - (a+1)*cosW)
		b2 = a * ((a + 1) - (a-1)*cosW - sq)
		a0 = (a + 1) + (a-1)*cosW + sq
		a1 = -2 * ((a - 1) + (a+1)*cosW)
		a2 = (a + 1) + (a-1)*cosW - sq
	case HighShelf:
		sq := 2 * math.Sqrt(a) * alpha
		b0 = a * ((a + 1) + (a-1)*cosW + sq)
		b1 = -2 * a * ((a - 1) + (a+1)*cosW)
		b2 = a * ((a + 1) + (a-1)*cosW - sq)
		a0 = (a + 1) - (a-1)*cosW + sq
		a1 = 2 * ((a - 1) - (a+1)*cosW)
		a2 = (a + 1) - (a-1)*cosW - sq
	default:
		b0, a0 = 1, 1
	}

	f.b0, f.b1, f.b2 = b0/a0, b1/a0, b2/a0
	f.a1, f.a2 = a1/a0, a2/a0
}

// Process filters buf in place.
func (f *BiQuad) Process(buf []float32) {
	for i := 0; i+f.channels <= len(buf); i += f.channels {
		for c := range f.channels {
			s := &f.state[c]
			x := float64(buf[i+c])
			y := f.b0*x + f.b1*s[0] + f.b2*s[1] - f.a1*s[2] - f.a2*s[3]

			s[1], s[0] = s[0], x
			s[3], s[2] = s[2], y

			buf[i+c] = float32(y)
		}
	}
}

// Reset clears the filter history.
func (f *BiQuad) Reset() {
	clear(f.state)
}
