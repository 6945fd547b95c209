// SPDX-License-Identifier: EPL-2.0

package audio

import "fmt"

// Remixer maps the channels of src onto a different channel count.
// Downmixing to mono averages all channels; mono is copied to every output;
// other layouts fold source channel k onto output k mod out.
type Remixer struct {
	src Source
	out int
	tmp []float32
}

// NewRemixer delivers src with channels outputs.
func NewRemixer(src Source, channels int) *Remixer {
	return &Remixer{
		src: src,
		out: max(channels, 1),
		tmp: make([]float32, 4096),
	}
}

// NewMonoMixer averages every channel of src into one.
func NewMonoMixer(src Source) *Remixer { return NewRemixer(src, 1) }

func (m *Remixer) SampleRate() int { return m.src.SampleRate() }
func (m *Remixer) Channels() int   { return m.out }
func (m *Remixer) BufSize() int    { return m.src.BufSize() }
func (m *Remixer) Close() error {
	err := m.src.Close()
	if err != nil {
		return fmt.Errorf("%w", err)
	}

	return nil
}

// ReadSamples returns the number of output samples written.
func (m *Remixer) ReadSamples(dst []float32) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}

	if len(dst)%m.out != 0 {
		return 0, ErrInvalidDstSize
	}

	in := max(m.src.Channels(), 1)
	if in == m.out {
		return m.src.ReadSamples(dst)
	}

	frames := len(dst) / m.out
	samplesNeeded := frames * in

	// Grow tmp buffer if needed (but don't shrink to avoid thrashing)
	if cap(m.tmp) < samplesNeeded {
		m.tmp = make([]float32, max(samplesNeeded, 8192))
	}
	tmp := m.tmp[:samplesNeeded]

	n, err := m.src.ReadSamples(tmp)
	if n == 0 {
		return 0, err
	}
	frames = n / in

	switch {
	case m.out == 1:
		downmix(dst, tmp, frames, in)
	case in == 1:
		for f := range frames {
			v := tmp[f]
			row := dst[f*m.out : (f+1)*m.out]
			for c := range row {
				row[c] = v
			}
		}
	default:
		fold(dst, tmp, frames, in, m.out)
	}

	return frames * m.out, err
}

func downmix(dst, src []float32, frames, channels int) {
	// Unrolled loop for common cases
	switch channels {
	case 2:
		for f := range frames {
			idx := f << 1
			dst[f] = (src[idx] + src[idx+1]) * 0.5
		}
	case 4:
		for f := range frames {
			idx := f << 2
			dst[f] = (src[idx] + src[idx+1] + src[idx+2] + src[idx+3]) * 0.25
		}
	default:
		inv := float32(1) / float32(channels)
		for f := range frames {
			sum := float32(0)
			for _, v := range src[f*channels : (f+1)*channels] {
				sum += v
			}
			dst[f] = sum * inv
		}
	}
}

func fold(dst, src []float32, frames, in, out int) {
	for f := range frames {
		row := dst[f*out : (f+1)*out]
		frame := src[f*in : (f+1)*in]

		if in < out {
			for c := range row {
				row[c] = frame[c%in]
			}
			continue
		}

		clear(row)
		for k, v := range frame {
			row[k%out] += v
		}

		// Output c receives in/out channels, plus one when c < in%out.
		for c := range row {
			n := in / out
			if c < in%out {
				n++
			}
			row[c] /= float32(n)
		}
	}
}
