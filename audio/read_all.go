// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"errors"
	"fmt"
	"io"
)

// ReadAll drains src into memory. bufferSize is the read chunk in samples;
// values below one frame fall back to src.BufSize().
//
// Example:
//
//	src, _ := decoder.Decode(file)
//	samples, err := audio.ReadAll(audio.Convert(src, 44100, 2), 4096)
//	if err != nil {
//	    return err
//	}
func ReadAll(src Source, bufferSize int) ([]float32, error) {
	channels := max(src.Channels(), 1)
	if bufferSize < channels {
		bufferSize = max(src.BufSize(), 4096)
	}
	bufferSize -= bufferSize % channels

	var (
		out     []float32
		stalled int
	)

	if info := InfoOf(src); info.Frames > 0 {
		out = make([]float32, 0, info.Frames*int64(channels))
	}

	buf := make([]float32, bufferSize)

	for {
		n, err := src.ReadSamples(buf)
		out = append(out, buf[:n]...)

		if errors.Is(err, io.EOF) {
			return out, nil
		}

		if err != nil {
			return out, fmt.Errorf("%w", err)
		}

		if n == 0 {
			stalled++
			if stalled > 64 {
				return out, io.ErrNoProgress
			}
			continue
		}
		stalled = 0
	}
}

// Convert chains a resampler and a remixer so that src is delivered at
// sampleRate with the given channel count.
func Convert(src Source, sampleRate, channels int) Source {
	var s Source = src
	if src.SampleRate() != sampleRate {
		s = NewResampler(s, sampleRate)
	}

	if src.Channels() != channels {
		s = NewRemixer(s, channels)
	}

	return s
}
