// SPDX-License-Identifier: EPL-2.0

package aiff

import (
	"fmt"
	"io"

	"github.com/go-audio/aiff"

	"github.com/ik5/audrt/audio"
	"github.com/ik5/audrt/formats/internal/pcm"
)

type Decoder struct{}

// Decode reads the COMM chunk and returns a source positioned at the sound
// data. go-audio requires seeking, so other readers are buffered first.
func (Decoder) Decode(r io.Reader) (audio.Source, error) {
	rs, err := pcm.Seekable(r)
	if err != nil {
		return nil, fmt.Errorf("reading aiff data: %w", err)
	}

	dec := aiff.NewDecoder(rs)
	if !dec.IsValidFile() {
		return nil, ErrNotAiffFile
	}

	dec.ReadInfo()
	if err := dec.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedAiffLayout, err)
	}

	bitDepth := int(dec.BitDepth)
	switch bitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, bitDepth)
	}

	if dec.Format() == nil {
		return nil, ErrUnsupportedAiffLayout
	}

	frames := int64(-1)
	if dec.NumSampleFrames > 0 {
		frames = int64(dec.NumSampleFrames)
	}

	return pcm.NewIntSource(dec, bitDepth, frames, false)
}
