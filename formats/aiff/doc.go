// SPDX-License-Identifier: EPL-2.0

// Package aiff decodes AIFF files through github.com/go-audio/aiff.
//
// Signed integer PCM at 8, 16, 24 or 32 bits is supported with any
// channel count and sample rate. The sample frame count from the COMM
// chunk is reported through audio.InfoOf.
//
//	src, err := aiff.Decoder{}.Decode(file)
//	if errors.Is(err, aiff.ErrNotAiffFile) {
//	    // try another decoder
//	}
package aiff
