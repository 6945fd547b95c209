// SPDX-License-Identifier: EPL-2.0

// Package wav decodes and encodes RIFF WAVE files.
//
// Decoding goes through github.com/go-audio/wav and accepts integer PCM at
// 8, 16, 24 or 32 bits with any channel count. The returned source reports
// its length through audio.InfoOf. Non seekable readers are buffered in
// memory, since the RIFF chunk walk needs to seek.
//
//	src, err := wav.Decoder{}.Decode(file)
//	if err != nil {
//	    return err
//	}
//	info := audio.InfoOf(src) // Frames, Bitrate
//
// WriteWAV16 streams a canonical 16-bit header followed by the samples and
// works on any io.Writer. Encode uses the go-audio encoder for other bit
// depths and requires an io.WriteSeeker.
package wav
