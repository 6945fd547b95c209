// SPDX-License-Identifier: EPL-2.0

// Package mp3 decodes MPEG-1/2 Layer III streams through
// github.com/hajimehoshi/go-mp3.
//
// The decoder always yields interleaved stereo at the stream's sample
// rate. Length and average bitrate are reported through audio.InfoOf when
// the input is an io.Seeker; otherwise Frames is -1.
//
//	src, err := mp3.Decoder{}.Decode(file)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(audio.InfoOf(src).Duration())
package mp3
