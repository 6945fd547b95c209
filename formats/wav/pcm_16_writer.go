// SPDX-License-Identifier: EPL-2.0

package wav

import (
	"encoding/binary"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/ik5/audrt/audio"
	"github.com/ik5/audrt/utils"
)

// WriteWAV16 writes interleaved 16-bit PCM samples as a canonical WAV
// stream. It needs no seeking, so w may be a pipe or a network stream.
func WriteWAV16(w io.Writer, sampleRate, channels int, samples []int16) error {
	if sampleRate <= 0 || channels <= 0 {
		return fmt.Errorf("%d Hz/%d ch: %w", sampleRate, channels, audio.ErrInvalidFormat)
	}
	if len(samples)%channels != 0 {
		return audio.ErrInvalidDstSize
	}

	numChannels := uint16(channels)
	bitsPerSample := uint16(16)
	byteRate := uint32(sampleRate) * uint32(numChannels) * uint32(bitsPerSample/8)
	blockAlign := numChannels * (bitsPerSample / 8)
	dataSize := uint32(len(samples) * 2)

	header := make([]byte, 44)

	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], 36+dataSize)
	copy(header[8:12], "WAVE")

	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], formatPCM)
	binary.LittleEndian.PutUint16(header[22:24], numChannels)
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], byteRate)
	binary.LittleEndian.PutUint16(header[32:34], blockAlign)
	binary.LittleEndian.PutUint16(header[34:36], bitsPerSample)

	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], dataSize)

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("%w", err)
	}

	const chunkSize = 8192
	buf := make([]byte, min(len(samples), chunkSize)*2)

	for i := 0; i < len(samples); i += chunkSize {
		chunk := samples[i:min(i+chunkSize, len(samples))]
		buf = buf[:len(chunk)*2]

		for j, s := range chunk {
			binary.LittleEndian.PutUint16(buf[j*2:], uint16(s))
		}

		if _, err := w.Write(buf); err != nil {
			return fmt.Errorf("%w", err)
		}
	}

	return nil
}

// WriteFloat32 converts interleaved float samples to 16-bit PCM and writes
// them with WriteWAV16.
func WriteFloat32(w io.Writer, format audio.Format, samples []float32) error {
	pcm := make([]int16, len(samples))
	for i, v := range samples {
		pcm[i] = utils.Float32ToInt16(v)
	}

	return WriteWAV16(w, format.SampleRate, format.Channels, pcm)
}

// Encode writes samples through the go-audio encoder at bitDepth. The
// encoder patches the header sizes on Close, so ws must be seekable.
func Encode(ws io.WriteSeeker, format audio.Format, bitDepth int, samples []float32) error {
	if !format.Valid() {
		return fmt.Errorf("%v: %w", format, audio.ErrInvalidFormat)
	}

	var scale float64
	switch bitDepth {
	case 16:
		scale = 32767
	case 24:
		scale = 8388607
	case 32:
		scale = 2147483647
	default:
		return fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, bitDepth)
	}

	data := make([]int, len(samples))
	for i, v := range samples {
		data[i] = int(float64(utils.Clamp(v)) * scale)
	}

	enc := wav.NewEncoder(ws, format.SampleRate, bitDepth, format.Channels, formatPCM)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: format.Channels, SampleRate: format.SampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}

	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("%w", err)
	}

	return enc.Close()
}
