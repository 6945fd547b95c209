// SPDX-License-Identifier: EPL-2.0

package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/ik5/audrt/audio"
)

const (
	decodeChunkFrames = 4096
	// decodeIdleWait is the pause after a source had nothing to give.
	decodeIdleWait = 2 * time.Millisecond
)

// receiver accepts decoded audio as it becomes available.
type receiver interface {
	ReceiveData(samples []float32, info audio.Info, done bool)
	Fail(err error)
}

// streamDecode decodes rc chunk by chunk into r until the data ends, ctx
// is cancelled or decoding fails. It owns rc.
func streamDecode(ctx context.Context, decoders *audio.Registry, name string, rc io.ReadCloser, r receiver, log zerolog.Logger) {
	defer func() {
		if err := rc.Close(); err != nil {
			log.Debug().Err(err).Str("name", name).Msg("close stream")
		}
	}()

	src, err := decoders.Decode(name, rc)
	if err != nil {
		r.Fail(err)
		return
	}

	defer func() {
		if err := src.Close(); err != nil {
			log.Debug().Err(err).Str("name", name).Msg("close decoder")
		}
	}()

	info := audio.InfoOf(src)
	buf := make([]float32, decodeChunkFrames*max(info.Channels, 1))

	for {
		if ctx.Err() != nil {
			return
		}

		n, err := src.ReadSamples(buf)
		done := errors.Is(err, io.EOF)

		if err != nil && !done {
			r.Fail(fmt.Errorf("read %s: %w", name, err))
			return
		}

		if n > 0 || done {
			r.ReceiveData(buf[:n], info, done)
		}

		if done {
			log.Debug().Str("name", name).Msg("decoded")
			return
		}

		if n == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(decodeIdleWait):
			}
		}
	}
}

// decodeAll reads a whole stream into memory.
func decodeAll(decoders *audio.Registry, name string, rc io.ReadCloser) ([]float32, audio.Info, error) {
	defer rc.Close()

	src, err := decoders.Decode(name, rc)
	if err != nil {
		return nil, audio.Info{}, err
	}
	defer src.Close()

	info := audio.InfoOf(src)

	samples, err := audio.ReadAll(src, decodeChunkFrames*max(info.Channels, 1))
	if err != nil {
		return nil, info, fmt.Errorf("read %s: %w", name, err)
	}

	return samples, info, nil
}
