// SPDX-License-Identifier: EPL-2.0

package playback

import (
	"errors"

	"github.com/ik5/audrt/audio"
	"github.com/ik5/audrt/component"
)

var (
	// ErrTempoTooLow rejects tempo aggregates below audio.MinimumTempo.
	ErrTempoTooLow = audio.ErrTempoTooLow
	// ErrDisposed is returned by operations on disposed tracks and samples.
	ErrDisposed = component.ErrDisposed
	// ErrDecode wraps failures reported by the decoding goroutine.
	ErrDecode = errors.New("decode failed")
)
