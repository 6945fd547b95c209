// SPDX-License-Identifier: EPL-2.0

package audio

import "errors"

var (
	ErrInvalidDstSize = errors.New("dst size must be multiple of channels")
	ErrUnknownFormat  = errors.New("no decoder registered for format")
	ErrTempoTooLow    = errors.New("tempo is below the supported minimum")
	ErrInvalidFormat  = errors.New("invalid sample rate or channel count")
)
