// SPDX-License-Identifier: EPL-2.0

package mixer

import "errors"

var (
	// ErrIndexOutOfRange is returned by effect list operations on a bad index.
	ErrIndexOutOfRange = errors.New("effect index out of range")

	// ErrDefaultInUse is logged when disposing a default mixer still referenced by other mixers.
	ErrDefaultInUse = errors.New("default mixer is still referenced")
)
