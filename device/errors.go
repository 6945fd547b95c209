// SPDX-License-Identifier: EPL-2.0

package device

import "errors"

var (
	// ErrDeviceUnavailable is returned when the requested output device
	// cannot be found or opened.
	ErrDeviceUnavailable = errors.New("device unavailable")
	// ErrNotInitialized is returned by backend calls made before Init or
	// after Terminate.
	ErrNotInitialized = errors.New("backend not initialized")
	// ErrUnknownBackend is returned by Select for unregistered names.
	ErrUnknownBackend = errors.New("unknown backend")
	// ErrInvalidFormat is returned by OpenDevice for non-positive formats.
	ErrInvalidFormat = errors.New("invalid device format")
)
