// SPDX-License-Identifier: EPL-2.0

package audrt

import "errors"

var (
	// ErrStarted is returned by operations that need a stopped manager.
	ErrStarted = errors.New("manager is running")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("manager is closed")
)
