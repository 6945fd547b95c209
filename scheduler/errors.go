// SPDX-License-Identifier: EPL-2.0

package scheduler

import "errors"

var (
	// ErrTimeout is returned by synchronous waits that exceeded their deadline.
	ErrTimeout = errors.New("timed out waiting for the audio thread")

	// ErrPanic wraps a panic recovered from a scheduled action.
	ErrPanic = errors.New("scheduled action panicked")

	// ErrAlreadyRunning is returned when starting a thread twice.
	ErrAlreadyRunning = errors.New("thread is already running")
)
