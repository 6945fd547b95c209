// SPDX-License-Identifier: EPL-2.0

// Package scheduler serialises work onto the audio thread.
//
// Every component owns a Scheduler. Other goroutines enqueue actions which
// the audio thread drains once per frame with RunPendingOnce. Code already
// running on the audio thread carries a context marked by OnAudioThread and
// executes actions inline instead of queueing them.
package scheduler
