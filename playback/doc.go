// SPDX-License-Identifier: EPL-2.0

// Package playback implements tracks and samples: decoded audio played
// through a mixer with seek, restart, looping and reversed playback driven
// by the adjustment graph.
//
// Every state change runs on the audio thread. Synchronous methods block
// until the change was applied; the Async variants return a channel that
// resolves once it was. Called from the audio thread, both run inline.
package playback
