// SPDX-License-Identifier: EPL-2.0

// Package vorbis decodes Ogg Vorbis streams through
// github.com/jfreymuth/oggvorbis.
//
// Any channel count and sample rate are supported. The nominal bitrate
// from the identification header is always reported; the length is known
// only when the input is an io.Seeker.
package vorbis
