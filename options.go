// SPDX-License-Identifier: EPL-2.0

package audrt

import (
	"github.com/rs/zerolog"

	"github.com/ik5/audrt/adjust"
	"github.com/ik5/audrt/audio"
	"github.com/ik5/audrt/formats/aiff"
	"github.com/ik5/audrt/formats/mp3"
	"github.com/ik5/audrt/formats/vorbis"
	"github.com/ik5/audrt/formats/wav"
)

type options struct {
	log      zerolog.Logger
	registry *adjust.Registry
	decoders *audio.Registry
}

// Option customises New.
type Option func(*options)

// WithLogger sets the logger shared by every component.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithAdjustRegistry shares an adjustment registry with other managers.
func WithAdjustRegistry(reg *adjust.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithDecoders replaces the default decoder registry.
func WithDecoders(reg *audio.Registry) Option {
	return func(o *options) { o.decoders = reg }
}

// DefaultDecoders registers every bundled format by file extension.
func DefaultDecoders() *audio.Registry {
	reg := audio.NewRegistry()
	reg.Register("wav", wav.Decoder{})
	reg.Register("mp3", mp3.Decoder{})
	reg.Register("ogg", vorbis.Decoder{})
	reg.Register("aiff", aiff.Decoder{})
	reg.Register("aif", aiff.Decoder{})

	return reg
}
