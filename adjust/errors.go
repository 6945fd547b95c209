// SPDX-License-Identifier: EPL-2.0

package adjust

import "errors"

var (
	// ErrDuplicateAdjustment is returned when a source is bound twice to the same property.
	ErrDuplicateAdjustment = errors.New("adjustment source already bound")

	// ErrBindingCycle is returned when binding would make a node its own ancestor.
	ErrBindingCycle = errors.New("adjustment binding would create a cycle")

	// ErrReleased is returned by mutations on released adjustments.
	ErrReleased = errors.New("adjustments released")

	// ErrUnknownProperty is returned for out of range properties.
	ErrUnknownProperty = errors.New("unknown adjustable property")
)
