// SPDX-License-Identifier: EPL-2.0

package adjust

import "fmt"

// Property identifies one of the four adjustable values.
type Property int

const (
	Volume Property = iota
	Balance
	Frequency
	Tempo

	propertyCount
)

// Properties lists every property in order.
var Properties = [propertyCount]Property{Volume, Balance, Frequency, Tempo}

func (p Property) String() string {
	switch p {
	case Volume:
		return "volume"
	case Balance:
		return "balance"
	case Frequency:
		return "frequency"
	case Tempo:
		return "tempo"
	default:
		return fmt.Sprintf("property(%d)", int(p))
	}
}

// Valid reports whether p names a known property.
func (p Property) Valid() bool { return p >= 0 && p < propertyCount }

// Neutral is the value that leaves an aggregate unchanged.
func (p Property) Neutral() float64 {
	if p == Balance {
		return 0
	}

	return 1
}

// Multiplicative reports whether contributions multiply (otherwise they add).
func (p Property) Multiplicative() bool { return p != Balance }

func (p Property) combine(acc, v float64) float64 {
	if p.Multiplicative() {
		return acc * v
	}

	return acc + v
}

func (p Property) finish(v float64) float64 {
	if p == Balance {
		return min(max(v, -1), 1)
	}

	return v
}
