// SPDX-License-Identifier: EPL-2.0

package utils

import "math"

// PanGains returns the left and right multipliers for a volume and a
// balance in [-1, 1]. Panning attenuates the opposite side linearly and
// never boosts either side.
func PanGains(volume, balance float64) (left, right float32) {
	balance = min(max(balance, -1), 1)

	l := volume * (1 - max(balance, 0))
	r := volume * (1 + min(balance, 0))

	return float32(l), float32(r)
}

// DBToGain converts decibels to a linear amplitude factor.
func DBToGain(db float64) float64 {
	return math.Pow(10, db/20)
}

// GainToDB converts a linear amplitude factor to decibels.
func GainToDB(gain float64) float64 {
	if gain <= 0 {
		return math.Inf(-1)
	}

	return 20 * math.Log10(gain)
}
