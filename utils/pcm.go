// SPDX-License-Identifier: EPL-2.0

package utils

// Float32ToInt16 converts a sample in [-1, 1] to 16 bit PCM, clamping
// values outside the range.
func Float32ToInt16(x float32) int16 {
	v := x * 32768
	switch {
	case v >= 32767:
		return 32767
	case v <= -32768:
		return -32768
	default:
		return int16(v)
	}
}

// Int16ToFloat32 converts 16 bit PCM to [-1, 1).
func Int16ToFloat32(v int16) float32 {
	return float32(v) / 32768
}

// IntToFloat32 converts a signed integer PCM value of the given bit depth
// to [-1, 1). Unknown depths are treated as 16 bit.
func IntToFloat32(v int, bitDepth int) float32 {
	switch bitDepth {
	case 8:
		return float32(v) / 128
	case 24:
		return float32(v) / 8388608
	case 32:
		return float32(float64(v) / 2147483648)
	default:
		return float32(v) / 32768
	}
}

// Clamp limits x to [-1, 1].
func Clamp(x float32) float32 {
	return min(max(x, -1), 1)
}
