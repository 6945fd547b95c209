// SPDX-License-Identifier: EPL-2.0

// Package utils holds scalar helpers shared by the processing stages:
// interpolation, PCM conversion and gain math.
package utils
