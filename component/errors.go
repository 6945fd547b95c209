// SPDX-License-Identifier: EPL-2.0

package component

import "errors"

// ErrDisposed is returned by any operation on a disposed component.
var ErrDisposed = errors.New("component is disposed")
