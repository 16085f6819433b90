package native

import "errors"

// ErrUnavailable is returned by Open when the native library is not linked
// into this build.
var ErrUnavailable = errors.New("native engine not available: build with cgo and -tags privid")
