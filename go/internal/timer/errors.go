package timer

import "errors"

// ErrMalformedSnapshot is returned when a stored document carries none of the
// timer fields.
var ErrMalformedSnapshot = errors.New("malformed timer snapshot")
