package cmbtable

import "errors"

// ErrInvalidArgument is returned when a table is constructed or updated with
// arguments that violate its shape, e.g. a key of the wrong length.
var ErrInvalidArgument = errors.New("invalid argument")
