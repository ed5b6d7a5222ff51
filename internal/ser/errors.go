package ser

import "errors"

var (
	// ErrConfig marks malformed run parameters or a malformed connectome
	// shape. It is reported before any step runs.
	ErrConfig = errors.New("invalid configuration")

	// ErrNumeric marks connectome weights that cannot be used as coupling
	// strengths (NaN, infinite or negative).
	ErrNumeric = errors.New("invalid connectome weights")
)
