package timestep

import "errors"

var (
	ErrMissingSpan = errors.New("calendar span is missing")
	ErrUnknownSpan = errors.New("unknown calendar span")
	ErrInvalidDate = errors.New("invalid date")
	ErrOutOfRange  = errors.New("timestep out of calendar range")
)
