package tabular

import "errors"

var (
	ErrEmptyTable    = errors.New("table has no rows")
	ErrInvalidTable  = errors.New("invalid table")
	ErrInvalidOption = errors.New("invalid read option")
	ErrNotFound      = errors.New("table source not found")
	ErrNoSource      = errors.New("no table source configured")
)
