package format

import "errors"

var (
	ErrUnknownFlavor = errors.New("unknown output flavor")
	ErrUnknownType   = errors.New("value has no renderable type")
)
