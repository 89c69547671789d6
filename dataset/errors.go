package dataset

import "errors"

var (
	ErrUnknownType       = errors.New("unknown dataset type")
	ErrInvalidScalar     = errors.New("invalid scalar")
	ErrInvalidArray      = errors.New("invalid array")
	ErrInvalidTimeseries = errors.New("invalid timeseries")
	ErrMissingFunction   = errors.New("dataset uses a function but the function is empty")
	ErrInvalidMetadata   = errors.New("invalid dataset metadata")
)

// ErrInvalidKey is returned for resource attribute keys that are not of the form
// resource_type/resource_id/attr_id or network_id/resource_type/resource_id/attr_id.
var ErrInvalidKey = errors.New("invalid resource attribute key")
