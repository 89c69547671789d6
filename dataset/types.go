package dataset

import (
	"fmt"
	"strings"
)

// Type of a stored attribute value.
type Type string

// These valid types as constants. The periodic type keeps the spelling used by the stored
// datasets.
const (
	Scalar             Type = "scalar"
	Descriptor         Type = "descriptor"
	Timeseries         Type = "timeseries"
	PeriodicTimeseries Type = "periodic timeseries"
	Array              Type = "array"
)

// ParseType converts a stored type name into a Type.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "scalar":
		return Scalar, nil
	case "descriptor":
		return Descriptor, nil
	case "timeseries":
		return Timeseries, nil
	case "periodic timeseries", "periodic_timeseries", "periodic-timeseries":
		return PeriodicTimeseries, nil
	case "array":
		return Array, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
}

// IsTimeVarying reports whether values of the type are keyed by date.
func (t Type) IsTimeVarying() bool {
	return t == Timeseries || t == PeriodicTimeseries
}
