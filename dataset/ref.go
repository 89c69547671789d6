package dataset

import (
	"fmt"
	"strconv"
	"strings"
)

// ResourceRef identifies one attribute of a network resource. NetworkID is 0 when the key
// is not network qualified.
type ResourceRef struct {
	NetworkID    int64
	ResourceType string
	ResourceID   int64
	AttrID       int64
}

// ParseKey parses resource_type/resource_id/attr_id or
// network_id/resource_type/resource_id/attr_id.
func ParseKey(key string) (ResourceRef, error) {
	parts := strings.Split(strings.Trim(strings.TrimSpace(key), "/"), "/")
	var ref ResourceRef
	switch len(parts) {
	case 3:
	case 4:
		id, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return ResourceRef{}, fmt.Errorf("%w: %q: network id: %w", ErrInvalidKey, key, err)
		}
		ref.NetworkID = id
		parts = parts[1:]
	default:
		return ResourceRef{}, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	ref.ResourceType = strings.ToLower(parts[0])
	if ref.ResourceType == "" {
		return ResourceRef{}, fmt.Errorf("%w: %q: empty resource type", ErrInvalidKey, key)
	}
	var err error
	if ref.ResourceID, err = strconv.ParseInt(parts[1], 10, 64); err != nil {
		return ResourceRef{}, fmt.Errorf("%w: %q: resource id: %w", ErrInvalidKey, key, err)
	}
	if ref.AttrID, err = strconv.ParseInt(parts[2], 10, 64); err != nil {
		return ResourceRef{}, fmt.Errorf("%w: %q: attribute id: %w", ErrInvalidKey, key, err)
	}
	return ref, nil
}

// Key is the canonical form of the reference.
func (r ResourceRef) Key() string {
	if r.NetworkID != 0 {
		return fmt.Sprintf("%d/%s/%d/%d", r.NetworkID, r.ResourceType, r.ResourceID, r.AttrID)
	}
	return fmt.Sprintf("%s/%d/%d", r.ResourceType, r.ResourceID, r.AttrID)
}

func (r ResourceRef) String() string {
	return r.Key()
}
