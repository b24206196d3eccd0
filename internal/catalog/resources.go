package catalog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidResources is returned when a resource list cannot be parsed.
var ErrInvalidResources = errors.New("catalog: invalid resource list")

// DefaultResourceList is the facility's lab configuration.
const DefaultResourceList = "lab1:10,lab2:10,lab3:12"

// Resource is a bookable lab. Capacity is declared for display only; a slot
// holds one reservation regardless of it.
type Resource struct {
	ID       string `json:"id"`
	Capacity int    `json:"capacity"`
}

// Resources is an ordered, immutable resource catalog.
type Resources struct {
	items []Resource
	byID  map[string]Resource
}

// ParseResources reads "id:capacity" pairs separated by commas. The order of
// the input is preserved.
func ParseResources(value string) (*Resources, error) {
	parts := strings.Split(value, ",")
	items := make([]Resource, 0, len(parts))
	byID := make(map[string]Resource, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, capacityText, found := strings.Cut(part, ":")
		id = strings.TrimSpace(id)
		if !found || id == "" {
			return nil, fmt.Errorf("%w: entry %q must look like id:capacity", ErrInvalidResources, part)
		}
		capacity, err := strconv.Atoi(strings.TrimSpace(capacityText))
		if err != nil || capacity <= 0 {
			return nil, fmt.Errorf("%w: capacity for %q must be a positive integer", ErrInvalidResources, id)
		}
		if _, dup := byID[id]; dup {
			return nil, fmt.Errorf("%w: duplicate resource %q", ErrInvalidResources, id)
		}
		res := Resource{ID: id, Capacity: capacity}
		items = append(items, res)
		byID[id] = res
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no resources configured", ErrInvalidResources)
	}
	return &Resources{items: items, byID: byID}, nil
}

// DefaultResources returns the built-in lab list.
func DefaultResources() *Resources {
	res, err := ParseResources(DefaultResourceList)
	if err != nil {
		panic(err)
	}
	return res
}

// List returns the resources in configuration order.
func (r *Resources) List() []Resource {
	if r == nil {
		return nil
	}
	out := make([]Resource, len(r.items))
	copy(out, r.items)
	return out
}

// Lookup returns the resource with the given id.
func (r *Resources) Lookup(id string) (Resource, bool) {
	if r == nil {
		return Resource{}, false
	}
	res, ok := r.byID[id]
	return res, ok
}

// IDs returns the resource identifiers in configuration order.
func (r *Resources) IDs() []string {
	if r == nil {
		return nil
	}
	ids := make([]string, len(r.items))
	for i, res := range r.items {
		ids[i] = res.ID
	}
	return ids
}
