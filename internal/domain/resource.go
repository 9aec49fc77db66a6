package domain

import "context"

// ResourceClass identifies the model family that occupies (or wants) the
// shared accelerator slot.
type ResourceClass int

const (
	ResourceNone ResourceClass = iota
	ResourceTextGeneration
	ResourceVision
)

func (c ResourceClass) String() string {
	switch c {
	case ResourceTextGeneration:
		return "text_generation"
	case ResourceVision:
		return "vision"
	default:
		return "none"
	}
}

// ParseResourceClass maps a config key back to a ResourceClass.
func ParseResourceClass(s string) (ResourceClass, bool) {
	switch s {
	case "text_generation", "text", "chat":
		return ResourceTextGeneration, true
	case "vision":
		return ResourceVision, true
	case "none", "":
		return ResourceNone, true
	}
	return ResourceNone, false
}

// ModelLoader moves models in and out of the accelerator. Only the resource
// arbiter calls it.
type ModelLoader interface {
	Load(ctx context.Context, class ResourceClass, name string) error
	Unload(ctx context.Context, class ResourceClass, name string) error
}
