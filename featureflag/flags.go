package featureflag

type Flag string

const (
	// Relocated entries no longer inherit the visibility of the node they
	// left.
	FlagDisableFlickerPrevention Flag = "DISABLE_FLICKER_PREVENTION"

	// Empty branches are kept divided after removals.
	FlagDisableCollapse Flag = "DISABLE_COLLAPSE"

	// The websocket endpoint stops streaming octree changes. Requests are
	// still answered.
	FlagDisableEventStream Flag = "DISABLE_EVENT_STREAM"
)
