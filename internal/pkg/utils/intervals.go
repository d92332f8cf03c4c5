package utils

// IntervalPreset is one selectable repeat interval.
type IntervalPreset struct {
	Seconds uint64 `json:"seconds"`
	Label   string `json:"label"`
}

var intervalPresets = []IntervalPreset{
	{Seconds: 0, Label: "One-time (no repeat)"},
	{Seconds: 60, Label: "Every minute"},
	{Seconds: 3600, Label: "Every hour"},
	{Seconds: 86400, Label: "Every day"},
	{Seconds: 604800, Label: "Every week"},
	{Seconds: 2592000, Label: "Every month (30 days)"},
}

// IntervalPresets returns the selectable intervals, shortest first.
func IntervalPresets() []IntervalPreset {
	out := make([]IntervalPreset, len(intervalPresets))
	copy(out, intervalPresets)
	return out
}

// IsOneTime reports whether a schedule with this interval executes once.
func IsOneTime(intervalSeconds uint64) bool {
	return intervalSeconds == 0
}
