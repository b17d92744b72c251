// Package detect is the boundary to the external leaf-disease detector.
// The detector itself (model, weights, serving) lives outside this process;
// this package only normalizes its output.
package detect

import (
	"context"
	"image"
)

// LabelUnknown is the sentinel used when a detection pass returns no results.
const LabelUnknown = "unknown"

/// Result is a single detection: a label with its confidence in [0,1] and
// the bounding box in pixel coordinates (x1, y1, x2, y2) of the frame the
// detector was given.
type Result struct {
	Label      string     `json:"label"`
	Confidence float64    `json:"confidence"`
	Box        [4]float64 `json:"box,omitempty"`
}

// Detector classifies one frame. Recoverable input problems (malformed
// frame, undecodable response) yield an empty result set, not an error.
type Detector interface {
	// Detect returns zero or more results for the frame, ordered by the
	// detector's own ranking (first result is the primary label).
	Detect(ctx context.Context, frame image.Image) ([]Result, error)

	// Available reports whether the underlying detector was reachable at
	// startup. Unavailability is a configuration-time condition, not a
	// per-call error.
	Available() bool
}

// TopLabel returns the primary label of a result set, or LabelUnknown
// when the set is empty.
func TopLabel(results []Result) string {
	if len(results) == 0 {
		return LabelUnknown
	}
	return results[0].Label
}
