// Package validation re-derives and checks the invariants the pipeline
// stages are supposed to uphold. It never modifies stage outputs and never
// fails the pipeline: every check appends exactly one Result and the run
// continues through all remaining checks.
package validation

import "time"

// Stage names, one per pipeline check.
const (
	StageFrameExtraction       = "frame_extraction"
	StageDetection             = "llm_detection"
	StageCoordinateConversion  = "coordinate_conversion"
	StageTrackingInterpolation = "tracking_interpolation"
	StageMosaicApplication     = "mosaic_application"
	StageEndToEndCoverage      = "end_to_end_coverage"
)

// Status of a single check.
type Status string

const (
	StatusPass    Status = "pass"
	StatusFail    Status = "fail"
	StatusWarning Status = "warning"
)

// Result is one check's outcome. Results are append-only and never mutated
// after creation.
type Result struct {
	Stage     string         `json:"stage"`
	Status    Status         `json:"status"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

func newResult(stage string, status Status, message string, details map[string]any) Result {
	return Result{
		Stage:     stage,
		Status:    status,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}
}
