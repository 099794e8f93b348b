package validation

import (
	"encoding/json"
	"time"
)

// Summary aggregates the run's check outcomes.
type Summary struct {
	Total       int       `json:"total"`
	Passed      int       `json:"passed"`
	Failed      int       `json:"failed"`
	Warnings    int       `json:"warnings"`
	SuccessRate float64   `json:"success_rate"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Report is the JSON artifact written next to the redacted video.
type Report struct {
	Summary         Summary  `json:"summary"`
	Results         []Result `json:"results"`
	Recommendations []string `json:"recommendations"`
}

var remediation = map[string]string{
	StageFrameExtraction:       "review frame extraction parameters; verify sample rate and max frame settings",
	StageDetection:             "refine the detector prompt or raise the detection confidence threshold",
	StageCoordinateConversion:  "check the coordinate conversion logic; verify scale factor computation",
	StageTrackingInterpolation: "increase keyframe density or revisit the interpolation policy",
	StageMosaicApplication:     "check the mosaic implementation; verify region coordinates and strength",
	StageEndToEndCoverage:      "run a full end-to-end pass and inspect stage consistency",
}

// recommendation order matches the pipeline stage order.
var stageOrder = []string{
	StageFrameExtraction,
	StageDetection,
	StageCoordinateConversion,
	StageTrackingInterpolation,
	StageMosaicApplication,
	StageEndToEndCoverage,
}

// Report assembles the summary, all accumulated results and remediation
// suggestions for every failed stage.
func (v *Validator) Report() Report {
	results := v.Results()

	summary := Summary{Total: len(results), GeneratedAt: time.Now().UTC()}
	failedStages := map[string]bool{}
	for _, r := range results {
		switch r.Status {
		case StatusPass:
			summary.Passed++
		case StatusFail:
			summary.Failed++
			failedStages[r.Stage] = true
		case StatusWarning:
			summary.Warnings++
		}
	}
	if summary.Total > 0 {
		summary.SuccessRate = float64(summary.Passed) / float64(summary.Total)
	}

	recommendations := make([]string, 0, len(failedStages))
	for _, stage := range stageOrder {
		if failedStages[stage] {
			recommendations = append(recommendations, remediation[stage])
		}
	}

	return Report{
		Summary:         summary,
		Results:         results,
		Recommendations: recommendations,
	}
}

// ReportJSON renders the report as indented JSON.
func (v *Validator) ReportJSON() ([]byte, error) {
	return json.MarshalIndent(v.Report(), "", "  ")
}
