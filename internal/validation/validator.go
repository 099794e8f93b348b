package validation

import (
	"fmt"
	"image"
	"os"
	"strings"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/vidshield/redaction-processing-service/internal/domain/entity"
	"github.com/vidshield/redaction-processing-service/internal/video"
)

const (
	// detectionCoverageFloor is the minimum fraction of sampled frames
	// that must carry at least one detection.
	detectionCoverageFloor = 0.5
	// maxDetectionsPerFrame caps how many detections per sampled frame
	// are plausible before the detector is suspected of noise.
	maxDetectionsPerFrame = 3
	// confidenceFloor is the minimum acceptable mean confidence.
	confidenceFloor = 0.70
	// lowConfidenceLevel and lowConfidenceShare flag a detector that is
	// mostly guessing.
	lowConfidenceLevel = 0.5
	lowConfidenceShare = 0.3
	// largeRegionShare / tinyRegionShare bound plausible region areas
	// relative to the frame.
	largeRegionShare = 0.25
	tinyRegionShare  = 0.001
	tinyRegionQuota  = 0.2
	// scaleFactorTolerance is the allowed X/Y scale-factor mismatch when
	// round-tripping video coordinates into sampled-image space.
	scaleFactorTolerance = 0.1
	// interpolationCoverageFloor is the minimum fraction of test frames
	// that must resolve to a non-empty region list.
	interpolationCoverageFloor = 0.9
	// keyframeGapShare caps the largest keyframe gap relative to the
	// video length.
	keyframeGapShare = 0.3
	// maxCoverageGapRun is the longest tolerated contiguous run of
	// uncovered test frames.
	maxCoverageGapRun = 5
	// visibleDiffThreshold is the mean pixel difference above which a
	// region or frame is considered visibly changed.
	visibleDiffThreshold = 1.0
	// coverageChangeFloor / coverageChangeCeil bound the plausible share
	// of output frames that differ from the source.
	coverageChangeFloor = 0.1
	coverageChangeCeil  = 0.8
	// gapDeviationShare is the allowed deviation of frame-id gaps from
	// their mean.
	gapDeviationShare = 0.5
	// defaultCoverageSamples is how many frames the end-to-end check
	// compares when the caller does not choose them.
	defaultCoverageSamples = 20
)

// Validator accumulates check results across a run. It is advisory only:
// pipeline defects become fail/warning results, never errors.
type Validator struct {
	logger  *zap.Logger
	results []Result
}

func NewValidator(logger *zap.Logger) *Validator {
	return &Validator{logger: logger}
}

// Results returns the accumulated results in check order.
func (v *Validator) Results() []Result {
	out := make([]Result, len(v.results))
	copy(out, v.results)
	return out
}

func (v *Validator) record(stage string, issues []string, okMessage string, details map[string]any) Result {
	status := StatusPass
	message := okMessage
	if len(issues) > 0 {
		status = StatusFail
		message = strings.Join(issues, "; ")
	}
	if details == nil {
		details = map[string]any{}
	}
	details["issues"] = issues

	result := newResult(stage, status, message, details)
	v.results = append(v.results, result)
	v.logger.Info("validation check",
		zap.String("stage", stage),
		zap.String("status", string(status)),
		zap.String("message", message),
	)
	return result
}

func (v *Validator) recordFailure(stage, message string) Result {
	result := newResult(stage, StatusFail, message, nil)
	v.results = append(v.results, result)
	v.logger.Warn("validation check could not run",
		zap.String("stage", stage),
		zap.String("message", message),
	)
	return result
}

// ValidateFrameExtraction checks the sampler's output against the probed
// video: counts, id and timestamp ranges, artifact existence and gap
// uniformity. expectedCount of 0 skips the count check.
func (v *Validator) ValidateFrameExtraction(info entity.VideoInfo, frames []entity.FrameSample, expectedCount int) Result {
	if len(frames) == 0 {
		return v.recordFailure(StageFrameExtraction, "no frames extracted")
	}

	var issues []string

	if expectedCount > 0 && len(frames) != expectedCount {
		issues = append(issues, fmt.Sprintf("frame count mismatch: expected %d, got %d", expectedCount, len(frames)))
	}

	minID, maxID := frames[0].FrameID, frames[0].FrameID
	minTS, maxTS := frames[0].Timestamp, frames[0].Timestamp
	for _, f := range frames {
		if f.FrameID < minID {
			minID = f.FrameID
		}
		if f.FrameID > maxID {
			maxID = f.FrameID
		}
		if f.Timestamp < minTS {
			minTS = f.Timestamp
		}
		if f.Timestamp > maxTS {
			maxTS = f.Timestamp
		}
	}
	if minID < 1 || maxID > info.FrameCount {
		issues = append(issues, fmt.Sprintf("frame ids out of range: %d-%d, video has %d frames", minID, maxID, info.FrameCount))
	}
	if minTS < 0 || maxTS > info.Duration {
		issues = append(issues, fmt.Sprintf("timestamps out of range: 0-%.2fs", info.Duration))
	}

	missing := 0
	for _, f := range frames {
		if _, err := os.Stat(f.ImagePath); err != nil {
			missing++
		}
	}
	if missing > 0 {
		issues = append(issues, fmt.Sprintf("missing frame artifacts: %d", missing))
	}

	if len(frames) > 1 {
		var gaps []float64
		var sum float64
		for i := 1; i < len(frames); i++ {
			gap := float64(frames[i].FrameID - frames[i-1].FrameID)
			gaps = append(gaps, gap)
			sum += gap
		}
		avg := sum / float64(len(gaps))
		var maxDeviation float64
		for _, gap := range gaps {
			if d := abs(gap - avg); d > maxDeviation {
				maxDeviation = d
			}
		}
		if maxDeviation > avg*gapDeviationShare {
			issues = append(issues, fmt.Sprintf("uneven frame distribution: mean gap %.1f, max deviation %.1f", avg, maxDeviation))
		}
	}

	details := map[string]any{
		"video_info": map[string]any{
			"total_frames": info.FrameCount,
			"fps":          info.FPS,
			"duration":     info.Duration,
		},
		"extraction_info": map[string]any{
			"extracted_count": len(frames),
			"frame_id_range":  fmt.Sprintf("%d-%d", minID, maxID),
			"timestamp_range": fmt.Sprintf("%.2f-%.2fs", minTS, maxTS),
		},
	}
	return v.record(StageFrameExtraction, issues, "frame extraction checks passed", details)
}

// ValidateDetections checks the externally supplied detections for count,
// coverage, bounds, confidence distribution and region-size plausibility.
func (v *Validator) ValidateDetections(frames []entity.FrameSample, detections []entity.DetectionRegion, info entity.VideoInfo) Result {
	var issues []string

	if len(detections) == 0 {
		issues = append(issues, "no detections supplied")
	} else if len(detections) > len(frames)*maxDetectionsPerFrame {
		issues = append(issues, fmt.Sprintf("too many detections: %d across %d frames", len(detections), len(frames)))
	}

	detectedFrames := map[int]struct{}{}
	for _, d := range detections {
		detectedFrames[d.FrameID] = struct{}{}
	}
	coverageRate := 0.0
	if len(frames) > 0 {
		coverageRate = float64(len(detectedFrames)) / float64(len(frames))
	}
	if coverageRate < detectionCoverageFloor {
		issues = append(issues, fmt.Sprintf("frame coverage too low: %.1f%%", coverageRate*100))
	}

	outOfBounds := 0
	for _, d := range detections {
		b := d.BBox
		if b.X < 0 || b.Y < 0 || b.X+b.W > info.Width || b.Y+b.H > info.Height {
			outOfBounds++
		}
	}
	if outOfBounds > 0 {
		issues = append(issues, fmt.Sprintf("bboxes outside %dx%d video bounds: %d", info.Width, info.Height, outOfBounds))
	}

	meanConfidence := 0.0
	if len(detections) > 0 {
		var sum float64
		lowCount := 0
		for _, d := range detections {
			sum += d.Confidence
			if d.Confidence < lowConfidenceLevel {
				lowCount++
			}
		}
		meanConfidence = sum / float64(len(detections))
		if meanConfidence < confidenceFloor {
			issues = append(issues, fmt.Sprintf("mean confidence too low: %.2f", meanConfidence))
		}
		if float64(lowCount) > float64(len(detections))*lowConfidenceShare {
			issues = append(issues, fmt.Sprintf("too many low-confidence detections: %d/%d", lowCount, len(detections)))
		}
	}

	if frameArea := info.Width * info.Height; frameArea > 0 && len(detections) > 0 {
		large, tiny := 0, 0
		for _, d := range detections {
			share := float64(d.BBox.Area()) / float64(frameArea)
			if share > largeRegionShare {
				large++
			} else if share < tinyRegionShare {
				tiny++
			}
		}
		if large > 0 {
			issues = append(issues, fmt.Sprintf("oversized regions: %d", large))
		}
		if float64(tiny) > float64(len(detections))*tinyRegionQuota {
			issues = append(issues, fmt.Sprintf("undersized regions: %d", tiny))
		}
	}

	details := map[string]any{
		"detection_stats": map[string]any{
			"total_detections":      len(detections),
			"frames_with_detection": len(detectedFrames),
			"coverage_rate":         coverageRate,
			"mean_confidence":       meanConfidence,
		},
	}
	return v.record(StageDetection, issues, "detection checks passed", details)
}

// ValidateCoordinateConversion verifies the scale factors between video
// space and sampled-image space, and round-trips a sample of detections
// back into image space.
func (v *Validator) ValidateCoordinateConversion(detections []entity.DetectionRegion, info entity.VideoInfo, frames []entity.FrameSample) Result {
	if len(frames) == 0 {
		return v.recordFailure(StageCoordinateConversion, "no sample frame available for coordinate check")
	}

	img := gocv.IMRead(frames[0].ImagePath, gocv.IMReadColor)
	defer img.Close()
	if img.Empty() {
		return v.recordFailure(StageCoordinateConversion,
			fmt.Sprintf("cannot read sample frame: %s", frames[0].ImagePath))
	}

	imgWidth, imgHeight := img.Cols(), img.Rows()
	scaleX := float64(info.Width) / float64(imgWidth)
	scaleY := float64(info.Height) / float64(imgHeight)

	var issues []string
	if abs(scaleX-scaleY) > scaleFactorTolerance {
		issues = append(issues, fmt.Sprintf("scale factors diverge: X=%.2f, Y=%.2f", scaleX, scaleY))
	}

	roundTripErrors := 0
	sample := detections
	if len(sample) > 5 {
		sample = sample[:5]
	}
	for _, d := range sample {
		imgX := float64(d.BBox.X) / scaleX
		imgY := float64(d.BBox.Y) / scaleY
		imgW := float64(d.BBox.W) / scaleX
		imgH := float64(d.BBox.H) / scaleY
		if imgX < 0 || imgY < 0 || imgX+imgW > float64(imgWidth) || imgY+imgH > float64(imgHeight) {
			roundTripErrors++
		}
	}
	if roundTripErrors > 0 {
		issues = append(issues, fmt.Sprintf("coordinate round-trip outside image bounds: %d detections", roundTripErrors))
	}

	details := map[string]any{
		"video_resolution": fmt.Sprintf("%dx%d", info.Width, info.Height),
		"frame_resolution": fmt.Sprintf("%dx%d", imgWidth, imgHeight),
		"scale_factors":    fmt.Sprintf("X=%.2f, Y=%.2f", scaleX, scaleY),
	}
	return v.record(StageCoordinateConversion, issues, "coordinate conversion checks passed", details)
}

// ValidateTrackingInterpolation checks keyframe density and exercises the
// resolver over testFrameIDs: overall coverage must reach 90% and no
// contiguous run of uncovered frames may exceed 5.
func (v *Validator) ValidateTrackingInterpolation(regions []entity.DetectionRegion, testFrameIDs []int, resolve func(int) []entity.DetectionRegion, totalFrames int) Result {
	var issues []string

	table := entity.BuildRegionTable(regions)
	keys := table.Keys()

	if len(keys) < 2 {
		issues = append(issues, "too few keyframes for meaningful interpolation")
	} else {
		maxGap := 0
		for i := 1; i < len(keys); i++ {
			if gap := keys[i] - keys[i-1]; gap > maxGap {
				maxGap = gap
			}
		}
		if float64(maxGap) > float64(totalFrames)*keyframeGapShare {
			issues = append(issues, fmt.Sprintf("keyframe gap too large: %d frames", maxGap))
		}
	}

	covered := 0
	var gaps []int
	for _, id := range testFrameIDs {
		if len(resolve(id)) > 0 {
			covered++
		} else {
			gaps = append(gaps, id)
		}
	}
	coverageRate := 0.0
	if len(testFrameIDs) > 0 {
		coverageRate = float64(covered) / float64(len(testFrameIDs))
	}
	if coverageRate < interpolationCoverageFloor {
		issues = append(issues, fmt.Sprintf("interpolation coverage too low: %.1f%%", coverageRate*100))
	}

	if longRuns := countLongRuns(gaps, maxCoverageGapRun); longRuns > 0 {
		issues = append(issues, fmt.Sprintf("large coverage gaps: %d runs longer than %d frames", longRuns, maxCoverageGapRun))
	}

	details := map[string]any{
		"keyframe_stats": map[string]any{
			"total_keyframes": len(keys),
		},
		"interpolation_stats": map[string]any{
			"test_frames":   len(testFrameIDs),
			"coverage_rate": coverageRate,
			"coverage_gaps": len(gaps),
		},
	}
	return v.record(StageTrackingInterpolation, issues, "interpolation checks passed", details)
}

// ValidateMosaicApplication applies the mosaic to a copy of one sample
// frame and verifies a visible pixel difference inside every valid region.
func (v *Validator) ValidateMosaicApplication(sampleFramePath string, regions []entity.DetectionRegion, strength int) Result {
	original := gocv.IMRead(sampleFramePath, gocv.IMReadColor)
	defer original.Close()
	if original.Empty() {
		return v.recordFailure(StageMosaicApplication,
			fmt.Sprintf("cannot read sample frame: %s", sampleFramePath))
	}

	frameWidth, frameHeight := original.Cols(), original.Rows()

	var issues []string
	var valid []entity.DetectionRegion
	invalid := 0
	for _, r := range regions {
		b := r.BBox
		if b.X >= 0 && b.Y >= 0 && b.W > 0 && b.H > 0 && b.X+b.W <= frameWidth && b.Y+b.H <= frameHeight {
			valid = append(valid, r)
		} else {
			invalid++
		}
	}
	if invalid > 0 {
		issues = append(issues, fmt.Sprintf("invalid region coordinates: %d", invalid))
	}
	if len(valid) == 0 {
		return v.recordFailure(StageMosaicApplication, "no valid regions to mosaic")
	}

	processed := original.Clone()
	defer processed.Close()
	for _, r := range valid {
		video.MosaicRegion(&processed, r.BBox, strength)
	}

	applied := false
	for _, r := range valid {
		b := r.BBox
		if roiDiff(original, processed, b) > visibleDiffThreshold {
			applied = true
			break
		}
	}
	if !applied {
		issues = append(issues, "mosaic produced no visible change")
	}

	details := map[string]any{
		"frame_info": map[string]any{
			"path":       sampleFramePath,
			"resolution": fmt.Sprintf("%dx%d", frameWidth, frameHeight),
		},
		"regions_info": map[string]any{
			"total_regions":   len(regions),
			"valid_regions":   len(valid),
			"invalid_regions": invalid,
		},
		"mosaic_settings": map[string]any{
			"strength": strength,
			"applied":  applied,
		},
	}
	return v.record(StageMosaicApplication, issues, "mosaic application checks passed", details)
}

// ValidateEndToEndCoverage compares the source and output videos: frame
// counts must match, and on a sampled subset the fraction of frames with
// any visible difference must land between 10% and 80%.
func (v *Validator) ValidateEndToEndCoverage(originalPath, processedPath string, sampleFrames []int) Result {
	originalCap, err := gocv.VideoCaptureFile(originalPath)
	if err != nil {
		return v.recordFailure(StageEndToEndCoverage, fmt.Sprintf("cannot open source video: %s", originalPath))
	}
	defer originalCap.Close()

	processedCap, err := gocv.VideoCaptureFile(processedPath)
	if err != nil {
		return v.recordFailure(StageEndToEndCoverage, fmt.Sprintf("cannot open output video: %s", processedPath))
	}
	defer processedCap.Close()

	var issues []string

	totalFrames := int(originalCap.Get(gocv.VideoCaptureFrameCount))
	processedFrames := int(processedCap.Get(gocv.VideoCaptureFrameCount))
	if totalFrames != processedFrames {
		issues = append(issues, fmt.Sprintf("frame count mismatch: source %d, output %d", totalFrames, processedFrames))
	}

	if sampleFrames == nil {
		sampleFrames = spacedSamples(totalFrames, defaultCoverageSamples)
	}

	origFrame := gocv.NewMat()
	defer origFrame.Close()
	procFrame := gocv.NewMat()
	defer procFrame.Close()

	changed, unchanged := 0, 0
	for _, idx := range sampleFrames {
		originalCap.Set(gocv.VideoCapturePosFrames, float64(idx))
		processedCap.Set(gocv.VideoCapturePosFrames, float64(idx))

		if ok := originalCap.Read(&origFrame); !ok || origFrame.Empty() {
			continue
		}
		if ok := processedCap.Read(&procFrame); !ok || procFrame.Empty() {
			continue
		}

		if meanAbsDiff(origFrame, procFrame) > visibleDiffThreshold {
			changed++
		} else {
			unchanged++
		}
	}

	sampled := changed + unchanged
	changeRate := 0.0
	if sampled > 0 {
		changeRate = float64(changed) / float64(sampled)
	}
	if changeRate < coverageChangeFloor {
		issues = append(issues, fmt.Sprintf("redaction coverage too low: only %.1f%% of frames changed", changeRate*100))
	} else if changeRate > coverageChangeCeil {
		issues = append(issues, fmt.Sprintf("redaction coverage too high: %.1f%% of frames changed, possible false positives", changeRate*100))
	}

	details := map[string]any{
		"video_comparison": map[string]any{
			"original_frames":  totalFrames,
			"processed_frames": processedFrames,
			"sampled_frames":   sampled,
		},
		"coverage_analysis": map[string]any{
			"frames_with_changes":    changed,
			"frames_without_changes": unchanged,
			"change_rate":            changeRate,
		},
	}
	return v.record(StageEndToEndCoverage, issues, "end-to-end coverage checks passed", details)
}

// countLongRuns counts contiguous runs of consecutive ids longer than limit.
func countLongRuns(gaps []int, limit int) int {
	if len(gaps) == 0 {
		return 0
	}
	runs := 0
	runLen := 1
	for i := 1; i <= len(gaps); i++ {
		if i < len(gaps) && gaps[i]-gaps[i-1] == 1 {
			runLen++
			continue
		}
		if runLen > limit {
			runs++
		}
		runLen = 1
	}
	return runs
}

// SampleFrameIDs picks up to count evenly spaced 1-based frame ids in
// [1, totalFrames], a representative set for resolver coverage checks.
func SampleFrameIDs(totalFrames, count int) []int {
	ids := spacedSamples(totalFrames, count)
	for i := range ids {
		ids[i]++
	}
	return ids
}

// spacedSamples picks up to count evenly spaced frame indices in [0, total).
func spacedSamples(total, count int) []int {
	if total <= 0 {
		return nil
	}
	if count > total {
		count = total
	}
	samples := make([]int, 0, count)
	step := float64(total) / float64(count)
	for i := 0; i < count; i++ {
		samples = append(samples, int(float64(i)*step))
	}
	return samples
}

func rectFor(b entity.BBox) image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.W, b.Y+b.H)
}

func roiDiff(original, processed gocv.Mat, b entity.BBox) float64 {
	rect := rectFor(b)
	origROI := original.Region(rect)
	defer origROI.Close()
	procROI := processed.Region(rect)
	defer procROI.Close()
	return meanAbsDiff(origROI, procROI)
}

func meanAbsDiff(a, b gocv.Mat) float64 {
	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(a, b, &diff)
	mean := diff.Mean()
	return (mean.Val1 + mean.Val2 + mean.Val3) / 3
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
