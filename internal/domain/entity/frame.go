package entity

import "fmt"

// FrameSample is one decoded frame selected for downstream analysis, saved
// as a standalone image artifact under the run's temp directory. Samples
// are immutable once created; downstream stages reference them by value.
type FrameSample struct {
	FrameID   int     `json:"frame_id"`
	Timestamp float64 `json:"timestamp"`
	ImagePath string  `json:"image_path"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
}

// NewFrameSample validates the sample invariants at construction time.
func NewFrameSample(frameID int, timestamp float64, imagePath string, width, height int) (FrameSample, error) {
	if frameID < 1 {
		return FrameSample{}, fmt.Errorf("frame sample: frame_id must be >= 1, got %d", frameID)
	}
	if timestamp < 0 {
		return FrameSample{}, fmt.Errorf("frame sample %d: negative timestamp %f", frameID, timestamp)
	}
	if width <= 0 || height <= 0 {
		return FrameSample{}, fmt.Errorf("frame sample %d: invalid dimensions %dx%d", frameID, width, height)
	}
	if imagePath == "" {
		return FrameSample{}, fmt.Errorf("frame sample %d: empty image path", frameID)
	}
	return FrameSample{
		FrameID:   frameID,
		Timestamp: timestamp,
		ImagePath: imagePath,
		Width:     width,
		Height:    height,
	}, nil
}

// VideoInfo describes the source video as probed from its container.
type VideoInfo struct {
	Path       string  `json:"path"`
	FPS        float64 `json:"fps"`
	FrameCount int     `json:"frame_count"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Duration   float64 `json:"duration"`
	FileSize   int64   `json:"file_size"`
}
