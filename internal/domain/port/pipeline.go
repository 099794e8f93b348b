package port

import (
	"context"

	"github.com/vidshield/redaction-processing-service/internal/domain/entity"
)

// SampleOptions bound the frame sampler.
type SampleOptions struct {
	SampleRate  int
	MaxFrames   int
	MotionAware bool
}

// FrameSampler emits a bounded, motion-aware subset of a video's frames as
// image artifacts under OutputDir.
type FrameSampler interface {
	Extract(ctx context.Context, videoPath, outputDir string, opts SampleOptions) ([]entity.FrameSample, error)
}

// MosaicApplier rewrites a video with the resolved regions pixelated,
// preserving frame count, resolution and frame rate.
type MosaicApplier interface {
	Apply(ctx context.Context, videoPath, outputPath string, table entity.RegionTable, strength int) error
}

// VideoProber reads container metadata from a video file.
type VideoProber interface {
	Probe(ctx context.Context, videoPath string) (entity.VideoInfo, error)
}

// Archiver bundles frame artifacts into a single file for the annotation
// hand-off.
type Archiver interface {
	CreateZip(ctx context.Context, filePaths []string, outputPath string) error
}

// Detector is the external vision capability: given frame artifacts and a
// target description, return detection regions. Invoked at most once per
// run; this core never implements it.
type Detector interface {
	Detect(ctx context.Context, frames []entity.FrameSample, target string) ([]entity.DetectionRegion, error)
}
