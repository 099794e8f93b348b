package video

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/vidshield/redaction-processing-service/internal/domain/entity"
	"github.com/vidshield/redaction-processing-service/internal/domain/port"
)

const (
	// motionPixelThreshold is the minimum count of changed pixels for a
	// candidate frame to be considered different from the last keyframe.
	motionPixelThreshold = 1000
	// diffBinaryLevel is the grayscale absolute-difference level above
	// which a pixel counts as changed.
	diffBinaryLevel = 30
)

// Sampler walks a video sequentially and emits a bounded subset of frames
// as image artifacts.
type Sampler struct {
	logger *zap.Logger
}

func NewSampler(logger *zap.Logger) *Sampler {
	return &Sampler{logger: logger}
}

// Extract decodes videoPath and writes at most opts.MaxFrames samples into
// outputDir, named frame_<id>.jpg. A frame is a candidate every
// opts.SampleRate decoded frames; with opts.MotionAware set, candidates
// that barely differ from the previous emitted frame are skipped, except
// that the first emission is unconditional. A stream with fewer viable
// frames than MaxFrames yields a shorter sequence.
func (s *Sampler) Extract(ctx context.Context, videoPath, outputDir string, opts port.SampleOptions) ([]entity.FrameSample, error) {
	if opts.SampleRate < 1 {
		return nil, fmt.Errorf("extract frames: sample rate must be >= 1, got %d", opts.SampleRate)
	}
	if opts.MaxFrames < 1 {
		return nil, fmt.Errorf("extract frames: max frames must be >= 1, got %d", opts.MaxFrames)
	}

	if _, err := os.Stat(videoPath); err != nil {
		return nil, entity.NewProcessingError(entity.ErrSourceUnavailable, "extract frames", videoPath, err)
	}

	cap, err := gocv.VideoCaptureFile(videoPath)
	if err != nil {
		return nil, entity.NewProcessingError(entity.ErrSourceUnavailable, "extract frames", videoPath, err)
	}
	defer cap.Close()

	if !cap.IsOpened() {
		return nil, entity.NewProcessingError(entity.ErrSourceUnavailable, "extract frames", videoPath,
			fmt.Errorf("cannot open video"))
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("create frame dir: %w", err)
	}

	fps := cap.Get(gocv.VideoCaptureFPS)
	width := int(cap.Get(gocv.VideoCaptureFrameWidth))
	height := int(cap.Get(gocv.VideoCaptureFrameHeight))

	frame := gocv.NewMat()
	defer frame.Close()
	prevGray := gocv.NewMat()
	defer prevGray.Close()

	var samples []entity.FrameSample
	decodedIndex := 0

	for len(samples) < opts.MaxFrames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if ok := cap.Read(&frame); !ok || frame.Empty() {
			break
		}

		if decodedIndex%opts.SampleRate == 0 && s.shouldEmit(frame, prevGray, opts.MotionAware, len(samples)) {
			timestamp := 0.0
			if fps > 0 {
				timestamp = float64(decodedIndex) / fps
			}
			framePath := filepath.Join(outputDir, fmt.Sprintf("frame_%d.jpg", len(samples)+1))
			if ok := gocv.IMWrite(framePath, frame); !ok {
				return nil, fmt.Errorf("write frame artifact %s", framePath)
			}

			sample, err := entity.NewFrameSample(len(samples)+1, timestamp, framePath, width, height)
			if err != nil {
				return nil, fmt.Errorf("extract frames: %w", err)
			}
			samples = append(samples, sample)

			if opts.MotionAware {
				gocv.CvtColor(frame, &prevGray, gocv.ColorBGRToGray)
			}
		}

		decodedIndex++
	}

	s.logger.Info("frames sampled",
		zap.String("video", videoPath),
		zap.Int("decoded", decodedIndex),
		zap.Int("emitted", len(samples)),
		zap.Bool("motion_aware", opts.MotionAware),
	)

	return samples, nil
}

// shouldEmit applies the motion gate. The very first emission is never
// rejected regardless of motion.
func (s *Sampler) shouldEmit(frame gocv.Mat, prevGray gocv.Mat, motionAware bool, emitted int) bool {
	if !motionAware || emitted == 0 || prevGray.Empty() {
		return true
	}
	return motionScore(prevGray, frame) >= motionPixelThreshold
}

// motionScore counts pixels whose grayscale absolute difference against the
// previous keyframe exceeds the binary level.
func motionScore(prevGray gocv.Mat, current gocv.Mat) int {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(current, &gray, gocv.ColorBGRToGray)

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(prevGray, gray, &diff)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(diff, &thresh, diffBinaryLevel, 255, gocv.ThresholdBinary)

	return gocv.CountNonZero(thresh)
}
