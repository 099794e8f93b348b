package video

import (
	"context"
	"fmt"
	"image"
	"os"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/vidshield/redaction-processing-service/internal/domain/entity"
)

const (
	// MinMosaicStrength and MaxMosaicStrength bound the pixelation
	// coarseness a caller may request.
	MinMosaicStrength = 5
	MaxMosaicStrength = 50
)

// Mosaicker rewrites a video with region contents pixelated. Output keeps
// the input's frame count, resolution and frame rate.
type Mosaicker struct {
	logger *zap.Logger
}

func NewMosaicker(logger *zap.Logger) *Mosaicker {
	return &Mosaicker{logger: logger}
}

// Apply decodes videoPath frame by frame, resolves the regions for each
// 1-based frame id via the nearest-keyframe policy, pixelates them in list
// order, and encodes the result to outputPath (mp4v). An empty table is a
// caller error, raised before any decode work begins.
func (m *Mosaicker) Apply(ctx context.Context, videoPath, outputPath string, table entity.RegionTable, strength int) error {
	if len(table) == 0 {
		return entity.NewProcessingError(entity.ErrNoRegions, "apply mosaic", videoPath,
			fmt.Errorf("no regions provided"))
	}
	if strength < MinMosaicStrength {
		strength = MinMosaicStrength
	}
	if strength > MaxMosaicStrength {
		strength = MaxMosaicStrength
	}

	if _, err := os.Stat(videoPath); err != nil {
		return entity.NewProcessingError(entity.ErrSourceUnavailable, "apply mosaic", videoPath, err)
	}

	cap, err := gocv.VideoCaptureFile(videoPath)
	if err != nil {
		return entity.NewProcessingError(entity.ErrSourceUnavailable, "apply mosaic", videoPath, err)
	}
	defer cap.Close()

	if !cap.IsOpened() {
		return entity.NewProcessingError(entity.ErrSourceUnavailable, "apply mosaic", videoPath,
			fmt.Errorf("cannot open video"))
	}

	fps := cap.Get(gocv.VideoCaptureFPS)
	width := int(cap.Get(gocv.VideoCaptureFrameWidth))
	height := int(cap.Get(gocv.VideoCaptureFrameHeight))

	writer, err := gocv.VideoWriterFile(outputPath, "mp4v", fps, width, height, true)
	if err != nil {
		return entity.NewProcessingError(entity.ErrEncodeFailure, "apply mosaic", outputPath, err)
	}
	defer writer.Close()

	if !writer.IsOpened() {
		return entity.NewProcessingError(entity.ErrEncodeFailure, "apply mosaic", outputPath,
			fmt.Errorf("cannot open video writer"))
	}

	resolver := NewResolver(table)

	frame := gocv.NewMat()
	defer frame.Close()

	frameIndex := 0
	mosaicked := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if ok := cap.Read(&frame); !ok || frame.Empty() {
			break
		}

		// decoded index 0 is frame id 1; the mapping is sequential
		// with no gaps so detections and output frames line up.
		for _, region := range resolver.Resolve(frameIndex + 1) {
			MosaicRegion(&frame, region.BBox, strength)
			mosaicked++
		}

		if err := writer.Write(frame); err != nil {
			return entity.NewProcessingError(entity.ErrEncodeFailure, "apply mosaic", outputPath, err)
		}
		frameIndex++
	}

	m.logger.Info("mosaic applied",
		zap.String("video", videoPath),
		zap.String("output", outputPath),
		zap.Int("frames", frameIndex),
		zap.Int("regions_mosaicked", mosaicked),
		zap.Int("strength", strength),
	)

	return nil
}

// MosaicRegion pixelates one bbox of frame in place: the box is clamped to
// the frame, downsampled to the block size and blown back up with
// nearest-neighbor resampling. Overlapping regions applied in sequence each
// see the already-mosaicked pixels; that is the intended behavior.
func MosaicRegion(frame *gocv.Mat, bbox entity.BBox, strength int) {
	clamped := ClampBBox(bbox, frame.Cols(), frame.Rows())
	if clamped.W < 1 || clamped.H < 1 {
		return
	}

	roi := frame.Region(image.Rect(clamped.X, clamped.Y, clamped.X+clamped.W, clamped.Y+clamped.H))
	defer roi.Close()

	block := MosaicBlockSize(strength, clamped.W, clamped.H)

	small := gocv.NewMat()
	defer small.Close()
	gocv.Resize(roi, &small, image.Pt(block, block), 0, 0, gocv.InterpolationLinear)

	mosaic := gocv.NewMat()
	defer mosaic.Close()
	gocv.Resize(small, &mosaic, image.Pt(clamped.W, clamped.H), 0, 0, gocv.InterpolationNearestNeighbor)

	mosaic.CopyTo(&roi)
}

// ClampBBox forces the box inside a width×height frame: x,y land in
// [0, dim-1] and w,h shrink so the box never crosses the frame edge.
func ClampBBox(b entity.BBox, frameWidth, frameHeight int) entity.BBox {
	x := clampInt(b.X, 0, frameWidth-1)
	y := clampInt(b.Y, 0, frameHeight-1)
	w := clampInt(b.W, 1, frameWidth-x)
	h := clampInt(b.H, 1, frameHeight-y)
	return entity.BBox{X: x, Y: y, W: w, H: h}
}

// MosaicBlockSize is min(strength, min(w,h)/2), floored at 1.
func MosaicBlockSize(strength, w, h int) int {
	side := w
	if h < side {
		side = h
	}
	block := side / 2
	if strength < block {
		block = strength
	}
	if block < 1 {
		block = 1
	}
	return block
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
