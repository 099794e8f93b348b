// Package video implements the redaction pipeline core: probing, motion-aware
// frame sampling, nearest-keyframe region resolution and mosaic application.
// All decode and pixel work goes through OpenCV (gocv); processing is strictly
// sequential per video, one decode handle and one encode handle at a time.
package video

import (
	"context"
	"fmt"
	"os"

	"gocv.io/x/gocv"

	"github.com/vidshield/redaction-processing-service/internal/domain/entity"
)

// Prober reads container metadata from a video file.
type Prober struct{}

func NewProber() *Prober {
	return &Prober{}
}

// Probe returns fps, frame count, resolution, duration and file size.
// A missing or undecodable source fails with ErrSourceUnavailable.
func (p *Prober) Probe(ctx context.Context, videoPath string) (entity.VideoInfo, error) {
	if err := ctx.Err(); err != nil {
		return entity.VideoInfo{}, err
	}

	stat, err := os.Stat(videoPath)
	if err != nil {
		return entity.VideoInfo{}, entity.NewProcessingError(entity.ErrSourceUnavailable, "probe video", videoPath, err)
	}

	cap, err := gocv.VideoCaptureFile(videoPath)
	if err != nil {
		return entity.VideoInfo{}, entity.NewProcessingError(entity.ErrSourceUnavailable, "probe video", videoPath, err)
	}
	defer cap.Close()

	if !cap.IsOpened() {
		return entity.VideoInfo{}, entity.NewProcessingError(entity.ErrSourceUnavailable, "probe video", videoPath,
			fmt.Errorf("cannot open video"))
	}

	fps := cap.Get(gocv.VideoCaptureFPS)
	frameCount := int(cap.Get(gocv.VideoCaptureFrameCount))

	var duration float64
	if fps > 0 {
		duration = float64(frameCount) / fps
	}

	return entity.VideoInfo{
		Path:       videoPath,
		FPS:        fps,
		FrameCount: frameCount,
		Width:      int(cap.Get(gocv.VideoCaptureFrameWidth)),
		Height:     int(cap.Get(gocv.VideoCaptureFrameHeight)),
		Duration:   duration,
		FileSize:   stat.Size(),
	}, nil
}
