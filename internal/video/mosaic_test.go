package video

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/vidshield/redaction-processing-service/internal/domain/entity"
)

func TestClampBBox(t *testing.T) {
	cases := []struct {
		name   string
		in     entity.BBox
		fw, fh int
		want   entity.BBox
	}{
		{
			name: "oversized box shrinks to frame",
			in:   entity.BBox{X: 0, Y: 0, W: 10000, H: 10000},
			fw:   1920, fh: 1080,
			want: entity.BBox{X: 0, Y: 0, W: 1920, H: 1080},
		},
		{
			name: "negative origin clamps to zero",
			in:   entity.BBox{X: -50, Y: -20, W: 100, H: 100},
			fw:   640, fh: 480,
			want: entity.BBox{X: 0, Y: 0, W: 100, H: 100},
		},
		{
			name: "origin past edge lands on last pixel",
			in:   entity.BBox{X: 700, Y: 500, W: 10, H: 10},
			fw:   640, fh: 480,
			want: entity.BBox{X: 639, Y: 479, W: 1, H: 1},
		},
		{
			name: "box crossing right edge is trimmed",
			in:   entity.BBox{X: 600, Y: 100, W: 100, H: 50},
			fw:   640, fh: 480,
			want: entity.BBox{X: 600, Y: 100, W: 40, H: 50},
		},
		{
			name: "in-bounds box unchanged",
			in:   entity.BBox{X: 10, Y: 20, W: 30, H: 40},
			fw:   640, fh: 480,
			want: entity.BBox{X: 10, Y: 20, W: 30, H: 40},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ClampBBox(tc.in, tc.fw, tc.fh)
			assert.Equal(t, tc.want, got)

			// clamped boxes always land fully inside the frame
			assert.GreaterOrEqual(t, got.X, 0)
			assert.GreaterOrEqual(t, got.Y, 0)
			assert.LessOrEqual(t, got.X+got.W, tc.fw)
			assert.LessOrEqual(t, got.Y+got.H, tc.fh)
		})
	}
}

func TestMosaicBlockSize(t *testing.T) {
	assert.Equal(t, 15, MosaicBlockSize(15, 100, 100), "strength below half the short side")
	assert.Equal(t, 10, MosaicBlockSize(50, 20, 30), "capped at half the short side")
	assert.Equal(t, 1, MosaicBlockSize(15, 1, 1), "floor of 1 for tiny regions")
	assert.Equal(t, 1, MosaicBlockSize(15, 2, 100), "short side 2 halves to 1")
}

func TestMosaicRegionChangesPixels(t *testing.T) {
	frame := gocv.NewMatWithSize(100, 100, gocv.MatTypeCV8UC3)
	defer frame.Close()
	frame.SetTo(gocv.NewScalar(0, 0, 0, 0))
	gocv.Rectangle(&frame, image.Rect(20, 20, 40, 40), color.RGBA{R: 255, G: 255, B: 255}, -1)

	before := frame.Clone()
	defer before.Close()

	MosaicRegion(&frame, entity.BBox{X: 10, Y: 10, W: 50, H: 50}, 5)

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(before, frame, &diff)

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(diff, &gray, gocv.ColorBGRToGray)

	assert.Greater(t, gocv.CountNonZero(gray), 0, "pixelation must visibly alter the region")
}

func TestMosaicRegionLeavesOutsidePixelsUntouched(t *testing.T) {
	frame := gocv.NewMatWithSize(100, 100, gocv.MatTypeCV8UC3)
	defer frame.Close()
	frame.SetTo(gocv.NewScalar(0, 0, 0, 0))
	gocv.Rectangle(&frame, image.Rect(20, 20, 40, 40), color.RGBA{R: 255, G: 255, B: 255}, -1)

	before := frame.Clone()
	defer before.Close()

	MosaicRegion(&frame, entity.BBox{X: 10, Y: 10, W: 50, H: 50}, 5)

	// a band outside the box must be byte-identical
	outsideBefore := before.Region(image.Rect(70, 70, 100, 100))
	defer outsideBefore.Close()
	outsideAfter := frame.Region(image.Rect(70, 70, 100, 100))
	defer outsideAfter.Close()

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(outsideBefore, outsideAfter, &diff)
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(diff, &gray, gocv.ColorBGRToGray)

	assert.Equal(t, 0, gocv.CountNonZero(gray))
}

func TestApplyRejectsEmptyTable(t *testing.T) {
	dir := t.TempDir()
	outputPath := filepath.Join(dir, "out.mp4")

	mosaicker := NewMosaicker(zap.NewNop())
	err := mosaicker.Apply(context.Background(), filepath.Join(dir, "in.mp4"), outputPath, entity.RegionTable{}, 15)

	require.Error(t, err)
	assert.True(t, entity.IsProcessingKind(err, entity.ErrNoRegions))

	_, statErr := os.Stat(outputPath)
	assert.True(t, os.IsNotExist(statErr), "no output artifact on rejected input")
}

func TestApplyMissingSource(t *testing.T) {
	dir := t.TempDir()
	table := entity.BuildRegionTable([]entity.DetectionRegion{regionAt(1, "phone")})

	mosaicker := NewMosaicker(zap.NewNop())
	err := mosaicker.Apply(context.Background(), filepath.Join(dir, "missing.mp4"), filepath.Join(dir, "out.mp4"), table, 15)

	require.Error(t, err)
	assert.True(t, entity.IsProcessingKind(err, entity.ErrSourceUnavailable))
}

func TestApplyPreservesStreamShape(t *testing.T) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "in.mp4")
	outputPath := filepath.Join(dir, "out.mp4")
	writeSyntheticVideo(t, inputPath, 40, 25.0, 320, 240, true)

	table := entity.BuildRegionTable([]entity.DetectionRegion{
		regionAt(1, "phone"),
		regionAt(20, "face"),
	})

	mosaicker := NewMosaicker(zap.NewNop())
	require.NoError(t, mosaicker.Apply(context.Background(), inputPath, outputPath, table, 15))

	assert.Equal(t, frameCountOf(t, inputPath), frameCountOf(t, outputPath), "frame count preserved")

	info, err := NewProber().Probe(context.Background(), outputPath)
	require.NoError(t, err)
	assert.Equal(t, 320, info.Width)
	assert.Equal(t, 240, info.Height)
	assert.InDelta(t, 25.0, info.FPS, 0.5)
}
