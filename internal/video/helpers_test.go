package video

import (
	"image"
	"image/color"
	"testing"

	"gocv.io/x/gocv"
)

// writeSyntheticVideo encodes frameCount solid-background frames to path.
// With moving set, a white square slides across the frame so consecutive
// frames differ well above the motion threshold. Skips the test when the
// mp4v encoder is not available in the local OpenCV build.
func writeSyntheticVideo(t *testing.T, path string, frameCount int, fps float64, width, height int, moving bool) {
	t.Helper()

	writer, err := gocv.VideoWriterFile(path, "mp4v", fps, width, height, true)
	if err != nil {
		t.Skipf("mp4v encoder unavailable: %v", err)
	}
	defer writer.Close()
	if !writer.IsOpened() {
		t.Skip("mp4v encoder unavailable")
	}

	frame := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
	defer frame.Close()

	for i := 0; i < frameCount; i++ {
		frame.SetTo(gocv.NewScalar(40, 40, 40, 0))
		if moving {
			x := (i * 11) % (width - 60)
			gocv.Rectangle(&frame, image.Rect(x, 40, x+60, 100), color.RGBA{R: 255, G: 255, B: 255}, -1)
		}
		if err := writer.Write(frame); err != nil {
			t.Fatalf("write synthetic frame %d: %v", i, err)
		}
	}
}

// frameCountOf decodes path and counts frames, which is more reliable than
// the container's frame-count property for short synthetic clips.
func frameCountOf(t *testing.T, path string) int {
	t.Helper()

	cap, err := gocv.VideoCaptureFile(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer cap.Close()

	frame := gocv.NewMat()
	defer frame.Close()

	count := 0
	for cap.Read(&frame) && !frame.Empty() {
		count++
	}
	return count
}
