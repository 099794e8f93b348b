package video

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vidshield/redaction-processing-service/internal/domain/entity"
	"github.com/vidshield/redaction-processing-service/internal/domain/port"
)

func TestExtractEveryNthFrame(t *testing.T) {
	dir := t.TempDir()
	videoPath := filepath.Join(dir, "input.mp4")
	writeSyntheticVideo(t, videoPath, 100, 30.0, 320, 240, true)

	sampler := NewSampler(zap.NewNop())
	samples, err := sampler.Extract(context.Background(), videoPath, filepath.Join(dir, "frames"), port.SampleOptions{
		SampleRate:  30,
		MaxFrames:   10,
		MotionAware: false,
	})
	require.NoError(t, err)

	// candidates fall on decoded indices 0, 30, 60, 90
	require.Len(t, samples, 4)
	for i, s := range samples {
		assert.Equal(t, i+1, s.FrameID, "frame ids are contiguous from 1")
		assert.InDelta(t, float64(i*30)/30.0, s.Timestamp, 0.05)
		assert.Equal(t, 320, s.Width)
		assert.Equal(t, 240, s.Height)

		_, err := os.Stat(s.ImagePath)
		assert.NoError(t, err, "frame artifact must exist on disk")
		assert.Equal(t, fmt.Sprintf("frame_%d.jpg", i+1), filepath.Base(s.ImagePath))
	}
}

func TestExtractRespectsMaxFrames(t *testing.T) {
	dir := t.TempDir()
	videoPath := filepath.Join(dir, "input.mp4")
	writeSyntheticVideo(t, videoPath, 60, 30.0, 320, 240, true)

	sampler := NewSampler(zap.NewNop())
	samples, err := sampler.Extract(context.Background(), videoPath, filepath.Join(dir, "frames"), port.SampleOptions{
		SampleRate:  1,
		MaxFrames:   5,
		MotionAware: false,
	})
	require.NoError(t, err)
	assert.Len(t, samples, 5)
}

func TestExtractMotionGateOnStaticVideo(t *testing.T) {
	dir := t.TempDir()
	videoPath := filepath.Join(dir, "static.mp4")
	writeSyntheticVideo(t, videoPath, 100, 30.0, 320, 240, false)

	sampler := NewSampler(zap.NewNop())
	samples, err := sampler.Extract(context.Background(), videoPath, filepath.Join(dir, "frames"), port.SampleOptions{
		SampleRate:  10,
		MaxFrames:   10,
		MotionAware: true,
	})
	require.NoError(t, err)

	// first emission is unconditional, every later candidate is static
	require.Len(t, samples, 1)
	assert.Equal(t, 1, samples[0].FrameID)
}

func TestExtractMotionGatePassesMovingVideo(t *testing.T) {
	dir := t.TempDir()
	videoPath := filepath.Join(dir, "moving.mp4")
	writeSyntheticVideo(t, videoPath, 100, 30.0, 320, 240, true)

	sampler := NewSampler(zap.NewNop())
	samples, err := sampler.Extract(context.Background(), videoPath, filepath.Join(dir, "frames"), port.SampleOptions{
		SampleRate:  10,
		MaxFrames:   10,
		MotionAware: true,
	})
	require.NoError(t, err)
	assert.Greater(t, len(samples), 1, "moving content must survive the motion gate")
	for i, s := range samples {
		assert.Equal(t, i+1, s.FrameID)
	}
}

func TestExtractMissingSource(t *testing.T) {
	sampler := NewSampler(zap.NewNop())
	_, err := sampler.Extract(context.Background(), "/nonexistent/input.mp4", t.TempDir(), port.SampleOptions{
		SampleRate: 30,
		MaxFrames:  10,
	})
	require.Error(t, err)
	assert.True(t, entity.IsProcessingKind(err, entity.ErrSourceUnavailable))
}

func TestExtractRejectsInvalidOptions(t *testing.T) {
	sampler := NewSampler(zap.NewNop())

	_, err := sampler.Extract(context.Background(), "whatever.mp4", t.TempDir(), port.SampleOptions{SampleRate: 0, MaxFrames: 10})
	assert.Error(t, err)

	_, err = sampler.Extract(context.Background(), "whatever.mp4", t.TempDir(), port.SampleOptions{SampleRate: 30, MaxFrames: 0})
	assert.Error(t, err)
}

func TestProbeSyntheticVideo(t *testing.T) {
	dir := t.TempDir()
	videoPath := filepath.Join(dir, "input.mp4")
	writeSyntheticVideo(t, videoPath, 50, 25.0, 320, 240, false)

	info, err := NewProber().Probe(context.Background(), videoPath)
	require.NoError(t, err)

	assert.Equal(t, 320, info.Width)
	assert.Equal(t, 240, info.Height)
	assert.InDelta(t, 25.0, info.FPS, 0.5)
	assert.Equal(t, 50, info.FrameCount)
	assert.InDelta(t, 2.0, info.Duration, 0.1)
	assert.Greater(t, info.FileSize, int64(0))
}

func TestProbeMissingSource(t *testing.T) {
	_, err := NewProber().Probe(context.Background(), "/nonexistent/input.mp4")
	require.Error(t, err)
	assert.True(t, entity.IsProcessingKind(err, entity.ErrSourceUnavailable))
}
