package entity

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

// RedactionJob tracks one video through the redaction pipeline.
type RedactionJob struct {
	ID             uuid.UUID
	UserID         string
	VideoKey       string
	OutputKey      string
	ReportKey      string
	FramesKey      string
	Status         JobStatus
	FrameCount     int
	RegionCount    int
	MosaicStrength int
	FileSize       int64
	VideoDuration  float64
	Attempt        int
	MaxAttempts    int
	ErrorMessage   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
}

func NewRedactionJob(userID, videoKey string, fileSize int64, mosaicStrength, maxAttempts int) *RedactionJob {
	now := time.Now().UTC()
	return &RedactionJob{
		ID:             uuid.New(),
		UserID:         userID,
		VideoKey:       videoKey,
		FileSize:       fileSize,
		MosaicStrength: mosaicStrength,
		Status:         JobStatusPending,
		Attempt:        0,
		MaxAttempts:    maxAttempts,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (j *RedactionJob) MarkProcessing() {
	j.Status = JobStatusProcessing
	j.Attempt++
	j.UpdatedAt = time.Now().UTC()
}

func (j *RedactionJob) MarkCompleted(outputKey, reportKey, framesKey string, frameCount, regionCount int, duration float64) {
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.OutputKey = outputKey
	j.ReportKey = reportKey
	j.FramesKey = framesKey
	j.FrameCount = frameCount
	j.RegionCount = regionCount
	j.VideoDuration = duration
	j.UpdatedAt = now
	j.CompletedAt = &now
}

func (j *RedactionJob) MarkFailed(errMsg string) {
	j.Status = JobStatusFailed
	j.ErrorMessage = errMsg
	j.UpdatedAt = time.Now().UTC()
}

func (j *RedactionJob) CanRetry() bool {
	return j.Attempt < j.MaxAttempts
}
