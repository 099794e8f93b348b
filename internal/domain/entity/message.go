package entity

import "github.com/google/uuid"

// RedactionRequestMessage is the inbound message from the video.redaction
// queue. Regions come from RegionsKey (a regions JSON object in the
// artifact bucket) or, when SessionID is set, from an annotated session.
type RedactionRequestMessage struct {
	JobID          uuid.UUID `json:"job_id"`
	UserID         string    `json:"user_id"`
	VideoKey       string    `json:"video_key"`
	RegionsKey     string    `json:"regions_key,omitempty"`
	SessionID      string    `json:"session_id,omitempty"`
	MosaicStrength int       `json:"mosaic_strength,omitempty"`
	FileSize       int64     `json:"file_size"`
	UserEmail      string    `json:"user_email"`
}

// RedactionStatusMessage is the outbound message published to the
// video.redaction.status queue.
type RedactionStatusMessage struct {
	JobID             uuid.UUID `json:"job_id"`
	UserID            string    `json:"user_id"`
	Status            JobStatus `json:"status"`
	VideoKey          string    `json:"video_key"`
	OutputKey         string    `json:"output_key,omitempty"`
	ReportKey         string    `json:"report_key,omitempty"`
	FramesKey         string    `json:"frames_key,omitempty"`
	FrameCount        int       `json:"frame_count,omitempty"`
	RegionCount       int       `json:"region_count,omitempty"`
	Duration          float64   `json:"duration_seconds,omitempty"`
	ChecksPassed      int       `json:"checks_passed,omitempty"`
	ChecksFailed      int       `json:"checks_failed,omitempty"`
	ValidationWarning int       `json:"checks_warned,omitempty"`
	ErrorMessage      string    `json:"error_message,omitempty"`
	Attempt           int       `json:"attempt"`
	MaxAttempts       int       `json:"max_attempts"`
}
