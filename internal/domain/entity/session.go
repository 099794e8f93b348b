package entity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionState is the annotation hand-off state machine. The browser UI
// moves a session from awaiting_annotation to annotated; the pipeline
// consumes it exactly once.
type SessionState string

const (
	SessionCreated            SessionState = "created"
	SessionAwaitingAnnotation SessionState = "awaiting_annotation"
	SessionAnnotated          SessionState = "annotated"
	SessionConsumed           SessionState = "consumed"
)

var sessionTransitions = map[SessionState]SessionState{
	SessionCreated:            SessionAwaitingAnnotation,
	SessionAwaitingAnnotation: SessionAnnotated,
	SessionAnnotated:          SessionConsumed,
}

// AnnotationSession is the durable record handed between the pipeline and
// the external annotation UI: the sampled frames go out, the drawn regions
// come back.
type AnnotationSession struct {
	ID          uuid.UUID
	VideoKey    string
	Frames      []FrameSample
	RegionsJSON []byte
	State       SessionState
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func NewAnnotationSession(videoKey string, frames []FrameSample) *AnnotationSession {
	now := time.Now().UTC()
	return &AnnotationSession{
		ID:        uuid.New(),
		VideoKey:  videoKey,
		Frames:    frames,
		State:     SessionCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Advance moves the session to the next state. Only the documented
// created → awaiting_annotation → annotated → consumed order is legal.
func (s *AnnotationSession) Advance(to SessionState) error {
	next, ok := sessionTransitions[s.State]
	if !ok || next != to {
		return fmt.Errorf("annotation session %s: illegal transition %s -> %s", s.ID, s.State, to)
	}
	s.State = to
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// AttachRegions records the annotated regions and advances the session.
func (s *AnnotationSession) AttachRegions(regionsJSON []byte) error {
	if len(regionsJSON) == 0 {
		return fmt.Errorf("annotation session %s: empty regions payload", s.ID)
	}
	if err := s.Advance(SessionAnnotated); err != nil {
		return err
	}
	s.RegionsJSON = regionsJSON
	return nil
}
