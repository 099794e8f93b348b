package port

import (
	"context"

	"github.com/google/uuid"
	"github.com/vidshield/redaction-processing-service/internal/domain/entity"
)

// SessionStore persists annotation sessions keyed by session id.
type SessionStore interface {
	Create(ctx context.Context, session *entity.AnnotationSession) error
	Update(ctx context.Context, session *entity.AnnotationSession) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.AnnotationSession, error)
}
