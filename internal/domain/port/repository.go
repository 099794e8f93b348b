package port

import (
	"context"

	"github.com/google/uuid"
	"github.com/vidshield/redaction-processing-service/internal/domain/entity"
)

type JobRepository interface {
	Create(ctx context.Context, job *entity.RedactionJob) error
	Update(ctx context.Context, job *entity.RedactionJob) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.RedactionJob, error)
}
