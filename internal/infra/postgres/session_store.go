package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vidshield/redaction-processing-service/internal/domain/entity"
)

// SessionStore persists annotation sessions. Frames are stored as a JSON
// column; state transitions are enforced by the entity, not the store.
type SessionStore struct {
	pool *pgxpool.Pool
}

func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

func (s *SessionStore) Create(ctx context.Context, session *entity.AnnotationSession) error {
	framesJSON, err := json.Marshal(session.Frames)
	if err != nil {
		return fmt.Errorf("marshal session frames: %w", err)
	}

	query := `
		INSERT INTO annotation_sessions (
			id, video_key, frames, regions, state, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)`

	_, err = s.pool.Exec(ctx, query,
		session.ID, session.VideoKey, framesJSON, session.RegionsJSON,
		string(session.State), session.CreatedAt, session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SessionStore) Update(ctx context.Context, session *entity.AnnotationSession) error {
	query := `
		UPDATE annotation_sessions SET
			regions=$2, state=$3, updated_at=$4
		WHERE id=$1`

	_, err := s.pool.Exec(ctx, query,
		session.ID, session.RegionsJSON, string(session.State), session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

func (s *SessionStore) FindByID(ctx context.Context, id uuid.UUID) (*entity.AnnotationSession, error) {
	query := `
		SELECT id, video_key, frames, regions, state, created_at, updated_at
		FROM annotation_sessions WHERE id=$1`

	session := &entity.AnnotationSession{}
	var framesJSON []byte
	var state string
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&session.ID, &session.VideoKey, &framesJSON, &session.RegionsJSON,
		&state, &session.CreatedAt, &session.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("find session by id: %w", err)
	}
	if len(framesJSON) > 0 {
		if err := json.Unmarshal(framesJSON, &session.Frames); err != nil {
			return nil, fmt.Errorf("unmarshal session frames: %w", err)
		}
	}
	session.State = entity.SessionState(state)
	return session, nil
}
