package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"sdq-screen/internal/domain"
)

// TranscriptRepository guarda los fragmentos libres de los respondentes con
// su embedding para busqueda semantica.
type TranscriptRepository interface {
	Create(ctx context.Context, embedding domain.TranscriptEmbedding) error
	Search(ctx context.Context, subjectID string, queryEmbedding pgvector.Vector, k int) ([]domain.TranscriptEmbedding, error)
}

type PgTranscriptRepository struct {
	pool *pgxpool.Pool
}

func NewPgTranscriptRepository(pool *pgxpool.Pool) *PgTranscriptRepository {
	return &PgTranscriptRepository{pool: pool}
}

func (r *PgTranscriptRepository) Create(ctx context.Context, e domain.TranscriptEmbedding) error {
	const query = `
		INSERT INTO transcript_embeddings (
			id, session_id, subject_id, role, question_index, content, embedding, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		e.ID,
		e.SessionID,
		e.SubjectID,
		string(e.Role),
		e.QuestionIndex,
		e.Content,
		e.Embedding,
		e.CreatedAt,
	)
	return err
}

func (r *PgTranscriptRepository) Search(ctx context.Context, subjectID string, queryEmbedding pgvector.Vector, k int) ([]domain.TranscriptEmbedding, error) {
	if !validIDs(subjectID) {
		return nil, nil
	}
	if k <= 0 {
		k = 5
	}
	const query = `
		SELECT id, session_id, subject_id, role, question_index, content, embedding, created_at
		FROM transcript_embeddings
		WHERE subject_id = $1
		ORDER BY embedding <=> $2
		LIMIT $3
	`
	rows, err := r.pool.Query(ctx, query, subjectID, queryEmbedding, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTranscriptEmbeddings(rows)
}

func scanTranscriptEmbeddings(rows pgxRows) ([]domain.TranscriptEmbedding, error) {
	var out []domain.TranscriptEmbedding
	for rows.Next() {
		var (
			e    domain.TranscriptEmbedding
			role string
		)
		if err := rows.Scan(
			&e.ID,
			&e.SessionID,
			&e.SubjectID,
			&role,
			&e.QuestionIndex,
			&e.Content,
			&e.Embedding,
			&e.CreatedAt,
		); err != nil {
			return nil, err
		}
		e.Role = domain.Role(role)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
