package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sdq-screen/internal/domain"
	"sdq-screen/internal/sdq"
)

// SessionRepository persiste las sesiones de respondentes. Update es
// condicional a la version leida.
type SessionRepository interface {
	Create(ctx context.Context, session domain.RespondentSession) error
	GetByID(ctx context.Context, id string) (domain.RespondentSession, error)
	// FindActive devuelve la sesion sin enviar de un sujeto y rol, o pgx.ErrNoRows.
	FindActive(ctx context.Context, subjectID string, role domain.Role) (domain.RespondentSession, error)
	// LatestSubmitted devuelve la ultima sesion enviada por un respondente sobre un sujeto.
	LatestSubmitted(ctx context.Context, subjectID, respondentID string) (domain.RespondentSession, error)
	Update(ctx context.Context, session domain.RespondentSession, expectedVersion int) error
}

type PgSessionRepository struct {
	pool *pgxpool.Pool
}

func NewPgSessionRepository(pool *pgxpool.Pool) *PgSessionRepository {
	return &PgSessionRepository{pool: pool}
}

const sessionColumns = `id, subject_id, role, respondent_id, catalog_version, band, state, question_index,
		answers, pending, transcript, scores, version, created_at, updated_at, completed_at, submitted_at`

func (r *PgSessionRepository) Create(ctx context.Context, session domain.RespondentSession) error {
	cols, err := encodeSessionDocs(session)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO respondent_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err = r.pool.Exec(ctx, query,
		session.ID,
		session.SubjectID,
		string(session.Role),
		session.RespondentID,
		session.CatalogVersion,
		string(session.Band),
		string(session.State),
		session.QuestionIndex,
		cols.answers,
		cols.pending,
		cols.transcript,
		cols.scores,
		session.Version,
		session.CreatedAt,
		session.UpdatedAt,
		session.CompletedAt,
		session.SubmittedAt,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (r *PgSessionRepository) GetByID(ctx context.Context, id string) (domain.RespondentSession, error) {
	const query = `SELECT ` + sessionColumns + ` FROM respondent_sessions WHERE id = $1`
	if !validIDs(id) {
		return domain.RespondentSession{}, pgx.ErrNoRows
	}
	return scanSession(r.pool.QueryRow(ctx, query, id))
}

func (r *PgSessionRepository) FindActive(ctx context.Context, subjectID string, role domain.Role) (domain.RespondentSession, error) {
	const query = `
		SELECT ` + sessionColumns + `
		FROM respondent_sessions
		WHERE subject_id = $1 AND role = $2 AND state <> 'submitted'
		ORDER BY created_at DESC
		LIMIT 1
	`
	if !validIDs(subjectID) {
		return domain.RespondentSession{}, pgx.ErrNoRows
	}
	return scanSession(r.pool.QueryRow(ctx, query, subjectID, string(role)))
}

func (r *PgSessionRepository) LatestSubmitted(ctx context.Context, subjectID, respondentID string) (domain.RespondentSession, error) {
	const query = `
		SELECT ` + sessionColumns + `
		FROM respondent_sessions
		WHERE subject_id = $1 AND respondent_id = $2 AND state = 'submitted'
		ORDER BY submitted_at DESC
		LIMIT 1
	`
	if !validIDs(subjectID) {
		return domain.RespondentSession{}, pgx.ErrNoRows
	}
	return scanSession(r.pool.QueryRow(ctx, query, subjectID, respondentID))
}

func (r *PgSessionRepository) Update(ctx context.Context, session domain.RespondentSession, expectedVersion int) error {
	cols, err := encodeSessionDocs(session)
	if err != nil {
		return err
	}
	const query = `
		UPDATE respondent_sessions
		SET state = $2, question_index = $3, answers = $4, pending = $5, transcript = $6,
		    scores = $7, version = $8, updated_at = $9, completed_at = $10, submitted_at = $11
		WHERE id = $1 AND version = $12
	`
	tag, err := r.pool.Exec(ctx, query,
		session.ID,
		string(session.State),
		session.QuestionIndex,
		cols.answers,
		cols.pending,
		cols.transcript,
		cols.scores,
		expectedVersion+1,
		session.UpdatedAt,
		session.CompletedAt,
		session.SubmittedAt,
		expectedVersion,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}

type sessionDocs struct {
	answers    []byte
	pending    []byte
	transcript []byte
	scores     []byte
}

func encodeSessionDocs(s domain.RespondentSession) (sessionDocs, error) {
	var (
		docs sessionDocs
		err  error
	)
	answers := s.Answers
	if answers == nil {
		answers = []domain.Answer{}
	}
	if docs.answers, err = json.Marshal(answers); err != nil {
		return docs, fmt.Errorf("encode answers: %w", err)
	}
	if s.Pending != nil {
		if docs.pending, err = json.Marshal(s.Pending); err != nil {
			return docs, fmt.Errorf("encode pending: %w", err)
		}
	}
	transcript := s.Transcript
	if transcript == nil {
		transcript = []domain.Exchange{}
	}
	if docs.transcript, err = json.Marshal(transcript); err != nil {
		return docs, fmt.Errorf("encode transcript: %w", err)
	}
	scores := s.Scores
	if scores == nil {
		scores = []sdq.SubscaleScore{}
	}
	if docs.scores, err = json.Marshal(scores); err != nil {
		return docs, fmt.Errorf("encode scores: %w", err)
	}
	return docs, nil
}

func scanSession(row pgxRow) (domain.RespondentSession, error) {
	var (
		s                                    domain.RespondentSession
		role, band, state                    string
		answers, pending, transcript, scores []byte
	)
	err := row.Scan(
		&s.ID,
		&s.SubjectID,
		&role,
		&s.RespondentID,
		&s.CatalogVersion,
		&band,
		&state,
		&s.QuestionIndex,
		&answers,
		&pending,
		&transcript,
		&scores,
		&s.Version,
		&s.CreatedAt,
		&s.UpdatedAt,
		&s.CompletedAt,
		&s.SubmittedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RespondentSession{}, err
	}
	if err != nil {
		return domain.RespondentSession{}, err
	}
	s.Role = domain.Role(role)
	s.Band = sdq.Band(band)
	s.State = domain.SessionState(state)

	if err := json.Unmarshal(answers, &s.Answers); err != nil {
		return domain.RespondentSession{}, fmt.Errorf("decode answers: %w", err)
	}
	if len(pending) > 0 {
		var p domain.Suggestion
		if err := json.Unmarshal(pending, &p); err != nil {
			return domain.RespondentSession{}, fmt.Errorf("decode pending: %w", err)
		}
		s.Pending = &p
	}
	if err := json.Unmarshal(transcript, &s.Transcript); err != nil {
		return domain.RespondentSession{}, fmt.Errorf("decode transcript: %w", err)
	}
	if err := json.Unmarshal(scores, &s.Scores); err != nil {
		return domain.RespondentSession{}, fmt.Errorf("decode scores: %w", err)
	}
	return s, nil
}
