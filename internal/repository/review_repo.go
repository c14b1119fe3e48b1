package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sdq-screen/internal/domain"
)

// ReviewRepository persiste el registro agregado por sujeto. Attach es un
// upsert por (sujeto, rol); Update es condicional a la version.
type ReviewRepository interface {
	// Attach crea el registro si hace falta y reemplaza la entrada del rol solo
	// si la nueva sesion es igual o mas reciente. Devuelve el registro resultante.
	Attach(ctx context.Context, subjectID string, role domain.Role, entry domain.ReviewEntry, now time.Time) (domain.ReviewRecord, error)
	Get(ctx context.Context, subjectID string) (domain.ReviewRecord, error)
	Update(ctx context.Context, record domain.ReviewRecord, expectedVersion int) error
	List(ctx context.Context) ([]domain.ReviewRecord, error)
}

type PgReviewRepository struct {
	pool *pgxpool.Pool
}

func NewPgReviewRepository(pool *pgxpool.Pool) *PgReviewRepository {
	return &PgReviewRepository{pool: pool}
}

func (r *PgReviewRepository) Attach(ctx context.Context, subjectID string, role domain.Role, entry domain.ReviewEntry, now time.Time) (domain.ReviewRecord, error) {
	const insertRecord = `
		INSERT INTO review_records (subject_id, state, version, created_at, updated_at)
		VALUES ($1, 'unreviewed', 1, $2, $2)
		ON CONFLICT (subject_id) DO NOTHING
	`
	const upsertEntry = `
		INSERT INTO review_entries (subject_id, role, session_id, submitted_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (subject_id, role) DO UPDATE
		SET session_id = EXCLUDED.session_id, submitted_at = EXCLUDED.submitted_at
		WHERE review_entries.submitted_at <= EXCLUDED.submitted_at
		  AND review_entries.session_id <> EXCLUDED.session_id
	`
	const touchRecord = `UPDATE review_records SET updated_at = $2 WHERE subject_id = $1`

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.ReviewRecord{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, insertRecord, subjectID, now); err != nil {
		return domain.ReviewRecord{}, fmt.Errorf("insert review record: %w", err)
	}
	tag, err := tx.Exec(ctx, upsertEntry, subjectID, string(role), entry.SessionID, entry.SubmittedAt)
	if err != nil {
		return domain.ReviewRecord{}, fmt.Errorf("upsert review entry: %w", err)
	}
	if tag.RowsAffected() > 0 {
		if _, err := tx.Exec(ctx, touchRecord, subjectID, now); err != nil {
			return domain.ReviewRecord{}, fmt.Errorf("touch review record: %w", err)
		}
	}
	record, err := getReview(ctx, tx, subjectID)
	if err != nil {
		return domain.ReviewRecord{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.ReviewRecord{}, err
	}
	return record, nil
}

func (r *PgReviewRepository) Get(ctx context.Context, subjectID string) (domain.ReviewRecord, error) {
	if !validIDs(subjectID) {
		return domain.ReviewRecord{}, pgx.ErrNoRows
	}
	return getReview(ctx, r.pool, subjectID)
}

func (r *PgReviewRepository) Update(ctx context.Context, record domain.ReviewRecord, expectedVersion int) error {
	const query = `
		UPDATE review_records
		SET state = $2, draft = $3, summary = $4, reviewer_id = $5, reviewed_at = $6,
		    version = $7, updated_at = $8
		WHERE subject_id = $1 AND version = $9
	`
	tag, err := r.pool.Exec(ctx, query,
		record.SubjectID,
		string(record.State),
		record.Draft,
		record.Summary,
		record.ReviewerID,
		record.ReviewedAt,
		expectedVersion+1,
		record.UpdatedAt,
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

func (r *PgReviewRepository) List(ctx context.Context) ([]domain.ReviewRecord, error) {
	const query = `
		SELECT rr.subject_id, rr.state, rr.draft, rr.summary, rr.reviewer_id, rr.reviewed_at,
		       rr.version, rr.created_at, rr.updated_at, re.role, re.session_id, re.submitted_at
		FROM review_records rr
		LEFT JOIN review_entries re ON re.subject_id = rr.subject_id
		ORDER BY rr.updated_at DESC, rr.subject_id
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReviews(rows)
}

// queryer cubre pgxpool.Pool y pgx.Tx.
type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func getReview(ctx context.Context, q queryer, subjectID string) (domain.ReviewRecord, error) {
	const query = `
		SELECT rr.subject_id, rr.state, rr.draft, rr.summary, rr.reviewer_id, rr.reviewed_at,
		       rr.version, rr.created_at, rr.updated_at, re.role, re.session_id, re.submitted_at
		FROM review_records rr
		LEFT JOIN review_entries re ON re.subject_id = rr.subject_id
		WHERE rr.subject_id = $1
	`
	rows, err := q.Query(ctx, query, subjectID)
	if err != nil {
		return domain.ReviewRecord{}, err
	}
	defer rows.Close()
	records, err := scanReviews(rows)
	if err != nil {
		return domain.ReviewRecord{}, err
	}
	if len(records) == 0 {
		return domain.ReviewRecord{}, pgx.ErrNoRows
	}
	return records[0], nil
}

// scanReviews agrupa las filas del join por sujeto conservando el orden.
func scanReviews(rows pgxRows) ([]domain.ReviewRecord, error) {
	var (
		out   []domain.ReviewRecord
		index = map[string]int{}
	)
	for rows.Next() {
		var (
			rec         domain.ReviewRecord
			state       string
			role        *string
			sessionID   *string
			submittedAt *time.Time
		)
		if err := rows.Scan(
			&rec.SubjectID,
			&state,
			&rec.Draft,
			&rec.Summary,
			&rec.ReviewerID,
			&rec.ReviewedAt,
			&rec.Version,
			&rec.CreatedAt,
			&rec.UpdatedAt,
			&role,
			&sessionID,
			&submittedAt,
		); err != nil {
			return nil, err
		}
		i, ok := index[rec.SubjectID]
		if !ok {
			rec.State = domain.ReviewState(state)
			rec.Sessions = make(map[domain.Role]domain.ReviewEntry)
			out = append(out, rec)
			i = len(out) - 1
			index[rec.SubjectID] = i
		}
		if role != nil && sessionID != nil && submittedAt != nil {
			out[i].Sessions[domain.Role(*role)] = domain.ReviewEntry{SessionID: *sessionID, SubmittedAt: *submittedAt}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// IsNotFound unifica el "no encontrado" de los stores Pg y en memoria.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
