package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sdq-screen/internal/domain"
)

// SubjectRepository persiste los sujetos evaluados.
type SubjectRepository interface {
	Create(ctx context.Context, subject domain.Subject) error
	GetByID(ctx context.Context, id string) (domain.Subject, error)
	GetBySharingCode(ctx context.Context, code string) (domain.Subject, error)
}

type PgSubjectRepository struct {
	pool *pgxpool.Pool
}

func NewPgSubjectRepository(pool *pgxpool.Pool) *PgSubjectRepository {
	return &PgSubjectRepository{pool: pool}
}

func (r *PgSubjectRepository) Create(ctx context.Context, subject domain.Subject) error {
	const query = `
		INSERT INTO subjects (id, name, age, gender, sharing_code, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query,
		subject.ID,
		subject.Name,
		subject.Age,
		subject.Gender,
		subject.SharingCode,
		subject.CreatedBy,
		subject.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (r *PgSubjectRepository) GetByID(ctx context.Context, id string) (domain.Subject, error) {
	const query = `
		SELECT id, name, age, gender, sharing_code, created_by, created_at
		FROM subjects
		WHERE id = $1
	`
	if !validIDs(id) {
		return domain.Subject{}, pgx.ErrNoRows
	}
	return scanSubject(r.pool.QueryRow(ctx, query, id))
}

func (r *PgSubjectRepository) GetBySharingCode(ctx context.Context, code string) (domain.Subject, error) {
	const query = `
		SELECT id, name, age, gender, sharing_code, created_by, created_at
		FROM subjects
		WHERE sharing_code = $1
	`
	return scanSubject(r.pool.QueryRow(ctx, query, code))
}

func scanSubject(row pgxRow) (domain.Subject, error) {
	var s domain.Subject
	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.Age,
		&s.Gender,
		&s.SharingCode,
		&s.CreatedBy,
		&s.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Subject{}, err
	}
	return s, err
}
