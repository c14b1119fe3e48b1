package repository

import (
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrVersionConflict indica que otro escritor actualizo la fila primero.
	ErrVersionConflict = errors.New("version conflict")
	// ErrConflict indica una violacion de unicidad (email, sesion activa).
	ErrConflict = errors.New("unique constraint violation")
)

// validIDs reporta si todos los ids son UUID. Postgres rechaza un literal
// invalido con 22P02; los repos lo tratan como fila inexistente.
func validIDs(ids ...string) bool {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return false
		}
	}
	return true
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// pgxRows es una interfaz minima para escanear filas de pgx y simplificar tests.
type pgxRows interface {
	Next() bool
	Scan(...interface{}) error
	Err() error
	Close()
}

// pgxRow cubre QueryRow().
type pgxRow interface {
	Scan(...interface{}) error
}
