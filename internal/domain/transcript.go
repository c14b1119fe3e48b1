package domain

import (
	"time"

	"github.com/google/uuid"
	pgvector "github.com/pgvector/pgvector-go"
)

// Speaker identifica el autor de un intercambio del transcript.
type Speaker string

const (
	SpeakerRespondent Speaker = "respondent"
	SpeakerAssistant  Speaker = "assistant"
)

// Exchange es una linea del transcript de auditoria de una sesion.
type Exchange struct {
	QuestionIndex int       `json:"question_index"`
	Speaker       Speaker   `json:"speaker"`
	Content       string    `json:"content"`
	At            time.Time `json:"at"`
}

// TranscriptEmbedding guarda el vector de un fragmento libre del respondente
// para busqueda semantica desde la revision.
type TranscriptEmbedding struct {
	ID            uuid.UUID       `json:"id"`
	SessionID     string          `json:"session_id"`
	SubjectID     string          `json:"subject_id"`
	Role          Role            `json:"role"`
	QuestionIndex int             `json:"question_index"`
	Content       string          `json:"content"`
	Embedding     pgvector.Vector `json:"-"`
	CreatedAt     time.Time       `json:"created_at"`
}
