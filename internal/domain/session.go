package domain

import (
	"fmt"
	"time"

	"sdq-screen/internal/sdq"
)

// SessionState es el estado del protocolo de una sesion de respondente.
type SessionState string

const (
	SessionNotStarted           SessionState = "not_started"
	SessionAwaitingAnswer       SessionState = "awaiting_answer"
	SessionAwaitingConfirmation SessionState = "awaiting_confirmation"
	SessionCompleted            SessionState = "completed"
	SessionSubmitted            SessionState = "submitted"
)

// Suggestion es la opcion propuesta por el interprete, pendiente de confirmacion.
type Suggestion struct {
	Option      sdq.Option `json:"option"`
	Confidence  float64    `json:"confidence"`
	Message     string     `json:"message"`
	SuggestedAt time.Time  `json:"suggested_at"`
}

// Answer es la respuesta confirmada de una pregunta.
type Answer struct {
	QuestionIndex int        `json:"question_index"`
	Option        sdq.Option `json:"option"`
	Overridden    bool       `json:"overridden"`
	Fragments     []string   `json:"fragments,omitempty"`
	ConfirmedAt   time.Time  `json:"confirmed_at"`
}

// RespondentSession es el avance de un respondente sobre el catalogo.
// Sus metodos son transiciones puras; la persistencia vive en el servicio.
type RespondentSession struct {
	ID             string              `json:"id"`
	SubjectID      string              `json:"subject_id"`
	Role           Role                `json:"role"`
	RespondentID   string              `json:"respondent_id"`
	CatalogVersion string              `json:"catalog_version"`
	Band           sdq.Band            `json:"band"`
	State          SessionState        `json:"state"`
	QuestionIndex  int                 `json:"question_index"`
	Answers        []Answer            `json:"answers"`
	Pending        *Suggestion         `json:"pending,omitempty"`
	Transcript     []Exchange          `json:"transcript"`
	Scores         []sdq.SubscaleScore `json:"scores,omitempty"`
	Version        int                 `json:"version"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
	CompletedAt    *time.Time          `json:"completed_at,omitempty"`
	SubmittedAt    *time.Time          `json:"submitted_at,omitempty"`
}

// NewRespondentSession crea una sesion lista para la primera pregunta.
func NewRespondentSession(id string, subject Subject, role Role, respondentID, catalogVersion string, band sdq.Band, now time.Time) RespondentSession {
	return RespondentSession{
		ID:             id,
		SubjectID:      subject.ID,
		Role:           role,
		RespondentID:   respondentID,
		CatalogVersion: catalogVersion,
		Band:           band,
		State:          SessionAwaitingAnswer,
		QuestionIndex:  0,
		Answers:        []Answer{},
		Transcript:     []Exchange{},
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (s *RespondentSession) Completed() bool {
	return s.State == SessionCompleted || s.State == SessionSubmitted
}

func (s *RespondentSession) Submitted() bool {
	return s.State == SessionSubmitted
}

// Active indica si la sesion aun no fue enviada.
func (s *RespondentSession) Active() bool {
	return s.State != SessionSubmitted
}

// CanRespond valida que la sesion espera texto libre para la pregunta actual.
func (s *RespondentSession) CanRespond() error {
	if s.State != SessionAwaitingAnswer {
		return StateError("respond", s.State)
	}
	if s.QuestionIndex >= sdq.Size {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, s.QuestionIndex)
	}
	return nil
}

// RecordExchange agrega una linea al transcript para la pregunta actual.
func (s *RespondentSession) RecordExchange(speaker Speaker, content string, now time.Time) {
	s.Transcript = append(s.Transcript, Exchange{
		QuestionIndex: s.QuestionIndex,
		Speaker:       speaker,
		Content:       content,
		At:            now,
	})
	s.UpdatedAt = now
}

// Suggest guarda la sugerencia del interprete sin comprometer una respuesta.
func (s *RespondentSession) Suggest(sug Suggestion, now time.Time) error {
	if err := s.CanRespond(); err != nil {
		return err
	}
	if !sug.Option.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidOption, int(sug.Option))
	}
	sug.SuggestedAt = now
	s.Pending = &sug
	s.State = SessionAwaitingConfirmation
	s.UpdatedAt = now
	return nil
}

// Confirm acepta la sugerencia, la reemplaza por override o la descarta.
// Devuelve true si se comprometio una respuesta. Fuera de
// awaiting_confirmation no modifica la sesion.
func (s *RespondentSession) Confirm(accept bool, override *sdq.Option, now time.Time) (bool, error) {
	if s.State != SessionAwaitingConfirmation {
		return false, StateError("confirm", s.State)
	}
	if s.QuestionIndex >= sdq.Size {
		return false, fmt.Errorf("%w: %d", ErrIndexOutOfRange, s.QuestionIndex)
	}
	if s.Pending == nil {
		return false, StateError("confirm without suggestion", s.State)
	}

	var chosen sdq.Option
	overridden := false
	switch {
	case accept:
		chosen = s.Pending.Option
	case override != nil:
		if !override.Valid() {
			return false, fmt.Errorf("%w: %d", ErrInvalidOption, int(*override))
		}
		chosen = *override
		overridden = true
	default:
		s.Pending = nil
		s.State = SessionAwaitingAnswer
		s.UpdatedAt = now
		return false, nil
	}

	s.Answers = append(s.Answers, Answer{
		QuestionIndex: s.QuestionIndex,
		Option:        chosen,
		Overridden:    overridden,
		Fragments:     s.Fragments(s.QuestionIndex),
		ConfirmedAt:   now,
	})
	s.Pending = nil
	s.QuestionIndex++
	s.UpdatedAt = now

	if s.QuestionIndex < sdq.Size {
		s.State = SessionAwaitingAnswer
		return true, nil
	}

	scores, err := sdq.Score(s.AnswerMap())
	if err != nil {
		return true, err
	}
	s.Scores = scores
	s.State = SessionCompleted
	completed := now
	s.CompletedAt = &completed
	return true, nil
}

// Submit marca la sesion como enviada. Repetirlo sobre una sesion enviada
// no es error: devuelve alreadySubmitted=true.
func (s *RespondentSession) Submit(now time.Time) (alreadySubmitted bool, err error) {
	switch s.State {
	case SessionSubmitted:
		return true, nil
	case SessionCompleted:
		s.State = SessionSubmitted
		submitted := now
		s.SubmittedAt = &submitted
		s.UpdatedAt = now
		return false, nil
	default:
		return false, fmt.Errorf("%w: answered %d of %d", ErrNotComplete, len(s.Answers), sdq.Size)
	}
}

// AnswerMap indexa las opciones confirmadas por pregunta.
func (s *RespondentSession) AnswerMap() map[int]sdq.Option {
	out := make(map[int]sdq.Option, len(s.Answers))
	for _, a := range s.Answers {
		out[a.QuestionIndex] = a.Option
	}
	return out
}

// Answer busca la respuesta confirmada de una pregunta.
func (s *RespondentSession) Answer(index int) (Answer, bool) {
	for _, a := range s.Answers {
		if a.QuestionIndex == index {
			return a, true
		}
	}
	return Answer{}, false
}

// Fragments devuelve el texto libre del respondente para una pregunta.
func (s *RespondentSession) Fragments(index int) []string {
	var out []string
	for _, e := range s.Transcript {
		if e.QuestionIndex == index && e.Speaker == SpeakerRespondent {
			out = append(out, e.Content)
		}
	}
	return out
}

// Clone devuelve una copia profunda, usada por los stores en memoria.
func (s *RespondentSession) Clone() RespondentSession {
	c := *s
	c.Answers = make([]Answer, len(s.Answers))
	for i, a := range s.Answers {
		a.Fragments = append([]string(nil), a.Fragments...)
		c.Answers[i] = a
	}
	c.Transcript = append([]Exchange{}, s.Transcript...)
	c.Scores = append([]sdq.SubscaleScore(nil), s.Scores...)
	if s.Pending != nil {
		p := *s.Pending
		c.Pending = &p
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	if s.SubmittedAt != nil {
		t := *s.SubmittedAt
		c.SubmittedAt = &t
	}
	return c
}
