package domain

import (
	"strings"
	"time"
)

// ReviewState es el estado del flujo de revision profesional.
type ReviewState string

const (
	ReviewUnreviewed ReviewState = "unreviewed"
	ReviewDrafting   ReviewState = "drafting"
	ReviewFinalized  ReviewState = "finalized"
)

// AggregateStatus es el estado visible del registro de un sujeto.
type AggregateStatus string

const (
	StatusAwaitingRespondents AggregateStatus = "awaiting_respondents"
	StatusPendingReview       AggregateStatus = "pending_review"
	StatusReviewed            AggregateStatus = "reviewed"
)

func ParseAggregateStatus(s string) (AggregateStatus, bool) {
	switch st := AggregateStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusAwaitingRespondents, StatusPendingReview, StatusReviewed:
		return st, true
	}
	return "", false
}

// ReviewEntry referencia la sesion enviada de un rol.
type ReviewEntry struct {
	SessionID   string    `json:"session_id"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// ReviewRecord agrupa las sesiones enviadas de un sujeto y el resumen profesional.
type ReviewRecord struct {
	SubjectID  string               `json:"subject_id"`
	Sessions   map[Role]ReviewEntry `json:"sessions"`
	State      ReviewState          `json:"state"`
	Draft      string               `json:"draft,omitempty"`
	Summary    string               `json:"summary,omitempty"`
	ReviewerID string               `json:"reviewer_id,omitempty"`
	ReviewedAt *time.Time           `json:"reviewed_at,omitempty"`
	Version    int                  `json:"version"`
	CreatedAt  time.Time            `json:"created_at"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

func NewReviewRecord(subjectID string, now time.Time) ReviewRecord {
	return ReviewRecord{
		SubjectID: subjectID,
		Sessions:  make(map[Role]ReviewEntry),
		State:     ReviewUnreviewed,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Attach registra la sesion enviada de un rol. Una sesion enviada mas tarde
// reemplaza a la anterior; una mas vieja se ignora. Devuelve si hubo cambio.
func (r *ReviewRecord) Attach(role Role, sessionID string, submittedAt, now time.Time) bool {
	if r.Sessions == nil {
		r.Sessions = make(map[Role]ReviewEntry)
	}
	if prev, ok := r.Sessions[role]; ok {
		if prev.SessionID == sessionID || prev.SubmittedAt.After(submittedAt) {
			return false
		}
	}
	r.Sessions[role] = ReviewEntry{SessionID: sessionID, SubmittedAt: submittedAt}
	r.UpdatedAt = now
	return true
}

// Roles lista los roles con sesion enviada en orden canonico.
func (r *ReviewRecord) Roles() []Role {
	var out []Role
	for _, role := range Roles {
		if _, ok := r.Sessions[role]; ok {
			out = append(out, role)
		}
	}
	return out
}

// Begin pasa a drafting. Repetirlo en drafting conserva el borrador; el
// borrador semilla solo se usa si no habia texto guardado.
func (r *ReviewRecord) Begin(seedDraft string, now time.Time) error {
	switch r.State {
	case ReviewDrafting:
		return nil
	case ReviewUnreviewed:
		if strings.TrimSpace(r.Draft) == "" {
			r.Draft = seedDraft
		}
		r.State = ReviewDrafting
		r.UpdatedAt = now
		return nil
	default:
		return StateError("begin review", r.State)
	}
}

// EditDraft reemplaza el borrador; solo valido en drafting.
func (r *ReviewRecord) EditDraft(text string, now time.Time) error {
	if r.State != ReviewDrafting {
		return StateError("edit draft", r.State)
	}
	r.Draft = text
	r.UpdatedAt = now
	return nil
}

// Finalize fija el resumen definitivo. Terminal.
func (r *ReviewRecord) Finalize(reviewerID, text string, now time.Time) error {
	if r.State != ReviewDrafting {
		return StateError("finalize", r.State)
	}
	if strings.TrimSpace(reviewerID) == "" {
		return ErrReviewerRequired
	}
	r.Summary = text
	r.Draft = text
	r.ReviewerID = reviewerID
	reviewed := now
	r.ReviewedAt = &reviewed
	r.State = ReviewFinalized
	r.UpdatedAt = now
	return nil
}

func (r *ReviewRecord) Finalized() bool {
	return r.State == ReviewFinalized
}

// Clone devuelve una copia profunda.
func (r *ReviewRecord) Clone() ReviewRecord {
	c := *r
	c.Sessions = make(map[Role]ReviewEntry, len(r.Sessions))
	for k, v := range r.Sessions {
		c.Sessions[k] = v
	}
	if r.ReviewedAt != nil {
		t := *r.ReviewedAt
		c.ReviewedAt = &t
	}
	return c
}
