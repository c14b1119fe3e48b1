package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sdq-screen/internal/domain"
	"sdq-screen/internal/email"
	"sdq-screen/internal/repository"
	"sdq-screen/internal/sdq"
)

// RespondentPolicy decide que roles deben enviar antes de pasar a revision.
type RespondentPolicy struct {
	// SelfReportMinAge es la edad minima para que el sujeto responda por si mismo.
	SelfReportMinAge int
	// RequireAllRoles exige todos los roles elegibles en lugar del minimo.
	RequireAllRoles bool
}

func DefaultRespondentPolicy() RespondentPolicy {
	return RespondentPolicy{SelfReportMinAge: 11}
}

func (p RespondentPolicy) SelfReportEligible(age int) bool {
	return age >= p.SelfReportMinAge
}

// EligibleRoles lista los roles que pueden responder sobre un sujeto de esa edad.
func (p RespondentPolicy) EligibleRoles(age int) []domain.Role {
	if p.SelfReportEligible(age) {
		return []domain.Role{domain.RoleChild, domain.RoleParent, domain.RoleTeacher}
	}
	return []domain.Role{domain.RoleParent, domain.RoleTeacher}
}

// Satisfied indica si los roles enviados alcanzan el minimo de la politica.
// Por defecto: autoreporte si la edad lo permite, si no al menos padre o docente.
func (p RespondentPolicy) Satisfied(age int, submitted map[domain.Role]domain.ReviewEntry) bool {
	has := func(r domain.Role) bool {
		_, ok := submitted[r]
		return ok
	}
	if p.RequireAllRoles {
		for _, r := range p.EligibleRoles(age) {
			if !has(r) {
				return false
			}
		}
		return true
	}
	if p.SelfReportEligible(age) {
		return has(domain.RoleChild)
	}
	return has(domain.RoleParent) || has(domain.RoleTeacher)
}

// Aggregator une las sesiones enviadas de un sujeto en su ReviewRecord.
type Aggregator struct {
	logger   *zap.Logger
	subjects repository.SubjectRepository
	sessions repository.SessionRepository
	reviews  repository.ReviewRepository
	catalog  *sdq.Catalog
	policy   RespondentPolicy
	notifier email.Notifier
	now      func() time.Time
}

func NewAggregator(
	logger *zap.Logger,
	subjects repository.SubjectRepository,
	sessions repository.SessionRepository,
	reviews repository.ReviewRepository,
	catalog *sdq.Catalog,
	policy RespondentPolicy,
	notifier email.Notifier,
) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		logger:   logger,
		subjects: subjects,
		sessions: sessions,
		reviews:  reviews,
		catalog:  catalog,
		policy:   policy,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (a *Aggregator) Policy() RespondentPolicy {
	return a.policy
}

// Attach registra una sesion enviada. Repetirlo con la misma sesion no cambia nada.
func (a *Aggregator) Attach(ctx context.Context, session domain.RespondentSession) (domain.ReviewRecord, error) {
	if !session.Submitted() || session.SubmittedAt == nil {
		return domain.ReviewRecord{}, fmt.Errorf("%w: session %s not submitted", domain.ErrNotComplete, session.ID)
	}
	subject, err := a.subject(ctx, session.SubjectID)
	if err != nil {
		return domain.ReviewRecord{}, err
	}

	before := domain.StatusAwaitingRespondents
	if prev, err := a.reviews.Get(ctx, subject.ID); err == nil {
		before = a.StatusOf(subject, prev)
	} else if !repository.IsNotFound(err) {
		return domain.ReviewRecord{}, err
	}

	rec, err := a.reviews.Attach(ctx, subject.ID, session.Role, domain.ReviewEntry{
		SessionID:   session.ID,
		SubmittedAt: *session.SubmittedAt,
	}, a.now())
	if err != nil {
		return domain.ReviewRecord{}, fmt.Errorf("attach session: %w", err)
	}

	after := a.StatusOf(subject, rec)
	a.logger.Info("session attached",
		zap.String("subject_id", subject.ID),
		zap.String("role", string(session.Role)),
		zap.String("session_id", session.ID),
		zap.String("status", string(after)),
	)
	if before != domain.StatusPendingReview && after == domain.StatusPendingReview && a.notifier != nil {
		if err := a.notifier.ReviewReady(ctx, subject.ID, subject.Name); err != nil {
			a.logger.Warn("review ready notification failed", zap.String("subject_id", subject.ID), zap.Error(err))
		}
	}
	return rec, nil
}

// StatusOf deriva el estado agregado de un registro.
func (a *Aggregator) StatusOf(subject domain.Subject, rec domain.ReviewRecord) domain.AggregateStatus {
	if rec.Finalized() {
		return domain.StatusReviewed
	}
	if a.policy.Satisfied(subject.Age, rec.Sessions) {
		return domain.StatusPendingReview
	}
	return domain.StatusAwaitingRespondents
}

func (a *Aggregator) Status(ctx context.Context, subjectID string) (domain.AggregateStatus, error) {
	subject, err := a.subject(ctx, subjectID)
	if err != nil {
		return "", err
	}
	rec, err := a.reviews.Get(ctx, subjectID)
	if repository.IsNotFound(err) {
		return domain.StatusAwaitingRespondents, nil
	}
	if err != nil {
		return "", err
	}
	return a.StatusOf(subject, rec), nil
}

// RoleSession es la sesion enviada de un rol con sus puntajes.
type RoleSession struct {
	Role              domain.Role              `json:"role"`
	Session           domain.RespondentSession `json:"session"`
	Scores            []sdq.SubscaleScore      `json:"scores"`
	TotalDifficulties int                      `json:"total_difficulties"`
}

// RecordView es la vista completa que usa el profesional para revisar.
type RecordView struct {
	Subject  domain.Subject         `json:"subject"`
	Record   domain.ReviewRecord    `json:"record"`
	Status   domain.AggregateStatus `json:"status"`
	Sessions []RoleSession          `json:"sessions"`
}

func (a *Aggregator) Record(ctx context.Context, subjectID string) (RecordView, error) {
	subject, err := a.subject(ctx, subjectID)
	if err != nil {
		return RecordView{}, err
	}
	rec, err := a.reviews.Get(ctx, subjectID)
	if repository.IsNotFound(err) {
		return RecordView{}, domain.ErrReviewNotFound
	}
	if err != nil {
		return RecordView{}, err
	}
	view := RecordView{Subject: subject, Record: rec, Status: a.StatusOf(subject, rec)}
	for _, role := range rec.Roles() {
		session, err := a.sessions.GetByID(ctx, rec.Sessions[role].SessionID)
		if err != nil {
			return RecordView{}, fmt.Errorf("load %s session: %w", role, err)
		}
		// Se recalcula desde las respuestas para no depender del valor persistido.
		scores, err := sdq.Score(session.AnswerMap())
		if err != nil {
			return RecordView{}, fmt.Errorf("score %s session: %w", role, err)
		}
		view.Sessions = append(view.Sessions, RoleSession{
			Role:              role,
			Session:           session,
			Scores:            scores,
			TotalDifficulties: sdq.TotalDifficulties(scores),
		})
	}
	return view, nil
}

// RoleAnswer es la respuesta de un rol a una pregunta en la vista comparativa.
type RoleAnswer struct {
	Role       domain.Role `json:"role"`
	SessionID  string      `json:"session_id"`
	Prompt     string      `json:"prompt"`
	Option     *sdq.Option `json:"option,omitempty"`
	Overridden bool        `json:"overridden"`
	Fragments  []string    `json:"fragments"`
}

type Comparison struct {
	SubjectID     string       `json:"subject_id"`
	QuestionIndex int          `json:"question_index"`
	Subscale      sdq.Subscale `json:"subscale"`
	Answers       []RoleAnswer `json:"answers"`
}

// Compare muestra lo que cada rol respondio a una misma pregunta.
func (a *Aggregator) Compare(ctx context.Context, subjectID string, questionIndex int) (Comparison, error) {
	if questionIndex < 0 || questionIndex >= sdq.Size {
		return Comparison{}, fmt.Errorf("%w: %d", domain.ErrIndexOutOfRange, questionIndex)
	}
	view, err := a.Record(ctx, subjectID)
	if err != nil {
		return Comparison{}, err
	}
	out := Comparison{SubjectID: subjectID, QuestionIndex: questionIndex}
	for _, rs := range view.Sessions {
		q, err := a.catalog.Question(rs.Session.Band, questionIndex)
		if err != nil {
			return Comparison{}, err
		}
		out.Subscale = q.Subscale
		ra := RoleAnswer{
			Role:      rs.Role,
			SessionID: rs.Session.ID,
			Prompt:    sdq.Phrase(q.Text, view.Subject.Name, rs.Role.SelfReport()),
			Fragments: rs.Session.Fragments(questionIndex),
		}
		if ans, ok := rs.Session.Answer(questionIndex); ok {
			opt := ans.Option
			ra.Option = &opt
			ra.Overridden = ans.Overridden
		}
		out.Answers = append(out.Answers, ra)
	}
	return out, nil
}

func (a *Aggregator) subject(ctx context.Context, subjectID string) (domain.Subject, error) {
	subject, err := a.subjects.GetByID(ctx, subjectID)
	if err != nil {
		if repository.IsNotFound(err) {
			return domain.Subject{}, domain.ErrInvalidSubject
		}
		return domain.Subject{}, err
	}
	return subject, nil
}
