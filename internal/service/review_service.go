package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"sdq-screen/internal/domain"
	"sdq-screen/internal/email"
	"sdq-screen/internal/repository"
	"sdq-screen/internal/sdq"
)

// ResultsPending es el resumen que ve un respondente antes de la revision.
const ResultsPending = "pending"

// ReviewService implementa el flujo unreviewed -> drafting -> finalized.
type ReviewService struct {
	logger     *zap.Logger
	reviews    repository.ReviewRepository
	sessions   repository.SessionRepository
	subjects   repository.SubjectRepository
	users      repository.UserRepository
	aggregator *Aggregator
	drafter    SummaryDrafter
	indexer    *TranscriptIndexer
	notifier   email.Notifier
	now        func() time.Time
}

func NewReviewService(
	logger *zap.Logger,
	reviews repository.ReviewRepository,
	sessions repository.SessionRepository,
	subjects repository.SubjectRepository,
	users repository.UserRepository,
	aggregator *Aggregator,
	drafter SummaryDrafter,
	indexer *TranscriptIndexer,
	notifier email.Notifier,
) *ReviewService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if drafter == nil {
		drafter = TemplateDrafter{}
	}
	return &ReviewService{
		logger:     logger,
		reviews:    reviews,
		sessions:   sessions,
		subjects:   subjects,
		users:      users,
		aggregator: aggregator,
		drafter:    drafter,
		indexer:    indexer,
		notifier:   notifier,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Record devuelve la vista completa del registro para el profesional.
func (s *ReviewService) Record(ctx context.Context, subjectID string) (RecordView, error) {
	return s.aggregator.Record(ctx, subjectID)
}

func (s *ReviewService) Compare(ctx context.Context, subjectID string, questionIndex int) (Comparison, error) {
	return s.aggregator.Compare(ctx, subjectID, questionIndex)
}

// Begin abre la edicion del resumen. Requiere pending_review; repetirlo
// mientras se edita conserva el borrador.
func (s *ReviewService) Begin(ctx context.Context, subjectID string) (domain.ReviewRecord, error) {
	view, err := s.aggregator.Record(ctx, subjectID)
	if err != nil {
		return domain.ReviewRecord{}, err
	}
	rec := view.Record
	if rec.State == domain.ReviewDrafting {
		return rec, nil
	}
	if view.Status != domain.StatusPendingReview {
		return domain.ReviewRecord{}, domain.StateError("begin review", view.Status)
	}

	seed := ""
	if strings.TrimSpace(rec.Draft) == "" {
		seed, err = s.drafter.Draft(ctx, view)
		if err != nil {
			s.logger.Warn("draft summary failed", zap.String("subject_id", subjectID), zap.Error(err))
			seed = ""
		}
	}

	expected := rec.Version
	if err := rec.Begin(seed, s.now()); err != nil {
		return domain.ReviewRecord{}, err
	}
	if err := s.save(ctx, &rec, expected); err != nil {
		return domain.ReviewRecord{}, err
	}
	s.logger.Info("review started", zap.String("subject_id", subjectID))
	return rec, nil
}

func (s *ReviewService) EditDraft(ctx context.Context, subjectID, text string) (domain.ReviewRecord, error) {
	rec, err := s.get(ctx, subjectID)
	if err != nil {
		return domain.ReviewRecord{}, err
	}
	expected := rec.Version
	if err := rec.EditDraft(text, s.now()); err != nil {
		return domain.ReviewRecord{}, err
	}
	if err := s.save(ctx, &rec, expected); err != nil {
		return domain.ReviewRecord{}, err
	}
	return rec, nil
}

// Finalize publica el resumen. Si text viene vacio se usa el borrador.
// Entre dos finalizaciones concurrentes gana la primera; la otra recibe ErrState.
func (s *ReviewService) Finalize(ctx context.Context, subjectID, reviewerID, text string) (domain.ReviewRecord, error) {
	rec, err := s.get(ctx, subjectID)
	if err != nil {
		return domain.ReviewRecord{}, err
	}
	if strings.TrimSpace(text) == "" {
		text = rec.Draft
	}
	expected := rec.Version
	if err := rec.Finalize(reviewerID, text, s.now()); err != nil {
		return domain.ReviewRecord{}, err
	}
	if err := s.save(ctx, &rec, expected); err != nil {
		return domain.ReviewRecord{}, err
	}
	s.logger.Info("review finalized", zap.String("subject_id", subjectID), zap.String("reviewer_id", reviewerID))
	s.notifyReleased(ctx, rec)
	return rec, nil
}

// ReviewListItem es una fila del tablero del profesional.
type ReviewListItem struct {
	SubjectID   string                 `json:"subject_id"`
	SubjectName string                 `json:"subject_name"`
	Age         int                    `json:"age"`
	Status      domain.AggregateStatus `json:"status"`
	State       domain.ReviewState     `json:"state"`
	Roles       []domain.Role          `json:"roles"`
	ReviewerID  string                 `json:"reviewer_id,omitempty"`
	ReviewedAt  *time.Time             `json:"reviewed_at,omitempty"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// List filtra los registros por estado agregado; status vacio devuelve todos.
func (s *ReviewService) List(ctx context.Context, status domain.AggregateStatus) ([]ReviewListItem, error) {
	records, err := s.reviews.List(ctx)
	if err != nil {
		return nil, err
	}
	out := []ReviewListItem{}
	for _, rec := range records {
		subject, err := s.subjects.GetByID(ctx, rec.SubjectID)
		if err != nil {
			if repository.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		st := s.aggregator.StatusOf(subject, rec)
		if status != "" && st != status {
			continue
		}
		out = append(out, ReviewListItem{
			SubjectID:   subject.ID,
			SubjectName: subject.Name,
			Age:         subject.Age,
			Status:      st,
			State:       rec.State,
			Roles:       rec.Roles(),
			ReviewerID:  rec.ReviewerID,
			ReviewedAt:  rec.ReviewedAt,
			UpdatedAt:   rec.UpdatedAt,
		})
	}
	return out, nil
}

// Results es lo que ve un respondente: sus propios puntajes y el resumen
// profesional una vez finalizado.
type Results struct {
	SubjectID         string                 `json:"subject_id"`
	Role              domain.Role            `json:"role"`
	SessionID         string                 `json:"session_id"`
	Scores            []sdq.SubscaleScore    `json:"scores"`
	TotalDifficulties int                    `json:"total_difficulties"`
	Status            domain.AggregateStatus `json:"status"`
	Summary           string                 `json:"summary"`
	SummaryHTML       string                 `json:"summary_html,omitempty"`
	ReviewedAt        *time.Time             `json:"reviewed_at,omitempty"`
}

func (s *ReviewService) Results(ctx context.Context, subjectID, respondentID string) (Results, error) {
	session, err := s.sessions.LatestSubmitted(ctx, subjectID, respondentID)
	if err != nil {
		if repository.IsNotFound(err) {
			return Results{}, domain.ErrSessionNotFound
		}
		return Results{}, err
	}
	scores, err := sdq.Score(session.AnswerMap())
	if err != nil {
		return Results{}, err
	}
	out := Results{
		SubjectID:         subjectID,
		Role:              session.Role,
		SessionID:         session.ID,
		Scores:            scores,
		TotalDifficulties: sdq.TotalDifficulties(scores),
		Status:            domain.StatusAwaitingRespondents,
		Summary:           ResultsPending,
	}
	status, err := s.aggregator.Status(ctx, subjectID)
	if err != nil {
		return Results{}, err
	}
	out.Status = status
	if status != domain.StatusReviewed {
		return out, nil
	}
	rec, err := s.get(ctx, subjectID)
	if err != nil {
		return Results{}, err
	}
	out.Summary = rec.Summary
	out.ReviewedAt = rec.ReviewedAt
	html, err := RenderSummaryHTML(rec.Summary)
	if err != nil {
		s.logger.Warn("render summary failed", zap.String("subject_id", subjectID), zap.Error(err))
	} else {
		out.SummaryHTML = html
	}
	return out, nil
}

// Search busca fragmentos de los respondentes por significado.
func (s *ReviewService) Search(ctx context.Context, subjectID, query string, k int) ([]domain.TranscriptEmbedding, error) {
	if _, err := s.get(ctx, subjectID); err != nil {
		return nil, err
	}
	return s.indexer.Search(ctx, subjectID, query, k)
}

func (s *ReviewService) get(ctx context.Context, subjectID string) (domain.ReviewRecord, error) {
	rec, err := s.reviews.Get(ctx, subjectID)
	if err != nil {
		if repository.IsNotFound(err) {
			return domain.ReviewRecord{}, domain.ErrReviewNotFound
		}
		return domain.ReviewRecord{}, err
	}
	return rec, nil
}

func (s *ReviewService) save(ctx context.Context, rec *domain.ReviewRecord, expected int) error {
	rec.Version = expected + 1
	if err := s.reviews.Update(ctx, *rec, expected); err != nil {
		rec.Version = expected
		if errors.Is(err, repository.ErrVersionConflict) {
			return domain.StateError("concurrent review update", rec.State)
		}
		return fmt.Errorf("update review: %w", err)
	}
	return nil
}

func (s *ReviewService) notifyReleased(ctx context.Context, rec domain.ReviewRecord) {
	if s.notifier == nil {
		return
	}
	subject, err := s.subjects.GetByID(ctx, rec.SubjectID)
	if err != nil {
		s.logger.Warn("results notification skipped", zap.String("subject_id", rec.SubjectID), zap.Error(err))
		return
	}
	var recipients []string
	seen := map[string]bool{}
	for _, role := range rec.Roles() {
		session, err := s.sessions.GetByID(ctx, rec.Sessions[role].SessionID)
		if err != nil || s.users == nil {
			continue
		}
		user, err := s.users.GetByID(ctx, session.RespondentID)
		if err != nil || user.Email == "" || seen[user.Email] {
			continue
		}
		seen[user.Email] = true
		recipients = append(recipients, user.Email)
	}
	if err := s.notifier.ResultsReleased(ctx, recipients, subject.ID, subject.Name); err != nil {
		s.logger.Warn("results notification failed", zap.String("subject_id", rec.SubjectID), zap.Error(err))
	}
}
