package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sdq-screen/internal/domain"
	"sdq-screen/internal/repository"
	"sdq-screen/internal/sdq"
)

var (
	ErrRateLimited          = errors.New("rate limited")
	ErrSelfReportIneligible = errors.New("subject is too young for a self report")
)

const defaultInterpretTimeout = 8 * time.Second

// SessionService conduce el protocolo pregunta / sugerencia / confirmacion
// de una sesion de respondente.
type SessionService struct {
	logger      *zap.Logger
	subjects    repository.SubjectRepository
	sessions    repository.SessionRepository
	catalog     *sdq.Catalog
	interpreter Interpreter
	aggregator  *Aggregator
	limiter     RateLimiter
	indexer     *TranscriptIndexer
	timeout     time.Duration
	now         func() time.Time
}

type SessionOption func(*SessionService)

func WithRateLimiter(l RateLimiter) SessionOption {
	return func(s *SessionService) { s.limiter = l }
}

func WithTranscriptIndexer(ix *TranscriptIndexer) SessionOption {
	return func(s *SessionService) { s.indexer = ix }
}

func WithInterpretTimeout(d time.Duration) SessionOption {
	return func(s *SessionService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithClock(now func() time.Time) SessionOption {
	return func(s *SessionService) { s.now = now }
}

func NewSessionService(
	logger *zap.Logger,
	subjects repository.SubjectRepository,
	sessions repository.SessionRepository,
	catalog *sdq.Catalog,
	interpreter Interpreter,
	aggregator *Aggregator,
	opts ...SessionOption,
) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interpreter == nil {
		interpreter = KeywordInterpreter{}
	}
	s := &SessionService{
		logger:      logger,
		subjects:    subjects,
		sessions:    sessions,
		catalog:     catalog,
		interpreter: interpreter,
		aggregator:  aggregator,
		timeout:     defaultInterpretTimeout,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// QuestionPrompt es la pregunta actual tal como se le muestra al respondente.
type QuestionPrompt struct {
	Index   int      `json:"index"`
	Number  int      `json:"number"`
	Total   int      `json:"total"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
}

type StartInput struct {
	SubjectID    string
	Role         domain.Role
	RespondentID string
}

type SessionView struct {
	Session  domain.RespondentSession `json:"session"`
	Question *QuestionPrompt          `json:"question,omitempty"`
}

// Start abre una sesion nueva. Si ya hay una sin enviar para el sujeto y rol
// devuelve *domain.DuplicateSessionError; el id solo se incluye si pertenece
// al mismo respondente, para que pueda retomarla.
func (s *SessionService) Start(ctx context.Context, input StartInput) (SessionView, error) {
	if !input.Role.Valid() {
		return SessionView{}, fmt.Errorf("%w: %q", domain.ErrInvalidRole, input.Role)
	}
	if strings.TrimSpace(input.RespondentID) == "" {
		return SessionView{}, errors.New("respondent id is required")
	}
	subject, err := s.subjects.GetByID(ctx, strings.TrimSpace(input.SubjectID))
	if err != nil {
		if repository.IsNotFound(err) {
			return SessionView{}, domain.ErrInvalidSubject
		}
		return SessionView{}, err
	}
	band, err := s.catalog.BandForAge(subject.Age)
	if err != nil {
		return SessionView{}, fmt.Errorf("%w: %v", domain.ErrInvalidSubject, err)
	}
	if input.Role.SelfReport() && s.aggregator != nil && !s.aggregator.Policy().SelfReportEligible(subject.Age) {
		return SessionView{}, ErrSelfReportIneligible
	}

	if err := s.checkActive(ctx, subject.ID, input.Role, input.RespondentID); err != nil {
		return SessionView{}, err
	}

	session := domain.NewRespondentSession(uuid.NewString(), subject, input.Role, input.RespondentID, s.catalog.Version(), band, s.now())
	if err := s.sessions.Create(ctx, session); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			if dupErr := s.checkActive(ctx, subject.ID, input.Role, input.RespondentID); dupErr != nil {
				return SessionView{}, dupErr
			}
			return SessionView{}, domain.ErrDuplicateSession
		}
		return SessionView{}, err
	}

	s.logger.Info("session started",
		zap.String("session_id", session.ID),
		zap.String("subject_id", subject.ID),
		zap.String("role", string(input.Role)),
		zap.String("band", string(band)),
	)
	return s.view(session, subject), nil
}

func (s *SessionService) checkActive(ctx context.Context, subjectID string, role domain.Role, respondentID string) error {
	active, err := s.sessions.FindActive(ctx, subjectID, role)
	if err == nil {
		dup := &domain.DuplicateSessionError{}
		if active.RespondentID == respondentID {
			dup.SessionID = active.ID
		}
		return dup
	}
	if !repository.IsNotFound(err) {
		return err
	}
	return nil
}

const blankAnswerPrompt = "Please describe how true this is."

type RespondInput struct {
	SessionID     string
	RespondentID  string
	QuestionIndex int
	FreeText      string
}

type RespondResult struct {
	QuestionIndex int                 `json:"question_index"`
	State         domain.SessionState `json:"state"`
	Option        *sdq.Option         `json:"option,omitempty"`
	Confidence    float64             `json:"confidence,omitempty"`
	Message       string              `json:"message"`
}

// Respond interpreta el texto libre de la pregunta actual. Con exito deja una
// sugerencia pendiente de confirmacion; con error la sesion queda en el mismo
// estado. El intercambio se guarda en el transcript en ambos casos.
func (s *SessionService) Respond(ctx context.Context, input RespondInput) (RespondResult, error) {
	session, subject, err := s.load(ctx, input.SessionID, input.RespondentID)
	if err != nil {
		return RespondResult{}, err
	}
	if err := session.CanRespond(); err != nil {
		return RespondResult{}, err
	}
	if input.QuestionIndex != session.QuestionIndex {
		return RespondResult{}, domain.StateError(fmt.Sprintf("respond to question %d", input.QuestionIndex), fmt.Sprintf("question %d", session.QuestionIndex))
	}
	expected := session.Version
	now := s.now()
	text := strings.TrimSpace(input.FreeText)
	history := transcriptFor(session, session.QuestionIndex)
	session.RecordExchange(domain.SpeakerRespondent, text, now)
	if text == "" {
		session.RecordExchange(domain.SpeakerAssistant, blankAnswerPrompt, now)
		if err := s.save(ctx, &session, expected); err != nil {
			return RespondResult{}, err
		}
		return RespondResult{QuestionIndex: session.QuestionIndex, State: session.State, Message: blankAnswerPrompt},
			&domain.UnintelligibleError{Message: blankAnswerPrompt}
	}
	if s.limiter != nil && !s.limiter.Allow(input.RespondentID) {
		if err := s.save(ctx, &session, expected); err != nil {
			return RespondResult{}, err
		}
		return RespondResult{QuestionIndex: session.QuestionIndex, State: session.State}, ErrRateLimited
	}

	q, err := s.catalog.Question(session.Band, session.QuestionIndex)
	if err != nil {
		return RespondResult{}, err
	}
	req := InterpretRequest{
		Question:    q,
		Prompt:      sdq.Phrase(q.Text, subject.Name, session.Role.SelfReport()),
		SubjectName: subject.Name,
		Age:         subject.Age,
		Role:        session.Role,
		FreeText:    text,
		Transcript:  history,
	}

	ictx, cancel := context.WithTimeout(ctx, s.timeout)
	in, ierr := s.interpreter.Interpret(ictx, req)
	cancel()

	result := RespondResult{QuestionIndex: session.QuestionIndex}
	if ierr != nil {
		ierr = normalizeInterpretError(ierr)
		var unint *domain.UnintelligibleError
		if errors.As(ierr, &unint) && unint.Message != "" {
			session.RecordExchange(domain.SpeakerAssistant, unint.Message, now)
			result.Message = unint.Message
		}
		if err := s.save(ctx, &session, expected); err != nil {
			return RespondResult{}, err
		}
		s.logger.Info("interpretation failed",
			zap.String("session_id", session.ID),
			zap.Int("question_index", session.QuestionIndex),
			zap.Error(ierr),
		)
		result.State = session.State
		return result, ierr
	}

	if err := session.Suggest(domain.Suggestion{
		Option:     in.Option,
		Confidence: in.Confidence,
		Message:    in.Message,
	}, now); err != nil {
		return RespondResult{}, err
	}
	if in.Message != "" {
		session.RecordExchange(domain.SpeakerAssistant, in.Message, now)
	}
	if err := s.save(ctx, &session, expected); err != nil {
		return RespondResult{}, err
	}
	s.indexer.IndexAsync(session, req.Question.Index, text)

	opt := in.Option
	result.Option = &opt
	result.Confidence = in.Confidence
	result.Message = in.Message
	result.State = session.State
	return result, nil
}

// normalizeInterpretError reduce cualquier falla del interprete a las dos
// categorias del protocolo.
func normalizeInterpretError(err error) error {
	if errors.Is(err, domain.ErrAdapterUnintelligible) || errors.Is(err, domain.ErrAdapterTimeout) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrAdapterTimeout, err)
}

type ConfirmInput struct {
	SessionID     string
	RespondentID  string
	QuestionIndex int
	Accept        bool
	Override      *sdq.Option
}

type ConfirmResult struct {
	Committed bool                `json:"committed"`
	State     domain.SessionState `json:"state"`
	Completed bool                `json:"completed"`
	Question  *QuestionPrompt     `json:"question,omitempty"`
	Scores    []sdq.SubscaleScore `json:"scores,omitempty"`
}

// Confirm acepta, reemplaza o descarta la sugerencia pendiente.
func (s *SessionService) Confirm(ctx context.Context, input ConfirmInput) (ConfirmResult, error) {
	session, subject, err := s.load(ctx, input.SessionID, input.RespondentID)
	if err != nil {
		return ConfirmResult{}, err
	}
	if session.State != domain.SessionAwaitingConfirmation {
		return ConfirmResult{}, domain.StateError("confirm", session.State)
	}
	if input.QuestionIndex >= sdq.Size || input.QuestionIndex < 0 {
		return ConfirmResult{}, fmt.Errorf("%w: %d", domain.ErrIndexOutOfRange, input.QuestionIndex)
	}
	if input.QuestionIndex != session.QuestionIndex {
		return ConfirmResult{}, domain.StateError(fmt.Sprintf("confirm question %d", input.QuestionIndex), fmt.Sprintf("question %d", session.QuestionIndex))
	}

	expected := session.Version
	committed, err := session.Confirm(input.Accept, input.Override, s.now())
	if err != nil {
		return ConfirmResult{}, err
	}
	if err := s.save(ctx, &session, expected); err != nil {
		return ConfirmResult{}, err
	}

	if session.State == domain.SessionCompleted {
		s.logger.Info("session completed", zap.String("session_id", session.ID))
	}
	view := s.view(session, subject)
	return ConfirmResult{
		Committed: committed,
		State:     session.State,
		Completed: session.Completed(),
		Question:  view.Question,
		Scores:    session.Scores,
	}, nil
}

type SubmitResult struct {
	Session          domain.RespondentSession `json:"session"`
	AlreadySubmitted bool                     `json:"already_submitted"`
	Status           domain.AggregateStatus   `json:"status,omitempty"`
}

// Submit cierra la sesion y la adjunta al registro del sujeto. Repetirlo
// devuelve la misma sesion sin error.
func (s *SessionService) Submit(ctx context.Context, sessionID, respondentID string) (SubmitResult, error) {
	session, subject, err := s.load(ctx, sessionID, respondentID)
	if err != nil {
		return SubmitResult{}, err
	}
	expected := session.Version
	already, err := session.Submit(s.now())
	if err != nil {
		return SubmitResult{}, err
	}
	if !already {
		if err := s.save(ctx, &session, expected); err != nil {
			return SubmitResult{}, err
		}
		s.logger.Info("session submitted", zap.String("session_id", session.ID), zap.String("subject_id", session.SubjectID))
	}

	result := SubmitResult{Session: session, AlreadySubmitted: already}
	if s.aggregator == nil {
		return result, nil
	}
	// Attach ignora una sesion ya registrada, asi que reintentar es seguro.
	rec, err := s.aggregator.Attach(ctx, session)
	if err != nil {
		return SubmitResult{}, err
	}
	result.Status = s.aggregator.StatusOf(subject, rec)
	return result, nil
}

// Get devuelve la sesion solo a su respondente.
func (s *SessionService) Get(ctx context.Context, sessionID, respondentID string) (SessionView, error) {
	session, subject, err := s.load(ctx, sessionID, respondentID)
	if err != nil {
		return SessionView{}, err
	}
	return s.view(session, subject), nil
}

func (s *SessionService) load(ctx context.Context, sessionID, respondentID string) (domain.RespondentSession, domain.Subject, error) {
	session, err := s.sessions.GetByID(ctx, strings.TrimSpace(sessionID))
	if err != nil {
		if repository.IsNotFound(err) {
			return domain.RespondentSession{}, domain.Subject{}, domain.ErrSessionNotFound
		}
		return domain.RespondentSession{}, domain.Subject{}, err
	}
	if session.RespondentID != respondentID {
		return domain.RespondentSession{}, domain.Subject{}, domain.ErrSessionNotFound
	}
	subject, err := s.subjects.GetByID(ctx, session.SubjectID)
	if err != nil {
		if repository.IsNotFound(err) {
			return domain.RespondentSession{}, domain.Subject{}, domain.ErrInvalidSubject
		}
		return domain.RespondentSession{}, domain.Subject{}, err
	}
	return session, subject, nil
}

// save persiste con control de version; un escritor concurrente gana y este
// recibe ErrState.
func (s *SessionService) save(ctx context.Context, session *domain.RespondentSession, expected int) error {
	session.Version = expected + 1
	if err := s.sessions.Update(ctx, *session, expected); err != nil {
		session.Version = expected
		if errors.Is(err, repository.ErrVersionConflict) {
			return domain.StateError("concurrent update", session.State)
		}
		return err
	}
	return nil
}

func (s *SessionService) view(session domain.RespondentSession, subject domain.Subject) SessionView {
	v := SessionView{Session: session}
	if session.Completed() || session.QuestionIndex >= sdq.Size {
		return v
	}
	q, err := s.catalog.Question(session.Band, session.QuestionIndex)
	if err != nil {
		return v
	}
	v.Question = &QuestionPrompt{
		Index:   q.Index,
		Number:  q.Index + 1,
		Total:   sdq.Size,
		Prompt:  sdq.Phrase(q.Text, subject.Name, session.Role.SelfReport()),
		Options: optionLabels(),
	}
	return v
}

func optionLabels() []string {
	opts := sdq.Options()
	out := make([]string, len(opts))
	for i, o := range opts {
		out[i] = o.String()
	}
	return out
}

func transcriptFor(session domain.RespondentSession, index int) []domain.Exchange {
	var out []domain.Exchange
	for _, e := range session.Transcript {
		if e.QuestionIndex == index {
			out = append(out, e)
		}
	}
	return out
}
