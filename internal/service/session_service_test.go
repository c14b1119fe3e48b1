package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"sdq-screen/internal/domain"
	"sdq-screen/internal/repository"
	"sdq-screen/internal/sdq"
)

type recordingNotifier struct {
	mu       sync.Mutex
	ready    []string
	released map[string][]string
}

func (n *recordingNotifier) ReviewReady(_ context.Context, subjectID, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ready = append(n.ready, subjectID)
	return nil
}

func (n *recordingNotifier) ResultsReleased(_ context.Context, recipients []string, subjectID, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.released == nil {
		n.released = make(map[string][]string)
	}
	n.released[subjectID] = recipients
	return nil
}

type stubInterpreter struct {
	mu      sync.Mutex
	results []stubResult
	calls   int
}

type stubResult struct {
	in  Interpretation
	err error
}

func (s *stubInterpreter) Interpret(_ context.Context, _ InterpretRequest) (Interpretation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.results) == 0 {
		return Interpretation{}, errors.New("no scripted result")
	}
	r := s.results[0]
	s.results = s.results[1:]
	return r.in, r.err
}

type fixture struct {
	subjects   *repository.MemorySubjectRepository
	sessions   *repository.MemorySessionRepository
	reviews    *repository.MemoryReviewRepository
	users      *repository.MemoryUserRepository
	catalog    *sdq.Catalog
	notifier   *recordingNotifier
	aggregator *Aggregator
	svc        *SessionService
	review     *ReviewService
	clock      time.Time
}

func newFixture(t *testing.T, interpreter Interpreter, policy RespondentPolicy, opts ...SessionOption) *fixture {
	t.Helper()
	f := &fixture{
		subjects: repository.NewMemorySubjectRepository(),
		sessions: repository.NewMemorySessionRepository(),
		reviews:  repository.NewMemoryReviewRepository(),
		users:    repository.NewMemoryUserRepository(),
		catalog:  sdq.DefaultCatalog(),
		notifier: &recordingNotifier{},
		clock:    time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	now := func() time.Time {
		f.clock = f.clock.Add(time.Second)
		return f.clock
	}
	f.aggregator = NewAggregator(zap.NewNop(), f.subjects, f.sessions, f.reviews, f.catalog, policy, f.notifier)
	f.aggregator.now = now
	opts = append([]SessionOption{WithClock(now)}, opts...)
	f.svc = NewSessionService(zap.NewNop(), f.subjects, f.sessions, f.catalog, interpreter, f.aggregator, opts...)
	f.review = NewReviewService(zap.NewNop(), f.reviews, f.sessions, f.subjects, f.users, f.aggregator, TemplateDrafter{}, nil, f.notifier)
	f.review.now = now
	return f
}

func (f *fixture) addSubject(t *testing.T, id string, age int) domain.Subject {
	t.Helper()
	subject := domain.Subject{ID: id, Name: "Sam", Age: age, SharingCode: "CODE" + id, CreatedAt: f.clock}
	if err := f.subjects.Create(context.Background(), subject); err != nil {
		t.Fatalf("create subject: %v", err)
	}
	return subject
}

// answerAll responde y confirma cada pregunta con la opcion dada.
func (f *fixture) answerAll(t *testing.T, sessionID, respondentID string, options map[int]sdq.Option) ConfirmResult {
	t.Helper()
	var last ConfirmResult
	for i := 0; i < sdq.Size; i++ {
		res, err := f.svc.Respond(context.Background(), RespondInput{
			SessionID:     sessionID,
			RespondentID:  respondentID,
			QuestionIndex: i,
			FreeText:      options[i].String(),
		})
		if err != nil {
			t.Fatalf("respond %d: %v", i, err)
		}
		if res.Option == nil || *res.Option != options[i] {
			t.Fatalf("respond %d: expected suggestion %v, got %v", i, options[i], res.Option)
		}
		last, err = f.svc.Confirm(context.Background(), ConfirmInput{
			SessionID:     sessionID,
			RespondentID:  respondentID,
			QuestionIndex: i,
			Accept:        true,
		})
		if err != nil {
			t.Fatalf("confirm %d: %v", i, err)
		}
	}
	return last
}

func (f *fixture) completeAndSubmit(t *testing.T, subjectID string, role domain.Role, respondentID string) SubmitResult {
	t.Helper()
	view, err := f.svc.Start(context.Background(), StartInput{SubjectID: subjectID, Role: role, RespondentID: respondentID})
	if err != nil {
		t.Fatalf("start %s: %v", role, err)
	}
	f.answerAll(t, view.Session.ID, respondentID, uniformAnswers(sdq.SomewhatTrue))
	res, err := f.svc.Submit(context.Background(), view.Session.ID, respondentID)
	if err != nil {
		t.Fatalf("submit %s: %v", role, err)
	}
	return res
}

func uniformAnswers(o sdq.Option) map[int]sdq.Option {
	out := make(map[int]sdq.Option, sdq.Size)
	for i := 0; i < sdq.Size; i++ {
		out[i] = o
	}
	return out
}

// optionFor busca la opcion que aporta exactamente target puntos al item.
func optionFor(t *testing.T, index, target int) sdq.Option {
	t.Helper()
	for _, o := range sdq.Options() {
		c, err := sdq.Contribution(index, o)
		if err != nil {
			t.Fatalf("contribution: %v", err)
		}
		if c == target {
			return o
		}
	}
	t.Fatalf("no option contributes %d to item %d", target, index)
	return 0
}

// setSubscale reparte raw entre los cinco items de la subescala.
func setSubscale(t *testing.T, answers map[int]sdq.Option, s sdq.Subscale, raw int) {
	t.Helper()
	for _, idx := range sdq.SubscaleItems(s) {
		c := raw
		if c > int(sdq.MaxOption) {
			c = int(sdq.MaxOption)
		}
		raw -= c
		answers[idx] = optionFor(t, idx, c)
	}
}

func TestSessionServiceBoundarySeverities(t *testing.T) {
	cases := []struct {
		prosocial, emotional   int
		wantProsocial, wantEmo sdq.Severity
	}{
		{4, 5, sdq.SeverityAbnormal, sdq.SeverityNormal},
		{5, 6, sdq.SeverityBorderline, sdq.SeverityBorderline},
		{6, 7, sdq.SeverityNormal, sdq.SeverityAbnormal},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("prosocial_%d_emotional_%d", tc.prosocial, tc.emotional), func(t *testing.T) {
			f := newFixture(t, KeywordInterpreter{}, DefaultRespondentPolicy())
			subject := f.addSubject(t, "s1", 8)

			answers := make(map[int]sdq.Option, sdq.Size)
			for _, s := range sdq.Subscales {
				setSubscale(t, answers, s, 0)
			}
			setSubscale(t, answers, sdq.Prosocial, tc.prosocial)
			setSubscale(t, answers, sdq.Emotional, tc.emotional)

			view, err := f.svc.Start(context.Background(), StartInput{SubjectID: subject.ID, Role: domain.RoleParent, RespondentID: "u1"})
			if err != nil {
				t.Fatalf("start: %v", err)
			}
			if view.Question == nil || view.Question.Index != 0 {
				t.Fatalf("expected first question, got %+v", view.Question)
			}
			last := f.answerAll(t, view.Session.ID, "u1", answers)
			if !last.Completed || last.State != domain.SessionCompleted {
				t.Fatalf("expected completed session, got %+v", last)
			}

			pro, _ := sdq.ScoreFor(last.Scores, sdq.Prosocial)
			emo, _ := sdq.ScoreFor(last.Scores, sdq.Emotional)
			if pro.Raw != tc.prosocial || pro.Severity != tc.wantProsocial {
				t.Fatalf("prosocial: expected %d/%s, got %d/%s", tc.prosocial, tc.wantProsocial, pro.Raw, pro.Severity)
			}
			if emo.Raw != tc.emotional || emo.Severity != tc.wantEmo {
				t.Fatalf("emotional: expected %d/%s, got %d/%s", tc.emotional, tc.wantEmo, emo.Raw, emo.Severity)
			}
		})
	}
}

func TestSessionServiceUnintelligibleKeepsState(t *testing.T) {
	interp := &stubInterpreter{results: []stubResult{
		{err: &domain.UnintelligibleError{Message: "Could you say more?"}},
		{in: Interpretation{Option: sdq.CertainlyTrue, Confidence: 0.8, Message: "Sounds like Certainly True."}},
	}}
	f := newFixture(t, interp, DefaultRespondentPolicy())
	subject := f.addSubject(t, "s1", 8)
	view, err := f.svc.Start(context.Background(), StartInput{SubjectID: subject.ID, Role: domain.RoleParent, RespondentID: "u1"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	res, err := f.svc.Respond(context.Background(), RespondInput{SessionID: view.Session.ID, RespondentID: "u1", QuestionIndex: 0, FreeText: "hmm"})
	if !errors.Is(err, domain.ErrAdapterUnintelligible) {
		t.Fatalf("expected ErrAdapterUnintelligible, got %v", err)
	}
	if res.Message != "Could you say more?" || res.State != domain.SessionAwaitingAnswer {
		t.Fatalf("unexpected result: %+v", res)
	}
	got, err := f.svc.Get(context.Background(), view.Session.ID, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Session.State != domain.SessionAwaitingAnswer || got.Session.QuestionIndex != 0 || got.Session.Pending != nil {
		t.Fatalf("expected unchanged protocol state, got %+v", got.Session)
	}
	if len(got.Session.Transcript) != 2 {
		t.Fatalf("expected transcript with both lines, got %d", len(got.Session.Transcript))
	}

	res, err = f.svc.Respond(context.Background(), RespondInput{SessionID: view.Session.ID, RespondentID: "u1", QuestionIndex: 0, FreeText: "all day long"})
	if err != nil {
		t.Fatalf("expected second respond to succeed, got %v", err)
	}
	if res.Option == nil || *res.Option != sdq.CertainlyTrue || res.State != domain.SessionAwaitingConfirmation {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestSessionServiceAdapterTimeout(t *testing.T) {
	interp := &stubInterpreter{results: []stubResult{{err: context.DeadlineExceeded}}}
	f := newFixture(t, interp, DefaultRespondentPolicy())
	subject := f.addSubject(t, "s1", 8)
	view, _ := f.svc.Start(context.Background(), StartInput{SubjectID: subject.ID, Role: domain.RoleTeacher, RespondentID: "u1"})

	_, err := f.svc.Respond(context.Background(), RespondInput{SessionID: view.Session.ID, RespondentID: "u1", QuestionIndex: 0, FreeText: "well"})
	if !errors.Is(err, domain.ErrAdapterTimeout) {
		t.Fatalf("expected ErrAdapterTimeout, got %v", err)
	}
	got, _ := f.svc.Get(context.Background(), view.Session.ID, "u1")
	if got.Session.State != domain.SessionAwaitingAnswer || len(got.Session.Answers) != 0 {
		t.Fatalf("expected no progress, got %+v", got.Session)
	}
	if len(got.Session.Transcript) != 1 || got.Session.Transcript[0].Content != "well" {
		t.Fatalf("expected respondent text in transcript, got %+v", got.Session.Transcript)
	}
}

func TestSessionServiceConfirmRejectAndOverride(t *testing.T) {
	f := newFixture(t, KeywordInterpreter{}, DefaultRespondentPolicy())
	subject := f.addSubject(t, "s1", 8)
	view, _ := f.svc.Start(context.Background(), StartInput{SubjectID: subject.ID, Role: domain.RoleParent, RespondentID: "u1"})
	id := view.Session.ID

	if _, err := f.svc.Confirm(context.Background(), ConfirmInput{SessionID: id, RespondentID: "u1", QuestionIndex: 0, Accept: true}); !errors.Is(err, domain.ErrState) {
		t.Fatalf("expected ErrState confirming without suggestion, got %v", err)
	}

	if _, err := f.svc.Respond(context.Background(), RespondInput{SessionID: id, RespondentID: "u1", QuestionIndex: 0, FreeText: "never"}); err != nil {
		t.Fatalf("respond: %v", err)
	}
	res, err := f.svc.Confirm(context.Background(), ConfirmInput{SessionID: id, RespondentID: "u1", QuestionIndex: 0})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if res.Committed || res.State != domain.SessionAwaitingAnswer || res.Question.Index != 0 {
		t.Fatalf("expected rejection to return to the same question, got %+v", res)
	}

	if _, err := f.svc.Respond(context.Background(), RespondInput{SessionID: id, RespondentID: "u1", QuestionIndex: 0, FreeText: "never"}); err != nil {
		t.Fatalf("respond again: %v", err)
	}
	override := sdq.CertainlyTrue
	res, err = f.svc.Confirm(context.Background(), ConfirmInput{SessionID: id, RespondentID: "u1", QuestionIndex: 0, Override: &override})
	if err != nil {
		t.Fatalf("override: %v", err)
	}
	if !res.Committed || res.Question == nil || res.Question.Index != 1 {
		t.Fatalf("expected advance to question 1, got %+v", res)
	}
	got, _ := f.svc.Get(context.Background(), id, "u1")
	ans, ok := got.Session.Answer(0)
	if !ok || ans.Option != sdq.CertainlyTrue || !ans.Overridden {
		t.Fatalf("expected overridden answer, got %+v", ans)
	}
	if len(ans.Fragments) != 2 {
		t.Fatalf("expected both free-text fragments kept, got %v", ans.Fragments)
	}
}

func TestSessionServiceQuestionIndexMismatch(t *testing.T) {
	f := newFixture(t, KeywordInterpreter{}, DefaultRespondentPolicy())
	subject := f.addSubject(t, "s1", 8)
	view, _ := f.svc.Start(context.Background(), StartInput{SubjectID: subject.ID, Role: domain.RoleParent, RespondentID: "u1"})

	_, err := f.svc.Respond(context.Background(), RespondInput{SessionID: view.Session.ID, RespondentID: "u1", QuestionIndex: 3, FreeText: "never"})
	if !errors.Is(err, domain.ErrState) {
		t.Fatalf("expected ErrState, got %v", err)
	}
}

func TestSessionServiceSubmitIncomplete(t *testing.T) {
	f := newFixture(t, KeywordInterpreter{}, DefaultRespondentPolicy())
	subject := f.addSubject(t, "s1", 8)
	view, _ := f.svc.Start(context.Background(), StartInput{SubjectID: subject.ID, Role: domain.RoleParent, RespondentID: "u1"})

	if _, err := f.svc.Submit(context.Background(), view.Session.ID, "u1"); !errors.Is(err, domain.ErrNotComplete) {
		t.Fatalf("expected ErrNotComplete, got %v", err)
	}
}

func TestSessionServiceSubmitIdempotent(t *testing.T) {
	f := newFixture(t, KeywordInterpreter{}, DefaultRespondentPolicy())
	subject := f.addSubject(t, "s1", 8)
	first := f.completeAndSubmit(t, subject.ID, domain.RoleParent, "u1")
	if first.AlreadySubmitted || first.Status != domain.StatusPendingReview {
		t.Fatalf("unexpected first submit: %+v", first)
	}

	again, err := f.svc.Submit(context.Background(), first.Session.ID, "u1")
	if err != nil {
		t.Fatalf("expected repeated submit to succeed, got %v", err)
	}
	if !again.AlreadySubmitted || again.Session.SubmittedAt == nil || !again.Session.SubmittedAt.Equal(*first.Session.SubmittedAt) {
		t.Fatalf("expected unchanged submission, got %+v", again)
	}
	if len(f.notifier.ready) != 1 {
		t.Fatalf("expected a single review-ready notification, got %d", len(f.notifier.ready))
	}
}

func TestSessionServiceDuplicateStart(t *testing.T) {
	f := newFixture(t, KeywordInterpreter{}, DefaultRespondentPolicy())
	subject := f.addSubject(t, "s1", 8)
	view, err := f.svc.Start(context.Background(), StartInput{SubjectID: subject.ID, Role: domain.RoleParent, RespondentID: "u1"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	_, err = f.svc.Start(context.Background(), StartInput{SubjectID: subject.ID, Role: domain.RoleParent, RespondentID: "u1"})
	var dup *domain.DuplicateSessionError
	if !errors.As(err, &dup) || dup.SessionID != view.Session.ID {
		t.Fatalf("expected duplicate with resumable id, got %v", err)
	}

	_, err = f.svc.Start(context.Background(), StartInput{SubjectID: subject.ID, Role: domain.RoleParent, RespondentID: "u2"})
	if !errors.As(err, &dup) || dup.SessionID != "" {
		t.Fatalf("expected duplicate without id for another respondent, got %v", err)
	}

	if _, err := f.svc.Start(context.Background(), StartInput{SubjectID: subject.ID, Role: domain.RoleTeacher, RespondentID: "u2"}); err != nil {
		t.Fatalf("expected other role to start, got %v", err)
	}
}

func TestSessionServiceStartValidation(t *testing.T) {
	f := newFixture(t, KeywordInterpreter{}, DefaultRespondentPolicy())
	f.addSubject(t, "s1", 8)

	if _, err := f.svc.Start(context.Background(), StartInput{SubjectID: "missing", Role: domain.RoleParent, RespondentID: "u1"}); !errors.Is(err, domain.ErrInvalidSubject) {
		t.Fatalf("expected ErrInvalidSubject, got %v", err)
	}
	if _, err := f.svc.Start(context.Background(), StartInput{SubjectID: "s1", Role: "uncle", RespondentID: "u1"}); !errors.Is(err, domain.ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
	if _, err := f.svc.Start(context.Background(), StartInput{SubjectID: "s1", Role: domain.RoleChild, RespondentID: "u1"}); !errors.Is(err, ErrSelfReportIneligible) {
		t.Fatalf("expected ErrSelfReportIneligible for an 8 year old, got %v", err)
	}
}

func TestSessionServiceOwnership(t *testing.T) {
	f := newFixture(t, KeywordInterpreter{}, DefaultRespondentPolicy())
	subject := f.addSubject(t, "s1", 8)
	view, _ := f.svc.Start(context.Background(), StartInput{SubjectID: subject.ID, Role: domain.RoleParent, RespondentID: "u1"})

	if _, err := f.svc.Get(context.Background(), view.Session.ID, "intruder"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := f.svc.Respond(context.Background(), RespondInput{SessionID: view.Session.ID, RespondentID: "intruder", FreeText: "never"}); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionServiceRateLimited(t *testing.T) {
	f := newFixture(t, KeywordInterpreter{}, DefaultRespondentPolicy(), WithRateLimiter(NewMemoryRateLimiter(time.Minute, 1)))
	subject := f.addSubject(t, "s1", 8)
	view, _ := f.svc.Start(context.Background(), StartInput{SubjectID: subject.ID, Role: domain.RoleParent, RespondentID: "u1"})

	if _, err := f.svc.Respond(context.Background(), RespondInput{SessionID: view.Session.ID, RespondentID: "u1", FreeText: "xyz"}); !errors.Is(err, domain.ErrAdapterUnintelligible) {
		t.Fatalf("expected first call to reach the interpreter, got %v", err)
	}
	if _, err := f.svc.Respond(context.Background(), RespondInput{SessionID: view.Session.ID, RespondentID: "u1", FreeText: "never"}); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	got, _ := f.svc.Get(context.Background(), view.Session.ID, "u1")
	last := got.Session.Transcript[len(got.Session.Transcript)-1]
	if last.Speaker != domain.SpeakerRespondent || last.Content != "never" {
		t.Fatalf("expected rate limited text in transcript, got %+v", got.Session.Transcript)
	}
}

func TestSessionServiceBlankAnswerIsRecorded(t *testing.T) {
	interp := &stubInterpreter{}
	f := newFixture(t, interp, DefaultRespondentPolicy())
	subject := f.addSubject(t, "s1", 8)
	view, _ := f.svc.Start(context.Background(), StartInput{SubjectID: subject.ID, Role: domain.RoleParent, RespondentID: "u1"})

	res, err := f.svc.Respond(context.Background(), RespondInput{SessionID: view.Session.ID, RespondentID: "u1", FreeText: "   "})
	if !errors.Is(err, domain.ErrAdapterUnintelligible) {
		t.Fatalf("expected ErrAdapterUnintelligible, got %v", err)
	}
	if res.Message != blankAnswerPrompt || res.State != domain.SessionAwaitingAnswer {
		t.Fatalf("unexpected result: %+v", res)
	}
	if interp.calls != 0 {
		t.Fatalf("expected blank answer to skip the interpreter, got %d calls", interp.calls)
	}
	got, _ := f.svc.Get(context.Background(), view.Session.ID, "u1")
	tr := got.Session.Transcript
	if len(tr) != 2 || tr[0].Speaker != domain.SpeakerRespondent || tr[0].Content != "" || tr[1].Content != blankAnswerPrompt {
		t.Fatalf("expected blank turn and re-prompt in transcript, got %+v", tr)
	}
}

func TestSessionServiceVersionConflict(t *testing.T) {
	f := newFixture(t, KeywordInterpreter{}, DefaultRespondentPolicy())
	subject := f.addSubject(t, "s1", 8)
	view, _ := f.svc.Start(context.Background(), StartInput{SubjectID: subject.ID, Role: domain.RoleParent, RespondentID: "u1"})

	stale := view.Session
	if _, err := f.svc.Respond(context.Background(), RespondInput{SessionID: stale.ID, RespondentID: "u1", FreeText: "never"}); err != nil {
		t.Fatalf("respond: %v", err)
	}
	err := f.svc.save(context.Background(), &stale, stale.Version)
	if !errors.Is(err, domain.ErrState) {
		t.Fatalf("expected ErrState on stale write, got %v", err)
	}
}
