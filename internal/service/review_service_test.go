package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"sdq-screen/internal/domain"
	"sdq-screen/internal/sdq"
)

func TestReviewServiceBeginRequiresPendingReview(t *testing.T) {
	f := newFixture(t, KeywordInterpreter{}, DefaultRespondentPolicy())
	subject := f.addSubject(t, "teen", 13)

	if _, err := f.review.Begin(context.Background(), subject.ID); !errors.Is(err, domain.ErrReviewNotFound) {
		t.Fatalf("expected ErrReviewNotFound without sessions, got %v", err)
	}
	f.completeAndSubmit(t, subject.ID, domain.RoleParent, "p")
	if _, err := f.review.Begin(context.Background(), subject.ID); !errors.Is(err, domain.ErrState) {
		t.Fatalf("expected ErrState while awaiting respondents, got %v", err)
	}
}

func TestReviewServiceBeginIdempotent(t *testing.T) {
	f := newFixture(t, KeywordInterpreter{}, DefaultRespondentPolicy())
	subject := f.addSubject(t, "s1", 8)
	f.completeAndSubmit(t, subject.ID, domain.RoleParent, "p")

	rec, err := f.review.Begin(context.Background(), subject.ID)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if rec.State != domain.ReviewDrafting || !strings.Contains(rec.Draft, "Parent report") {
		t.Fatalf("expected seeded draft, got %+v", rec)
	}

	if _, err := f.review.EditDraft(context.Background(), subject.ID, "my notes"); err != nil {
		t.Fatalf("edit draft: %v", err)
	}
	again, err := f.review.Begin(context.Background(), subject.ID)
	if err != nil {
		t.Fatalf("second begin: %v", err)
	}
	if again.Draft != "my notes" {
		t.Fatalf("expected edited draft preserved, got %q", again.Draft)
	}
}

func TestReviewServiceFinalizeAndResults(t *testing.T) {
	f := newFixture(t, KeywordInterpreter{}, DefaultRespondentPolicy())
	subject := f.addSubject(t, "s1", 8)
	res := f.completeAndSubmit(t, subject.ID, domain.RoleParent, "p")

	results, err := f.review.Results(context.Background(), subject.ID, "p")
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if results.Summary != ResultsPending || results.SummaryHTML != "" || results.SessionID != res.Session.ID {
		t.Fatalf("expected pending results, got %+v", results)
	}
	if len(results.Scores) != len(sdq.Subscales) {
		t.Fatalf("expected own scores before review, got %d", len(results.Scores))
	}

	if _, err := f.review.Finalize(context.Background(), subject.ID, "rev-1", "text"); !errors.Is(err, domain.ErrState) {
		t.Fatalf("expected ErrState finalizing before begin, got %v", err)
	}
	if _, err := f.review.Begin(context.Background(), subject.ID); err != nil {
		t.Fatalf("begin: %v", err)
	}
	rec, err := f.review.Finalize(context.Background(), subject.ID, "rev-1", "**Doing well** overall.")
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if rec.State != domain.ReviewFinalized || rec.ReviewedAt == nil || rec.ReviewerID != "rev-1" {
		t.Fatalf("unexpected finalized record: %+v", rec)
	}

	results, err = f.review.Results(context.Background(), subject.ID, "p")
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if results.Status != domain.StatusReviewed || results.Summary != "**Doing well** overall." {
		t.Fatalf("expected released summary, got %+v", results)
	}
	if !strings.Contains(results.SummaryHTML, "<strong>Doing well</strong>") {
		t.Fatalf("expected rendered html, got %q", results.SummaryHTML)
	}

	if _, err := f.review.Results(context.Background(), subject.ID, "stranger"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for another respondent, got %v", err)
	}
}

func TestReviewServiceFinalizeEmptyUsesDraft(t *testing.T) {
	f := newFixture(t, KeywordInterpreter{}, DefaultRespondentPolicy())
	subject := f.addSubject(t, "s1", 8)
	f.completeAndSubmit(t, subject.ID, domain.RoleTeacher, "t")
	if _, err := f.review.Begin(context.Background(), subject.ID); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := f.review.EditDraft(context.Background(), subject.ID, "draft text"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	rec, err := f.review.Finalize(context.Background(), subject.ID, "rev", "  ")
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if rec.Summary != "draft text" {
		t.Fatalf("expected draft as summary, got %q", rec.Summary)
	}
}

func TestReviewServiceConcurrentFinalize(t *testing.T) {
	f := newFixture(t, KeywordInterpreter{}, DefaultRespondentPolicy())
	subject := f.addSubject(t, "s1", 8)
	f.completeAndSubmit(t, subject.ID, domain.RoleParent, "p")
	if _, err := f.review.Begin(context.Background(), subject.ID); err != nil {
		t.Fatalf("begin: %v", err)
	}
	// El reloj del fixture no es seguro entre goroutines.
	f.review.now = func() time.Time { return f.clock }

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.review.Finalize(context.Background(), subject.ID, "rev", "summary")
		}(i)
	}
	wg.Wait()

	ok, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrState):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || conflicts != 1 {
		t.Fatalf("expected exactly one winner, got ok=%d conflicts=%d", ok, conflicts)
	}
}

func TestReviewServiceList(t *testing.T) {
	f := newFixture(t, KeywordInterpreter{}, DefaultRespondentPolicy())
	young := f.addSubject(t, "young", 8)
	teen := f.addSubject(t, "teen", 14)
	f.completeAndSubmit(t, young.ID, domain.RoleParent, "p")
	f.completeAndSubmit(t, teen.ID, domain.RoleParent, "p")

	pending, err := f.review.List(context.Background(), domain.StatusPendingReview)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pending) != 1 || pending[0].SubjectID != young.ID {
		t.Fatalf("expected only the young subject pending, got %+v", pending)
	}
	all, _ := f.review.List(context.Background(), "")
	if len(all) != 2 {
		t.Fatalf("expected 2 records, got %d", len(all))
	}
}

func TestReviewServiceAttachAfterFinalizeKeepsReviewed(t *testing.T) {
	f := newFixture(t, KeywordInterpreter{}, DefaultRespondentPolicy())
	subject := f.addSubject(t, "s1", 8)
	f.completeAndSubmit(t, subject.ID, domain.RoleParent, "p")
	if _, err := f.review.Begin(context.Background(), subject.ID); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := f.review.Finalize(context.Background(), subject.ID, "rev", "done"); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	res := f.completeAndSubmit(t, subject.ID, domain.RoleTeacher, "t")
	if res.Status != domain.StatusReviewed {
		t.Fatalf("expected reviewed status to stick, got %s", res.Status)
	}
}
