package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"sdq-screen/internal/domain"
	"sdq-screen/internal/llm"
	"sdq-screen/internal/repository"
)

func TestTemplateDrafterFlagsSubscales(t *testing.T) {
	f := newFixture(t, KeywordInterpreter{}, DefaultRespondentPolicy())
	subject := f.addSubject(t, "s1", 8)
	f.completeAndSubmit(t, subject.ID, domain.RoleParent, "p")
	view, err := f.aggregator.Record(context.Background(), subject.ID)
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	draft, err := TemplateDrafter{}.Draft(context.Background(), view)
	if err != nil {
		t.Fatalf("draft: %v", err)
	}
	if !strings.Contains(draft, "Screening summary for Sam (age 8)") || !strings.Contains(draft, "Total difficulties: 20") {
		t.Fatalf("unexpected draft:\n%s", draft)
	}
	// Prosocial 5 queda en borderline.
	if !strings.Contains(draft, "prosocial") {
		t.Fatalf("expected prosocial flagged:\n%s", draft)
	}
}

func TestLLMSummaryDrafterFallsBackToTemplate(t *testing.T) {
	view := RecordView{Subject: domain.Subject{Name: "Sam", Age: 8}}
	d := NewLLMSummaryDrafter(llm.NewMockProvider(), zap.NewNop())
	draft, err := d.Draft(context.Background(), view)
	if err != nil {
		t.Fatalf("expected fallback, got %v", err)
	}
	if !strings.Contains(draft, "Screening summary for Sam") {
		t.Fatalf("expected template draft, got %q", draft)
	}
}

func TestRenderSummaryHTML(t *testing.T) {
	html, err := RenderSummaryHTML("## Summary\n\n- one\n- two\n")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(html, "<h2>Summary</h2>") || !strings.Contains(html, "<li>one</li>") {
		t.Fatalf("unexpected html: %q", html)
	}
}

func TestTranscriptIndexerSearch(t *testing.T) {
	repo := repository.NewMemoryTranscriptRepository()
	ix := NewTranscriptIndexer(zap.NewNop(), llm.HashEmbedder{}, repo)
	session := domain.RespondentSession{ID: "sess", SubjectID: "s1", Role: domain.RoleParent}

	ix.IndexAsync(session, 2, "he worries about school every morning")
	ix.IndexAsync(session, 5, "plays alone at recess")
	ix.Wait()

	hits, err := ix.Search(context.Background(), "s1", "worries about school", 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].QuestionIndex != 2 {
		t.Fatalf("expected the worry fragment, got %+v", hits)
	}
}

func TestTranscriptIndexerDisabled(t *testing.T) {
	ix := NewTranscriptIndexer(zap.NewNop(), nil, nil)
	ix.IndexAsync(domain.RespondentSession{}, 0, "text")
	ix.Wait()
	if _, err := ix.Search(context.Background(), "s1", "q", 3); !errors.Is(err, ErrSearchUnavailable) {
		t.Fatalf("expected ErrSearchUnavailable, got %v", err)
	}
}

func TestSessionServiceIndexesFreeText(t *testing.T) {
	repo := repository.NewMemoryTranscriptRepository()
	ix := NewTranscriptIndexer(zap.NewNop(), llm.HashEmbedder{}, repo)
	f := newFixture(t, KeywordInterpreter{}, DefaultRespondentPolicy(), WithTranscriptIndexer(ix))
	subject := f.addSubject(t, "s1", 8)
	view, _ := f.svc.Start(context.Background(), StartInput{SubjectID: subject.ID, Role: domain.RoleParent, RespondentID: "u1"})

	if _, err := f.svc.Respond(context.Background(), RespondInput{SessionID: view.Session.ID, RespondentID: "u1", FreeText: "never kind to others"}); err != nil {
		t.Fatalf("respond: %v", err)
	}
	ix.Wait()
	hits, err := ix.Search(context.Background(), subject.ID, "kind to others", 5)
	if err != nil || len(hits) != 1 {
		t.Fatalf("expected one indexed fragment, got %v %v", hits, err)
	}
}
