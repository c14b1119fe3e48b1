package email

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type sentMail struct {
	to, subject, body string
}

type recordingSender struct {
	sent []sentMail
	err  error
}

func (r *recordingSender) Send(_ context.Context, to, subject, body string) error {
	r.sent = append(r.sent, sentMail{to: to, subject: subject, body: body})
	return r.err
}

func TestMailNotifierReviewReady(t *testing.T) {
	sender := &recordingSender{}
	n := NewMailNotifier(sender, []string{"doc@example.com", " "}, "https://screen.example.com/")

	if err := n.ReviewReady(context.Background(), "subj-1", "Sam"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected one mail, got %d", len(sender.sent))
	}
	mail := sender.sent[0]
	if mail.to != "doc@example.com" || !strings.Contains(mail.subject, "Sam") {
		t.Fatalf("unexpected mail: %+v", mail)
	}
	if !strings.Contains(mail.body, "https://screen.example.com/reviews/subj-1") {
		t.Fatalf("expected review link in body, got %q", mail.body)
	}
}

func TestMailNotifierResultsReleasedJoinsErrors(t *testing.T) {
	sender := &recordingSender{err: errors.New("smtp down")}
	n := NewMailNotifier(sender, nil, "")

	err := n.ResultsReleased(context.Background(), []string{"a@example.com", "b@example.com"}, "subj-1", "")
	if err == nil {
		t.Fatalf("expected error")
	}
	if len(sender.sent) != 2 {
		t.Fatalf("expected both recipients to be attempted, got %d", len(sender.sent))
	}
	if !strings.Contains(sender.sent[0].body, "the child") {
		t.Fatalf("expected fallback name in body, got %q", sender.sent[0].body)
	}
}

func TestMailNotifierWithoutReviewersIsNoop(t *testing.T) {
	sender := &recordingSender{}
	n := NewMailNotifier(sender, nil, "")
	if err := n.ReviewReady(context.Background(), "subj-1", "Sam"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("expected no mail, got %d", len(sender.sent))
	}
}

func TestDisabledSender(t *testing.T) {
	err := NewDisabledSender("not configured").Send(context.Background(), "a@example.com", "s", "b")
	if !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

func TestBuildMessageHeaders(t *testing.T) {
	msg := buildMessage("noreply@example.com", "SDQ Screen", "doc@example.com", "Subject", "Body")
	if !strings.HasPrefix(msg, "From: SDQ Screen <noreply@example.com>\r\n") {
		t.Fatalf("unexpected from header: %q", msg)
	}
	if !strings.HasSuffix(msg, "\r\n\r\nBody") {
		t.Fatalf("unexpected body placement: %q", msg)
	}
}
