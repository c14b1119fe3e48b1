package email

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Notifier avisa a profesionales y respondentes sobre el avance de una revision.
type Notifier interface {
	// ReviewReady se envia cuando el registro de un sujeto pasa a pending_review.
	ReviewReady(ctx context.Context, subjectID, subjectName string) error
	// ResultsReleased se envia a los respondentes cuando la revision se finaliza.
	ResultsReleased(ctx context.Context, recipients []string, subjectID, subjectName string) error
}

// MailNotifier arma los correos y los entrega via Sender.
type MailNotifier struct {
	sender    Sender
	reviewers []string
	baseURL   string
}

func NewMailNotifier(sender Sender, reviewers []string, baseURL string) *MailNotifier {
	var cleaned []string
	for _, r := range reviewers {
		if r = strings.TrimSpace(r); r != "" {
			cleaned = append(cleaned, r)
		}
	}
	return &MailNotifier{sender: sender, reviewers: cleaned, baseURL: strings.TrimRight(baseURL, "/")}
}

func (n *MailNotifier) ReviewReady(ctx context.Context, subjectID, subjectName string) error {
	if n == nil || n.sender == nil || len(n.reviewers) == 0 {
		return nil
	}
	subject := fmt.Sprintf("Screening ready for review: %s", displayName(subjectName))
	body := fmt.Sprintf(
		"The questionnaires for %s are ready for professional review.\n%s\n",
		displayName(subjectName),
		n.link("/reviews/"+subjectID),
	)
	return n.sendAll(ctx, n.reviewers, subject, body)
}

func (n *MailNotifier) ResultsReleased(ctx context.Context, recipients []string, subjectID, subjectName string) error {
	if n == nil || n.sender == nil || len(recipients) == 0 {
		return nil
	}
	subject := fmt.Sprintf("Screening results available: %s", displayName(subjectName))
	body := fmt.Sprintf(
		"A professional has reviewed the questionnaires for %s. You can now see the results.\n%s\n",
		displayName(subjectName),
		n.link("/results/"+subjectID),
	)
	return n.sendAll(ctx, recipients, subject, body)
}

func (n *MailNotifier) sendAll(ctx context.Context, to []string, subject, body string) error {
	var errs []error
	for _, addr := range to {
		if err := n.sender.Send(ctx, addr, subject, body); err != nil {
			errs = append(errs, fmt.Errorf("send to %s: %w", addr, err))
		}
	}
	return errors.Join(errs...)
}

func (n *MailNotifier) link(path string) string {
	if n.baseURL == "" {
		return path
	}
	return n.baseURL + path
}

func displayName(name string) string {
	if strings.TrimSpace(name) == "" {
		return "the child"
	}
	return name
}
