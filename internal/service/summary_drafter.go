package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"sdq-screen/internal/domain"
	"sdq-screen/internal/llm"
	"sdq-screen/internal/sdq"
)

// SummaryDrafter propone el borrador inicial de la revision profesional.
type SummaryDrafter interface {
	Draft(ctx context.Context, view RecordView) (string, error)
}

// TemplateDrafter arma un borrador en markdown con los puntajes por rol.
type TemplateDrafter struct{}

func (TemplateDrafter) Draft(_ context.Context, view RecordView) (string, error) {
	var b strings.Builder
	name := view.Subject.Name
	if name == "" {
		name = "The child"
	}
	fmt.Fprintf(&b, "## Screening summary for %s (age %d)\n\n", name, view.Subject.Age)
	for _, rs := range view.Sessions {
		fmt.Fprintf(&b, "### %s report\n\n", titleCase(string(rs.Role)))
		fmt.Fprintf(&b, "- Total difficulties: %d\n", rs.TotalDifficulties)
		for _, sc := range rs.Scores {
			fmt.Fprintf(&b, "- %s: %d/%d (%s)\n", titleCase(string(sc.Subscale)), sc.Raw, sc.Max, sc.Severity)
		}
		b.WriteString("\n")
	}
	if flagged := flaggedSubscales(view); len(flagged) > 0 {
		fmt.Fprintf(&b, "Areas outside the normal range: %s.\n", strings.Join(flagged, ", "))
	} else {
		b.WriteString("All reported subscales are within the normal range.\n")
	}
	return b.String(), nil
}

func flaggedSubscales(view RecordView) []string {
	seen := map[sdq.Subscale]bool{}
	var out []string
	for _, rs := range view.Sessions {
		for _, sc := range rs.Scores {
			if sc.Severity != sdq.SeverityNormal && !seen[sc.Subscale] {
				seen[sc.Subscale] = true
				out = append(out, string(sc.Subscale))
			}
		}
	}
	return out
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

var summarySchema = &llm.Schema{
	Name:        "sdq_review_summary",
	Description: "Draft summary for a professional reviewer",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"summary": map[string]any{"type": "string"},
		},
		"required":             []string{"summary"},
		"additionalProperties": false,
	},
}

const summarySystemPrompt = `You draft a short summary of Strengths and Difficulties Questionnaire results for a
licensed professional who will edit it before anything is released. Compare the respondents, point out where
they agree or disagree and which subscales fall outside the normal range. Do not diagnose. Use markdown.
Reply only with JSON: {"summary": "..."}.`

// LLMSummaryDrafter pide el borrador a un LLM y cae en la plantilla si falla.
type LLMSummaryDrafter struct {
	provider llm.Provider
	logger   *zap.Logger
	fallback SummaryDrafter
}

func NewLLMSummaryDrafter(provider llm.Provider, logger *zap.Logger) *LLMSummaryDrafter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMSummaryDrafter{provider: provider, logger: logger, fallback: TemplateDrafter{}}
}

func (d *LLMSummaryDrafter) Draft(ctx context.Context, view RecordView) (string, error) {
	base, err := d.fallback.Draft(ctx, view)
	if err != nil {
		return "", err
	}
	if d.provider == nil {
		return base, nil
	}

	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\nRespondent remarks:\n")
	for _, rs := range view.Sessions {
		for _, e := range rs.Session.Transcript {
			if e.Speaker == domain.SpeakerRespondent {
				fmt.Fprintf(&b, "- %s, question %d: %s\n", rs.Role, e.QuestionIndex+1, e.Content)
			}
		}
	}

	resp, err := d.provider.Generate(ctx, llm.Request{
		System:    summarySystemPrompt,
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: b.String()}},
		Schema:    summarySchema,
		MaxTokens: 900,
	})
	if err != nil {
		d.logger.Warn("llm summary draft failed, using template", zap.Error(err))
		return base, nil
	}
	summary, err := extractStringField(resp.Text(), "summary")
	if err != nil {
		d.logger.Warn("llm summary draft unreadable, using template", zap.Error(err))
		return base, nil
	}
	return summary, nil
}

var markdown = goldmark.New()

// RenderSummaryHTML convierte el resumen en markdown a HTML para mostrarlo.
func RenderSummaryHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
