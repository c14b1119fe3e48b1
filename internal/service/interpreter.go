package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"sdq-screen/internal/domain"
	"sdq-screen/internal/llm"
	"sdq-screen/internal/sdq"
)

// Interpreter traduce una respuesta libre a una opcion sugerida. Los errores
// se reportan como domain.ErrAdapterTimeout o domain.ErrAdapterUnintelligible.
type Interpreter interface {
	Interpret(ctx context.Context, req InterpretRequest) (Interpretation, error)
}

type InterpretRequest struct {
	Question    sdq.Question
	Prompt      string
	SubjectName string
	Age         int
	Role        domain.Role
	FreeText    string
	// Transcript previo de la misma pregunta, en orden.
	Transcript []domain.Exchange
}

type Interpretation struct {
	Option     sdq.Option `json:"option"`
	Confidence float64    `json:"confidence"`
	Message    string     `json:"message"`
}

const directAnswerConfidence = 1.0

// directAnswer evita llamar al modelo cuando la respuesta ya nombra una opcion.
func directAnswer(freeText string) (Interpretation, bool) {
	opt, ok := sdq.DetectDirectAnswer(freeText)
	if !ok {
		return Interpretation{}, false
	}
	return Interpretation{
		Option:     opt,
		Confidence: directAnswerConfidence,
		Message:    fmt.Sprintf("You answered %q. Please confirm.", opt.String()),
	}, true
}

var confusionPhrases = []string{
	"what do you mean",
	"what does that mean",
	"what does this mean",
	"i don't understand",
	"i dont understand",
	"not sure what",
	"don't get the question",
	"confused",
	"explain",
	"rephrase",
}

func asksForClarification(freeText string) bool {
	lower := strings.ToLower(freeText)
	for _, p := range confusionPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func unintelligible(message string) error {
	return &domain.UnintelligibleError{Message: message}
}

type keywordRule struct {
	re     *regexp.Regexp
	option sdq.Option
}

func phraseRule(phrase string, o sdq.Option) keywordRule {
	return keywordRule{re: regexp.MustCompile(`\b` + regexp.QuoteMeta(phrase) + `\b`), option: o}
}

// keywordRules se evaluan en orden: las frases compuestas van antes que las
// palabras sueltas que contienen ("not always" antes que "always").
var keywordRules = []keywordRule{
	phraseRule("not always", sdq.SomewhatTrue),
	phraseRule("not really", sdq.NotTrue),
	phraseRule("hardly ever", sdq.NotTrue),
	phraseRule("not at all", sdq.NotTrue),
	phraseRule("now and then", sdq.SomewhatTrue),
	phraseRule("from time to time", sdq.SomewhatTrue),
	phraseRule("a little", sdq.SomewhatTrue),
	phraseRule("every time", sdq.CertainlyTrue),
	phraseRule("all the time", sdq.CertainlyTrue),
	phraseRule("very often", sdq.CertainlyTrue),
	phraseRule("a lot", sdq.CertainlyTrue),
	phraseRule("never", sdq.NotTrue),
	phraseRule("rarely", sdq.NotTrue),
	phraseRule("no", sdq.NotTrue),
	phraseRule("always", sdq.CertainlyTrue),
	phraseRule("frequently", sdq.CertainlyTrue),
	phraseRule("constantly", sdq.CertainlyTrue),
	phraseRule("definitely", sdq.CertainlyTrue),
	phraseRule("sometimes", sdq.SomewhatTrue),
	phraseRule("occasionally", sdq.SomewhatTrue),
	phraseRule("often", sdq.SomewhatTrue),
}

const keywordConfidence = 0.6

// KeywordInterpreter es el interprete sin LLM: reconoce respuestas directas
// y expresiones de frecuencia comunes.
type KeywordInterpreter struct{}

func (KeywordInterpreter) Interpret(ctx context.Context, req InterpretRequest) (Interpretation, error) {
	if err := ctx.Err(); err != nil {
		return Interpretation{}, fmt.Errorf("%w: %v", domain.ErrAdapterTimeout, err)
	}
	text := strings.TrimSpace(req.FreeText)
	if text == "" {
		return Interpretation{}, unintelligible("Please describe how true this is.")
	}
	if in, ok := directAnswer(text); ok {
		return in, nil
	}
	if asksForClarification(text) {
		return Interpretation{}, unintelligible(fmt.Sprintf(
			"This question asks how well the statement %q describes the last six months. %s",
			req.Question.Text, sdq.OptionsPrompt))
	}
	lower := strings.ToLower(text)
	for _, rule := range keywordRules {
		if rule.re.MatchString(lower) {
			return Interpretation{
				Option:     rule.option,
				Confidence: keywordConfidence,
				Message:    fmt.Sprintf("It sounds like the answer is %q. Is that right?", rule.option.String()),
			}, nil
		}
	}
	return Interpretation{}, unintelligible("I couldn't tell which option fits. " + sdq.OptionsPrompt)
}

// optionNone marca en la salida del modelo que no hubo opcion reconocible.
const optionNone = "none"

var interpretationSchema = &llm.Schema{
	Name:        "sdq_interpretation",
	Description: "Maps a free-text answer to one questionnaire option",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"intelligible": map[string]any{"type": "boolean"},
			"option": map[string]any{
				"type": "string",
				"enum": []string{"Not True", "Somewhat True", "Certainly True", optionNone},
			},
			"confidence": map[string]any{"type": "number"},
			"message":    map[string]any{"type": "string"},
		},
		"required":             []string{"intelligible", "option", "confidence", "message"},
		"additionalProperties": false,
	},
}

var explanationSchema = &llm.Schema{
	Name:        "sdq_explanation",
	Description: "Explains a questionnaire item in plain words",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{"type": "string"},
		},
		"required":             []string{"message"},
		"additionalProperties": false,
	},
}

const interpreterSystemPrompt = `You help a respondent fill in the Strengths and Difficulties Questionnaire.
Map the respondent's free-text answer to exactly one option: "Not True", "Somewhat True" or "Certainly True".
The options describe the last six months. If the answer does not let you choose, set intelligible to false,
option to "none" and ask a short follow-up question in message. Otherwise write a one-sentence message that
restates your reading so the respondent can confirm it. Confidence is between 0 and 1.
Reply only with JSON.`

// LLMInterpreter interpreta con un proveedor LLM y cae en reglas locales
// para respuestas directas.
type LLMInterpreter struct {
	provider  llm.Provider
	logger    *zap.Logger
	maxTokens int
}

func NewLLMInterpreter(provider llm.Provider, logger *zap.Logger) *LLMInterpreter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMInterpreter{provider: provider, logger: logger, maxTokens: 300}
}

func (i *LLMInterpreter) Interpret(ctx context.Context, req InterpretRequest) (Interpretation, error) {
	text := strings.TrimSpace(req.FreeText)
	if text == "" {
		return Interpretation{}, unintelligible("Please describe how true this is.")
	}
	if in, ok := directAnswer(text); ok {
		return in, nil
	}
	if i == nil || i.provider == nil {
		return KeywordInterpreter{}.Interpret(ctx, req)
	}
	if asksForClarification(text) {
		return Interpretation{}, i.explain(ctx, req)
	}

	resp, err := i.provider.Generate(ctx, llm.Request{
		System:      interpreterSystemPrompt,
		Messages:    i.buildMessages(req),
		Schema:      interpretationSchema,
		MaxTokens:   i.maxTokens,
		Temperature: 0,
	})
	if err != nil {
		return Interpretation{}, i.mapError(err)
	}

	payload, ok := parseInterpretation(resp.Text())
	if !ok {
		i.logger.Warn("interpreter output not parseable", zap.String("content", resp.Text()))
		return Interpretation{}, unintelligible("I couldn't tell which option fits. " + sdq.OptionsPrompt)
	}
	if !payload.Intelligible || strings.EqualFold(payload.Option, optionNone) {
		msg := strings.TrimSpace(payload.Message)
		if msg == "" {
			msg = "Could you tell me a bit more? " + sdq.OptionsPrompt
		}
		return Interpretation{}, unintelligible(msg)
	}
	opt, err := sdq.ParseOption(payload.Option)
	if err != nil {
		return Interpretation{}, unintelligible("I couldn't tell which option fits. " + sdq.OptionsPrompt)
	}
	return Interpretation{
		Option:     opt,
		Confidence: clampConfidence(payload.Confidence),
		Message:    strings.TrimSpace(payload.Message),
	}, nil
}

func (i *LLMInterpreter) explain(ctx context.Context, req InterpretRequest) error {
	fallback := fmt.Sprintf("This question asks how well %q describes the last six months. %s", req.Question.Text, sdq.OptionsPrompt)
	resp, err := i.provider.Generate(ctx, llm.Request{
		System: "Explain the questionnaire item in one or two plain sentences without suggesting an answer. Reply only with JSON.",
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: fmt.Sprintf("Question: %s\nRespondent said: %s", req.Prompt, req.FreeText),
		}},
		Schema:    explanationSchema,
		MaxTokens: i.maxTokens,
	})
	if err != nil {
		i.logger.Warn("explanation unavailable, using fallback", zap.Error(err))
		return unintelligible(fallback)
	}
	msg, err := extractStringField(resp.Text(), "message")
	if err != nil {
		return unintelligible(fallback)
	}
	return unintelligible(msg)
}

func (i *LLMInterpreter) buildMessages(req InterpretRequest) []llm.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Respondent role: %s\n", req.Role)
	if req.Age > 0 {
		fmt.Fprintf(&b, "Child age: %d\n", req.Age)
	}
	fmt.Fprintf(&b, "Question: %s\n", req.Prompt)
	if len(req.Transcript) > 0 {
		b.WriteString("Earlier in this question:\n")
		for _, e := range req.Transcript {
			fmt.Fprintf(&b, "- %s: %s\n", e.Speaker, e.Content)
		}
	}
	fmt.Fprintf(&b, "Answer: %s", req.FreeText)
	return []llm.Message{{Role: llm.RoleUser, Content: b.String()}}
}

// mapError reduce los errores del proveedor a la taxonomia del protocolo.
func (i *LLMInterpreter) mapError(err error) error {
	var invalid *llm.ErrInvalidResponse
	if errors.As(err, &invalid) {
		if payload, ok := parseInterpretation(string(invalid.Content)); ok && payload.Message != "" {
			return unintelligible(payload.Message)
		}
		return unintelligible("I couldn't tell which option fits. " + sdq.OptionsPrompt)
	}
	var maxTok *llm.ErrMaxTokensExceeded
	if errors.As(err, &maxTok) {
		return unintelligible("I couldn't tell which option fits. " + sdq.OptionsPrompt)
	}
	return fmt.Errorf("%w: %v", domain.ErrAdapterTimeout, err)
}

func clampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}
