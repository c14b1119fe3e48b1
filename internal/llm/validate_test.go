package llm

import (
	"errors"
	"testing"
)

var answerSchema = &Schema{
	Name: "validate_test_answer",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"option":     map[string]any{"type": "string", "enum": []string{"Not True", "Somewhat True", "Certainly True"}},
			"confidence": map[string]any{"type": "number"},
		},
		"required":             []string{"option", "confidence"},
		"additionalProperties": false,
	},
}

func TestValidateJSONAcceptsConformingContent(t *testing.T) {
	if err := ValidateJSON(answerSchema, []byte(`{"option":"Somewhat True","confidence":0.8}`)); err != nil {
		t.Fatalf("expected valid content, got %v", err)
	}
}

func TestValidateJSONRejectsUnknownOption(t *testing.T) {
	err := ValidateJSON(answerSchema, []byte(`{"option":"Maybe","confidence":0.8}`))
	var inv *ErrInvalidResponse
	if !errors.As(err, &inv) {
		t.Fatalf("expected ErrInvalidResponse, got %v", err)
	}
}

func TestValidateJSONRejectsMalformedJSON(t *testing.T) {
	err := ValidateJSON(answerSchema, []byte(`{"option":`))
	var inv *ErrInvalidResponse
	if !errors.As(err, &inv) {
		t.Fatalf("expected ErrInvalidResponse, got %v", err)
	}
}

func TestValidateJSONNilSchema(t *testing.T) {
	if err := ValidateJSON(nil, []byte(`not json`)); err != nil {
		t.Fatalf("expected nil schema to skip validation, got %v", err)
	}
}

func TestMockProviderValidatesAgainstSchema(t *testing.T) {
	mock := NewMockProvider(MockResponse{Content: []byte(`{"option":"Never"}`)})
	_, err := mock.Generate(t.Context(), Request{Schema: answerSchema})
	var inv *ErrInvalidResponse
	if !errors.As(err, &inv) {
		t.Fatalf("expected ErrInvalidResponse, got %v", err)
	}
}
