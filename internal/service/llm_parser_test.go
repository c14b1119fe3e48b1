package service

import "testing"

func TestParseInterpretation_FencedJSON(t *testing.T) {
	raw := "```json\n{\"intelligible\":true,\"option\":\"Somewhat True\",\"confidence\":0.7,\"message\":\"Sounds like sometimes.\"}\n```"
	got, ok := parseInterpretation(raw)
	if !ok {
		t.Fatalf("expected payload to be parsed")
	}
	if got.Option != "Somewhat True" || got.Confidence != 0.7 || !got.Intelligible {
		t.Fatalf("unexpected payload: %+v", got)
	}
	if got.Message != "Sounds like sometimes." {
		t.Fatalf("unexpected message: %q", got.Message)
	}
}

func TestParseInterpretation_TextAroundJSON(t *testing.T) {
	raw := `Sure! Here is my answer: {"intelligible": false, "option": "none", "confidence": 0, "message": "Could you tell me more?"} hope it helps`
	got, ok := parseInterpretation(raw)
	if !ok {
		t.Fatalf("expected payload to be parsed")
	}
	if got.Intelligible || got.Option != "none" {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestParseInterpretation_BrokenJSONFallsBackToRegex(t *testing.T) {
	raw := `{"option": "Certainly True", "message": "All the time", "confidence": `
	got, ok := parseInterpretation(raw)
	if !ok {
		t.Fatalf("expected regex fallback to find option")
	}
	if got.Option != "Certainly True" || got.Message != "All the time" {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestParseInterpretation_SkipsExampleObjects(t *testing.T) {
	raw := `Format is {"a": 1}. Stray { brace. Answer: {"option": "Not True", "confidence": 0.9, "message": "Never {ever}."}`
	got, ok := parseInterpretation(raw)
	if !ok {
		t.Fatalf("expected payload after example object")
	}
	if got.Option != "Not True" || got.Confidence != 0.9 || got.Message != "Never {ever}." {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestJSONObjectWith(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{`{"option":"x"}`, `{"option":"x"}`, true},
		{`text {"option":"a}b"} more`, `{"option":"a}b"}`, true},
		{`{"other":1} {"option":2}`, `{"option":2}`, true},
		{`{"option": `, "", false},
		{`no json here`, "", false},
		{`{"other":{"deep":1}}`, "", false},
	}
	for _, tc := range cases {
		doc, ok := jsonObjectWith(tc.in, "option")
		if ok != tc.ok {
			t.Fatalf("input %q: expected ok=%v, got %v", tc.in, tc.ok, ok)
		}
		if ok && doc.Raw != tc.want {
			t.Fatalf("input %q: expected %q, got %q", tc.in, tc.want, doc.Raw)
		}
	}
}

func TestParseInterpretation_NoOption(t *testing.T) {
	if _, ok := parseInterpretation("I am not sure what you mean"); ok {
		t.Fatalf("expected plain text without option to fail")
	}
}

func TestExtractStringField(t *testing.T) {
	got, err := extractStringField("```json\n{\"summary\":\"Elevated conduct scores.\"}\n```", "summary")
	if err != nil || got != "Elevated conduct scores." {
		t.Fatalf("unexpected summary %q, err %v", got, err)
	}
	got, err = extractStringField("Plain summary text", "summary")
	if err != nil || got != "Plain summary text" {
		t.Fatalf("expected plain text passthrough, got %q, err %v", got, err)
	}
	if _, err := extractStringField(`{"other":"x"}`, "summary"); err == nil {
		t.Fatalf("expected error when field is missing from JSON")
	}
}

func TestUnescapeMaybeDoubleEscaped(t *testing.T) {
	if got := UnescapeMaybeDoubleEscaped(`line one\nline two`); got != "line one\nline two" {
		t.Fatalf("unexpected unescape: %q", got)
	}
}
