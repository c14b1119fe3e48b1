package service

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// interpretationPayload es la salida estructurada que se le pide al modelo
// al interpretar una respuesta libre.
type interpretationPayload struct {
	Intelligible bool
	Option       string
	Confidence   float64
	Message      string
}

// parseInterpretation lee la salida del modelo de manera tolerante: acepta
// fences, texto alrededor del JSON y JSON a medio escapar.
func parseInterpretation(raw string) (interpretationPayload, bool) {
	cleaned := CleanLLMJSONResponse(raw)

	for _, text := range []string{cleaned, raw} {
		doc, ok := jsonObjectWith(text, "option")
		if !ok {
			continue
		}
		p := interpretationPayload{
			Intelligible: true,
			Option:       strings.TrimSpace(doc.Get("option").String()),
			Confidence:   doc.Get("confidence").Float(),
			Message:      UnescapeMaybeDoubleEscaped(doc.Get("message").String()),
		}
		if v := doc.Get("intelligible"); v.Exists() {
			p.Intelligible = v.Bool()
		}
		return p, true
	}

	// JSON roto: solo confiamos en el campo option.
	if opt, ok := ExtractStringFieldByRegex(cleaned, "option"); ok {
		msg, _ := ExtractStringFieldByRegex(cleaned, "message")
		return interpretationPayload{Intelligible: true, Option: opt, Confidence: 0.5, Message: msg}, true
	}
	return interpretationPayload{}, false
}

// extractStringField devuelve un campo string del JSON del modelo, o el
// texto limpio completo si no hay JSON.
func extractStringField(raw, field string) (string, error) {
	cleaned := CleanLLMJSONResponse(raw)
	if doc, ok := jsonObjectWith(cleaned, field); ok {
		if v := strings.TrimSpace(doc.Get(field).String()); v != "" {
			return v, nil
		}
	}
	if v, ok := ExtractStringFieldByRegex(cleaned, field); ok {
		return v, nil
	}
	if strings.HasPrefix(cleaned, "{") {
		return "", fmt.Errorf("could not extract %s", field)
	}
	if cleaned == "" {
		return "", fmt.Errorf("empty response")
	}
	return cleaned, nil
}

// jsonObjectWith busca el primer objeto JSON valido de s que tenga field en
// su primer nivel. Los modelos suelen rodear el payload con texto o con
// ejemplos entre llaves.
func jsonObjectWith(s, field string) (gjson.Result, bool) {
	start := strings.IndexByte(s, '{')
	for start >= 0 {
		for end := start + 1; end < len(s); end++ {
			if s[end] != '}' || !gjson.Valid(s[start:end+1]) {
				continue
			}
			if doc := gjson.Parse(s[start : end+1]); doc.Get(field).Exists() {
				return doc, true
			}
			break
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return gjson.Result{}, false
}

// CleanLLMJSONResponse quita fences ```json ... ``` y BOM, dejando el contenido usable.
func CleanLLMJSONResponse(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	s = strings.TrimPrefix(s, "\uFEFF")

	reStart := regexp.MustCompile("(?is)^\\s*```(?:json)?\\s*")
	reEnd := regexp.MustCompile("(?is)\\s*```\\s*$")
	s = reStart.ReplaceAllString(s, "")
	s = reEnd.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// ExtractStringFieldByRegex intenta extraer el valor de un campo string aunque el JSON este sucio.
func ExtractStringFieldByRegex(s, field string) (string, bool) {
	re := regexp.MustCompile(`(?is)"` + regexp.QuoteMeta(field) + `"\s*:\s*"((?:\\.|[^"\\])*)"`)
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return "", false
	}

	raw := m[1]
	unq, err := strconv.Unquote(`"` + raw + `"`)
	if err != nil {
		unq = unescapeMinimalEscapes(raw)
	}
	unq = strings.TrimSpace(UnescapeMaybeDoubleEscaped(unq))
	if unq == "" {
		return "", false
	}
	return unq, true
}

// UnescapeMaybeDoubleEscaped intenta arreglar casos donde el modelo manda texto doble-escapado.
func UnescapeMaybeDoubleEscaped(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}

	if !strings.Contains(s, `\`) {
		return s
	}

	quoted := `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
	if unq, err := strconv.Unquote(quoted); err == nil {
		return strings.TrimSpace(unq)
	}

	return unescapeMinimalEscapes(s)
}

func unescapeMinimalEscapes(s string) string {
	replacer := strings.NewReplacer(
		`\\`, `\`,
		`\"`, `"`,
		`\n`, "\n",
		`\r`, "\r",
		`\t`, "\t",
	)
	return replacer.Replace(s)
}
