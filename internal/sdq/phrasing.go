package sdq

import (
	"fmt"
	"strings"
)

// OptionsPrompt se agrega al final de cada pregunta mostrada.
const OptionsPrompt = "Options: Not True / Somewhat True / Certainly True"

// leadingVerbs son los verbos en tercera persona con que abren los textos del catalogo.
var leadingVerbs = map[string]string{
	"has":       "have",
	"gets":      "get",
	"steals":    "steal",
	"shares":    "share",
	"complains": "complain",
	"loses":     "lose",
	"fights":    "fight",
	"lies":      "lie",
	"offers":    "offer",
	"thinks":    "think",
}

var modals = map[string]bool{"can": true, "would": true}

// Phrase convierte el texto del catalogo en una pregunta dirigida al
// respondente: en segunda persona para autoreporte, o nombrando al sujeto.
func Phrase(text, subjectName string, selfReport bool) string {
	words := strings.Fields(strings.ToLower(strings.TrimSpace(text)))
	if len(words) == 0 {
		return ""
	}
	name := strings.TrimSpace(subjectName)
	if name == "" {
		name = "the child"
	}
	subject := name
	if selfReport {
		subject = "you"
	}

	often := words[0] == "often" && len(words) > 1
	if often {
		words = words[1:]
	}
	head, tail := words[0], strings.Join(words[1:], " ")

	var q string
	switch {
	case modals[head]:
		q = fmt.Sprintf("%s %s %s", head, subject, tail)
	case leadingVerbs[head] != "":
		aux := "does"
		if selfReport {
			aux = "do"
		}
		q = strings.TrimSpace(fmt.Sprintf("%s %s %s %s", aux, subject, leadingVerbs[head], tail))
	default:
		copula := "is"
		if selfReport {
			copula = "are"
		}
		q = fmt.Sprintf("%s %s %s", copula, subject, strings.Join(words, " "))
	}
	if often || (selfReport && !modals[head]) {
		q = "how often " + q
	}
	return capitalize(strings.TrimSpace(q)) + "?"
}

// Prompt es la pregunta personalizada seguida de las opciones.
func Prompt(q Question, subjectName string, selfReport bool) string {
	return Phrase(q.Text, subjectName, selfReport) + "\n" + OptionsPrompt
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
