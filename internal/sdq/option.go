package sdq

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Option es una de las tres respuestas del cuestionario. El valor entero
// coincide con la contribucion al puntaje en items de sentido directo.
type Option int

const (
	NotTrue       Option = 0
	SomewhatTrue  Option = 1
	CertainlyTrue Option = 2
)

// MaxOption es el valor mas alto de la escala; los items inversos puntuan MaxOption-v.
const MaxOption = CertainlyTrue

var ErrInvalidOption = errors.New("invalid option")

var optionLabels = map[Option]string{
	NotTrue:       "Not True",
	SomewhatTrue:  "Somewhat True",
	CertainlyTrue: "Certainly True",
}

// Options devuelve las opciones en orden de la escala.
func Options() []Option {
	return []Option{NotTrue, SomewhatTrue, CertainlyTrue}
}

func (o Option) Valid() bool {
	return o >= NotTrue && o <= CertainlyTrue
}

func (o Option) String() string {
	if label, ok := optionLabels[o]; ok {
		return label
	}
	return fmt.Sprintf("Option(%d)", int(o))
}

// ParseOption acepta la etiqueta ("Somewhat True"), su forma compacta
// ("somewhat_true", "somewhattrue") o el valor numerico ("1").
func ParseOption(s string) (Option, error) {
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		o := Option(n)
		if !o.Valid() {
			return 0, fmt.Errorf("%w: %d", ErrInvalidOption, n)
		}
		return o, nil
	}
	key := normalizeLabel(s)
	if key == "" {
		return 0, ErrInvalidOption
	}
	for o, label := range optionLabels {
		if normalizeLabel(label) == key {
			return o, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidOption, s)
}

func (o Option) MarshalText() ([]byte, error) {
	if !o.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidOption, int(o))
	}
	return []byte(o.String()), nil
}

func (o *Option) UnmarshalText(text []byte) error {
	parsed, err := ParseOption(string(text))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// DetectDirectAnswer reconoce cuando el texto libre ya nombra una opcion.
// "not true" se evalua primero porque no es subcadena de las otras etiquetas.
func DetectDirectAnswer(text string) (Option, bool) {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return 0, false
	}
	switch {
	case strings.Contains(lower, "not true"):
		return NotTrue, true
	case strings.Contains(lower, "certainly true"):
		return CertainlyTrue, true
	case strings.Contains(lower, "somewhat true"):
		return SomewhatTrue, true
	}
	switch normalizeLabel(lower) {
	case "nottrue":
		return NotTrue, true
	case "somewhattrue":
		return SomewhatTrue, true
	case "certainlytrue":
		return CertainlyTrue, true
	}
	return 0, false
}

func normalizeLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(s)
}
