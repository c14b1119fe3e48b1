package sdq

import (
	"errors"
	"fmt"
)

// ErrIncompleteAnswers indica que falta al menos una respuesta para puntuar.
var ErrIncompleteAnswers = errors.New("incomplete answer set")

// SubscaleScore es el puntaje bruto de una subescala y su banda clinica.
type SubscaleScore struct {
	Subscale Subscale `json:"subscale"`
	Raw      int      `json:"raw"`
	Max      int      `json:"max"`
	Severity Severity `json:"severity"`
}

// Contribution devuelve el aporte de una respuesta al puntaje de su subescala.
func Contribution(index int, o Option) (int, error) {
	if index < 0 || index >= Size {
		return 0, fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	if !o.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidOption, int(o))
	}
	if itemKeys[index].reverse {
		return int(MaxOption - o), nil
	}
	return int(o), nil
}

// Score calcula las cinco subescalas. Requiere exactamente una respuesta
// por indice en [0, Size).
func Score(answers map[int]Option) ([]SubscaleScore, error) {
	if len(answers) != Size {
		return nil, fmt.Errorf("%w: have %d of %d", ErrIncompleteAnswers, len(answers), Size)
	}
	raw := make(map[Subscale]int, len(Subscales))
	for i := 0; i < Size; i++ {
		o, ok := answers[i]
		if !ok {
			return nil, fmt.Errorf("%w: missing index %d", ErrIncompleteAnswers, i)
		}
		c, err := Contribution(i, o)
		if err != nil {
			return nil, err
		}
		raw[itemKeys[i].subscale] += c
	}

	scores := make([]SubscaleScore, 0, len(Subscales))
	for _, s := range Subscales {
		scores = append(scores, SubscaleScore{
			Subscale: s,
			Raw:      raw[s],
			Max:      len(SubscaleItems(s)) * int(MaxOption),
			Severity: Classify(s, raw[s]),
		})
	}
	return scores, nil
}

// TotalDifficulties suma las cuatro subescalas de dificultades (excluye prosocial).
func TotalDifficulties(scores []SubscaleScore) int {
	total := 0
	for _, s := range scores {
		if s.Subscale.Difficulty() {
			total += s.Raw
		}
	}
	return total
}

// ScoreFor busca el puntaje de una subescala.
func ScoreFor(scores []SubscaleScore, s Subscale) (SubscaleScore, bool) {
	for _, sc := range scores {
		if sc.Subscale == s {
			return sc, true
		}
	}
	return SubscaleScore{}, false
}
