package sdq

// Subscale agrupa cinco preguntas del cuestionario.
type Subscale string

const (
	Emotional     Subscale = "emotional"
	Conduct       Subscale = "conduct"
	Hyperactivity Subscale = "hyperactivity"
	Peer          Subscale = "peer"
	Prosocial     Subscale = "prosocial"
)

// Subscales lista las subescalas en el orden en que se reportan.
var Subscales = []Subscale{Emotional, Conduct, Hyperactivity, Peer, Prosocial}

// Severity es la banda clinica de un puntaje de subescala.
type Severity string

const (
	SeverityNormal     Severity = "normal"
	SeverityBorderline Severity = "borderline"
	SeverityAbnormal   Severity = "abnormal"
)

// Difficulty indica si la subescala suma al total de dificultades.
func (s Subscale) Difficulty() bool {
	return s != Prosocial
}

func (s Subscale) Valid() bool {
	switch s {
	case Emotional, Conduct, Hyperactivity, Peer, Prosocial:
		return true
	}
	return false
}

// Classify asigna la banda clinica. Prosocial es la unica escala donde un
// puntaje bajo es preocupante.
func Classify(s Subscale, raw int) Severity {
	if s == Prosocial {
		switch {
		case raw <= 4:
			return SeverityAbnormal
		case raw == 5:
			return SeverityBorderline
		default:
			return SeverityNormal
		}
	}
	switch {
	case raw >= 7:
		return SeverityAbnormal
	case raw == 6:
		return SeverityBorderline
	default:
		return SeverityNormal
	}
}

// itemKey describe la pertenencia fija de cada pregunta.
type itemKey struct {
	subscale Subscale
	reverse  bool
}

// itemKeys esta indexado por la posicion de la pregunta (0-based).
var itemKeys = [Size]itemKey{
	0:  {Prosocial, false},
	1:  {Hyperactivity, false},
	2:  {Emotional, false},
	3:  {Prosocial, false},
	4:  {Conduct, false},
	5:  {Peer, false},
	6:  {Conduct, true},
	7:  {Emotional, false},
	8:  {Prosocial, false},
	9:  {Hyperactivity, false},
	10: {Peer, true},
	11: {Conduct, false},
	12: {Emotional, false},
	13: {Peer, true},
	14: {Hyperactivity, false},
	15: {Emotional, false},
	16: {Prosocial, false},
	17: {Conduct, false},
	18: {Peer, false},
	19: {Prosocial, false},
	20: {Hyperactivity, true},
	21: {Conduct, false},
	22: {Peer, false},
	23: {Emotional, false},
	24: {Hyperactivity, true},
}

// SubscaleItems devuelve los indices de las preguntas de una subescala.
func SubscaleItems(s Subscale) []int {
	var out []int
	for i, k := range itemKeys {
		if k.subscale == s {
			out = append(out, i)
		}
	}
	return out
}
