package sdq

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Size es la cantidad de preguntas de cualquier banda del catalogo.
const Size = 25

var (
	ErrUnsupportedAge  = errors.New("age outside supported bands")
	ErrUnknownBand     = errors.New("unknown age band")
	ErrIndexOutOfRange = errors.New("question index out of range")
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Band identifica el rango de edad de un conjunto de textos.
type Band string

const (
	BandEarly  Band = "2-4"
	BandMiddle Band = "5-10"
	BandTeen   Band = "11-17"
)

// Question es una pregunta resuelta: texto de la banda mas su clave de puntaje.
type Question struct {
	Index    int      `json:"index"`
	Text     string   `json:"text"`
	Subscale Subscale `json:"subscale"`
	Reverse  bool     `json:"reverse"`
}

type catalogFile struct {
	Version string     `yaml:"version"`
	Bands   []bandFile `yaml:"bands"`
}

type bandFile struct {
	Band   Band     `yaml:"band"`
	MinAge int      `yaml:"min_age"`
	MaxAge int      `yaml:"max_age"`
	Items  []string `yaml:"items"`
}

type bandRange struct {
	band   Band
	minAge int
	maxAge int
}

// Catalog es la lista ordenada e inmutable de preguntas por banda de edad.
type Catalog struct {
	version string
	ranges  []bandRange
	bands   map[Band][]Question
}

// LoadCatalog parsea un catalogo YAML y valida que cada banda tenga Size preguntas.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var file catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if strings.TrimSpace(file.Version) == "" {
		return nil, errors.New("catalog version is required")
	}
	if len(file.Bands) == 0 {
		return nil, errors.New("catalog has no bands")
	}

	c := &Catalog{
		version: file.Version,
		bands:   make(map[Band][]Question, len(file.Bands)),
	}
	for _, b := range file.Bands {
		if _, dup := c.bands[b.Band]; dup {
			return nil, fmt.Errorf("duplicate band %q", b.Band)
		}
		if len(b.Items) != Size {
			return nil, fmt.Errorf("band %q has %d items, want %d", b.Band, len(b.Items), Size)
		}
		if b.MinAge > b.MaxAge {
			return nil, fmt.Errorf("band %q has inverted age range", b.Band)
		}
		questions := make([]Question, Size)
		for i, text := range b.Items {
			text = strings.TrimSpace(text)
			if text == "" {
				return nil, fmt.Errorf("band %q item %d is empty", b.Band, i)
			}
			questions[i] = Question{
				Index:    i,
				Text:     text,
				Subscale: itemKeys[i].subscale,
				Reverse:  itemKeys[i].reverse,
			}
		}
		c.bands[b.Band] = questions
		c.ranges = append(c.ranges, bandRange{band: b.Band, minAge: b.MinAge, maxAge: b.MaxAge})
	}
	return c, nil
}

// LoadCatalogFile lee un catalogo desde disco.
func LoadCatalogFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadCatalog(f)
}

// DefaultCatalog devuelve el catalogo embebido en el binario.
func DefaultCatalog() *Catalog {
	c, err := LoadCatalog(bytes.NewReader(defaultCatalogYAML))
	if err != nil {
		panic(fmt.Sprintf("embedded catalog invalid: %v", err))
	}
	return c
}

func (c *Catalog) Version() string {
	return c.version
}

// BandForAge resuelve la banda que cubre la edad dada.
func (c *Catalog) BandForAge(age int) (Band, error) {
	for _, r := range c.ranges {
		if age >= r.minAge && age <= r.maxAge {
			return r.band, nil
		}
	}
	return "", fmt.Errorf("%w: %d", ErrUnsupportedAge, age)
}

// Questions devuelve una copia de las preguntas de la banda.
func (c *Catalog) Questions(band Band) ([]Question, error) {
	qs, ok := c.bands[band]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBand, band)
	}
	out := make([]Question, len(qs))
	copy(out, qs)
	return out, nil
}

func (c *Catalog) Question(band Band, index int) (Question, error) {
	qs, ok := c.bands[band]
	if !ok {
		return Question{}, fmt.Errorf("%w: %q", ErrUnknownBand, band)
	}
	if index < 0 || index >= len(qs) {
		return Question{}, fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	return qs[index], nil
}

// Bands lista las bandas en el orden del archivo.
func (c *Catalog) Bands() []Band {
	out := make([]Band, 0, len(c.ranges))
	for _, r := range c.ranges {
		out = append(out, r.band)
	}
	return out
}
