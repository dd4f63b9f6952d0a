// Package persona holds the simulated respondent population and the sampler
// that draws a batch of respondents from it.
package persona

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Persona is a fixed description of one simulated respondent.
type Persona string

// Headline returns the text before the first comma, which by convention is
// the respondent's name. Used to keep log lines short.
func (p Persona) Headline() string {
	s := string(p)
	if i := strings.IndexByte(s, ','); i >= 0 {
		return s[:i]
	}
	return s
}

// Population is an ordered list of personas to sample from.
type Population []Persona

// ErrEmptyPopulation is returned when personas are requested from an empty
// population.
var ErrEmptyPopulation = errors.New("persona: population is empty")

//go:embed personas.yaml
var defaultYAML []byte

type populationFile struct {
	Personas []string `yaml:"personas"`
}

var loadDefault = sync.OnceValue(func() Population {
	pop, err := parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("persona: embedded personas.yaml: %v", err))
	}
	return pop
})

// Default returns the population compiled into the binary. Callers must not
// modify the returned slice.
func Default() Population {
	return loadDefault()
}

// Load decodes a population from YAML of the form:
//
//	personas:
//	  - "Name, age, description..."
func Load(r io.Reader) (Population, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("persona: read population: %w", err)
	}
	return parse(data)
}

// LoadFile decodes a population from a YAML file on disk.
func LoadFile(path string) (Population, error) {
	f, err := os.Open(path) //nolint:gosec // operator-supplied config path
	if err != nil {
		return nil, fmt.Errorf("persona: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	pop, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("persona: load %s: %w", path, err)
	}
	return pop, nil
}

func parse(data []byte) (Population, error) {
	var pf populationFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("persona: parse population: %w", err)
	}
	return FromStrings(pf.Personas)
}

// FromStrings builds a population from raw descriptions, trimming each one.
// Blank entries are rejected.
func FromStrings(descriptions []string) (Population, error) {
	if len(descriptions) == 0 {
		return nil, ErrEmptyPopulation
	}
	pop := make(Population, 0, len(descriptions))
	for i, s := range descriptions {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, fmt.Errorf("persona: entry %d is blank", i)
		}
		pop = append(pop, Persona(s))
	}
	return pop, nil
}
