package persona

import (
	"errors"
	"math/rand/v2"
	"sync"
)

// ErrInvalidCount is returned for a negative sample size.
var ErrInvalidCount = errors.New("persona: sample size must not be negative")

// Sampler draws personas uniformly at random. It is safe for concurrent use.
type Sampler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSampler returns a sampler over src. A nil src seeds from the runtime's
// random source.
func NewSampler(src rand.Source) *Sampler {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Sampler{rng: rand.New(src)}
}

// Sample returns exactly n personas. When n does not exceed the population
// size the personas are distinct. Otherwise every persona appears at least
// once and the remaining n-len(pop) slots are drawn with replacement.
func (s *Sampler) Sample(pop Population, n int) ([]Persona, error) {
	switch {
	case n < 0:
		return nil, ErrInvalidCount
	case n == 0:
		return []Persona{}, nil
	case len(pop) == 0:
		return nil, ErrEmptyPopulation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= len(pop) {
		// Partial Fisher-Yates over a copy; the first n slots are the sample.
		out := make([]Persona, len(pop))
		copy(out, pop)
		for i := range n {
			j := i + s.rng.IntN(len(out)-i)
			out[i], out[j] = out[j], out[i]
		}
		return out[:n:n], nil
	}

	out := make([]Persona, len(pop), n)
	copy(out, pop)
	s.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	for len(out) < n {
		out = append(out, pop[s.rng.IntN(len(pop))])
	}
	return out, nil
}
