package persona

import (
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	pop := Default()
	require.NotEmpty(t, pop)

	seen := make(map[Persona]bool, len(pop))
	for _, p := range pop {
		assert.NotEmpty(t, strings.TrimSpace(string(p)))
		assert.False(t, seen[p], "duplicate persona %q", p.Headline())
		seen[p] = true
	}
}

func TestHeadline(t *testing.T) {
	assert.Equal(t, "Maria Gonzalez", Persona("Maria Gonzalez, 34, a nurse").Headline())
	assert.Equal(t, "no comma", Persona("no comma").Headline())
}

func TestLoad(t *testing.T) {
	pop, err := Load(strings.NewReader("personas:\n  - \"  Ann, 30, baker  \"\n  - Bob, 41, pilot\n"))
	require.NoError(t, err)
	assert.Equal(t, Population{"Ann, 30, baker", "Bob, 41, pilot"}, pop)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(strings.NewReader("personas: []\n"))
	assert.ErrorIs(t, err, ErrEmptyPopulation)

	_, err = Load(strings.NewReader("personas:\n  - Ann\n  - \"   \"\n"))
	assert.ErrorContains(t, err, "entry 1 is blank")

	_, err = Load(strings.NewReader("personas: [unterminated"))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "people.yaml")
	require.NoError(t, os.WriteFile(path, []byte("personas:\n  - Ann, 30\n"), 0o600))

	pop, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, Population{"Ann, 30"}, pop)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestFromStrings(t *testing.T) {
	pop, err := FromStrings([]string{"  Ann, 30 ", "Bo"})
	require.NoError(t, err)
	assert.Equal(t, Population{"Ann, 30", "Bo"}, pop)

	_, err = FromStrings(nil)
	assert.ErrorIs(t, err, ErrEmptyPopulation)

	_, err = FromStrings([]string{"Ann", ""})
	assert.ErrorContains(t, err, "entry 1 is blank")
}

func testPopulation(size int) Population {
	pop := make(Population, size)
	for i := range pop {
		pop[i] = Persona("person-" + string(rune('A'+i%26)) + strings.Repeat("x", i/26))
	}
	return pop
}

func TestSample_Cardinality(t *testing.T) {
	s := NewSampler(rand.NewPCG(1, 2))
	for _, size := range []int{1, 2, 7, 48} {
		pop := testPopulation(size)
		for _, n := range []int{0, 1, size - 1, size, size + 1, 3 * size, 250} {
			if n < 0 {
				continue
			}
			got, err := s.Sample(pop, n)
			require.NoError(t, err)
			require.Len(t, got, n, "size=%d n=%d", size, n)

			counts := make(map[Persona]int)
			for _, p := range got {
				counts[p]++
			}
			if n <= size {
				assert.Len(t, counts, n, "expected distinct personas for size=%d n=%d", size, n)
			} else {
				assert.Len(t, counts, size, "expected full coverage for size=%d n=%d", size, n)
			}
		}
	}
}

func TestSample_DoesNotMutatePopulation(t *testing.T) {
	pop := testPopulation(10)
	orig := append(Population(nil), pop...)
	s := NewSampler(rand.NewPCG(3, 4))

	_, err := s.Sample(pop, 5)
	require.NoError(t, err)
	_, err = s.Sample(pop, 25)
	require.NoError(t, err)
	assert.Equal(t, orig, pop)
}

func TestSample_Errors(t *testing.T) {
	s := NewSampler(nil)

	_, err := s.Sample(testPopulation(3), -1)
	assert.ErrorIs(t, err, ErrInvalidCount)

	_, err = s.Sample(nil, 1)
	assert.ErrorIs(t, err, ErrEmptyPopulation)

	got, err := s.Sample(nil, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSample_Concurrent(t *testing.T) {
	s := NewSampler(nil)
	pop := Default()

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := s.Sample(pop, 100)
			assert.NoError(t, err)
			assert.Len(t, got, 100)
		}()
	}
	wg.Wait()
}
