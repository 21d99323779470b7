package evo

import (
	"errors"
	"fmt"
	"math"

	"markovbrain/internal/genome"
	"markovbrain/internal/rng"
)

const (
	maxRatePerGenome = 1000.0
	maxRelSize       = 1.0
)

var ErrInvalidRate = errors.New("invalid mutation rate")

// Rates are Poisson means per genome for each mutation kind plus the relative
// size bounds of the segment operations. Crossover is the mean number of
// extra breakpoints used by SexualReproduction.
type Rates struct {
	Point              float64 `yaml:"pointRatePerGenome"`
	Insertion          float64 `yaml:"insertionRatePerGenome"`
	InsertionRelSize   float64 `yaml:"insertionRelSize"`
	Deletion           float64 `yaml:"deletionRatePerGenome"`
	DeletionRelSize    float64 `yaml:"deletionRelSize"`
	Inversion          float64 `yaml:"inversionRatePerGenome"`
	InversionRelSize   float64 `yaml:"inversionRelSize"`
	Reversal           float64 `yaml:"reversalRatePerGenome"`
	ReversalRelSize    float64 `yaml:"reversalRelSize"`
	Duplication        float64 `yaml:"duplicationRatePerGenome"`
	DuplicationRelSize float64 `yaml:"duplicationRelSize"`
	Swap               float64 `yaml:"swapRatePerGenome"`
	Increment          float64 `yaml:"incrementRatePerGenome"`
	Decrement          float64 `yaml:"decrementRatePerGenome"`
	Crossover          float64 `yaml:"crossoverRate"`
}

// Mutator applies Rates to genomes. It holds no mutable state and may be
// shared by every goroutine of a population.
type Mutator struct {
	rates Rates
}

// NewMutator clamps rates into [0, 1000] and relative sizes into [0, 1].
// Non-finite values are rejected.
func NewMutator(r Rates) (*Mutator, error) {
	fields := []struct {
		name string
		v    *float64
		max  float64
	}{
		{"pointRatePerGenome", &r.Point, maxRatePerGenome},
		{"insertionRatePerGenome", &r.Insertion, maxRatePerGenome},
		{"insertionRelSize", &r.InsertionRelSize, maxRelSize},
		{"deletionRatePerGenome", &r.Deletion, maxRatePerGenome},
		{"deletionRelSize", &r.DeletionRelSize, maxRelSize},
		{"inversionRatePerGenome", &r.Inversion, maxRatePerGenome},
		{"inversionRelSize", &r.InversionRelSize, maxRelSize},
		{"reversalRatePerGenome", &r.Reversal, maxRatePerGenome},
		{"reversalRelSize", &r.ReversalRelSize, maxRelSize},
		{"duplicationRatePerGenome", &r.Duplication, maxRatePerGenome},
		{"duplicationRelSize", &r.DuplicationRelSize, maxRelSize},
		{"swapRatePerGenome", &r.Swap, maxRatePerGenome},
		{"incrementRatePerGenome", &r.Increment, maxRatePerGenome},
		{"decrementRatePerGenome", &r.Decrement, maxRatePerGenome},
		{"crossoverRate", &r.Crossover, maxRatePerGenome},
	}
	for _, f := range fields {
		if math.IsNaN(*f.v) || math.IsInf(*f.v, 0) {
			return nil, fmt.Errorf("%w: %s=%v", ErrInvalidRate, f.name, *f.v)
		}
		*f.v = math.Min(math.Max(*f.v, 0), f.max)
	}
	return &Mutator{rates: r}, nil
}

// Rates returns the clamped rates.
func (m *Mutator) Rates() Rates {
	return m.rates
}

// Mutate draws the event count of every mutation kind first and then applies
// the events kind by kind. Each event re-reads the genome length, so earlier
// edits shape the ranges of later ones. Only insertions act on an empty
// genome.
func (m *Mutator) Mutate(g *genome.Genome, r *rng.JSF) {
	rt := m.rates
	points := rng.Poisson(r, rt.Point)
	insertions := rng.Poisson(r, rt.Insertion)
	deletions := rng.Poisson(r, rt.Deletion)
	inversions := rng.Poisson(r, rt.Inversion)
	reversals := rng.Poisson(r, rt.Reversal)
	duplications := rng.Poisson(r, rt.Duplication)
	swaps := rng.Poisson(r, rt.Swap)
	increments := rng.Poisson(r, rt.Increment)
	decrements := rng.Poisson(r, rt.Decrement)

	for i := 0; i < points; i++ {
		if g.Len() == 0 {
			break
		}
		idx := r.Intn(g.Len())
		g.Set(idx, byte(r.Intn(256)))
	}
	for i := 0; i < insertions; i++ {
		idx := r.Intn(g.Len())
		seq := make([]byte, 1+r.Intn(segment(g.Len(), rt.InsertionRelSize)))
		r.Fill(seq)
		g.Insert(idx, seq)
	}
	for i := 0; i < deletions; i++ {
		if g.Len() == 0 {
			break
		}
		idx := r.Intn(g.Len())
		g.Delete(idx, r.Intn(segment(g.Len(), rt.DeletionRelSize)))
	}
	for i := 0; i < inversions; i++ {
		if g.Len() == 0 {
			break
		}
		idx := r.Intn(g.Len())
		g.Invert(idx, r.Intn(segment(g.Len(), rt.InversionRelSize)))
	}
	for i := 0; i < reversals; i++ {
		if g.Len() == 0 {
			break
		}
		idx := r.Intn(g.Len())
		g.Reverse(idx, r.Intn(segment(g.Len(), rt.ReversalRelSize)))
	}
	for i := 0; i < duplications; i++ {
		if g.Len() == 0 {
			break
		}
		idx := r.Intn(g.Len())
		amount := r.Intn(segment(g.Len(), rt.DuplicationRelSize))
		at := r.Intn(g.Len())
		g.Duplicate(idx, amount, at)
	}
	for i := 0; i < swaps; i++ {
		if g.Len() == 0 {
			break
		}
		a := r.Intn(g.Len())
		b := r.Intn(g.Len())
		g.Swap(a, b)
	}
	for i := 0; i < increments; i++ {
		if g.Len() == 0 {
			break
		}
		g.Increment(r.Intn(g.Len()))
	}
	for i := 0; i < decrements; i++ {
		if g.Len() == 0 {
			break
		}
		g.Decrement(r.Intn(g.Len()))
	}
}

// segment is floor(length*rel), the exclusive upper bound of a segment draw.
func segment(length int, rel float64) int {
	return int(float64(length) * rel)
}

// SexualReproduction walks both parents position by position, switching the
// active parent at each breakpoint. The walk stops when it runs off the end
// of the active parent; it never switches at that boundary, so the offspring
// is never longer than the longer parent.
func (m *Mutator) SexualReproduction(p1, p2 *genome.Genome, r *rng.JSF) *genome.Genome {
	crossovers := rng.Poisson(r, m.rates.Crossover) + 1
	minLen := min(p1.Len(), p2.Len())
	breakpoints := make(map[int]struct{}, crossovers)
	for i := 0; i < crossovers; i++ {
		breakpoints[r.Intn(minLen)] = struct{}{}
	}

	parents := [2][]byte{p1.Bytes(), p2.Bytes()}
	active := 0
	out := make([]byte, 0, p1.Len())
	for j := 0; ; j++ {
		if _, ok := breakpoints[j]; ok {
			active ^= 1
		}
		if j >= len(parents[active]) {
			break
		}
		out = append(out, parents[active][j])
	}
	return genome.New(out)
}
