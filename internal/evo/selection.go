package evo

import (
	"fmt"

	"markovbrain/internal/organism"
	"markovbrain/internal/rng"
)

// TournamentSelector samples K organisms uniformly with replacement and picks
// the fittest. The first sampled candidate wins ties. When K covers the whole
// population every organism is considered once instead, so the winner is the
// first global maximum.
type TournamentSelector struct {
	K int
}

func (TournamentSelector) Name() string {
	return "tournament"
}

// Pick returns the index of the winner in orgs.
func (s TournamentSelector) Pick(r *rng.JSF, orgs []*organism.Organism) (int, error) {
	if r == nil {
		return 0, fmt.Errorf("random source is required")
	}
	if len(orgs) == 0 {
		return 0, ErrEmptyPopulation
	}
	if s.K <= 0 {
		return 0, fmt.Errorf("%w: k=%d", ErrInvalidTournament, s.K)
	}

	if s.K >= len(orgs) {
		best := 0
		for i := 1; i < len(orgs); i++ {
			if orgs[i].Fitness() > orgs[best].Fitness() {
				best = i
			}
		}
		return best, nil
	}

	best := r.Intn(len(orgs))
	for i := 1; i < s.K; i++ {
		candidate := r.Intn(len(orgs))
		if orgs[candidate].Fitness() > orgs[best].Fitness() {
			best = candidate
		}
	}
	return best, nil
}
