package main

import (
	"strings"

	"markovbrain/internal/model"
)

// populationSummary returns the best fitness and the total genome bytes.
func populationSummary(p model.PopulationSnapshot) (best float64, length int) {
	for i, org := range p.Organisms {
		if i == 0 || org.Fitness > best {
			best = org.Fitness
		}
		if org.Genome != "" {
			length += strings.Count(org.Genome, ",") + 1
		}
	}
	return best, length
}
