package stats

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"markovbrain/internal/organism"
)

// Summary describes one evaluated generation.
type Summary struct {
	MeanFitness float64
	MaxFitness  float64
	StdFitness  float64
	MeanGates   float64
	MaxGates    float64
	MeanLength  float64
	MaxLength   float64
	BestIndex   int
}

// Summarize aggregates fitness, gate count and genome length over orgs. The
// best organism is the first one holding the maximum fitness. An empty slice
// yields a zero Summary with BestIndex -1.
func Summarize(orgs []*organism.Organism) Summary {
	if len(orgs) == 0 {
		return Summary{BestIndex: -1}
	}
	fitness := make([]float64, len(orgs))
	gates := make([]float64, len(orgs))
	lengths := make([]float64, len(orgs))
	for i, org := range orgs {
		fitness[i] = org.Fitness()
		gates[i] = float64(org.GateCount())
		lengths[i] = float64(org.GenomeLen())
	}

	s := Summary{
		MaxGates:   floats.Max(gates),
		MaxLength:  floats.Max(lengths),
		MeanGates:  stat.Mean(gates, nil),
		MeanLength: stat.Mean(lengths, nil),
		BestIndex:  floats.MaxIdx(fitness),
	}
	s.MaxFitness = fitness[s.BestIndex]
	if len(fitness) < 2 {
		s.MeanFitness = fitness[0]
		return s
	}
	s.MeanFitness, s.StdFitness = stat.MeanStdDev(fitness, nil)
	return s
}
