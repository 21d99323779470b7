package task

import (
	"fmt"
	"math"

	"markovbrain/internal/organism"
)

const ChemotaxisTaskName = "ChemotaxisTask"

const (
	chemotaxisTumbleThreshold = 200
	chemotaxisSignal          = 10
	chemotaxisSpeed           = 1.0
)

// ChemotaxisSettings configure ChemotaxisTask.
type ChemotaxisSettings struct {
	UsePopulationConsistentSeed bool    `yaml:"ctUsePopulationConsistentSeed"`
	NumUpdates                  int     `yaml:"ctNumUpdates"`
	NumReps                     int     `yaml:"ctNumReps"`
	MaxXYDist                   int     `yaml:"ctMaxXYDist"`
	BrainTicksPerUpdate         int     `yaml:"ctBrainTicksPerUpdate"`
	MinDist                     float64 `yaml:"ctMinDist"`
}

// ChemotaxisTask places a target at a random spot at least MinDist from the
// origin. Nodes 5 to 7 fire with a probability that rises as the organism
// closes in; the organism shapes that curve through nodes 2 and 3 and
// tumbles to a random heading when node 0 exceeds 200. Fitness is the mean
// inverse final distance over NumReps repetitions.
type ChemotaxisTask struct {
	s ChemotaxisSettings
}

func NewChemotaxisTask(s ChemotaxisSettings) (*ChemotaxisTask, error) {
	if s.NumUpdates <= 0 {
		return nil, fmt.Errorf("ctNumUpdates must be > 0")
	}
	if s.NumReps <= 0 {
		return nil, fmt.Errorf("ctNumReps must be > 0")
	}
	if s.BrainTicksPerUpdate <= 0 {
		return nil, fmt.Errorf("ctBrainTicksPerUpdate must be > 0")
	}
	if s.MinDist < 0 {
		return nil, fmt.Errorf("ctMinDist must be >= 0")
	}
	if float64(s.MaxXYDist) <= s.MinDist {
		return nil, fmt.Errorf("ctMaxXYDist (%d) must exceed ctMinDist (%g)", s.MaxXYDist, s.MinDist)
	}
	return &ChemotaxisTask{s: s}, nil
}

func (*ChemotaxisTask) Name() string {
	return ChemotaxisTaskName
}

func (t *ChemotaxisTask) Evaluate(org *organism.Organism, generationSeed uint32, _ string, logEnabled bool) error {
	if err := requireMemory(org, ChemotaxisTaskName, 8); err != nil {
		return err
	}
	env := environment(org, t.s.UsePopulationConsistentSeed, generationSeed)
	log := datalog{enabled: logEnabled}

	total := 0.0
	for rep := 0; rep < t.s.NumReps; rep++ {
		x := env.Float64()
		y := env.Float64()
		angle := env.Float64() * 2 * math.Pi
		tx, ty := t.placeTarget(env)

		org.ZeroMemory()
		for i := 0; i < t.s.NumUpdates; i++ {
			shift := float64(org.Memory(2)) + 1
			growth := float64(org.Memory(3)) + 1
			p := 1 / (1 + shift*math.Exp(-growth/math.Max(distance(x, y, tx, ty), minDistance)))
			for node := 5; node < 8; node++ {
				if env.Float64() < p {
					org.SetMemory(node, chemotaxisSignal)
				} else {
					org.SetMemory(node, 0)
				}
			}

			org.Run(t.s.BrainTicksPerUpdate)

			if org.Memory(0) > chemotaxisTumbleThreshold {
				angle = env.Float64() * 2 * math.Pi
			} else {
				x += math.Cos(angle) * chemotaxisSpeed
				y += math.Sin(angle) * chemotaxisSpeed
			}
			if rep == 0 {
				log.add("%g,%g,%g,%g,%g", x, y, angle, tx, ty)
			}
		}
		total += inverseDistance(distance(x, y, tx, ty))
	}

	org.SetFitness(total / float64(t.s.NumReps))
	org.SetStats(log.String())
	return nil
}

func (t *ChemotaxisTask) placeTarget(env source) (float64, float64) {
	tx, ty := 0.0, 0.0
	for distance(0, 0, tx, ty) < t.s.MinDist {
		tx = float64(env.Intn(t.s.MaxXYDist)) + env.Float64()
		ty = float64(env.Intn(t.s.MaxXYDist)) + env.Float64()
		if env.Uint32()%2 == 0 {
			tx = -tx
		}
		if env.Uint32()%2 == 0 {
			ty = -ty
		}
	}
	return tx, ty
}
