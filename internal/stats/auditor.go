// Package stats summarises evaluated generations and records them.
package stats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"markovbrain/internal/evo"
	"markovbrain/internal/model"
	"markovbrain/internal/storage"
)

var ErrEmptyGeneration = errors.New("no organisms to audit")

// Auditor records per-generation statistics for one experiment.
type Auditor struct {
	ExperimentID string
	Store        storage.Store
	Output       *OutputManager
	// Task replays the best organism with logging on when RecordDatalog is
	// set. The replay runs on a clone so the population is untouched.
	Task          evo.TaskFunc
	RecordDatalog bool
	Logger        *slog.Logger
}

// Audit summarises the current generation of pop, saves it to the store and
// appends it to the CSV output. generationSeed must be the seed the
// generation was evaluated with so the replay sees the same environment.
func (a *Auditor) Audit(ctx context.Context, pop *evo.Population, generationSeed uint32) (model.GenerationStats, error) {
	orgs := pop.Organisms()
	if len(orgs) == 0 {
		return model.GenerationStats{}, ErrEmptyGeneration
	}
	sum := Summarize(orgs)
	best := orgs[sum.BestIndex]

	st := model.GenerationStats{
		VersionedRecord: storage.Versioned(),
		ExperimentID:    a.ExperimentID,
		Generation:      pop.Generation(),
		MeanFitness:     sum.MeanFitness,
		MaxFitness:      sum.MaxFitness,
		StdFitness:      sum.StdFitness,
		MeanGates:       sum.MeanGates,
		MaxGates:        sum.MaxGates,
		MeanLength:      sum.MeanLength,
		MaxLength:       sum.MaxLength,
		Best: model.OrganismRecord{
			Fitness:  best.Fitness(),
			Genome:   best.Genome().String(),
			RNGState: best.RNGState(),
		},
		BestGates:  best.GateCount(),
		BestLength: best.GenomeLen(),
	}

	if a.RecordDatalog && a.Task != nil {
		replay := best.Clone()
		tag := fmt.Sprintf("gen%d", st.Generation)
		if err := a.Task(replay, generationSeed, tag, true); err != nil {
			return model.GenerationStats{}, fmt.Errorf("replay best organism: %w", err)
		}
		st.BestDatalog = replay.Stats()
	}

	if a.Store != nil {
		if err := a.Store.SaveGenerationStats(ctx, st); err != nil {
			return model.GenerationStats{}, fmt.Errorf("save generation stats: %w", err)
		}
	}
	if err := a.Output.WriteGeneration(st); err != nil {
		return model.GenerationStats{}, err
	}

	a.logger().Debug("generation audited",
		"generation", st.Generation,
		"mean_fitness", st.MeanFitness,
		"max_fitness", st.MaxFitness,
		"mean_gates", st.MeanGates,
		"mean_length", st.MeanLength,
	)
	return st, nil
}

func (a *Auditor) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}
