package storage

import (
	"context"

	"markovbrain/internal/model"
)

// Store persists experiments, population snapshots and per-generation audit
// statistics.
type Store interface {
	Init(ctx context.Context) error
	SaveExperiment(ctx context.Context, experiment model.Experiment) error
	GetExperiment(ctx context.Context, id string) (model.Experiment, bool, error)
	ListExperiments(ctx context.Context) ([]model.Experiment, error)
	SavePopulation(ctx context.Context, snapshot model.PopulationSnapshot) error
	GetPopulation(ctx context.Context, id string) (model.PopulationSnapshot, bool, error)
	LatestPopulation(ctx context.Context) (model.PopulationSnapshot, bool, error)
	SaveGenerationStats(ctx context.Context, stats model.GenerationStats) error
	GetGenerationStats(ctx context.Context, experimentID string) ([]model.GenerationStats, bool, error)
}
