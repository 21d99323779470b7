package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"markovbrain/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	experiments map[string]model.Experiment
	populations map[string]model.PopulationSnapshot
	latest      string
	stats       map[string][]model.GenerationStats
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.experiments = make(map[string]model.Experiment)
	s.populations = make(map[string]model.PopulationSnapshot)
	s.stats = make(map[string][]model.GenerationStats)
	return nil
}

func (s *MemoryStore) ready() error {
	if !s.initialized {
		return errors.New("store is not initialized")
	}
	return nil
}

func (s *MemoryStore) SaveExperiment(_ context.Context, experiment model.Experiment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}

	s.experiments[experiment.ID] = experiment
	return nil
}

func (s *MemoryStore) GetExperiment(_ context.Context, id string) (model.Experiment, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return model.Experiment{}, false, err
	}

	experiment, ok := s.experiments[id]
	return experiment, ok, nil
}

func (s *MemoryStore) ListExperiments(_ context.Context) ([]model.Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return nil, err
	}

	out := make([]model.Experiment, 0, len(s.experiments))
	for _, experiment := range s.experiments {
		out = append(out, experiment)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) SavePopulation(_ context.Context, snapshot model.PopulationSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}

	snapshot.Organisms = append([]model.OrganismRecord(nil), snapshot.Organisms...)
	s.populations[snapshot.ID] = snapshot
	s.latest = snapshot.ID
	return nil
}

func (s *MemoryStore) GetPopulation(_ context.Context, id string) (model.PopulationSnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return model.PopulationSnapshot{}, false, err
	}

	snapshot, ok := s.populations[id]
	if !ok {
		return model.PopulationSnapshot{}, false, nil
	}
	snapshot.Organisms = append([]model.OrganismRecord(nil), snapshot.Organisms...)
	return snapshot, true, nil
}

// LatestPopulation returns the most recently saved snapshot.
func (s *MemoryStore) LatestPopulation(_ context.Context) (model.PopulationSnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return model.PopulationSnapshot{}, false, err
	}

	snapshot, ok := s.populations[s.latest]
	if !ok {
		return model.PopulationSnapshot{}, false, nil
	}
	snapshot.Organisms = append([]model.OrganismRecord(nil), snapshot.Organisms...)
	return snapshot, true, nil
}

// SaveGenerationStats replaces any earlier record for the same generation.
func (s *MemoryStore) SaveGenerationStats(_ context.Context, stats model.GenerationStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}

	records := s.stats[stats.ExperimentID]
	for i := range records {
		if records[i].Generation == stats.Generation {
			records[i] = stats
			return nil
		}
	}
	records = append(records, stats)
	sort.Slice(records, func(i, j int) bool {
		return records[i].Generation < records[j].Generation
	})
	s.stats[stats.ExperimentID] = records
	return nil
}

func (s *MemoryStore) GetGenerationStats(_ context.Context, experimentID string) ([]model.GenerationStats, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return nil, false, err
	}

	records, ok := s.stats[experimentID]
	if !ok {
		return nil, false, nil
	}
	return append([]model.GenerationStats(nil), records...), true, nil
}
