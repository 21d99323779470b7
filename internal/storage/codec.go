package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"markovbrain/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// Versioned returns the record header for the current schema and codec.
func Versioned() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func EncodePopulation(p model.PopulationSnapshot) ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}

func DecodePopulation(data []byte) (model.PopulationSnapshot, error) {
	var population model.PopulationSnapshot
	if err := json.Unmarshal(data, &population); err != nil {
		return model.PopulationSnapshot{}, err
	}
	if err := checkVersion(population.VersionedRecord); err != nil {
		return model.PopulationSnapshot{}, err
	}
	return population, nil
}

func EncodeExperiment(e model.Experiment) ([]byte, error) {
	return json.Marshal(e)
}

func DecodeExperiment(data []byte) (model.Experiment, error) {
	var experiment model.Experiment
	if err := json.Unmarshal(data, &experiment); err != nil {
		return model.Experiment{}, err
	}
	if err := checkVersion(experiment.VersionedRecord); err != nil {
		return model.Experiment{}, err
	}
	return experiment, nil
}

func EncodeGenerationStats(stats []model.GenerationStats) ([]byte, error) {
	return json.MarshalIndent(stats, "", "  ")
}

func DecodeGenerationStats(data []byte) ([]model.GenerationStats, error) {
	var stats []model.GenerationStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, err
	}
	for _, record := range stats {
		if err := checkVersion(record.VersionedRecord); err != nil {
			return nil, err
		}
	}
	return stats, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return fmt.Errorf("%w: schema=%d codec=%d", ErrVersionMismatch, v.SchemaVersion, v.CodecVersion)
	}
	return nil
}
