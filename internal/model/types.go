package model

import "time"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// OrganismRecord is the persisted form of one organism. Genome is the
// comma-joined decimal byte string and RNGState the comma-joined four stream
// words.
type OrganismRecord struct {
	Fitness  float64 `json:"fitness"`
	Genome   string  `json:"genome"`
	RNGState string  `json:"rng_state"`
}

type PopulationSnapshot struct {
	VersionedRecord
	ID           string           `json:"id"`
	ExperimentID string           `json:"experiment_id,omitempty"`
	Generation   int              `json:"generation"`
	Organisms    []OrganismRecord `json:"organisms"`
}

// Experiment describes one driver run.
type Experiment struct {
	VersionedRecord
	ID          string    `json:"id"`
	Task        string    `json:"task"`
	Seed        uint32    `json:"seed"`
	Settings    string    `json:"settings"`
	StartedAt   time.Time `json:"started_at"`
	Generations int       `json:"generations"`
}

// GenerationStats is the audit summary of one generation. Best holds the
// first organism with the maximum fitness.
type GenerationStats struct {
	VersionedRecord
	ExperimentID string         `json:"experiment_id"`
	Generation   int            `json:"generation"`
	MeanFitness  float64        `json:"mean_fitness"`
	MaxFitness   float64        `json:"max_fitness"`
	StdFitness   float64        `json:"std_fitness"`
	MeanGates    float64        `json:"mean_gates"`
	MaxGates     float64        `json:"max_gates"`
	MeanLength   float64        `json:"mean_length"`
	MaxLength    float64        `json:"max_length"`
	Best         OrganismRecord `json:"best"`
	BestGates    int            `json:"best_gates"`
	BestLength   int            `json:"best_length"`
	BestDatalog  string         `json:"best_datalog,omitempty"`
}
