// Package config loads run settings from a flat YAML file.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"markovbrain/internal/evo"
	"markovbrain/internal/organism"
	"markovbrain/internal/task"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ReferenceFileName is the file WriteReference creates.
const ReferenceFileName = "settings.yaml"

var (
	ErrMissingKey   = errors.New("missing settings key")
	ErrUnknownKey   = errors.New("unknown settings key")
	ErrInvalidValue = errors.New("invalid settings value")
)

type Config struct {
	Mutation evo.Rates     `yaml:",inline"`
	Tasks    task.Settings `yaml:",inline"`

	MemorySize         int     `yaml:"memorySize"`
	SeedGates          int     `yaml:"seedGates"`
	GenomeLength       int     `yaml:"genomeLength"`
	PopulationSize     int     `yaml:"populationSize"`
	KProportion        float64 `yaml:"kProportion"`
	NProportion        float64 `yaml:"nProportion"`
	SexualReproduction bool    `yaml:"sexualReproduction"`
	Workers            int     `yaml:"workers"`

	ExperimentName            string `yaml:"experimentName"`
	StoreKind                 string `yaml:"storeKind"`
	DBPath                    string `yaml:"dbPath"`
	OutputDir                 string `yaml:"outputDir"`
	DumpFinalPopulation       bool   `yaml:"dumpFinalPopulation"`
	DumpFormat                string `yaml:"dumpFormat"`
	DumpPopulationPath        string `yaml:"dumpPopulationPath"`
	CompressDumpedPopulations bool   `yaml:"compressDumpedPopulations"`
	LoadPopulationFromFile    bool   `yaml:"loadPopulationFromFile"`
	LoadPopulationPath        string `yaml:"loadPopulationPath"`
	Generations               int    `yaml:"generations"`
	RandomSeed                uint32 `yaml:"randomSeed"`
	RecordBestDatalog         bool   `yaml:"recordBestDatalog"`
	TaskName                  string `yaml:"taskName"`
}

// Default returns the embedded defaults.
func Default() *Config {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		panic(fmt.Sprintf("parsing embedded defaults: %v", err))
	}
	return cfg
}

// Load reads a settings file. An empty path returns the defaults. A file must
// name every key of the reference settings and nothing else.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse is Load for in-memory YAML.
func Parse(data []byte) (*Config, error) {
	if err := checkKeys(data); err != nil {
		return nil, err
	}
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func checkKeys(data []byte) error {
	var want, got map[string]any
	if err := yaml.Unmarshal(defaultsYAML, &want); err != nil {
		return fmt.Errorf("parsing embedded defaults: %w", err)
	}
	if err := yaml.Unmarshal(data, &got); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}

	var missing, unknown []string
	for key := range want {
		if _, ok := got[key]; !ok {
			missing = append(missing, key)
		}
	}
	for key := range got {
		if _, ok := want[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(missing)
	sort.Strings(unknown)
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrMissingKey, missing)
	}
	if len(unknown) > 0 {
		return fmt.Errorf("%w: %v", ErrUnknownKey, unknown)
	}
	return nil
}

// Validate checks sizes and proportions. Mutation rates are clamped by the
// mutator and task settings are checked when the task is built.
func (c *Config) Validate() error {
	switch {
	case c.PopulationSize <= 0:
		return fmt.Errorf("%w: populationSize must be > 0", ErrInvalidValue)
	case c.GenomeLength < 0:
		return fmt.Errorf("%w: genomeLength must be >= 0", ErrInvalidValue)
	case c.SeedGates < 0:
		return fmt.Errorf("%w: seedGates must be >= 0", ErrInvalidValue)
	case c.MemorySize <= 0:
		return fmt.Errorf("%w: memorySize must be > 0", ErrInvalidValue)
	case !(c.KProportion > 0 && c.KProportion <= 1):
		return fmt.Errorf("%w: kProportion must be in (0,1]", ErrInvalidValue)
	case !(c.NProportion > 0 && c.NProportion <= 1):
		return fmt.Errorf("%w: nProportion must be in (0,1]", ErrInvalidValue)
	case c.Generations <= 0:
		return fmt.Errorf("%w: generations must be > 0", ErrInvalidValue)
	case c.Workers < 0:
		return fmt.Errorf("%w: workers must be >= 0", ErrInvalidValue)
	case c.TaskName == "":
		return fmt.Errorf("%w: taskName is required", ErrInvalidValue)
	}
	switch c.DumpFormat {
	case "json", "sqlite":
	default:
		return fmt.Errorf("%w: dumpFormat must be json or sqlite, got %q", ErrInvalidValue, c.DumpFormat)
	}
	return nil
}

// Params returns the organism construction settings.
func (c *Config) Params() organism.Params {
	return organism.Params{
		GenomeLength: c.GenomeLength,
		SeedGates:    c.SeedGates,
		MemorySize:   c.MemorySize,
	}
}

// Tournament returns the winner count n and tournament size k for the
// configured population size, each at least one.
func (c *Config) Tournament() (n, k int) {
	return c.TournamentFor(c.PopulationSize)
}

// TournamentFor is Tournament for a population of the given size, used when a
// loaded population differs from populationSize.
func (c *Config) TournamentFor(size int) (n, k int) {
	n = max(int(float64(size)*c.NProportion), 1)
	k = max(int(float64(size)*c.KProportion), 1)
	return n, k
}

// WriteYAML saves the configuration.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// String renders the configuration as YAML for logs and experiment records.
func (c *Config) String() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(data)
}

// WriteReference writes the commented reference settings into dir and
// returns the file path.
func WriteReference(dir string) (string, error) {
	path := filepath.Join(dir, ReferenceFileName)
	if err := os.WriteFile(path, defaultsYAML, 0o644); err != nil {
		return "", fmt.Errorf("writing reference settings: %w", err)
	}
	return path, nil
}
