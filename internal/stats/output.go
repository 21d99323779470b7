package stats

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"markovbrain/internal/model"
)

// GenerationsFileName is the per-generation CSV inside an output directory.
const GenerationsFileName = "generations.csv"

// GenerationRow is one line of generations.csv.
type GenerationRow struct {
	Generation  int     `csv:"generation"`
	MeanFitness float64 `csv:"mean_fitness"`
	MaxFitness  float64 `csv:"max_fitness"`
	StdFitness  float64 `csv:"std_fitness"`
	MeanGates   float64 `csv:"mean_gates"`
	MaxGates    float64 `csv:"max_gates"`
	MeanLength  float64 `csv:"mean_length"`
	MaxLength   float64 `csv:"max_length"`
	BestGates   int     `csv:"best_gates"`
	BestLength  int     `csv:"best_length"`
}

func rowFrom(st model.GenerationStats) GenerationRow {
	return GenerationRow{
		Generation:  st.Generation,
		MeanFitness: st.MeanFitness,
		MaxFitness:  st.MaxFitness,
		StdFitness:  st.StdFitness,
		MeanGates:   st.MeanGates,
		MaxGates:    st.MaxGates,
		MeanLength:  st.MeanLength,
		MaxLength:   st.MaxLength,
		BestGates:   st.BestGates,
		BestLength:  st.BestLength,
	}
}

// ConfigWriter is satisfied by *config.Config.
type ConfigWriter interface {
	WriteYAML(path string) error
}

// OutputManager appends generation rows to a CSV file in an output directory.
// A nil manager discards everything.
type OutputManager struct {
	dir           string
	file          *os.File
	headerWritten bool
}

// NewOutputManager creates dir and generations.csv inside it. Returns nil if
// dir is empty.
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	f, err := os.Create(filepath.Join(dir, GenerationsFileName))
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", GenerationsFileName, err)
	}
	return &OutputManager{dir: dir, file: f}, nil
}

// Dir returns the output directory, or "" for a nil manager.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// WriteConfig saves the run configuration as config.yaml.
func (om *OutputManager) WriteConfig(cfg ConfigWriter) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, "config.yaml"))
}

// WriteGeneration appends one row. The header is written with the first row.
func (om *OutputManager) WriteGeneration(st model.GenerationStats) error {
	if om == nil {
		return nil
	}
	records := []GenerationRow{rowFrom(st)}
	if !om.headerWritten {
		if err := gocsv.Marshal(records, om.file); err != nil {
			return fmt.Errorf("writing generations: %w", err)
		}
		om.headerWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, om.file); err != nil {
		return fmt.Errorf("writing generations: %w", err)
	}
	return nil
}

func (om *OutputManager) Close() error {
	if om == nil || om.file == nil {
		return nil
	}
	err := om.file.Close()
	om.file = nil
	return err
}

// ReadGenerations parses a generations.csv file.
func ReadGenerations(path string) ([]GenerationRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var rows []GenerationRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return rows, nil
}
