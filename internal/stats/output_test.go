package stats

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"markovbrain/internal/model"
)

type stubConfig struct{ body string }

func (c stubConfig) WriteYAML(path string) error {
	return os.WriteFile(path, []byte(c.body), 0o644)
}

func TestNewOutputManagerDisabled(t *testing.T) {
	om, err := NewOutputManager("")
	if err != nil {
		t.Fatalf("new output manager: %v", err)
	}
	if om != nil {
		t.Fatal("expected nil manager for empty dir")
	}
	if err := om.WriteGeneration(model.GenerationStats{}); err != nil {
		t.Fatalf("nil manager write: %v", err)
	}
	if err := om.Close(); err != nil {
		t.Fatalf("nil manager close: %v", err)
	}
}

func TestOutputManagerWritesHeaderOnce(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run")
	om, err := NewOutputManager(dir)
	if err != nil {
		t.Fatalf("new output manager: %v", err)
	}
	for gen := 0; gen < 3; gen++ {
		if err := om.WriteGeneration(model.GenerationStats{Generation: gen, MaxFitness: float64(gen) + 0.5, BestGates: gen}); err != nil {
			t.Fatalf("write generation %d: %v", gen, err)
		}
	}
	if err := om.WriteConfig(stubConfig{body: "populationSize: 3\n"}); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := om.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, GenerationsFileName))
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if n := strings.Count(string(data), "generation,mean_fitness"); n != 1 {
		t.Fatalf("expected one header, found %d in:\n%s", n, data)
	}

	rows, err := ReadGenerations(filepath.Join(dir, GenerationsFileName))
	if err != nil {
		t.Fatalf("read generations: %v", err)
	}
	if len(rows) != 3 || rows[2].Generation != 2 || rows[2].MaxFitness != 2.5 || rows[2].BestGates != 2 {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	if _, err := os.Stat(filepath.Join(dir, "config.yaml")); err != nil {
		t.Fatalf("expected config.yaml: %v", err)
	}
}
