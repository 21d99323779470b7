package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"markovbrain/internal/config"
	"markovbrain/internal/model"
	"markovbrain/internal/stats"
	"markovbrain/internal/storage"
)

func writeSettings(t *testing.T, dir string, edit func(*config.Config)) string {
	t.Helper()
	cfg := config.Default()
	cfg.TaskName = "SumTask"
	cfg.PopulationSize = 12
	cfg.GenomeLength = 64
	cfg.Generations = 2
	cfg.RandomSeed = 9
	cfg.Workers = 2
	if edit != nil {
		edit(cfg)
	}
	path := filepath.Join(dir, config.ReferenceFileName)
	if err := cfg.WriteYAML(path); err != nil {
		t.Fatalf("write settings: %v", err)
	}
	return path
}

func TestRunRequiresCommand(t *testing.T) {
	if err := run(context.Background(), nil); err == nil || !strings.Contains(err.Error(), "missing command") {
		t.Fatalf("expected missing command error, got %v", err)
	}
	if err := run(context.Background(), []string{"bogus"}); err == nil || !strings.Contains(err.Error(), "unknown command: bogus") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}

func TestSettingsCommandWritesLoadableReference(t *testing.T) {
	dir := t.TempDir()
	if err := run(context.Background(), []string{"settings", "-dir", dir}); err != nil {
		t.Fatalf("settings: %v", err)
	}
	if _, err := config.Load(filepath.Join(dir, config.ReferenceFileName)); err != nil {
		t.Fatalf("load written settings: %v", err)
	}
}

func TestRunCommandWritesOutputAndDump(t *testing.T) {
	dir := t.TempDir()
	settings := writeSettings(t, dir, nil)
	outDir := filepath.Join(dir, "out")
	dumpPath := filepath.Join(dir, "final.json")

	err := run(context.Background(), []string{
		"run",
		"-config", settings,
		"-log-level", "error",
		"-generations", "3",
		"-output", outDir,
		"-dump",
		"-dump-path", dumpPath,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	rows, err := stats.ReadGenerations(filepath.Join(outDir, stats.GenerationsFileName))
	if err != nil {
		t.Fatalf("read generations: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected generations flag to override settings, got %d rows", len(rows))
	}
	snap, err := storage.ReadPopulationFile(dumpPath)
	if err != nil {
		t.Fatalf("read dump: %v", err)
	}
	if snap.Generation != 3 || len(snap.Organisms) != 12 {
		t.Fatalf("unexpected dump: gen=%d size=%d", snap.Generation, len(snap.Organisms))
	}

	if err := run(context.Background(), []string{"population", "-file", dumpPath}); err != nil {
		t.Fatalf("population from file: %v", err)
	}
	if err := run(context.Background(), []string{"stats", "-csv", filepath.Join(outDir, stats.GenerationsFileName)}); err != nil {
		t.Fatalf("stats from csv: %v", err)
	}
}

func TestRunCommandWritesReferenceWhenSettingsMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, config.ReferenceFileName)
	err := run(context.Background(), []string{"run", "-config", path})
	if err == nil || !strings.Contains(err.Error(), "wrote reference settings") {
		t.Fatalf("expected missing settings error, got %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected reference settings written: %v", err)
	}
}

func TestRunCommandRejectsBadLogLevel(t *testing.T) {
	settings := writeSettings(t, t.TempDir(), nil)
	if err := run(context.Background(), []string{"run", "-config", settings, "-log-level", "loud"}); err == nil {
		t.Fatal("expected log level error")
	}
}

func TestExperimentFlagChecks(t *testing.T) {
	for _, cmd := range []string{"stats", "export", "population"} {
		if err := run(context.Background(), []string{cmd}); err == nil || !strings.Contains(err.Error(), "--experiment-id or --latest") {
			t.Fatalf("%s: expected flag error, got %v", cmd, err)
		}
		if err := run(context.Background(), []string{cmd, "-experiment-id", "x", "-latest"}); err == nil {
			t.Fatalf("%s: expected conflicting flag error", cmd)
		}
	}
	if err := run(context.Background(), []string{"stats", "-latest"}); err == nil {
		t.Fatal("expected no experiments in a fresh memory store")
	}
}

func TestOverridesApplyOnlySetFlags(t *testing.T) {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	o := bindRunOverrides(fs)
	if err := fs.Parse([]string{"-population", "7", "-seed", "5", "-load", "pop.json"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	cfg := config.Default()
	cfg.Workers = 3
	o.apply(fs, cfg)

	if cfg.PopulationSize != 7 || cfg.RandomSeed != 5 {
		t.Fatalf("expected overrides applied, got %+v", cfg)
	}
	if !cfg.LoadPopulationFromFile || cfg.LoadPopulationPath != "pop.json" {
		t.Fatalf("expected load override, got %v %q", cfg.LoadPopulationFromFile, cfg.LoadPopulationPath)
	}
	if cfg.Workers != 3 || cfg.Generations != config.Default().Generations {
		t.Fatal("unset flags changed the settings")
	}
}

func TestPopulationSummary(t *testing.T) {
	best, length := populationSummary(model.PopulationSnapshot{Organisms: []model.OrganismRecord{
		{Fitness: -2, Genome: "1,2,3"},
		{Fitness: -1, Genome: ""},
		{Fitness: -3, Genome: "4"},
	}})
	if best != -1 || length != 4 {
		t.Fatalf("unexpected summary best=%v length=%d", best, length)
	}
}
