package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"markovbrain/internal/config"
)

// runOverrides are run flags that replace settings file values when given
// explicitly on the command line.
type runOverrides struct {
	storeKind   *string
	dbPath      *string
	generations *int
	population  *int
	seed        *uint
	taskName    *string
	workers     *int
	outputDir   *string
	dump        *bool
	dumpFormat  *string
	dumpPath    *string
	compress    *bool
	loadPath    *string
	sexual      *bool
	datalog     *bool
}

func bindRunOverrides(fs *flag.FlagSet) *runOverrides {
	return &runOverrides{
		storeKind:   fs.String("store", "", "store backend: memory|sqlite"),
		dbPath:      fs.String("db-path", "", "sqlite database path"),
		generations: fs.Int("generations", 0, "generations to run"),
		population:  fs.Int("population", 0, "population size"),
		seed:        fs.Uint("seed", 0, "random seed, 0 picks one"),
		taskName:    fs.String("task", "", "task name"),
		workers:     fs.Int("workers", 0, "parallel workers, 0 uses every CPU"),
		outputDir:   fs.String("output", "", "per-generation CSV directory"),
		dump:        fs.Bool("dump", false, "dump the final population"),
		dumpFormat:  fs.String("dump-format", "", "dump format: json|sqlite"),
		dumpPath:    fs.String("dump-path", "", "final population dump path"),
		compress:    fs.Bool("compress", false, "gzip the population dump"),
		loadPath:    fs.String("load", "", "start from a population dump"),
		sexual:      fs.Bool("sexual", false, "recombine tournament winners"),
		datalog:     fs.Bool("datalog", false, "record the best organism's datalog each generation"),
	}
}

// loadRunConfig reads the settings file and applies the flags that were set.
// A missing default settings file is replaced by the reference copy and
// reported as an error so the run does not start on unreviewed settings.
func loadRunConfig(path string, fs *flag.FlagSet, o *runOverrides) (*config.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && filepath.Base(path) == config.ReferenceFileName {
		written, werr := config.WriteReference(filepath.Dir(path))
		if werr != nil {
			return nil, werr
		}
		return nil, fmt.Errorf("settings file %s not found; wrote reference settings to %s", path, written)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	o.apply(fs, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (o *runOverrides) apply(fs *flag.FlagSet, cfg *config.Config) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "store":
			cfg.StoreKind = *o.storeKind
		case "db-path":
			cfg.DBPath = *o.dbPath
		case "generations":
			cfg.Generations = *o.generations
		case "population":
			cfg.PopulationSize = *o.population
		case "seed":
			cfg.RandomSeed = uint32(*o.seed)
		case "task":
			cfg.TaskName = *o.taskName
		case "workers":
			cfg.Workers = *o.workers
		case "output":
			cfg.OutputDir = *o.outputDir
		case "dump":
			cfg.DumpFinalPopulation = *o.dump
		case "dump-format":
			cfg.DumpFormat = *o.dumpFormat
		case "dump-path":
			cfg.DumpPopulationPath = *o.dumpPath
		case "compress":
			cfg.CompressDumpedPopulations = *o.compress
		case "load":
			cfg.LoadPopulationFromFile = true
			cfg.LoadPopulationPath = *o.loadPath
		case "sexual":
			cfg.SexualReproduction = *o.sexual
		case "datalog":
			cfg.RecordBestDatalog = *o.datalog
		}
	})
}
