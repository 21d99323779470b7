package markovbrain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/ncruces/go-strftime"

	"markovbrain/internal/config"
	"markovbrain/internal/evo"
	"markovbrain/internal/model"
	"markovbrain/internal/stats"
	"markovbrain/internal/storage"
	"markovbrain/internal/task"
)

const (
	defaultRunsDir    = "runs"
	defaultExportsDir = "exports"
	runDirLayout      = "%Y%m%d-%H%M%S"
)

var (
	ErrExperimentNotFound = errors.New("experiment not found")
	ErrPopulationNotFound = errors.New("population not found")
)

type Options struct {
	StoreKind  string
	DBPath     string
	RunsDir    string
	ExportsDir string
	Logger     *slog.Logger
}

type Client struct {
	store  storage.Store
	logger *slog.Logger

	runsDir    string
	exportsDir string

	initOnce sync.Once
	initErr  error
}

type RunRequest struct {
	// Config defaults to the embedded reference settings when nil.
	Config *config.Config
}

type RunSummary struct {
	ExperimentID     string
	Seed             uint32
	StartGeneration  int
	FinalGeneration  int
	BestByGeneration []float64
	FinalBestFitness float64
	OutputDir        string
	DumpPath         string
	Elapsed          time.Duration
}

type ExportRequest struct {
	ExperimentID string
	Latest       bool
	OutDir       string
}

type ExportSummary struct {
	ExperimentID string
	Directory    string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = "memory"
	}
	runsDir := opts.RunsDir
	if runsDir == "" {
		runsDir = defaultRunsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store, err := storage.NewStore(storeKind, opts.DBPath)
	if err != nil {
		return nil, err
	}
	return &Client{
		store:      store,
		logger:     logger,
		runsDir:    runsDir,
		exportsDir: exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	c.initOnce.Do(func() {
		c.initErr = c.store.Init(ctx)
	})
	return c.initErr
}

// Run evolves a population for the configured number of generations. Each
// generation is evaluated, audited and advanced; every generation but the
// last is then replaced by tournament reproduction so the final evaluated
// population is what gets dumped.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	cfg := req.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return RunSummary{}, err
	}
	if err := c.Init(ctx); err != nil {
		return RunSummary{}, err
	}

	t, err := task.Resolve(cfg.TaskName, cfg.Tasks)
	if err != nil {
		return RunSummary{}, err
	}
	mutator, err := evo.NewMutator(cfg.Mutation)
	if err != nil {
		return RunSummary{}, err
	}

	seed := cfg.RandomSeed
	if seed == 0 {
		seed = randomSeed()
		c.logger.Info("random seed selected", "seed", seed)
	}

	started := time.Now()
	summary := RunSummary{ExperimentID: uuid.NewString(), Seed: seed}
	opts := evo.Options{
		Size:    cfg.PopulationSize,
		Params:  cfg.Params(),
		Mutator: mutator,
		Seed:    seed,
		Workers: cfg.Workers,
		Logger:  c.logger,
	}

	var pop *evo.Population
	if cfg.LoadPopulationFromFile {
		snap, err := LoadPopulation(ctx, cfg.LoadPopulationPath)
		if err != nil {
			return RunSummary{}, err
		}
		pop, err = evo.Restore(ctx, snap, opts)
		if err != nil {
			return RunSummary{}, fmt.Errorf("restore population %s: %w", cfg.LoadPopulationPath, err)
		}
		c.logger.Info("population loaded", "path", cfg.LoadPopulationPath, "size", pop.Len(), "generation", pop.Generation())
	} else {
		pop, err = evo.Spawn(ctx, opts)
		if err != nil {
			return RunSummary{}, err
		}
		c.logger.Info("population spawned", "size", humanize.Comma(int64(pop.Len())), "seed", seed)
	}
	c.logger.Info("population ready", "elapsed", time.Since(started).String())
	summary.StartGeneration = pop.Generation()

	outputDir := cfg.OutputDir
	if outputDir == "" {
		name := strftime.Format(runDirLayout, started.UTC())
		if cfg.ExperimentName != "" {
			name += "-" + cfg.ExperimentName
		}
		outputDir = filepath.Join(c.runsDir, name)
	}
	output, err := stats.NewOutputManager(outputDir)
	if err != nil {
		return RunSummary{}, err
	}
	defer output.Close()
	if err := output.WriteConfig(cfg); err != nil {
		return RunSummary{}, fmt.Errorf("write run config: %w", err)
	}
	summary.OutputDir = output.Dir()

	experiment := model.Experiment{
		VersionedRecord: storage.Versioned(),
		ID:              summary.ExperimentID,
		Task:            t.Name(),
		Seed:            seed,
		Settings:        cfg.String(),
		StartedAt:       started.UTC(),
		Generations:     cfg.Generations,
	}
	if err := c.store.SaveExperiment(ctx, experiment); err != nil {
		return RunSummary{}, fmt.Errorf("save experiment: %w", err)
	}

	evaluate := task.Func(t)
	auditor := &stats.Auditor{
		ExperimentID:  summary.ExperimentID,
		Store:         c.store,
		Output:        output,
		Task:          evaluate,
		RecordDatalog: cfg.RecordBestDatalog,
		Logger:        c.logger,
	}
	n, k := cfg.TournamentFor(pop.Len())

	for pop.Generation() < cfg.Generations {
		generationSeed := seed + uint32(pop.Generation())

		tickStart := time.Now()
		if err := pop.Tick(ctx, evaluate, generationSeed); err != nil {
			return RunSummary{}, fmt.Errorf("generation %d: %w", pop.Generation(), err)
		}
		tickTime := time.Since(tickStart)

		auditStart := time.Now()
		st, err := auditor.Audit(ctx, pop, generationSeed)
		if err != nil {
			return RunSummary{}, fmt.Errorf("generation %d: %w", pop.Generation(), err)
		}
		summary.BestByGeneration = append(summary.BestByGeneration, st.MaxFitness)
		summary.FinalBestFitness = st.MaxFitness

		c.logger.Info("generation complete",
			"generation", st.Generation,
			"max_fitness", st.MaxFitness,
			"mean_fitness", st.MeanFitness,
			"max_gates", st.MaxGates,
			"mean_gates", st.MeanGates,
			"mean_length", st.MeanLength,
			"tick", tickTime.String(),
			"audit", time.Since(auditStart).String(),
		)

		pop.Advance()
		if pop.Generation() >= cfg.Generations {
			c.logger.Info("no reproduction on the final generation")
			break
		}
		if err := pop.ReproTournament(ctx, n, k, cfg.SexualReproduction); err != nil {
			return RunSummary{}, fmt.Errorf("reproduce generation %d: %w", pop.Generation(), err)
		}
	}
	summary.FinalGeneration = pop.Generation()

	final := pop.Snapshot()
	final.ID = summary.ExperimentID
	final.ExperimentID = summary.ExperimentID
	if err := c.store.SavePopulation(ctx, final); err != nil {
		return RunSummary{}, fmt.Errorf("save final population: %w", err)
	}

	if cfg.DumpFinalPopulation {
		path, err := DumpPopulation(ctx, final, cfg.DumpFormat, cfg.DumpPopulationPath, cfg.CompressDumpedPopulations)
		if err != nil {
			return RunSummary{}, err
		}
		summary.DumpPath = path
		if info, err := os.Stat(path); err == nil {
			c.logger.Info("population dumped", "path", path, "size", humanize.Bytes(uint64(info.Size())))
		}
	}

	summary.Elapsed = time.Since(started)
	c.logger.Info("run complete",
		"experiment", summary.ExperimentID,
		"generations", summary.FinalGeneration-summary.StartGeneration,
		"elapsed", summary.Elapsed.String(),
	)
	return summary, nil
}

func randomSeed() uint32 {
	for {
		if s := rand.Uint32(); s != 0 {
			return s
		}
	}
}

// DumpPopulation writes snapshot to path as JSON or as a SQLite database and
// optionally gzips the result. It returns the path actually written.
func DumpPopulation(ctx context.Context, snapshot model.PopulationSnapshot, format, path string, compress bool) (string, error) {
	if path == "" {
		return "", fmt.Errorf("dump path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
	}
	switch format {
	case "", "json":
		if err := storage.WritePopulationFile(path, snapshot); err != nil {
			return "", err
		}
	case "sqlite":
		if err := dumpSQLite(ctx, snapshot, path); err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("unsupported dump format: %s", format)
	}
	if !compress {
		return path, nil
	}
	return storage.CompressFile(path)
}

func dumpSQLite(ctx context.Context, snapshot model.PopulationSnapshot, path string) error {
	store, err := storage.NewStore("sqlite", path)
	if err != nil {
		return err
	}
	defer storage.CloseIfSupported(store)
	if err := store.Init(ctx); err != nil {
		return err
	}
	return store.SavePopulation(ctx, snapshot)
}

// LoadPopulation reads a dump written by DumpPopulation. JSON dumps are
// recognised by a .json or .json.gz name; anything else is opened as a SQLite
// database and its most recently saved population is returned.
func LoadPopulation(ctx context.Context, path string) (model.PopulationSnapshot, error) {
	plain := strings.TrimSuffix(path, ".gz")
	if strings.HasSuffix(plain, ".json") {
		return storage.ReadPopulationFile(path)
	}

	dbPath := path
	if plain != path {
		tmp, err := storage.DecompressFile(path)
		if err != nil {
			return model.PopulationSnapshot{}, err
		}
		defer os.Remove(tmp)
		dbPath = tmp
	}
	store, err := storage.NewStore("sqlite", dbPath)
	if err != nil {
		return model.PopulationSnapshot{}, err
	}
	defer storage.CloseIfSupported(store)
	if err := store.Init(ctx); err != nil {
		return model.PopulationSnapshot{}, err
	}
	snap, ok, err := store.LatestPopulation(ctx)
	if err != nil {
		return model.PopulationSnapshot{}, err
	}
	if !ok {
		return model.PopulationSnapshot{}, fmt.Errorf("%w: %s", ErrPopulationNotFound, path)
	}
	return snap, nil
}

// Experiments lists recorded experiments, oldest first.
func (c *Client) Experiments(ctx context.Context) ([]model.Experiment, error) {
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	return c.store.ListExperiments(ctx)
}

// Population returns the final population of an experiment, or the most
// recently saved one when latest is set.
func (c *Client) Population(ctx context.Context, experimentID string, latest bool) (model.PopulationSnapshot, error) {
	if err := c.Init(ctx); err != nil {
		return model.PopulationSnapshot{}, err
	}
	var (
		snap model.PopulationSnapshot
		ok   bool
		err  error
	)
	if latest {
		snap, ok, err = c.store.LatestPopulation(ctx)
	} else {
		snap, ok, err = c.store.GetPopulation(ctx, experimentID)
	}
	if err != nil {
		return model.PopulationSnapshot{}, err
	}
	if !ok {
		return model.PopulationSnapshot{}, fmt.Errorf("%w: %s", ErrPopulationNotFound, experimentID)
	}
	return snap, nil
}

// Stats returns the audited generations of an experiment in order.
func (c *Client) Stats(ctx context.Context, experimentID string, latest bool) ([]model.GenerationStats, error) {
	id, err := c.resolveExperimentID(ctx, experimentID, latest)
	if err != nil {
		return nil, err
	}
	st, ok, err := c.store.GetGenerationStats(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: no statistics for %s", ErrExperimentNotFound, id)
	}
	return st, nil
}

// Export writes an experiment's record, statistics and final population as
// versioned JSON files under OutDir/<experiment id>.
func (c *Client) Export(ctx context.Context, req ExportRequest) (ExportSummary, error) {
	id, err := c.resolveExperimentID(ctx, req.ExperimentID, req.Latest)
	if err != nil {
		return ExportSummary{}, err
	}
	experiment, ok, err := c.store.GetExperiment(ctx, id)
	if err != nil {
		return ExportSummary{}, err
	}
	if !ok {
		return ExportSummary{}, fmt.Errorf("%w: %s", ErrExperimentNotFound, id)
	}

	outDir := req.OutDir
	if outDir == "" {
		outDir = c.exportsDir
	}
	dir := filepath.Join(outDir, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ExportSummary{}, err
	}

	data, err := storage.EncodeExperiment(experiment)
	if err != nil {
		return ExportSummary{}, err
	}
	if err := os.WriteFile(filepath.Join(dir, "experiment.json"), data, 0o644); err != nil {
		return ExportSummary{}, err
	}

	generations, _, err := c.store.GetGenerationStats(ctx, id)
	if err != nil {
		return ExportSummary{}, err
	}
	data, err = storage.EncodeGenerationStats(generations)
	if err != nil {
		return ExportSummary{}, err
	}
	if err := os.WriteFile(filepath.Join(dir, "generations.json"), data, 0o644); err != nil {
		return ExportSummary{}, err
	}

	snap, ok, err := c.store.GetPopulation(ctx, id)
	if err != nil {
		return ExportSummary{}, err
	}
	if ok {
		if err := storage.WritePopulationFile(filepath.Join(dir, "population.json"), snap); err != nil {
			return ExportSummary{}, err
		}
	}
	return ExportSummary{ExperimentID: id, Directory: dir}, nil
}

func (c *Client) resolveExperimentID(ctx context.Context, id string, latest bool) (string, error) {
	if err := c.Init(ctx); err != nil {
		return "", err
	}
	if !latest {
		if id == "" {
			return "", fmt.Errorf("experiment id is required")
		}
		return id, nil
	}
	experiments, err := c.store.ListExperiments(ctx)
	if err != nil {
		return "", err
	}
	if len(experiments) == 0 {
		return "", ErrExperimentNotFound
	}
	return experiments[len(experiments)-1].ID, nil
}

// Tasks lists the registered task names.
func Tasks() []string {
	return task.List()
}

// WriteReferenceSettings writes the commented reference settings.yaml into dir.
func WriteReferenceSettings(dir string) (string, error) {
	return config.WriteReference(dir)
}
