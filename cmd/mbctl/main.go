package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"markovbrain/internal/config"
	"markovbrain/internal/model"
	"markovbrain/internal/stats"
	mbapi "markovbrain/pkg/markovbrain"
)

const (
	runsDir    = "runs"
	exportsDir = "exports"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "settings":
		return runSettings(ctx, args[1:])
	case "tasks":
		return runTasks(ctx, args[1:])
	case "run":
		return runRun(ctx, args[1:])
	case "experiments":
		return runExperiments(ctx, args[1:])
	case "population":
		return runPopulation(ctx, args[1:])
	case "stats":
		return runStats(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func runSettings(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("settings", flag.ContinueOnError)
	dir := fs.String("dir", ".", "directory to write settings.yaml into")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := mbapi.WriteReferenceSettings(*dir)
	if err != nil {
		return err
	}
	fmt.Printf("wrote reference settings path=%s\n", path)
	return nil
}

func runTasks(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("tasks", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	for _, name := range mbapi.Tasks() {
		fmt.Println(name)
	}
	return nil
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", config.ReferenceFileName, "settings file")
	logLevel := fs.String("log-level", "info", "log level: debug|info|warn|error")
	jsonOut := fs.Bool("json", false, "emit the run summary as JSON")
	overrides := bindRunOverrides(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadRunConfig(*configPath, fs, overrides)
	if err != nil {
		return err
	}
	logger, err := newLogger(os.Stderr, *logLevel)
	if err != nil {
		return err
	}

	client, err := mbapi.New(mbapi.Options{
		StoreKind:  cfg.StoreKind,
		DBPath:     cfg.DBPath,
		RunsDir:    runsDir,
		ExportsDir: exportsDir,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Run(ctx, mbapi.RunRequest{Config: cfg})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(os.Stdout, summary)
	}
	fmt.Printf("run completed experiment=%s seed=%d generations=%d..%d best=%.5f elapsed=%s\n",
		summary.ExperimentID, summary.Seed, summary.StartGeneration, summary.FinalGeneration,
		summary.FinalBestFitness, summary.Elapsed)
	if summary.OutputDir != "" {
		fmt.Printf("output=%s\n", summary.OutputDir)
	}
	if summary.DumpPath != "" {
		fmt.Printf("dump=%s\n", summary.DumpPath)
	}
	return nil
}

func runExperiments(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("experiments", flag.ContinueOnError)
	storeKind, dbPath := bindStoreFlags(fs)
	jsonOut := fs.Bool("json", false, "emit experiments as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	experiments, err := client.Experiments(ctx)
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(os.Stdout, experiments)
	}
	if len(experiments) == 0 {
		fmt.Println("no experiments found")
		return nil
	}
	for _, e := range experiments {
		fmt.Printf("experiment=%s task=%s seed=%d generations=%d started=%s\n",
			e.ID, e.Task, e.Seed, e.Generations, humanize.Time(e.StartedAt))
	}
	return nil
}

func runPopulation(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("population", flag.ContinueOnError)
	storeKind, dbPath := bindStoreFlags(fs)
	experimentID, latest := bindExperimentFlags(fs)
	file := fs.String("file", "", "read a population dump instead of the store")
	jsonOut := fs.Bool("json", false, "emit the population as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var (
		snap model.PopulationSnapshot
		err  error
	)
	if *file != "" {
		snap, err = mbapi.LoadPopulation(ctx, *file)
	} else {
		if err := checkExperimentFlags(*experimentID, *latest); err != nil {
			return err
		}
		client, cerr := newClient(*storeKind, *dbPath)
		if cerr != nil {
			return cerr
		}
		defer func() {
			_ = client.Close()
		}()
		snap, err = client.Population(ctx, *experimentID, *latest)
	}
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(os.Stdout, snap)
	}
	best, length := populationSummary(snap)
	fmt.Printf("population id=%s generation=%d organisms=%s best_fitness=%.5f total_genome=%s\n",
		snap.ID, snap.Generation, humanize.Comma(int64(len(snap.Organisms))), best, humanize.Bytes(uint64(length)))
	return nil
}

func runStats(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	storeKind, dbPath := bindStoreFlags(fs)
	experimentID, latest := bindExperimentFlags(fs)
	csvPath := fs.String("csv", "", "read a generations.csv file instead of the store")
	jsonOut := fs.Bool("json", false, "emit statistics as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var rows []stats.GenerationRow
	if *csvPath != "" {
		var err error
		rows, err = stats.ReadGenerations(*csvPath)
		if err != nil {
			return err
		}
	} else {
		if err := checkExperimentFlags(*experimentID, *latest); err != nil {
			return err
		}
		client, err := newClient(*storeKind, *dbPath)
		if err != nil {
			return err
		}
		defer func() {
			_ = client.Close()
		}()
		history, err := client.Stats(ctx, *experimentID, *latest)
		if err != nil {
			return err
		}
		if *jsonOut {
			return writeJSON(os.Stdout, history)
		}
		for _, st := range history {
			rows = append(rows, stats.GenerationRow{
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
			})
		}
	}
	if *jsonOut {
		return writeJSON(os.Stdout, rows)
	}
	for _, r := range rows {
		fmt.Printf("generation=%d max_fitness=%.5f mean_fitness=%.5f max_gates=%.0f mean_gates=%.2f mean_length=%.2f\n",
			r.Generation, r.MaxFitness, r.MeanFitness, r.MaxGates, r.MeanGates, r.MeanLength)
	}
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	storeKind, dbPath := bindStoreFlags(fs)
	experimentID, latest := bindExperimentFlags(fs)
	outDir := fs.String("out", exportsDir, "export output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := checkExperimentFlags(*experimentID, *latest); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	exported, err := client.Export(ctx, mbapi.ExportRequest{
		ExperimentID: *experimentID,
		Latest:       *latest,
		OutDir:       *outDir,
	})
	if err != nil {
		return err
	}
	fmt.Printf("exported experiment=%s dir=%s\n", exported.ExperimentID, exported.Directory)
	return nil
}

func newClient(storeKind, dbPath string) (*mbapi.Client, error) {
	return mbapi.New(mbapi.Options{
		StoreKind:  storeKind,
		DBPath:     dbPath,
		RunsDir:    runsDir,
		ExportsDir: exportsDir,
	})
}

func bindStoreFlags(fs *flag.FlagSet) (*string, *string) {
	defaults := config.Default()
	storeKind := fs.String("store", defaults.StoreKind, "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaults.DBPath, "sqlite database path")
	return storeKind, dbPath
}

func bindExperimentFlags(fs *flag.FlagSet) (*string, *bool) {
	experimentID := fs.String("experiment-id", "", "experiment id")
	latest := fs.Bool("latest", false, "use the most recent experiment")
	return experimentID, latest
}

func checkExperimentFlags(experimentID string, latest bool) error {
	if experimentID != "" && latest {
		return errors.New("use either --experiment-id or --latest, not both")
	}
	if experimentID == "" && !latest {
		return errors.New("requires --experiment-id or --latest")
	}
	return nil
}

// newLogger writes text logs to a terminal and JSON logs otherwise.
func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if f, ok := w.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(w, opts)), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: mbctl <%s> [flags]", msg, strings.Join(commands, "|"))
}

var commands = []string{"settings", "tasks", "run", "experiments", "population", "stats", "export"}
