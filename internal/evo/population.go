package evo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/sourcegraph/conc/pool"

	"markovbrain/internal/genome"
	"markovbrain/internal/model"
	"markovbrain/internal/organism"
	"markovbrain/internal/rng"
)

const (
	SupportedSchemaVersion = 1
	SupportedCodecVersion  = 1
)

var (
	ErrEmptyPopulation   = errors.New("population is empty")
	ErrInvalidTournament = errors.New("invalid tournament parameters")
	ErrTaskPanic         = errors.New("task panicked")
)

// TaskFunc evaluates one organism. It must set the organism's fitness before
// returning and may record a trajectory log with SetStats when logEnabled.
type TaskFunc func(org *organism.Organism, generationSeed uint32, renderTag string, logEnabled bool) error

type Options struct {
	Size    int
	Params  organism.Params
	Mutator *Mutator
	Seed    uint32
	Workers int
	Logger  *slog.Logger
}

func (o Options) normalize() (Options, error) {
	if o.Mutator == nil {
		return o, fmt.Errorf("mutator is required")
	}
	if o.Params.MemorySize <= 0 {
		return o, fmt.Errorf("memory size must be > 0")
	}
	if o.Params.GenomeLength < 0 {
		return o, fmt.Errorf("genome length must be >= 0")
	}
	if o.Params.SeedGates < 0 {
		return o, fmt.Errorf("seed gates must be >= 0")
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o, nil
}

// Population is a fixed-size list of organisms sharing one mutator. Its
// methods run their per-organism work in parallel but must not be called
// concurrently with each other.
type Population struct {
	opts       Options
	orgs       []*organism.Organism
	generation int
}

// Spawn seeds organism i with offset+i, where offset is the first draw of a
// stream seeded with opts.Seed. The result does not depend on scheduling.
func Spawn(ctx context.Context, opts Options) (*Population, error) {
	opts, err := opts.normalize()
	if err != nil {
		return nil, err
	}
	if opts.Size <= 0 {
		return nil, fmt.Errorf("population size must be > 0")
	}

	offset := rng.New(opts.Seed).Uint32()
	p := &Population{opts: opts, orgs: make([]*organism.Organism, opts.Size)}
	err = p.forEach(ctx, opts.Size, func(i int) error {
		p.orgs[i] = organism.SpawnRandom(opts.Params, offset+uint32(i))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Restore rebuilds a population from a snapshot. The snapshot decides the
// size and generation; opts.Size is ignored.
func Restore(ctx context.Context, snap model.PopulationSnapshot, opts Options) (*Population, error) {
	opts, err := opts.normalize()
	if err != nil {
		return nil, err
	}
	if len(snap.Organisms) == 0 {
		return nil, ErrEmptyPopulation
	}
	opts.Size = len(snap.Organisms)

	p := &Population{opts: opts, orgs: make([]*organism.Organism, opts.Size), generation: snap.Generation}
	err = p.forEach(ctx, opts.Size, func(i int) error {
		rec := snap.Organisms[i]
		org, err := organism.FromPersisted(rec.Genome, rec.RNGState, opts.Params.MemorySize)
		if err != nil {
			return fmt.Errorf("organism %d: %w", i, err)
		}
		org.SetFitness(rec.Fitness)
		p.orgs[i] = org
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Snapshot captures genomes, streams, fitness and generation.
func (p *Population) Snapshot() model.PopulationSnapshot {
	records := make([]model.OrganismRecord, len(p.orgs))
	for i, org := range p.orgs {
		records[i] = model.OrganismRecord{
			Fitness:  org.Fitness(),
			Genome:   org.Genome().String(),
			RNGState: org.RNGState(),
		}
	}
	return model.PopulationSnapshot{
		VersionedRecord: model.VersionedRecord{
			SchemaVersion: SupportedSchemaVersion,
			CodecVersion:  SupportedCodecVersion,
		},
		Generation: p.generation,
		Organisms:  records,
	}
}

// Tick runs task on every organism. Task errors and panics are collected per
// organism and returned joined; they never stop the other organisms.
func (p *Population) Tick(ctx context.Context, task TaskFunc, generationSeed uint32) error {
	return p.forEach(ctx, len(p.orgs), func(i int) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: organism %d: %v", ErrTaskPanic, i, r)
			}
		}()
		if terr := task(p.orgs[i], generationSeed, "", false); terr != nil {
			return fmt.Errorf("organism %d: %w", i, terr)
		}
		return nil
	})
}

// ReproTournament replaces the population with mutated copies of n tournament
// winners, each chosen from k candidates. Winner i%n refills slot i, so the
// size never changes.
func (p *Population) ReproTournament(ctx context.Context, n, k int, sexual bool) error {
	if len(p.orgs) == 0 {
		return ErrEmptyPopulation
	}
	if n <= 0 || k <= 0 {
		return fmt.Errorf("%w: n=%d k=%d", ErrInvalidTournament, n, k)
	}
	started := time.Now()

	sel := rng.New(p.orgs[0].Uint32())
	offset := sel.Uint32()
	selector := TournamentSelector{K: k}

	chosen := make([]*organism.Organism, n)
	err := p.forEach(ctx, n, func(slot int) error {
		local := rng.New(offset + uint32(slot))
		idx, err := selector.Pick(local, p.orgs)
		if err != nil {
			return err
		}
		winner := p.orgs[idx]
		chosen[slot] = organism.FromGenome(winner.Genome(), local.Uint32(), winner.MemoryLen())
		return nil
	})
	if err != nil {
		return err
	}
	selected := time.Since(started)

	if sexual {
		offspring := make([]*genome.Genome, n)
		for i := range chosen {
			partner := chosen[sel.Intn(n)]
			offspring[i] = p.opts.Mutator.SexualReproduction(chosen[i].Genome(), partner.Genome(), sel)
		}
		for i, g := range offspring {
			chosen[i].ReplaceGenome(g)
		}
	}

	err = p.forEach(ctx, len(p.orgs), func(i int) error {
		chosen[i%n].CopyInto(p.orgs[i], p.opts.Mutator)
		return nil
	})
	if err != nil {
		return err
	}

	p.opts.Logger.Debug("reproduction finished",
		"generation", p.generation,
		"n", n,
		"k", k,
		"sexual", sexual,
		"selection", selected,
		"total", time.Since(started),
	)
	return nil
}

func (p *Population) forEach(ctx context.Context, n int, fn func(i int) error) error {
	wp := pool.New().WithErrors().WithMaxGoroutines(p.opts.Workers)
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		wp.Go(func() error {
			return fn(i)
		})
	}
	werr := wp.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}
	return werr
}

func (p *Population) Generation() int {
	return p.generation
}

func (p *Population) Advance() {
	p.generation++
}

func (p *Population) Len() int {
	return len(p.orgs)
}

// Organisms exposes the live slice. Callers must not resize it.
func (p *Population) Organisms() []*organism.Organism {
	return p.orgs
}

func (p *Population) Mutator() *Mutator {
	return p.opts.Mutator
}

// Best returns the first organism with the highest fitness and its index.
func (p *Population) Best() (*organism.Organism, int) {
	if len(p.orgs) == 0 {
		return nil, -1
	}
	best := 0
	for i := 1; i < len(p.orgs); i++ {
		if p.orgs[i].Fitness() > p.orgs[best].Fitness() {
			best = i
		}
	}
	return p.orgs[best], best
}
