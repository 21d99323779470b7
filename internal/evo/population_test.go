package evo

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"markovbrain/internal/organism"
	"markovbrain/internal/rng"
)

var testParams = organism.Params{GenomeLength: 80, SeedGates: 3, MemorySize: 8}

func testRates() Rates {
	return Rates{
		Point: 1, Insertion: 0.2, InsertionRelSize: 0.1, Deletion: 0.2, DeletionRelSize: 0.1,
		Inversion: 0.1, InversionRelSize: 0.1, Reversal: 0.1, ReversalRelSize: 0.1,
		Duplication: 0.1, DuplicationRelSize: 0.1, Swap: 0.2, Increment: 0.2, Decrement: 0.2,
		Crossover: 1,
	}
}

func spawnTest(t *testing.T, size, workers int, seed uint32, rates Rates) *Population {
	t.Helper()
	p, err := Spawn(context.Background(), Options{
		Size:    size,
		Params:  testParams,
		Mutator: mustMutator(t, rates),
		Seed:    seed,
		Workers: workers,
	})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	return p
}

// gateTask scores organisms by gate count and memory sum after a few ticks.
func gateTask(org *organism.Organism, _ uint32, _ string, _ bool) error {
	org.ZeroMemory()
	org.Run(3)
	sum := 0
	for i := 0; i < org.MemoryLen(); i++ {
		sum += int(org.Memory(i))
	}
	org.SetFitness(float64(org.GateCount()*1000 + sum))
	return nil
}

func TestSpawnDerivesSeedsFromRootDraw(t *testing.T) {
	p := spawnTest(t, 5, 2, 42, testRates())
	offset := rng.New(42).Uint32()
	for i, org := range p.Organisms() {
		want := organism.SpawnRandom(testParams, offset+uint32(i))
		if !org.Genome().Equal(want.Genome()) || org.RNGState() != want.RNGState() {
			t.Fatalf("organism %d not seeded with offset+%d", i, i)
		}
	}
	if p.Generation() != 0 {
		t.Fatalf("expected generation 0, got %d", p.Generation())
	}
}

func TestSpawnValidatesOptions(t *testing.T) {
	m := mustMutator(t, Rates{})
	cases := []Options{
		{Size: 0, Params: testParams, Mutator: m},
		{Size: 3, Params: testParams},
		{Size: 3, Params: organism.Params{GenomeLength: 10, MemorySize: 0}, Mutator: m},
	}
	for i, opts := range cases {
		if _, err := Spawn(context.Background(), opts); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestTickCollectsErrorsPerOrganism(t *testing.T) {
	p := spawnTest(t, 6, 3, 1, testRates())
	boom := errors.New("boom")
	task := func(org *organism.Organism, seed uint32, _ string, _ bool) error {
		switch org {
		case p.Organisms()[1]:
			return boom
		case p.Organisms()[4]:
			panic("bad organism")
		}
		org.SetFitness(float64(seed))
		return nil
	}

	err := p.Tick(context.Background(), task, 9)
	if !errors.Is(err, boom) {
		t.Fatalf("expected task error, got %v", err)
	}
	if !errors.Is(err, ErrTaskPanic) {
		t.Fatalf("expected panic error, got %v", err)
	}
	for i, org := range p.Organisms() {
		if i == 1 || i == 4 {
			continue
		}
		if org.Fitness() != 9 {
			t.Fatalf("organism %d: expected fitness 9, got %v", i, org.Fitness())
		}
	}
}

func TestTickStopsOnCancelledContext(t *testing.T) {
	p := spawnTest(t, 4, 1, 1, testRates())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Tick(ctx, gateTask, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestReproTournamentValidation(t *testing.T) {
	p := spawnTest(t, 4, 1, 1, testRates())
	for _, tc := range []struct{ n, k int }{{0, 1}, {1, 0}, {-1, 2}, {2, -3}} {
		if err := p.ReproTournament(context.Background(), tc.n, tc.k, false); !errors.Is(err, ErrInvalidTournament) {
			t.Fatalf("n=%d k=%d: expected ErrInvalidTournament, got %v", tc.n, tc.k, err)
		}
	}
	empty := &Population{opts: p.opts}
	if err := empty.ReproTournament(context.Background(), 1, 1, false); !errors.Is(err, ErrEmptyPopulation) {
		t.Fatalf("expected ErrEmptyPopulation, got %v", err)
	}
}

func TestReproTournamentKeepsSize(t *testing.T) {
	for _, sexual := range []bool{false, true} {
		for _, n := range []int{1, 3, 10, 20} {
			t.Run(fmt.Sprintf("sexual=%v/n=%d", sexual, n), func(t *testing.T) {
				p := spawnTest(t, 20, 4, 7, testRates())
				for gen := 0; gen < 3; gen++ {
					if err := p.Tick(context.Background(), gateTask, uint32(gen)); err != nil {
						t.Fatalf("tick: %v", err)
					}
					if err := p.ReproTournament(context.Background(), n, 3, sexual); err != nil {
						t.Fatalf("repro: %v", err)
					}
					if p.Len() != 20 {
						t.Fatalf("expected size 20, got %d", p.Len())
					}
				}
			})
		}
	}
}

func TestFullTournamentSelectsGlobalMaximum(t *testing.T) {
	p := spawnTest(t, 12, 4, 3, Rates{})
	for i, org := range p.Organisms() {
		org.SetFitness(float64((i * 7) % 12))
	}
	best, _ := p.Best()
	want := best.Genome().Clone()

	if err := p.ReproTournament(context.Background(), 1, p.Len(), false); err != nil {
		t.Fatalf("repro: %v", err)
	}
	for i, org := range p.Organisms() {
		if !org.Genome().Equal(want) {
			t.Fatalf("organism %d does not carry the global maximum genome", i)
		}
		if org.Fitness() != 0 {
			t.Fatalf("organism %d: expected fitness reset, got %v", i, org.Fitness())
		}
	}
}

func TestReproTournamentIsScheduleIndependent(t *testing.T) {
	run := func(workers int) []string {
		p := spawnTest(t, 16, workers, 99, testRates())
		for gen := 0; gen < 4; gen++ {
			if err := p.Tick(context.Background(), gateTask, uint32(gen)); err != nil {
				t.Fatalf("tick: %v", err)
			}
			if err := p.ReproTournament(context.Background(), 6, 4, gen%2 == 1); err != nil {
				t.Fatalf("repro: %v", err)
			}
			p.Advance()
		}
		snap := p.Snapshot()
		out := make([]string, len(snap.Organisms))
		for i, rec := range snap.Organisms {
			out[i] = rec.Genome + "|" + rec.RNGState
		}
		return out
	}

	serial := run(1)
	parallel := run(8)
	if !reflect.DeepEqual(serial, parallel) {
		t.Fatal("expected identical populations regardless of worker count")
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	p := spawnTest(t, 5, 2, 5, testRates())
	if err := p.Tick(context.Background(), gateTask, 1); err != nil {
		t.Fatalf("tick: %v", err)
	}
	p.Advance()
	p.Advance()

	snap := p.Snapshot()
	restored, err := Restore(context.Background(), snap, Options{Params: testParams, Mutator: p.Mutator()})
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.Generation() != 2 {
		t.Fatalf("expected generation 2, got %d", restored.Generation())
	}
	if !reflect.DeepEqual(restored.Snapshot(), snap) {
		t.Fatal("snapshot changed across restore")
	}
}

func TestRestoreRejectsEmptyAndCorrupt(t *testing.T) {
	opts := Options{Params: testParams, Mutator: mustMutator(t, Rates{})}
	p := spawnTest(t, 2, 1, 1, Rates{})

	snap := p.Snapshot()
	snap.Organisms = nil
	if _, err := Restore(context.Background(), snap, opts); !errors.Is(err, ErrEmptyPopulation) {
		t.Fatalf("expected ErrEmptyPopulation, got %v", err)
	}

	snap = p.Snapshot()
	snap.Organisms[1].RNGState = "1,2"
	if _, err := Restore(context.Background(), snap, opts); err == nil {
		t.Fatal("expected corrupt stream error")
	}
}

func TestBestPicksFirstMaximum(t *testing.T) {
	p := spawnTest(t, 4, 1, 1, Rates{})
	for i, f := range []float64{1, 5, 5, 2} {
		p.Organisms()[i].SetFitness(f)
	}
	if _, idx := p.Best(); idx != 1 {
		t.Fatalf("expected index 1, got %d", idx)
	}
}
