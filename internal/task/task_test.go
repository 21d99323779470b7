package task

import (
	"errors"
	"math"
	"strings"
	"testing"

	"markovbrain/internal/genome"
	"markovbrain/internal/organism"
)

func blankOrganism(seed uint32, memory int) *organism.Organism {
	return organism.FromGenome(genome.New(nil), seed, memory)
}

// constantWriter decodes to one deterministic gate that ORs 5 into node 1.
func constantWriter(memory int) *organism.Organism {
	return organism.FromGenome(genome.New([]byte{42, 2, 0, 0, 0, 0, 0, 1, 5, 5}), 1, memory)
}

func homingSettings() HomingSettings {
	return HomingSettings{
		TargetX: 25, TargetY: 25, NumUpdates: 100, OrgSpeed: 1, BrainTicksPerUpdate: 1,
	}
}

func TestHomingTaskIdleOrganismCircles(t *testing.T) {
	task, err := NewHomingTask(homingSettings())
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	org := blankOrganism(1, 8)
	if err := task.Evaluate(org, 0, "", false); err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	// Node 0 stays at zero, so the organism turns left every update.
	x, y, angle := 0.0, 0.0, 0.0
	for i := 0; i < 100; i++ {
		angle += homingTurnStep
		x += math.Cos(angle)
		y += math.Sin(angle)
	}
	want := 1 / math.Hypot(x-25, y-25)
	if math.Abs(org.Fitness()-want) > 1e-12 {
		t.Fatalf("expected fitness %v, got %v", want, org.Fitness())
	}
	if org.Stats() != "" {
		t.Fatalf("expected no datalog without logging, got %q", org.Stats())
	}
}

func TestHomingTaskSpeedOutput(t *testing.T) {
	s := homingSettings()
	s.SpeedOutput = true
	task, err := NewHomingTask(s)
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	org := blankOrganism(1, 8)
	if err := task.Evaluate(org, 0, "", true); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	want := 1 / math.Hypot(25, 25)
	if math.Abs(org.Fitness()-want) > 1e-12 {
		t.Fatalf("expected stationary organism fitness %v, got %v", want, org.Fitness())
	}
	if n := len(strings.Split(org.Stats(), ";")); n != 100 {
		t.Fatalf("expected 100 datalog entries, got %d", n)
	}
}

func TestHomingTaskRequiresMemory(t *testing.T) {
	s := homingSettings()
	s.ClockInput = true
	task, err := NewHomingTask(s)
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if err := task.Evaluate(blankOrganism(1, 2), 0, "", false); !errors.Is(err, ErrMemoryTooSmall) {
		t.Fatalf("expected ErrMemoryTooSmall, got %v", err)
	}
}

func TestSumTaskScoresMemorySum(t *testing.T) {
	task, err := NewSumTask(SumSettings{NumBrainTicks: 3})
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	org := constantWriter(4)
	if err := task.Evaluate(org, 0, "", true); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if org.Fitness() != 5 {
		t.Fatalf("expected fitness 5, got %v", org.Fitness())
	}
	if org.Stats() != "[0 5 0 0]" {
		t.Fatalf("unexpected datalog %q", org.Stats())
	}
	if _, err := NewSumTask(SumSettings{}); err == nil {
		t.Fatal("expected error for zero ticks")
	}
}

func chemotaxisSettings(shared bool) ChemotaxisSettings {
	return ChemotaxisSettings{
		UsePopulationConsistentSeed: shared,
		NumUpdates:                  50,
		NumReps:                     3,
		MaxXYDist:                   50,
		BrainTicksPerUpdate:         1,
		MinDist:                     15,
	}
}

func TestChemotaxisSharedSeedGivesSameEnvironment(t *testing.T) {
	task, err := NewChemotaxisTask(chemotaxisSettings(true))
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	a, b := blankOrganism(1, 8), blankOrganism(2, 8)
	for _, org := range []*organism.Organism{a, b} {
		if err := task.Evaluate(org, 77, "", false); err != nil {
			t.Fatalf("evaluate: %v", err)
		}
	}
	if a.Fitness() != b.Fitness() {
		t.Fatalf("expected equal fitness under shared seed: %v vs %v", a.Fitness(), b.Fitness())
	}
	if a.Fitness() <= 0 {
		t.Fatalf("expected positive fitness, got %v", a.Fitness())
	}
}

func TestChemotaxisPrivateStreamIsDeterministic(t *testing.T) {
	task, err := NewChemotaxisTask(chemotaxisSettings(false))
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	a, b := blankOrganism(9, 8), blankOrganism(9, 8)
	if err := task.Evaluate(a, 0, "", true); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if err := task.Evaluate(b, 0, "", true); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if a.Fitness() != b.Fitness() || a.Stats() != b.Stats() {
		t.Fatal("expected identical runs from identical streams")
	}
	if n := len(strings.Split(a.Stats(), ";")); n != 50 {
		t.Fatalf("expected 50 datalog entries for the first rep, got %d", n)
	}
}

func TestChemotaxisValidation(t *testing.T) {
	s := chemotaxisSettings(true)
	s.MaxXYDist = 10
	if _, err := NewChemotaxisTask(s); err == nil {
		t.Fatal("expected error when targets cannot reach the minimum distance")
	}
	task, err := NewChemotaxisTask(chemotaxisSettings(true))
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if err := task.Evaluate(blankOrganism(1, 4), 0, "", false); !errors.Is(err, ErrMemoryTooSmall) {
		t.Fatalf("expected ErrMemoryTooSmall, got %v", err)
	}
}

func TestBlockCatchSingleColumnCatchesEverything(t *testing.T) {
	task, err := NewBlockCatchTask(BlockCatchSettings{SimHeight: 4, SimWidth: 1, NumUpdates: 23, NumTrials: 2})
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if task.Opportunities() != 8 {
		t.Fatalf("expected 8 opportunities, got %d", task.Opportunities())
	}
	org := blankOrganism(3, 8)
	if err := task.Evaluate(org, 0, "", false); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if org.Fitness() != 1 {
		t.Fatalf("expected perfect score, got %v", org.Fitness())
	}
}

func TestBlockCatchFitnessIsBounded(t *testing.T) {
	task, err := NewBlockCatchTask(BlockCatchSettings{
		UsePopulationConsistentSeed: true, SimHeight: 8, SimWidth: 16, NumUpdates: 128, NumTrials: 5,
	})
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	for seed := uint32(0); seed < 20; seed++ {
		org := organism.SpawnRandom(organism.Params{GenomeLength: 256, SeedGates: 8, MemorySize: 8}, seed)
		if err := task.Evaluate(org, 5, "", false); err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if org.Fitness() < 0 || org.Fitness() > 1 {
			t.Fatalf("seed %d: fitness %v out of [0,1]", seed, org.Fitness())
		}
	}
}

func TestBlockCatchValidation(t *testing.T) {
	if _, err := NewBlockCatchTask(BlockCatchSettings{SimHeight: 0, SimWidth: 4, NumUpdates: 1, NumTrials: 1}); err == nil {
		t.Fatal("expected arena error")
	}
	task, err := NewBlockCatchTask(BlockCatchSettings{SimHeight: 2, SimWidth: 4, NumUpdates: 10, NumTrials: 1})
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if err := task.Evaluate(blankOrganism(1, 4), 0, "", false); !errors.Is(err, ErrMemoryTooSmall) {
		t.Fatalf("expected ErrMemoryTooSmall, got %v", err)
	}
}

func TestFuncAdaptsTask(t *testing.T) {
	task, err := NewSumTask(SumSettings{NumBrainTicks: 1})
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	org := constantWriter(4)
	if err := Func(task)(org, 0, "", false); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if org.Fitness() != 5 {
		t.Fatalf("expected fitness 5, got %v", org.Fitness())
	}
}
