package stats

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"markovbrain/internal/organism"
	"markovbrain/internal/storage"
)

func TestAuditorRecordsGeneration(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init store: %v", err)
	}
	dir := t.TempDir()
	om, err := NewOutputManager(dir)
	if err != nil {
		t.Fatalf("output manager: %v", err)
	}
	defer om.Close()

	var seenSeed uint32
	var seenTag string
	replay := func(org *organism.Organism, seed uint32, tag string, logEnabled bool) error {
		seenSeed, seenTag = seed, tag
		if !logEnabled {
			t.Fatal("replay must run with logging enabled")
		}
		org.SetStats("0,0;1,1")
		org.SetFitness(-1)
		return nil
	}

	pop := auditPopulation(t)
	a := &Auditor{ExperimentID: "e1", Store: store, Output: om, Task: replay, RecordDatalog: true}
	st, err := a.Audit(ctx, pop, 77)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}

	if st.Generation != 4 || st.ExperimentID != "e1" || st.MaxFitness != 3 {
		t.Fatalf("unexpected stats: %+v", st)
	}
	if st.Best.Genome != "42,2,0,0,0,0,0,1,5,5" || st.BestGates != 1 || st.BestLength != 10 {
		t.Fatalf("expected the first best organism, got %+v", st.Best)
	}
	if st.BestDatalog != "0,0;1,1" || seenSeed != 77 || seenTag != "gen4" {
		t.Fatalf("unexpected replay: datalog=%q seed=%d tag=%q", st.BestDatalog, seenSeed, seenTag)
	}
	best := pop.Organisms()[1]
	if best.Fitness() != 3 || best.Stats() != "" {
		t.Fatal("replay modified the population")
	}

	saved, ok, err := store.GetGenerationStats(ctx, "e1")
	if err != nil || !ok || len(saved) != 1 {
		t.Fatalf("expected saved stats, ok=%v err=%v len=%d", ok, err, len(saved))
	}
	rows, err := ReadGenerations(filepath.Join(dir, GenerationsFileName))
	if err != nil {
		t.Fatalf("read generations: %v", err)
	}
	if len(rows) != 1 || rows[0].Generation != 4 {
		t.Fatalf("unexpected csv rows: %+v", rows)
	}
}

func TestAuditorSkipsReplayWhenDisabled(t *testing.T) {
	called := false
	a := &Auditor{
		ExperimentID: "e1",
		Task: func(*organism.Organism, uint32, string, bool) error {
			called = true
			return nil
		},
	}
	st, err := a.Audit(context.Background(), auditPopulation(t), 1)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if called || st.BestDatalog != "" {
		t.Fatal("replay ran without RecordDatalog")
	}
}

func TestAuditorPropagatesReplayError(t *testing.T) {
	boom := errors.New("boom")
	a := &Auditor{
		RecordDatalog: true,
		Task: func(*organism.Organism, uint32, string, bool) error {
			return boom
		},
	}
	if _, err := a.Audit(context.Background(), auditPopulation(t), 1); !errors.Is(err, boom) {
		t.Fatalf("expected replay error, got %v", err)
	}
}
