// Package organism couples a genome, its decoded brain and a private random
// stream. Tasks drive organisms through the methods exposed here.
package organism

import (
	"fmt"

	"markovbrain/internal/brain"
	"markovbrain/internal/genome"
	"markovbrain/internal/rng"
)

// Params are the construction settings shared by every organism in a run.
type Params struct {
	GenomeLength int
	SeedGates    int
	MemorySize   int
}

// Mutator edits a genome in place using the caller's stream.
type Mutator interface {
	Mutate(g *genome.Genome, r *rng.JSF)
}

// Organism is not safe for concurrent use. The population guarantees each one
// is touched by a single goroutine per phase.
type Organism struct {
	rng     *rng.JSF
	genome  *genome.Genome
	brain   *brain.Brain
	fitness float64
	stats   string
}

func newOrganism(g *genome.Genome, r *rng.JSF, memorySize int) *Organism {
	return &Organism{
		rng:    r,
		genome: g,
		brain:  brain.New(memorySize, g),
	}
}

// SpawnRandom builds a random genome seeded with at least p.SeedGates gate
// headers.
func SpawnRandom(p Params, seed uint32) *Organism {
	r := rng.New(seed)
	g := genome.Random(p.GenomeLength, p.SeedGates, r)
	return newOrganism(g, r, p.MemorySize)
}

// SpawnFromParent clones the parent's genome and mutates the copy with a new
// stream seeded from seed. The offspring inherits the parent's memory size.
func SpawnFromParent(parent *Organism, m Mutator, seed uint32) *Organism {
	r := rng.New(seed)
	g := parent.genome.Clone()
	m.Mutate(g, r)
	return newOrganism(g, r, parent.brain.MemoryLen())
}

// FromGenome wraps a copy of g with a fresh stream.
func FromGenome(g *genome.Genome, seed uint32, memorySize int) *Organism {
	return newOrganism(g.Clone(), rng.New(seed), memorySize)
}

// FromPersisted rebuilds an organism from its serialised genome and stream.
func FromPersisted(genomeText, rngState string, memorySize int) (*Organism, error) {
	g, err := genome.Parse(genomeText)
	if err != nil {
		return nil, fmt.Errorf("restore genome: %w", err)
	}
	r, err := rng.ParseState(rngState)
	if err != nil {
		return nil, fmt.Errorf("restore rng: %w", err)
	}
	return newOrganism(g, r, memorySize), nil
}

// Reproduce returns a mutated offspring seeded from this organism's stream.
func (o *Organism) Reproduce(m Mutator) *Organism {
	return SpawnFromParent(o, m, o.rng.Uint32())
}

// Clone copies genome, stream, fitness and stats. Memory starts zeroed.
func (o *Organism) Clone() *Organism {
	c := newOrganism(o.genome.Clone(), o.rng.Clone(), o.brain.MemoryLen())
	c.fitness = o.fitness
	c.stats = o.stats
	return c
}

// CopyInto overwrites target with a mutated copy of this organism's genome.
// The mutation draws from target's own stream; target keeps its identity and
// memory size and its fitness and stats are reset.
func (o *Organism) CopyInto(target *Organism, m Mutator) {
	g := o.genome.Clone()
	m.Mutate(g, target.rng)
	target.ReplaceGenome(g)
}

// ReplaceGenome installs g, rebuilds the brain and resets fitness and stats.
func (o *Organism) ReplaceGenome(g *genome.Genome) {
	o.genome = g
	o.brain.Rebuild(g)
	o.fitness = 0
	o.stats = ""
}

// Run ticks the brain.
func (o *Organism) Run(ticks int) {
	o.brain.Execute(ticks)
}

func (o *Organism) Memory(i int) byte {
	return o.brain.Memory()[i]
}

func (o *Organism) SetMemory(i int, v byte) {
	o.brain.Memory()[i] = v
}

func (o *Organism) MemoryLen() int {
	return o.brain.MemoryLen()
}

// MemorySnapshot copies the current memory.
func (o *Organism) MemorySnapshot() []byte {
	return append([]byte(nil), o.brain.Memory()...)
}

func (o *Organism) ZeroMemory() {
	o.brain.ZeroMemory()
}

func (o *Organism) Fitness() float64 {
	return o.fitness
}

func (o *Organism) SetFitness(f float64) {
	o.fitness = f
}

func (o *Organism) Stats() string {
	return o.stats
}

func (o *Organism) SetStats(s string) {
	o.stats = s
}

func (o *Organism) Uint32() uint32 {
	return o.rng.Uint32()
}

func (o *Organism) Intn(n int) int {
	return o.rng.Intn(n)
}

func (o *Organism) Float64() float64 {
	return o.rng.Float64()
}

func (o *Organism) RNGState() string {
	return o.rng.StateString()
}

// Genome returns the live genome. Callers must not edit it; use ReplaceGenome.
func (o *Organism) Genome() *genome.Genome {
	return o.genome
}

func (o *Organism) GenomeLen() int {
	return o.genome.Len()
}

func (o *Organism) GateCount() int {
	return o.brain.GateCount()
}

func (o *Organism) GateKinds() map[brain.Kind]int {
	return o.brain.KindCounts()
}
