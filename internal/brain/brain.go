// Package brain decodes a genome into a priority-ordered list of logic gates
// and runs them over a fixed-size byte memory.
package brain

import (
	"sort"

	"markovbrain/internal/genome"
)

// Brain is the decoded circuit of one organism. Memory length never changes
// after construction.
type Brain struct {
	memory []byte
	gates  []Gate
	counts [numKinds]int
}

// New allocates memoryLen bytes of zeroed memory and decodes g. memoryLen
// must be positive.
func New(memoryLen int, g *genome.Genome) *Brain {
	b := &Brain{memory: make([]byte, memoryLen)}
	b.build(g)
	return b
}

func (b *Brain) build(g *genome.Genome) {
	for i := 0; i < g.Len(); i++ {
		if g.At(i) != genome.GateMarker {
			continue
		}
		gate := decodeGate(g, i, len(b.memory))
		b.gates = append(b.gates, gate)
		b.counts[gate.Kind]++
	}
	sort.SliceStable(b.gates, func(i, j int) bool {
		return b.gates[i].Priority < b.gates[j].Priority
	})
}

// Rebuild discards the current circuit, zeroes memory and decodes g.
func (b *Brain) Rebuild(g *genome.Genome) {
	b.gates = b.gates[:0]
	b.counts = [numKinds]int{}
	b.ZeroMemory()
	b.build(g)
}

// Execute runs every gate once per tick in priority order. Later gates see
// earlier writes from the same tick.
func (b *Brain) Execute(ticks int) {
	for t := 0; t < ticks; t++ {
		for i := range b.gates {
			b.gates[i].Execute(b.memory)
		}
	}
}

func (b *Brain) ZeroMemory() {
	clear(b.memory)
}

// Memory is the live register file. Tasks read and write it between ticks.
func (b *Brain) Memory() []byte {
	return b.memory
}

func (b *Brain) MemoryLen() int {
	return len(b.memory)
}

func (b *Brain) GateCount() int {
	return len(b.gates)
}

// Gates returns the decoded gates in execution order.
func (b *Brain) Gates() []Gate {
	return b.gates
}

// KindCounts reports how many gates of each kind were decoded.
func (b *Brain) KindCounts() map[Kind]int {
	out := make(map[Kind]int, numKinds)
	for k, n := range b.counts {
		out[Kind(k)] = n
	}
	return out
}
