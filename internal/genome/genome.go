// Package genome holds the circular byte genome and its structural edits.
package genome

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"markovbrain/internal/rng"
)

// GateMarker is the byte value that starts a gate header.
const GateMarker byte = 42

// gateKinds mirrors the number of gate kinds the brain decodes.
const gateKinds = 6

var ErrInvalidGenome = errors.New("invalid genome")

// Genome is a circular byte sequence: index i addresses byte i mod Len().
type Genome struct {
	b []byte
}

// New wraps b without copying it.
func New(b []byte) *Genome {
	return &Genome{b: b}
}

// Random builds a genome of the given length whose decoded brain has at least
// seedGates gates: random bytes with seedGates two-byte gate headers spliced in
// at random positions.
func Random(length, seedGates int, r *rng.JSF) *Genome {
	if length < 0 {
		length = 0
	}
	if seedGates < 0 {
		seedGates = 0
	}
	body := length - 2*seedGates
	if body < 0 {
		body = 0
	}
	b := make([]byte, body, body+2*seedGates)
	r.Fill(b)
	g := &Genome{b: b}
	for i := 0; i < seedGates; i++ {
		idx := r.Intn(g.Len() + 1)
		g.Insert(idx, []byte{GateMarker, byte(r.Intn(gateKinds))})
	}
	return g
}

// Parse reads the comma-joined decimal form produced by String.
func Parse(s string) (*Genome, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return &Genome{b: []byte{}}, nil
	}
	parts := strings.Split(s, ",")
	b := make([]byte, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(part), 10, 8)
		if err != nil {
			return nil, fmt.Errorf("%w: byte %d: %v", ErrInvalidGenome, i, err)
		}
		b[i] = byte(v)
	}
	return &Genome{b: b}, nil
}

func (g *Genome) String() string {
	var sb strings.Builder
	sb.Grow(len(g.b) * 4)
	for i, v := range g.b {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(int(v)))
	}
	return sb.String()
}

func (g *Genome) Len() int {
	return len(g.b)
}

// Bytes exposes the backing slice; callers must not retain it across edits.
func (g *Genome) Bytes() []byte {
	return g.b
}

func (g *Genome) Clone() *Genome {
	return &Genome{b: append(make([]byte, 0, len(g.b)), g.b...)}
}

func (g *Genome) Equal(o *Genome) bool {
	if len(g.b) != len(o.b) {
		return false
	}
	for i := range g.b {
		if g.b[i] != o.b[i] {
			return false
		}
	}
	return true
}

// wrap maps any non-negative index onto the genome. Callers guarantee Len()>0.
func (g *Genome) wrap(i int) int {
	i %= len(g.b)
	if i < 0 {
		i += len(g.b)
	}
	return i
}

// window materialises amount bytes starting at idx, wrapping past the end.
func (g *Genome) window(idx, amount int) []byte {
	out := make([]byte, amount)
	for k := 0; k < amount; k++ {
		out[k] = g.b[g.wrap(idx+k)]
	}
	return out
}

// At reads circularly. An empty genome reads as zero.
func (g *Genome) At(i int) byte {
	if len(g.b) == 0 {
		return 0
	}
	return g.b[g.wrap(i)]
}

func (g *Genome) Set(i int, v byte) {
	if len(g.b) == 0 {
		return
	}
	g.b[g.wrap(i)] = v
}

// Insert splices seq in before idx. idx == Len() appends; larger values wrap
// over Len()+1 insertion points.
func (g *Genome) Insert(idx int, seq []byte) {
	if len(seq) == 0 {
		return
	}
	idx %= len(g.b) + 1
	if idx < 0 {
		idx += len(g.b) + 1
	}
	g.b = append(g.b, seq...)
	copy(g.b[idx+len(seq):], g.b[idx:len(g.b)-len(seq)])
	copy(g.b[idx:], seq)
}

// Delete removes amount bytes starting at idx. Once the run reaches the end it
// keeps removing from the front, so the length drops by min(amount, Len()).
func (g *Genome) Delete(idx, amount int) {
	if amount <= 0 || len(g.b) == 0 {
		return
	}
	if idx < 0 {
		idx = g.wrap(idx)
	}
	if idx < len(g.b) {
		tail := len(g.b) - idx
		if amount < tail {
			g.b = append(g.b[:idx], g.b[idx+amount:]...)
			return
		}
		g.b = g.b[:idx]
		amount -= tail
	}
	if amount >= len(g.b) {
		g.b = g.b[:0]
		return
	}
	g.b = append(g.b[:0], g.b[amount:]...)
}

// Invert complements every byte in [idx, idx+amount), circularly.
func (g *Genome) Invert(idx, amount int) {
	if len(g.b) == 0 {
		return
	}
	for k := 0; k < amount; k++ {
		i := g.wrap(idx + k)
		g.b[i] = ^g.b[i]
	}
}

// Reverse reverses the window [idx, idx+amount). Windows that cross the end
// are reversed through a copy and written back circularly.
func (g *Genome) Reverse(idx, amount int) {
	if len(g.b) == 0 || amount <= 1 {
		return
	}
	if amount > len(g.b) {
		amount = len(g.b)
	}
	idx = g.wrap(idx)
	if idx+amount < len(g.b) {
		reverseBytes(g.b[idx : idx+amount])
		return
	}
	buf := g.window(idx, amount)
	reverseBytes(buf)
	for k, v := range buf {
		g.b[g.wrap(idx+k)] = v
	}
}

// Duplicate inserts a copy of the window [idx, idx+amount) before insertIdx.
func (g *Genome) Duplicate(idx, amount, insertIdx int) {
	if len(g.b) == 0 || amount <= 0 {
		return
	}
	g.Insert(insertIdx, g.window(idx, amount))
}

func (g *Genome) Swap(i, j int) {
	if len(g.b) == 0 {
		return
	}
	i, j = g.wrap(i), g.wrap(j)
	g.b[i], g.b[j] = g.b[j], g.b[i]
}

func (g *Genome) Increment(i int) {
	if len(g.b) == 0 {
		return
	}
	g.b[g.wrap(i)]++
}

func (g *Genome) Decrement(i int) {
	if len(g.b) == 0 {
		return
	}
	g.b[g.wrap(i)]--
}

func reverseBytes(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
