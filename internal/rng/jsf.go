// Package rng implements the small-fast-counter generator that every organism
// and every selection slot draws from. Its output must be bit-exact across
// platforms: persisted RNG states are replayed to reproduce experiments.
package rng

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	seedWord     = 0xf1ea5eed
	warmupRounds = 20
)

var ErrInvalidState = errors.New("invalid rng state")

// JSF is a 32-bit Jenkins small fast generator. It is not safe for concurrent
// use; each goroutine owns its own stream.
type JSF struct {
	a, b, c, d uint32
}

// New seeds a stream from a single word and discards the first outputs to mix
// the state.
func New(seed uint32) *JSF {
	r := &JSF{a: seedWord, b: seed, c: seed, d: seed}
	for i := 0; i < warmupRounds; i++ {
		r.Uint32()
	}
	return r
}

// FromState restores a stream from an exported state without warmup.
func FromState(a, b, c, d uint32) *JSF {
	return &JSF{a: a, b: b, c: c, d: d}
}

// ParseState restores a stream from the "a,b,c,d" form produced by StateString.
func ParseState(s string) (*JSF, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("%w: want 4 words, got %d", ErrInvalidState, len(parts))
	}
	var words [4]uint32
	for i, part := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(part), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: word %d: %v", ErrInvalidState, i, err)
		}
		words[i] = uint32(v)
	}
	return FromState(words[0], words[1], words[2], words[3]), nil
}

func (r *JSF) State() [4]uint32 {
	return [4]uint32{r.a, r.b, r.c, r.d}
}

func (r *JSF) StateString() string {
	return fmt.Sprintf("%d,%d,%d,%d", r.a, r.b, r.c, r.d)
}

func (r *JSF) Clone() *JSF {
	c := *r
	return &c
}

func rotl(x uint32, k uint) uint32 {
	return (x << k) | (x >> (32 - k))
}

func (r *JSF) Uint32() uint32 {
	e := r.a - rotl(r.b, 27)
	r.a = r.b ^ rotl(r.c, 17)
	r.b = r.c + r.d
	r.c = r.d + e
	r.d = e + r.a
	return r.d
}

// Uint64 joins two draws, high word first. It lets a stream act as a
// math/rand/v2 Source.
func (r *JSF) Uint64() uint64 {
	hi := uint64(r.Uint32())
	return hi<<32 | uint64(r.Uint32())
}

// Bounded returns a value uniform over [0, bound) using the multiply-shift
// method with rejection on the low word. Bounded(0) returns 0.
func (r *JSF) Bounded(bound uint32) uint32 {
	s := uint64(bound)
	m := s * uint64(r.Uint32())
	l := uint64(uint32(m))
	if l < s {
		t := (math.MaxUint32 - s) % s
		for l < t {
			m = s * uint64(r.Uint32())
			l = uint64(uint32(m))
		}
	}
	return uint32(m >> 32)
}

// Intn is Bounded for int bounds; n <= 0 behaves like a zero bound.
func (r *JSF) Intn(n int) int {
	if n <= 0 {
		return int(r.Bounded(0))
	}
	if uint64(n) > math.MaxUint32 {
		return int(r.Bounded(math.MaxUint32))
	}
	return int(r.Bounded(uint32(n)))
}

// Float64 returns Uint32()/MaxUint32. The upper end is reachable.
func (r *JSF) Float64() float64 {
	return float64(r.Uint32()) * (1.0 / math.MaxUint32)
}

// Fill packs four bytes per draw, little-endian. A trailing partial group is
// taken from one extra draw.
func (r *JSF) Fill(buf []byte) {
	i := 0
	for ; i+4 <= len(buf); i += 4 {
		t := r.Uint32()
		buf[i] = byte(t)
		buf[i+1] = byte(t >> 8)
		buf[i+2] = byte(t >> 16)
		buf[i+3] = byte(t >> 24)
	}
	if i < len(buf) {
		t := r.Uint32()
		for ; i < len(buf); i++ {
			buf[i] = byte(t >> ((i % 4) * 8))
		}
	}
}

// Read implements io.Reader; it never fails.
func (r *JSF) Read(p []byte) (int, error) {
	r.Fill(p)
	return len(p), nil
}
