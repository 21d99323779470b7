// Package task holds the fitness tasks organisms are evaluated on. A task
// drives an organism's brain through its memory and sets its fitness.
package task

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"markovbrain/internal/evo"
	"markovbrain/internal/organism"
	"markovbrain/internal/rng"
)

var ErrMemoryTooSmall = errors.New("organism memory too small for task")

type Task interface {
	Name() string
	Evaluate(org *organism.Organism, generationSeed uint32, renderTag string, logEnabled bool) error
}

// Func adapts t to the population callback.
func Func(t Task) evo.TaskFunc {
	return t.Evaluate
}

// Settings groups the parameters of every built-in task. The fields are
// inlined so each task's keys sit at the top level of the settings file.
type Settings struct {
	Homing     HomingSettings     `yaml:",inline"`
	Chemotaxis ChemotaxisSettings `yaml:",inline"`
	Sum        SumSettings        `yaml:",inline"`
	BlockCatch BlockCatchSettings `yaml:",inline"`
}

// source is the randomness a task draws from: the organism's own stream or a
// stream shared by every organism of a generation.
type source interface {
	Uint32() uint32
	Intn(n int) int
	Float64() float64
}

func environment(org *organism.Organism, shared bool, generationSeed uint32) source {
	if shared {
		return rng.New(generationSeed)
	}
	return org
}

func requireMemory(org *organism.Organism, name string, n int) error {
	if org.MemoryLen() < n {
		return fmt.Errorf("%w: %s needs %d nodes, organism has %d", ErrMemoryTooSmall, name, n, org.MemoryLen())
	}
	return nil
}

// minDistance keeps inverse-distance fitness finite when an organism lands
// exactly on its target.
const minDistance = 1e-9

func distance(x1, y1, x2, y2 float64) float64 {
	return math.Hypot(x1-x2, y1-y2)
}

func inverseDistance(d float64) float64 {
	return 1 / math.Max(d, minDistance)
}

// datalog collects one entry per update; entries are joined with ';'.
type datalog struct {
	enabled bool
	entries []string
}

func (l *datalog) add(format string, args ...any) {
	if !l.enabled {
		return
	}
	l.entries = append(l.entries, fmt.Sprintf(format, args...))
}

func (l *datalog) String() string {
	return strings.Join(l.entries, ";")
}
