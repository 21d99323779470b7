package task

import (
	"fmt"

	"markovbrain/internal/organism"
)

const SumTaskName = "SumTask"

type SumSettings struct {
	NumBrainTicks int `yaml:"sumNumBrainTicks"`
}

// SumTask ticks the brain from zeroed memory and scores the sum of all
// memory bytes.
type SumTask struct {
	s SumSettings
}

func NewSumTask(s SumSettings) (*SumTask, error) {
	if s.NumBrainTicks <= 0 {
		return nil, fmt.Errorf("sumNumBrainTicks must be > 0")
	}
	return &SumTask{s: s}, nil
}

func (*SumTask) Name() string {
	return SumTaskName
}

func (t *SumTask) Evaluate(org *organism.Organism, _ uint32, _ string, logEnabled bool) error {
	org.ZeroMemory()
	org.Run(t.s.NumBrainTicks)
	total := 0
	for i := 0; i < org.MemoryLen(); i++ {
		total += int(org.Memory(i))
	}
	org.SetFitness(float64(total))
	if logEnabled {
		org.SetStats(fmt.Sprint(org.MemorySnapshot()))
	}
	return nil
}
