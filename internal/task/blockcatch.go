package task

import (
	"fmt"

	"markovbrain/internal/organism"
)

const BlockCatchTaskName = "BlockCatchTask"

// BlockCatchSettings configure BlockCatchTask.
type BlockCatchSettings struct {
	UsePopulationConsistentSeed bool `yaml:"blockCatchUsePopulationConsistentSeed"`
	SimHeight                   int  `yaml:"blockCatchSimHeight"`
	SimWidth                    int  `yaml:"blockCatchSimWidth"`
	NumUpdates                  int  `yaml:"blockCatchNumUpdates"`
	NumTrials                   int  `yaml:"blockCatchNumTrials"`
}

// BlockCatchTask drops blocks one row per update from SimHeight at a random
// column. Sensors: node 0 clock, node 1 catch flash, node 2 block above,
// node 3 wall contact (128 left, 255 right). Node 4 moves the catcher: above
// 200 right, below 100 left. Fitness is catches over catch opportunities.
type BlockCatchTask struct {
	s BlockCatchSettings
}

func NewBlockCatchTask(s BlockCatchSettings) (*BlockCatchTask, error) {
	if s.SimHeight <= 0 || s.SimWidth <= 0 {
		return nil, fmt.Errorf("blockCatch arena must be positive, got %dx%d", s.SimWidth, s.SimHeight)
	}
	if s.NumUpdates <= 0 || s.NumTrials <= 0 {
		return nil, fmt.Errorf("blockCatchNumUpdates and blockCatchNumTrials must be > 0")
	}
	return &BlockCatchTask{s: s}, nil
}

func (*BlockCatchTask) Name() string {
	return BlockCatchTaskName
}

// Opportunities is the number of blocks that reach the floor over all trials.
func (t *BlockCatchTask) Opportunities() int {
	return t.s.NumTrials * (t.s.NumUpdates / (t.s.SimHeight + 1))
}

func (t *BlockCatchTask) Evaluate(org *organism.Organism, generationSeed uint32, _ string, logEnabled bool) error {
	if err := requireMemory(org, BlockCatchTaskName, 5); err != nil {
		return err
	}
	env := environment(org, t.s.UsePopulationConsistentSeed, generationSeed)
	log := datalog{enabled: logEnabled}
	w, h := t.s.SimWidth, t.s.SimHeight

	caught := 0
	for trial := 0; trial < t.s.NumTrials; trial++ {
		orgX := 0
		blockX := env.Intn(w)
		blockY := h
		org.ZeroMemory()

		for i := 0; i < t.s.NumUpdates; i++ {
			org.SetMemory(0, byte(i))
			if blockY == 0 {
				if blockX == orgX {
					caught++
					org.SetMemory(1, 255)
				}
				blockY = h
				blockX = env.Intn(w)
			} else {
				blockY--
				org.SetMemory(1, 0)
			}

			if blockX == orgX {
				org.SetMemory(2, 255)
			} else {
				org.SetMemory(2, 0)
			}

			switch orgX {
			case 0:
				org.SetMemory(3, 128)
			case w - 1:
				org.SetMemory(3, 255)
			default:
				org.SetMemory(3, 0)
			}

			org.Run(1)

			move := org.Memory(4)
			if move > 200 && orgX < w-1 {
				orgX++
			} else if move < 100 && orgX > 0 {
				orgX--
			}
			if trial == 0 {
				log.add("%d,%d,%d", orgX, blockX, blockY)
			}
		}
	}

	fitness := 0.0
	if n := t.Opportunities(); n > 0 {
		fitness = float64(caught) / float64(n)
	}
	org.SetFitness(fitness)
	org.SetStats(log.String())
	return nil
}
