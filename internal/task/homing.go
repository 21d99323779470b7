package task

import (
	"fmt"
	"math"

	"markovbrain/internal/organism"
)

const HomingTaskName = "HomingTask"

const homingTurnStep = 0.1

// HomingSettings configure HomingTask. Node 0 steers, node 1 sets the speed
// when SpeedOutput is on, and node 2 receives the update index when
// ClockInput is on.
type HomingSettings struct {
	SpeedOutput         bool    `yaml:"homingSpeedOutput"`
	ClockInput          bool    `yaml:"homingClockInput"`
	TargetX             float64 `yaml:"homingTargetX"`
	TargetY             float64 `yaml:"homingTargetY"`
	NumUpdates          int     `yaml:"homingNumUpdates"`
	OrgSpeed            float64 `yaml:"homingOrgSpeed"`
	StartingAngle       float64 `yaml:"homingStartingAngle"`
	BrainTicksPerUpdate int     `yaml:"homingBrainTicksPerUpdate"`
}

// HomingTask starts the organism at the origin and scores the inverse of its
// final distance to a fixed target.
type HomingTask struct {
	s HomingSettings
}

func NewHomingTask(s HomingSettings) (*HomingTask, error) {
	if s.NumUpdates <= 0 {
		return nil, fmt.Errorf("homingNumUpdates must be > 0")
	}
	if s.BrainTicksPerUpdate <= 0 {
		return nil, fmt.Errorf("homingBrainTicksPerUpdate must be > 0")
	}
	if s.OrgSpeed < 0 {
		return nil, fmt.Errorf("homingOrgSpeed must be >= 0")
	}
	return &HomingTask{s: s}, nil
}

func (*HomingTask) Name() string {
	return HomingTaskName
}

func (t *HomingTask) Evaluate(org *organism.Organism, _ uint32, _ string, logEnabled bool) error {
	nodes := 2
	if t.s.ClockInput {
		nodes = 3
	}
	if err := requireMemory(org, HomingTaskName, nodes); err != nil {
		return err
	}

	x, y := 0.0, 0.0
	angle := t.s.StartingAngle
	log := datalog{enabled: logEnabled}

	org.ZeroMemory()
	for i := 0; i < t.s.NumUpdates; i++ {
		if t.s.ClockInput {
			org.SetMemory(2, byte(i))
		}
		org.Run(t.s.BrainTicksPerUpdate)

		switch turn := org.Memory(0); {
		case turn < 100:
			angle += homingTurnStep
		case turn < 200:
			angle -= homingTurnStep
		}

		speed := t.s.OrgSpeed
		if t.s.SpeedOutput {
			speed = float64(org.Memory(1)) / 255 * t.s.OrgSpeed
		}
		x += math.Cos(angle) * speed
		y += math.Sin(angle) * speed
		log.add("%g,%g,%g,%g", x, y, angle, speed)
	}

	org.SetFitness(inverseDistance(distance(x, y, t.s.TargetX, t.s.TargetY)))
	org.SetStats(log.String())
	return nil
}
