package task

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrTaskExists   = errors.New("task already registered")
	ErrTaskNotFound = errors.New("task not found")
)

// Factory builds a task from the run settings.
type Factory func(Settings) (Task, error)

var taskRegistry = struct {
	mu sync.RWMutex
	m  map[string]Factory
}{
	m: make(map[string]Factory),
}

func init() {
	initializeBuiltInTasks()
}

func initializeBuiltInTasks() {
	MustRegister(HomingTaskName, func(s Settings) (Task, error) { return NewHomingTask(s.Homing) })
	MustRegister(ChemotaxisTaskName, func(s Settings) (Task, error) { return NewChemotaxisTask(s.Chemotaxis) })
	MustRegister(SumTaskName, func(s Settings) (Task, error) { return NewSumTask(s.Sum) })
	MustRegister(BlockCatchTaskName, func(s Settings) (Task, error) { return NewBlockCatchTask(s.BlockCatch) })
}

func Register(name string, factory Factory) error {
	if name == "" {
		return errors.New("task name is required")
	}
	if factory == nil {
		return errors.New("task factory is required")
	}

	taskRegistry.mu.Lock()
	defer taskRegistry.mu.Unlock()

	if _, exists := taskRegistry.m[name]; exists {
		return fmt.Errorf("%w: %s", ErrTaskExists, name)
	}
	taskRegistry.m[name] = factory
	return nil
}

func MustRegister(name string, factory Factory) {
	if err := Register(name, factory); err != nil {
		panic(err)
	}
}

// Resolve builds the named task with settings.
func Resolve(name string, settings Settings) (Task, error) {
	taskRegistry.mu.RLock()
	factory, ok := taskRegistry.m[name]
	taskRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, name)
	}
	t, err := factory(settings)
	if err != nil {
		return nil, fmt.Errorf("build task %s: %w", name, err)
	}
	return t, nil
}

func List() []string {
	taskRegistry.mu.RLock()
	defer taskRegistry.mu.RUnlock()

	names := make([]string, 0, len(taskRegistry.m))
	for name := range taskRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func resetRegistryForTests() {
	taskRegistry.mu.Lock()
	taskRegistry.m = make(map[string]Factory)
	taskRegistry.mu.Unlock()
	initializeBuiltInTasks()
}
