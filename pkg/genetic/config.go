package genetic

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/1a2yd09/gpu-scheduling-algorithm/config"
)

// ErrEmptyPopulation is returned when the search has nothing to evolve.
var ErrEmptyPopulation = errors.New("empty population")

// Config tunes the genetic search.
type Config struct {
	PopulationSize int
	// Number of generations, the search never stops early on convergence.
	Generations int
	// Backfill decodes every individual with slack reuse enabled.
	Backfill bool
	// EvolveShares adds a requested GPU share per job to every individual.
	EvolveShares bool
	// Workers bounds the number of individuals decoded concurrently.
	// Zero means one worker per CPU.
	Workers int
	// Seed of the random source of all operators.
	Seed int64
}

// DefaultConfig returns the settings the engine was tuned with.
func DefaultConfig() Config {
	return Config{
		PopulationSize: config.DefaultPopulationSize,
		Generations:    config.DefaultGenerations,
		Backfill:       true,
		Seed:           1,
	}
}

func (c Config) validate() error {
	if c.PopulationSize <= 0 {
		return fmt.Errorf("%w: population size %d", ErrEmptyPopulation, c.PopulationSize)
	}
	if c.Generations < 0 {
		return fmt.Errorf("negative generation count %d", c.Generations)
	}
	if c.Workers < 0 {
		return fmt.Errorf("negative worker count %d", c.Workers)
	}
	return nil
}

func (c Config) workers() int {
	if c.Workers == 0 {
		return runtime.NumCPU()
	}
	return c.Workers
}
