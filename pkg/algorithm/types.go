package algorithm

import (
	"errors"
	"fmt"

	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/common/trainingjob"
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/common/types"
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/genetic"
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/plan"
)

var (
	// ErrDegenerateInput is returned for zero jobs, zero GPUs or duplicate
	// job names, before any scheduling attempt.
	ErrDegenerateInput = errors.New("degenerate input")
	// ErrNotApplicable is returned by algorithms whose preconditions on the
	// job count and the pool size do not hold.
	ErrNotApplicable = errors.New("algorithm not applicable")
	// ErrUnknownAlgorithm is returned by NewAlgorithmFactory.
	ErrUnknownAlgorithm = errors.New("unknown algorithm")
)

// SchedulerAlgorithm is an interface implemented by things that know how to
// plan a set of training jobs on a GPU pool.
type SchedulerAlgorithm interface {
	// Schedule returns the plan of jobNames. Missing training data is fatal
	// and returned to the caller.
	Schedule(jobNames []string) (*plan.Plan, error)
	GetName() string
}

// NewAlgorithmFactory creates the algorithm named algorithm for a pool of
// totalGPU GPUs. cfg only applies to the genetic search.
func NewAlgorithmFactory(algorithm types.AlgorithmName, totalGPU int, lookup trainingjob.Lookup,
	cfg genetic.Config) (SchedulerAlgorithm, error) {
	switch algorithm {
	case types.AlgorithmSequential:
		return NewSequential(totalGPU, lookup), nil
	case types.AlgorithmParallel:
		return NewParallel(totalGPU, lookup), nil
	case types.AlgorithmOptimus:
		return NewOptimus(totalGPU, lookup), nil
	case types.AlgorithmFfDLOptimizer:
		return NewFfDLOptimizer(totalGPU, lookup), nil
	case types.AlgorithmGenetic:
		return NewGenetic(totalGPU, lookup, cfg), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algorithm)
	}
}
