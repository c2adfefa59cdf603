package types

// AlgorithmName identifies a scheduling algorithm in requests, flags and
// metrics labels.
type AlgorithmName string

const (
	// Every job gets the whole pool, one job after another.
	AlgorithmSequential AlgorithmName = "Sequential"
	// All jobs at once, greedy GPU grants or bin packing when jobs outnumber GPUs.
	AlgorithmParallel AlgorithmName = "Parallel"
	// Marginal-utility greedy GPU grants.
	AlgorithmOptimus AlgorithmName = "Optimus"
	// Dynamic programming maximising the summed speedup.
	AlgorithmFfDLOptimizer AlgorithmName = "FfDLOptimizer"
	// Genetic search over job orderings.
	AlgorithmGenetic AlgorithmName = "Genetic"
)

// AllAlgorithms lists the algorithms in the order they are compared.
var AllAlgorithms = []AlgorithmName{
	AlgorithmSequential,
	AlgorithmParallel,
	AlgorithmOptimus,
	AlgorithmFfDLOptimizer,
	AlgorithmGenetic,
}

// Number of allocated GPUs of each training job within one batch
type JobAllocation map[string]int

// Total returns the number of GPUs granted across all jobs.
func (a JobAllocation) Total() int {
	total := 0
	for _, n := range a {
		total += n
	}
	return total
}
