package genetic

import (
	"math"

	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/plan"
)

// Individual is a candidate assignment of jobs to waves.
type Individual struct {
	// Orders holds the wave of every job, in the job order of the engine.
	// Values range over 1..len(Orders) and may repeat.
	Orders []int
	// Gpus holds the requested GPU share of every job. It is only set when
	// shares evolve together with the orders.
	Gpus []int

	// Plan is the decoded plan, nil until the individual is evaluated and
	// reset whenever a genetic operator changes a gene.
	Plan *plan.Plan
	// Fitness is the total time of Plan, +Inf for an individual that could
	// not be decoded. Lower is better.
	Fitness float64
}

// Clone copies the genes of the individual. Selected individuals are always
// clones, so operators never touch a sibling chosen from the same slot. A
// decoded plan is never modified, so the clone shares it until an operator
// invalidates the clone.
func (ind *Individual) Clone() *Individual {
	c := &Individual{
		Orders:  append([]int(nil), ind.Orders...),
		Plan:    ind.Plan,
		Fitness: ind.Fitness,
	}
	if ind.Gpus != nil {
		c.Gpus = append([]int(nil), ind.Gpus...)
	}
	return c
}

// Valid tells whether the individual decoded to a plan.
func (ind *Individual) Valid() bool {
	return ind.Plan != nil && ind.Plan.Valid() && !math.IsInf(ind.Fitness, 1)
}

// invalidate drops the decoded plan after the genes changed.
func (ind *Individual) invalidate() {
	ind.Plan = nil
	ind.Fitness = math.Inf(1)
}
