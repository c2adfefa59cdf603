package algorithm

import (
	"fmt"

	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/plan"
	"k8s.io/apimachinery/pkg/util/sets"
)

func checkInput(totalGPU int, jobNames []string) error {
	if len(jobNames) == 0 {
		return fmt.Errorf("%w: no jobs", ErrDegenerateInput)
	}
	if totalGPU <= 0 {
		return fmt.Errorf("%w: pool of %d GPUs", ErrDegenerateInput, totalGPU)
	}
	seen := sets.NewString()
	for _, name := range jobNames {
		if seen.Has(name) {
			return fmt.Errorf("%w: job %q listed twice", ErrDegenerateInput, name)
		}
		seen.Insert(name)
	}
	return nil
}

// validatePlan checks that every batch uses the whole pool and that every job
// is placed exactly once.
func validatePlan(totalGPU int, p *plan.Plan, jobNames []string) error {
	for i, b := range p.Batches {
		if n := b.GpuNum(); n != totalGPU {
			return fmt.Errorf("%w: batch %d uses %d of %d GPUs", plan.ErrInvalidArgument, i, n, totalGPU)
		}
	}
	placed := sets.NewString()
	for _, j := range p.Jobs() {
		if placed.Has(j.Name) {
			return fmt.Errorf("%w: job %q placed twice", plan.ErrInvalidArgument, j.Name)
		}
		placed.Insert(j.Name)
	}
	if want := sets.NewString(jobNames...); !want.Equal(placed) {
		return fmt.Errorf("%w: missing jobs %v, unexpected jobs %v", plan.ErrInvalidArgument,
			want.Difference(placed).List(), placed.Difference(want).List())
	}
	return nil
}
