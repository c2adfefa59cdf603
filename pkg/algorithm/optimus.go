package algorithm

import (
	"fmt"

	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/common/trainingjob"
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/common/types"
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/plan"
	"k8s.io/klog/v2"
)

// Optimus runs all jobs in a single batch. Every job starts with one GPU and
// each remaining GPU goes to the job with the largest marginal utility, the
// epoch time it saves with one more GPU divided by the GPUs it holds.
//
// Peng, Yanghua, et al. "Optimus: an efficient dynamic resource scheduler for
// deep learning clusters." Proceedings of the Thirteenth EuroSys Conference. 2018.
type Optimus struct {
	algorithm string
	totalGPU  int
	lookup    trainingjob.Lookup
}

func NewOptimus(totalGPU int, lookup trainingjob.Lookup) *Optimus {
	return &Optimus{
		algorithm: string(types.AlgorithmOptimus),
		totalGPU:  totalGPU,
		lookup:    lookup,
	}
}

// Schedule requires more GPUs than jobs.
func (a *Optimus) Schedule(jobNames []string) (*plan.Plan, error) {
	if err := checkInput(a.totalGPU, jobNames); err != nil {
		return nil, err
	}
	if a.totalGPU <= len(jobNames) {
		return nil, fmt.Errorf("%w: %s needs more than %d GPUs for %d jobs", ErrNotApplicable, a.algorithm,
			a.totalGPU, len(jobNames))
	}
	klog.V(5).InfoS("Started scheduling", "jobs", jobNames, "totalGPU", a.totalGPU, "algorithm", a.algorithm)

	memo := trainingjob.NewMemo(a.lookup)
	jobs := make([]*plan.Job, len(jobNames))
	for i, name := range jobNames {
		j, err := plan.NewJob(name, 1, 1, memo)
		if err != nil {
			return nil, err
		}
		jobs[i] = j
	}

	for free := a.totalGPU - len(jobs); free > 0; free-- {
		var (
			best    *plan.Job
			utility float64
		)
		for _, j := range jobs {
			next, err := memo.Get(j.Name, j.GpuNum+1)
			if err != nil {
				return nil, err
			}
			u := (j.EpochTime - next.EpochTime) / float64(j.GpuNum)
			if best == nil || u > utility {
				best, utility = j, u
			}
		}
		if err := best.SetGpuAllocation(best.GpuNum+1, memo); err != nil {
			return nil, err
		}
		klog.V(5).InfoS("Granted GPU", "job", best.Name, "gpus", best.GpuNum, "utility", utility,
			"algorithm", a.algorithm)
	}

	slices := make([]*plan.TimeSlice, len(jobs))
	for i, j := range jobs {
		slices[i] = plan.NewTimeSlice(j.GpuNum, plan.Concurrent, j)
	}
	b, err := plan.NewBatch(a.totalGPU, slices...)
	if err != nil {
		return nil, err
	}
	p := plan.NewPlan(a.totalGPU)
	if err := p.AddBatch(b); err != nil {
		return nil, err
	}
	p.Arrange()
	if err := validatePlan(a.totalGPU, p, jobNames); err != nil {
		return nil, err
	}

	klog.V(4).InfoS("Finished scheduling", "result", b.Allocation(), "totalTime", p.TotalTime,
		"utilizationRate", p.UtilizationRate, "algorithm", a.algorithm)
	return p, nil
}

func (a *Optimus) GetName() string {
	return a.algorithm
}
