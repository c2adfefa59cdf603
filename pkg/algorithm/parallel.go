package algorithm

import (
	"sort"

	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/common/trainingjob"
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/common/types"
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/plan"
	"k8s.io/klog/v2"
)

// Parallel runs all jobs in a single batch. With no more jobs than GPUs every
// job gets its own slice and the GPUs are granted greedily to the longest
// job. Otherwise every GPU becomes a packed slice and the jobs, longest
// first, are appended to the currently shortest slice.
type Parallel struct {
	algorithm string
	totalGPU  int
	lookup    trainingjob.Lookup
}

func NewParallel(totalGPU int, lookup trainingjob.Lookup) *Parallel {
	return &Parallel{
		algorithm: string(types.AlgorithmParallel),
		totalGPU:  totalGPU,
		lookup:    lookup,
	}
}

func (a *Parallel) Schedule(jobNames []string) (*plan.Plan, error) {
	if err := checkInput(a.totalGPU, jobNames); err != nil {
		return nil, err
	}
	klog.V(5).InfoS("Started scheduling", "jobs", jobNames, "totalGPU", a.totalGPU, "algorithm", a.algorithm)

	var (
		p   *plan.Plan
		err error
	)
	if len(jobNames) <= a.totalGPU {
		p, err = plan.BuildFromOrders(jobNames, make([]int, len(jobNames)), a.totalGPU, a.lookup, plan.Options{})
	} else {
		p, err = a.pack(jobNames)
	}
	if err != nil {
		return nil, err
	}
	if err := validatePlan(a.totalGPU, p, jobNames); err != nil {
		return nil, err
	}

	klog.V(4).InfoS("Finished scheduling", "batches", len(p.Batches), "totalTime", p.TotalTime,
		"utilizationRate", p.UtilizationRate, "algorithm", a.algorithm)
	return p, nil
}

// pack balances more jobs than GPUs over single-GPU packed slices.
func (a *Parallel) pack(jobNames []string) (*plan.Plan, error) {
	memo := trainingjob.NewMemo(a.lookup)
	jobs := make([]*plan.Job, len(jobNames))
	for i, name := range jobNames {
		j, err := plan.NewJob(name, 1, 1, memo)
		if err != nil {
			return nil, err
		}
		jobs[i] = j
	}
	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].CompletionTime > jobs[j].CompletionTime
	})

	slices := make([]*plan.TimeSlice, a.totalGPU)
	for i := range slices {
		slices[i] = plan.NewTimeSlice(1, plan.Packed, jobs[i])
	}
	for _, j := range jobs[a.totalGPU:] {
		shortest := slices[0]
		for _, s := range slices[1:] {
			if s.ActualLength < shortest.ActualLength {
				shortest = s
			}
		}
		shortest.AddJob(j)
		klog.V(5).InfoS("Packed job", "job", j.Name, "sliceLength", shortest.ActualLength, "algorithm", a.algorithm)
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
	return p, nil
}

func (a *Parallel) GetName() string {
	return a.algorithm
}
