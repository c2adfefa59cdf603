package algorithm

import (
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/common/trainingjob"
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/common/types"
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/plan"
	"k8s.io/klog/v2"
)

// Sequential runs one job after another, each on the whole pool, in the
// listed order.
type Sequential struct {
	algorithm string
	totalGPU  int
	lookup    trainingjob.Lookup
}

func NewSequential(totalGPU int, lookup trainingjob.Lookup) *Sequential {
	return &Sequential{
		algorithm: string(types.AlgorithmSequential),
		totalGPU:  totalGPU,
		lookup:    lookup,
	}
}

func (a *Sequential) Schedule(jobNames []string) (*plan.Plan, error) {
	if err := checkInput(a.totalGPU, jobNames); err != nil {
		return nil, err
	}
	klog.V(5).InfoS("Started scheduling", "jobs", jobNames, "totalGPU", a.totalGPU, "algorithm", a.algorithm)

	// one wave per job keeps the listed order
	orders := make([]int, len(jobNames))
	for i := range orders {
		orders[i] = i + 1
	}
	p, err := plan.BuildFromOrders(jobNames, orders, a.totalGPU, a.lookup, plan.Options{})
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

func (a *Sequential) GetName() string {
	return a.algorithm
}
