package algorithm

import (
	"fmt"
	"math"

	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/common/trainingjob"
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/common/types"
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/plan"
	"k8s.io/klog/v2"
)

// Implementation of the DP algorithm presented by IBM, which aims to maximize
// the overall throughput of the DL platform.
// Saxena, Vaibhav, et al. "Effective elastic scaling of deep learning workloads."
// 2020 28th International Symposium on Modeling, Analysis, and Simulation of
// Computer and Telecommunication Systems (MASCOTS). IEEE, 2020.
// https://ieeexplore.ieee.org/abstract/document/9285954
//
// The speedup of a job with g GPUs is its single-GPU completion time divided
// by its completion time with g GPUs. All jobs run in one batch, so every job
// gets at least one GPU and the whole pool is handed out.

type FfDLOptimizer struct {
	algorithm string
	totalGPU  int
	lookup    trainingjob.Lookup
}

func NewFfDLOptimizer(totalGPU int, lookup trainingjob.Lookup) *FfDLOptimizer {
	return &FfDLOptimizer{
		algorithm: string(types.AlgorithmFfDLOptimizer),
		totalGPU:  totalGPU,
		lookup:    lookup,
	}
}

// Schedule requires no more jobs than GPUs.
func (a *FfDLOptimizer) Schedule(jobNames []string) (*plan.Plan, error) {
	if err := checkInput(a.totalGPU, jobNames); err != nil {
		return nil, err
	}
	if len(jobNames) > a.totalGPU {
		return nil, fmt.Errorf("%w: %s needs at least %d GPUs for %d jobs", ErrNotApplicable, a.algorithm,
			len(jobNames), len(jobNames))
	}
	memo := trainingjob.NewMemo(a.lookup)

	K := a.totalGPU
	J := len(jobNames)
	// no job gets more than what is left once every other job has one GPU
	maxGPU := K - J + 1

	// speedup[j][g] for job j (index start from 1) with g GPUs
	speedup := make([][]float64, J+1)
	for j := 1; j <= J; j++ {
		speedup[j] = make([]float64, maxGPU+1)
		base, err := memo.Get(jobNames[j-1], 1)
		if err != nil {
			return nil, err
		}
		for g := 1; g <= maxGPU; g++ {
			r, err := memo.Get(jobNames[j-1], g)
			if err != nil {
				return nil, err
			}
			if r.CompletionTime() > 0 {
				speedup[j][g] = base.CompletionTime() / r.CompletionTime()
			} else {
				speedup[j][g] = float64(g)
			}
		}
	}

	// P[j][k] stores the max total speedup if allocated exactly k GPUs to the first j jobs
	// SOL[j][k] stores the number of GPUs job j will receive in that case
	P := make([][]float64, J+1)
	SOL := make([][]int, J+1)
	for j := 0; j <= J; j++ {
		P[j] = make([]float64, K+1)
		SOL[j] = make([]int, K+1)
		for k := 0; k <= K; k++ {
			P[j][k] = math.Inf(-1)
		}
	}
	P[0][0] = 0

	for j := 1; j <= J; j++ {
		for k := 1; k <= K; k++ {
			for g := 1; g <= maxGPU && g <= k; g++ {
				if math.IsInf(P[j-1][k-g], -1) {
					continue
				}
				// total speedup of relocating g GPUs from previous (j-1) jobs to job j
				p := speedup[j][g] + P[j-1][k-g]
				if p > P[j][k] {
					P[j][k] = p
					SOL[j][k] = g
				}
			}
		}
	}
	klog.V(5).InfoS("Finished DP", "K", K, "J", J, "P", P[J][K], "algorithm", a.algorithm)

	gpus := make([]int, J+1)
	for j, k := J, K; j > 0; j-- {
		gpus[j] = SOL[j][k]
		k -= SOL[j][k]
	}

	slices := make([]*plan.TimeSlice, J)
	for j := 1; j <= J; j++ {
		job, err := plan.NewJob(jobNames[j-1], 1, gpus[j], memo)
		if err != nil {
			return nil, err
		}
		slices[j-1] = plan.NewTimeSlice(job.GpuNum, plan.Concurrent, job)
	}
	b, err := plan.NewBatch(K, slices...)
	if err != nil {
		return nil, err
	}
	p := plan.NewPlan(K)
	if err := p.AddBatch(b); err != nil {
		return nil, err
	}
	p.Arrange()
	if err := validatePlan(K, p, jobNames); err != nil {
		return nil, err
	}

	klog.V(4).InfoS("Finished scheduling", "result", b.Allocation(), "totalTime", p.TotalTime,
		"utilizationRate", p.UtilizationRate, "algorithm", a.algorithm)
	return p, nil
}

func (a *FfDLOptimizer) GetName() string {
	return a.algorithm
}
