package algorithm

import (
	"context"

	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/common/trainingjob"
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/common/types"
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/genetic"
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/plan"
	"k8s.io/klog/v2"
)

// Genetic searches wave assignments with the genetic engine and returns the
// plan of the best individual.
type Genetic struct {
	algorithm string
	totalGPU  int
	lookup    trainingjob.Lookup
	cfg       genetic.Config
}

func NewGenetic(totalGPU int, lookup trainingjob.Lookup, cfg genetic.Config) *Genetic {
	return &Genetic{
		algorithm: string(types.AlgorithmGenetic),
		totalGPU:  totalGPU,
		lookup:    lookup,
		cfg:       cfg,
	}
}

func (a *Genetic) Schedule(jobNames []string) (*plan.Plan, error) {
	res, err := a.Search(context.Background(), jobNames)
	if err != nil {
		return nil, err
	}
	return res.Best.Plan, nil
}

// Search runs the genetic search and returns its full result. It fails when
// not even the best individual could be decoded.
func (a *Genetic) Search(ctx context.Context, jobNames []string) (*genetic.Result, error) {
	if err := checkInput(a.totalGPU, jobNames); err != nil {
		return nil, err
	}
	klog.V(5).InfoS("Started scheduling", "jobs", jobNames, "totalGPU", a.totalGPU, "populationSize",
		a.cfg.PopulationSize, "generations", a.cfg.Generations, "backfill", a.cfg.Backfill, "algorithm", a.algorithm)

	engine, err := genetic.NewEngine(jobNames, a.totalGPU, a.lookup, a.cfg)
	if err != nil {
		return nil, err
	}
	res, err := engine.Run(ctx)
	if err != nil {
		return nil, err
	}
	if !res.Best.Valid() {
		return nil, res.Best.Plan.Err
	}
	if err := validatePlan(a.totalGPU, res.Best.Plan, jobNames); err != nil {
		return nil, err
	}

	klog.V(4).InfoS("Finished scheduling", "orders", res.Best.Orders, "totalTime", res.Best.Plan.TotalTime,
		"utilizationRate", res.Best.Plan.UtilizationRate, "initialBest", res.InitialBest.Fitness, "algorithm", a.algorithm)
	return res, nil
}

func (a *Genetic) GetName() string {
	return a.algorithm
}
