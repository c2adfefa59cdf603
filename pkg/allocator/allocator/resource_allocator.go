package allocator

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/1a2yd09/gpu-scheduling-algorithm/config"
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/algorithm"
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/common/trainingjob"
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/common/types"
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/genetic"
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/placement"
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/plan"
	"github.com/google/uuid"
	"k8s.io/klog/v2"
)

// ResourceAllocator turns plan requests into placed plans. It is safe for
// concurrent use as long as its lookup is.
type ResourceAllocator struct {
	lookup trainingjob.Lookup
	placer *placement.Placer
}

// NewResourceAllocator creates an allocator reading training data from
// lookup and binding devices on nodes of gpusPerNode GPUs.
func NewResourceAllocator(lookup trainingjob.Lookup, gpusPerNode int) *ResourceAllocator {
	return &ResourceAllocator{
		lookup: lookup,
		placer: placement.NewPlacer(gpusPerNode),
	}
}

// Allocation is the outcome of a plan request.
type Allocation struct {
	Request   PlanRequest
	Plan      *plan.Plan
	Placement *placement.Placement
	// Search is only set for the genetic algorithm.
	Search *genetic.Result
}

// Normalize fills the zero fields of req with defaults. A missing request id
// gets a random UUID.
func Normalize(req PlanRequest) PlanRequest {
	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}
	if req.Algorithm == "" {
		req.Algorithm = types.AlgorithmGenetic
	}
	if req.NumGpu == 0 {
		req.NumGpu = config.DefaultNumGpu
	}
	if req.PopulationSize == 0 {
		req.PopulationSize = config.DefaultPopulationSize
	}
	if req.Generations == 0 {
		req.Generations = config.DefaultGenerations
	}
	if req.Backfill == nil {
		backfill := true
		req.Backfill = &backfill
	}
	if req.Seed == 0 {
		req.Seed = genetic.DefaultConfig().Seed
	}
	return req
}

// GeneticConfig returns the genetic search settings of a normalized request.
func (req PlanRequest) GeneticConfig() genetic.Config {
	cfg := genetic.DefaultConfig()
	cfg.PopulationSize = req.PopulationSize
	cfg.Generations = req.Generations
	cfg.EvolveShares = req.EvolveShares
	cfg.Seed = req.Seed
	if req.Backfill != nil {
		cfg.Backfill = *req.Backfill
	}
	return cfg
}

// Allocate plans the jobs of req with the requested algorithm and binds the
// plan to devices.
func (ra *ResourceAllocator) Allocate(ctx context.Context, req PlanRequest) (*Allocation, error) {
	req = Normalize(req)
	name := string(req.Algorithm)
	klog.InfoS("Allocating resource", "algorithm", name, "numGpus", req.NumGpu, "jobs", len(req.JobNames),
		"request", req.RequestID)
	defer klog.V(4).InfoS("Finished allocating resource", "algorithm", name, "request", req.RequestID)

	a := &Allocation{Request: req}
	start := time.Now()
	switch req.Algorithm {
	case types.AlgorithmGenetic:
		res, err := algorithm.NewGenetic(req.NumGpu, ra.lookup, req.GeneticConfig()).Search(ctx, req.JobNames)
		if err != nil {
			return nil, ra.failed(name, req, err)
		}
		a.Search = res
		a.Plan = res.Best.Plan
	default:
		algo, err := algorithm.NewAlgorithmFactory(req.Algorithm, req.NumGpu, ra.lookup, req.GeneticConfig())
		if err != nil {
			klog.ErrorS(err, "Failed to create algorithm", "algorithm", name, "request", req.RequestID)
			return nil, err
		}
		p, err := algo.Schedule(req.JobNames)
		if err != nil {
			return nil, ra.failed(name, req, err)
		}
		a.Plan = p
	}
	schedulingAlgorithmDurationLabeled.WithLabelValues(name).Observe(time.Since(start).Seconds())
	numJobsLabeled.WithLabelValues(name).Observe(float64(len(req.JobNames)))
	numGpusLabeled.WithLabelValues(name).Observe(float64(req.NumGpu))

	pl, err := ra.placer.Place(a.Plan)
	if err != nil {
		klog.ErrorS(err, "Failed to place plan", "algorithm", name, "request", req.RequestID)
		return nil, err
	}
	a.Placement = pl
	return a, nil
}

func (ra *ResourceAllocator) failed(name string, req PlanRequest, err error) error {
	failedAllocationsLabeled.WithLabelValues(name).Inc()
	klog.ErrorS(err, "Failed to schedule", "algorithm", name, "numGpus", req.NumGpu, "jobs", req.JobNames,
		"request", req.RequestID)
	return fmt.Errorf("%s: %w", name, err)
}

// Response renders the allocation for clients.
func (a *Allocation) Response() PlanResponse {
	p := a.Plan
	resp := PlanResponse{
		RequestID:       a.Request.RequestID,
		Algorithm:       string(a.Request.Algorithm),
		NumGpu:          p.MaxGpuNum,
		TotalTime:       p.TotalTime,
		Minutes:         p.Minutes(),
		UtilizationRate: p.UtilizationRate,
		Batches:         make([]BatchView, 0, len(p.Batches)),
	}
	for bi, b := range p.Batches {
		bv := BatchView{Length: b.Length, Slices: make([]SliceView, 0, len(b.Slices))}
		for si, s := range b.Slices {
			sv := SliceView{
				GpuNum:   s.GpuNum,
				Mode:     s.Mode.String(),
				Length:   s.ActualLength,
				Remain:   s.RemainLength,
				Jobs:     jobViews(s.Jobs),
				Backfill: jobViews(s.Backfill),
			}
			if a.Placement != nil {
				sv.Devices = a.Placement.Devices(bi, si)
			}
			bv.Slices = append(bv.Slices, sv)
		}
		resp.Batches = append(resp.Batches, bv)
	}
	if a.Search != nil {
		// an infeasible initial population has no finite best
		if !math.IsInf(a.Search.InitialBest.Fitness, 0) {
			resp.InitialTotalTime = a.Search.InitialBest.Fitness
		}
		resp.Generations = len(a.Search.History) - 1
	}
	return resp
}

// WriteReport prints the allocation as a text report.
func (a *Allocation) WriteReport(w io.Writer) error {
	var devices plan.DeviceFunc
	if a.Placement != nil {
		devices = a.Placement.Devices
	}
	return plan.WriteReport(w, string(a.Request.Algorithm), a.Plan, devices)
}
