package plan

import (
	"fmt"
	"math"
)

// Plan represents an ordered sequence of batches executed one after another.
type Plan struct {
	Batches   []*Batch
	MaxGpuNum int

	// Sum of the batch lengths (seconds)
	TotalTime float64
	// Percentage of GPU time spent on training, in [0, 100]
	UtilizationRate float64

	// Err is set on plans that could not be built; their TotalTime is +Inf.
	Err error
}

// NewPlan creates an empty plan for a pool of maxGpuNum GPUs.
func NewPlan(maxGpuNum int) *Plan {
	return &Plan{
		Batches:   []*Batch{},
		MaxGpuNum: maxGpuNum,
	}
}

// InvalidPlan creates the plan of a candidate that could not be decoded. It
// compares worse than every valid plan.
func InvalidPlan(maxGpuNum int, err error) *Plan {
	return &Plan{
		Batches:   []*Batch{},
		MaxGpuNum: maxGpuNum,
		TotalTime: math.Inf(1),
		Err:       err,
	}
}

// Valid tells whether the plan was built successfully.
func (p *Plan) Valid() bool {
	return p.Err == nil
}

// AddBatch appends a batch to the plan. Call Arrange afterwards.
func (p *Plan) AddBatch(b *Batch) error {
	if b.MaxGpuNum != p.MaxGpuNum || b.GpuNum() != p.MaxGpuNum {
		return fmt.Errorf("%w: batch uses %d of %d GPUs, plan pool has %d", ErrInvalidArgument,
			b.GpuNum(), b.MaxGpuNum, p.MaxGpuNum)
	}
	p.Batches = append(p.Batches, b)
	return nil
}

// Arrange arranges every batch and derives the total time and the utilization
// rate. It is idempotent.
func (p *Plan) Arrange() {
	if !p.Valid() {
		return
	}
	total := 0.0
	unused := 0.0
	for _, b := range p.Batches {
		b.Arrange()
		total += b.Length
		for _, s := range b.Slices {
			unused += s.RemainLength * float64(s.GpuNum)
		}
	}
	p.TotalTime = total
	if total <= 0 || p.MaxGpuNum <= 0 {
		p.UtilizationRate = 0
		return
	}
	rate := (1 - unused/(total*float64(p.MaxGpuNum))) * 100
	p.UtilizationRate = math.Max(0, math.Min(100, rate))
}

// Jobs returns the primary jobs of the plan in batch and slice order.
func (p *Plan) Jobs() []*Job {
	jobs := []*Job{}
	for _, b := range p.Batches {
		for _, s := range b.Slices {
			jobs = append(jobs, s.Jobs...)
		}
	}
	return jobs
}

// Minutes returns the total time rounded to whole minutes.
func (p *Plan) Minutes() float64 {
	return math.Round(p.TotalTime / 60)
}

// Clone returns a deep copy of the plan.
func (p *Plan) Clone() *Plan {
	c := *p
	c.Batches = make([]*Batch, len(p.Batches))
	for i, b := range p.Batches {
		c.Batches[i] = b.Clone()
	}
	return &c
}
