package plan

import (
	"fmt"
	"sort"

	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/common/trainingjob"
	"k8s.io/klog/v2"
)

// Options tune how a plan is built from an assignment.
type Options struct {
	// Backfill lets the slack of a batch pre-execute epochs of the next batch.
	Backfill bool
}

// entry is a job waiting to be placed, with the GPU share it asked for.
type entry struct {
	job   *Job
	share int
}

// AllocateGreedy grants one GPU to every job and hands out the remaining GPUs
// one at a time to the job with the largest completion time (the first one on
// ties), refreshing its profile after every grant.
func AllocateGreedy(jobs []*Job, gpuNum int, lookup trainingjob.Lookup) error {
	if len(jobs) == 0 || len(jobs) > gpuNum {
		return fmt.Errorf("%w: allocating %d GPUs to %d jobs", ErrInvalidArgument, gpuNum, len(jobs))
	}
	for _, j := range jobs {
		if err := j.SetGpuAllocation(1, lookup); err != nil {
			return err
		}
	}
	for free := gpuNum - len(jobs); free > 0; free-- {
		longest := jobs[0]
		for _, j := range jobs[1:] {
			if j.CompletionTime > longest.CompletionTime {
				longest = j
			}
		}
		if err := longest.SetGpuAllocation(longest.GpuNum+1, lookup); err != nil {
			return err
		}
	}
	return nil
}

// allocateShares splits gpuNum GPUs among the entries proportionally to their
// requested shares. Every job gets at least one GPU; GPUs lost to rounding go
// one at a time to the job with the fewest GPUs.
func allocateShares(entries []entry, gpuNum int, lookup trainingjob.Lookup) error {
	if len(entries) == 0 || len(entries) > gpuNum {
		return fmt.Errorf("%w: allocating %d GPUs to %d jobs", ErrInvalidArgument, gpuNum, len(entries))
	}
	spare := gpuNum - len(entries)
	sum := 0
	for _, e := range entries {
		sum += shareOf(e)
	}
	grants := make([]int, len(entries))
	granted := 0
	for i, e := range entries {
		grants[i] = 1 + shareOf(e)*spare/sum
		granted += grants[i]
	}
	for ; granted < gpuNum; granted++ {
		fewest := 0
		for i := range grants {
			if grants[i] < grants[fewest] {
				fewest = i
			}
		}
		grants[fewest]++
	}
	for i, e := range entries {
		if err := e.job.SetGpuAllocation(grants[i], lookup); err != nil {
			return err
		}
	}
	return nil
}

func shareOf(e entry) int {
	if e.share < 1 {
		return 1
	}
	return e.share
}

// BuildFromOrders decodes a wave assignment into a plan. Jobs sharing an order
// form a wave; a wave with more jobs than GPUs is split into chunks of at most
// maxGpuNum jobs. Every chunk becomes one batch whose GPUs are granted by
// AllocateGreedy, with one concurrent slice per job.
func BuildFromOrders(jobNames []string, orders []int, maxGpuNum int, lookup trainingjob.Lookup,
	opts Options) (*Plan, error) {
	if len(orders) != len(jobNames) {
		return nil, fmt.Errorf("%w: %d orders for %d jobs", ErrInvalidArgument, len(orders), len(jobNames))
	}
	return build(jobNames, orders, nil, maxGpuNum, lookup, opts)
}

// BuildFromShares decodes a wave assignment together with a requested GPU
// share per job. Within a batch the GPUs are split proportionally to the
// shares instead of greedily.
func BuildFromShares(jobNames []string, orders []int, shares []int, maxGpuNum int, lookup trainingjob.Lookup,
	opts Options) (*Plan, error) {
	if len(orders) != len(jobNames) || len(shares) != len(jobNames) {
		return nil, fmt.Errorf("%w: %d orders and %d shares for %d jobs", ErrInvalidArgument,
			len(orders), len(shares), len(jobNames))
	}
	return build(jobNames, orders, shares, maxGpuNum, lookup, opts)
}

func build(jobNames []string, orders []int, shares []int, maxGpuNum int, lookup trainingjob.Lookup,
	opts Options) (*Plan, error) {
	if maxGpuNum <= 0 {
		return nil, fmt.Errorf("%w: pool of %d GPUs", ErrInvalidArgument, maxGpuNum)
	}
	memo := trainingjob.NewMemo(lookup)

	entries := make([]entry, len(jobNames))
	for i, name := range jobNames {
		j, err := NewJob(name, orders[i], 1, memo)
		if err != nil {
			return nil, err
		}
		entries[i] = entry{job: j}
		if shares != nil {
			entries[i].share = shares[i]
		}
	}

	// by order, then longest single-GPU job first; input order breaks ties
	sort.SliceStable(entries, func(a, b int) bool {
		if entries[a].job.Order != entries[b].job.Order {
			return entries[a].job.Order < entries[b].job.Order
		}
		return entries[a].job.CompletionTime > entries[b].job.CompletionTime
	})

	p := NewPlan(maxGpuNum)
	for _, wave := range groupByOrder(entries) {
		for start := 0; start < len(wave); start += maxGpuNum {
			end := start + maxGpuNum
			if end > len(wave) {
				end = len(wave)
			}
			chunk := wave[start:end]

			jobs := make([]*Job, len(chunk))
			for i, e := range chunk {
				jobs[i] = e.job
			}
			var err error
			if shares != nil {
				err = allocateShares(chunk, maxGpuNum, memo)
			} else {
				err = AllocateGreedy(jobs, maxGpuNum, memo)
			}
			if err != nil {
				return nil, err
			}

			slices := make([]*TimeSlice, len(jobs))
			for i, j := range jobs {
				slices[i] = NewTimeSlice(j.GpuNum, Concurrent, j)
			}
			b, err := NewBatch(maxGpuNum, slices...)
			if err != nil {
				return nil, err
			}
			if err := p.AddBatch(b); err != nil {
				return nil, err
			}
		}
	}
	p.Arrange()

	if opts.Backfill {
		if err := ApplyBackfill(p, memo); err != nil {
			return nil, err
		}
	}
	klog.V(5).InfoS("Built plan", "jobs", len(jobNames), "batches", len(p.Batches), "totalTime", p.TotalTime,
		"utilizationRate", p.UtilizationRate, "backfill", opts.Backfill)
	return p, nil
}

// groupByOrder splits entries sorted by order into waves of equal order.
func groupByOrder(entries []entry) [][]entry {
	waves := [][]entry{}
	for i := 0; i < len(entries); {
		k := i
		for k < len(entries) && entries[k].job.Order == entries[i].job.Order {
			k++
		}
		waves = append(waves, entries[i:k])
		i = k
	}
	return waves
}
