package plan

import (
	"math"
	"sort"

	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/common/trainingjob"
	"k8s.io/klog/v2"
)

// tolerance for comparing derived float lengths
const epsilon = 1e-9

// ApplyBackfill lets the slack of every batch pre-execute epochs of the jobs
// in the following batch. The plan must be arranged. Slack slices, largest
// slack first, are paired with the slices of the next batch, longest first;
// the tail job of the paired slice donates as many whole epochs as fit in the
// slack at the width of the slack slice. A donation that would lower the
// utilization of the plan is rolled back, so backfill never makes a plan
// longer or less utilized.
func ApplyBackfill(p *Plan, lookup trainingjob.Lookup) error {
	if !p.Valid() {
		return nil
	}
	for i := 0; i+1 < len(p.Batches); i++ {
		if err := backfillBatch(p, p.Batches[i], p.Batches[i+1], lookup); err != nil {
			return err
		}
	}
	return nil
}

func backfillBatch(p *Plan, cur *Batch, next *Batch, lookup trainingjob.Lookup) error {
	slack := []*TimeSlice{}
	for _, s := range cur.Slices {
		if s.RemainLength > epsilon {
			slack = append(slack, s)
		}
	}
	sort.SliceStable(slack, func(a, b int) bool {
		return slack[a].RemainLength > slack[b].RemainLength
	})

	donors := append([]*TimeSlice{}, next.Slices...)
	sort.SliceStable(donors, func(a, b int) bool {
		return donors[a].ActualLength > donors[b].ActualLength
	})

	for k := 0; k < len(slack) && k < len(donors); k++ {
		target := slack[k]
		donor := donors[k].Tail()
		if donor == nil || donor.Continuation != nil || donor.EpochNum == 0 {
			continue
		}
		r, err := lookup.Get(donor.Name, target.GpuNum)
		if err != nil {
			return err
		}
		if r.EpochTime <= 0 {
			continue
		}
		fit := int(math.Floor(target.RemainLength / r.EpochTime))
		if fit > donor.EpochNum {
			fit = donor.EpochNum
		}
		if fit <= 0 {
			continue
		}

		totalBefore, rateBefore := p.TotalTime, p.UtilizationRate
		saved := *donor

		continuation := &Job{
			Name:      donor.Name,
			Order:     donor.Order,
			GpuNum:    target.GpuNum,
			EpochNum:  fit,
			EpochTime: r.EpochTime,
		}
		continuation.RecomputeCompletionTime()
		if err := donor.ReduceEpochs(fit); err != nil {
			return err
		}
		donor.Continuation = continuation.Clone()
		target.AddBackfill(continuation)
		cur.Arrange()
		next.Arrange()
		p.Arrange()

		if p.TotalTime > totalBefore+epsilon || p.UtilizationRate < rateBefore-epsilon {
			*donor = saved
			target.removeLastBackfill()
			p.Arrange()
			klog.V(5).InfoS("Rolled back backfill", "job", donor.Name, "epochs", fit, "gpus", target.GpuNum)
			continue
		}
		klog.V(5).InfoS("Backfilled epochs", "job", donor.Name, "epochs", fit, "gpus", target.GpuNum,
			"slack", target.RemainLength, "totalTime", p.TotalTime)
	}
	return nil
}
