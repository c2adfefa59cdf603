package plan

import (
	"fmt"

	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/common/types"
)

// Batch represents one execution wave: a set of time slices that together
// occupy the whole GPU pool. Batches of a plan run strictly one after another.
type Batch struct {
	Slices    []*TimeSlice
	MaxGpuNum int
	// Length of the longest slice
	Length float64
}

// NewBatch creates an arranged batch. The widths of the slices must add up to
// maxGpuNum.
func NewBatch(maxGpuNum int, slices ...*TimeSlice) (*Batch, error) {
	b := &Batch{
		Slices:    append([]*TimeSlice{}, slices...),
		MaxGpuNum: maxGpuNum,
	}
	if n := b.GpuNum(); n != maxGpuNum {
		return nil, fmt.Errorf("%w: slices of batch use %d GPUs, pool has %d", ErrInvalidArgument, n, maxGpuNum)
	}
	for _, s := range slices {
		if s.GpuNum <= 0 {
			return nil, fmt.Errorf("%w: slice with %d GPUs", ErrInvalidArgument, s.GpuNum)
		}
	}
	b.Arrange()
	return b, nil
}

// GpuNum returns the number of GPUs used by the slices of the batch.
func (b *Batch) GpuNum() int {
	n := 0
	for _, s := range b.Slices {
		n += s.GpuNum
	}
	return n
}

// Arrange recomputes the length of every slice, the batch length and the
// slack of every slice.
func (b *Batch) Arrange() {
	b.Length = 0
	for _, s := range b.Slices {
		s.RecomputeLength()
		if s.ActualLength > b.Length {
			b.Length = s.ActualLength
		}
	}
	for _, s := range b.Slices {
		s.RemainLength = b.Length - s.ActualLength
	}
}

// Allocation returns the GPUs granted to every primary job of the batch.
func (b *Batch) Allocation() types.JobAllocation {
	a := make(types.JobAllocation)
	for _, s := range b.Slices {
		for _, j := range s.Jobs {
			a[j.Name] = j.GpuNum
		}
	}
	return a
}

// Clone returns a deep copy of the batch.
func (b *Batch) Clone() *Batch {
	c := *b
	c.Slices = make([]*TimeSlice, len(b.Slices))
	for i, s := range b.Slices {
		c.Slices[i] = s.Clone()
	}
	return &c
}
