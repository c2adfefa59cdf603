package plan

import (
	"fmt"
)

// SliceMode defines how the jobs of a time slice share its GPUs.
type SliceMode int

const (
	// Concurrent jobs run side by side; the slice lasts as long as its
	// slowest job.
	Concurrent SliceMode = iota
	// Packed jobs run back to back on the whole partition; the slice lasts
	// as long as all of them together.
	Packed
)

func (m SliceMode) String() string {
	switch m {
	case Concurrent:
		return "concurrent"
	case Packed:
		return "packed"
	default:
		return fmt.Sprintf("SliceMode(%d)", int(m))
	}
}

// TimeSlice represents a fixed-width GPU partition and the jobs running on it
// during one batch.
type TimeSlice struct {
	GpuNum int
	Mode   SliceMode
	Jobs   []*Job
	// Continuations of jobs from the next batch, executed after Jobs finish.
	Backfill []*Job

	ActualLength float64
	// Idle time until the longest slice of the batch finishes, set by
	// Batch.Arrange.
	RemainLength float64
}

// NewTimeSlice creates a slice of gpuNum GPUs holding jobs.
func NewTimeSlice(gpuNum int, mode SliceMode, jobs ...*Job) *TimeSlice {
	ts := &TimeSlice{
		GpuNum: gpuNum,
		Mode:   mode,
		Jobs:   append([]*Job{}, jobs...),
	}
	ts.RecomputeLength()
	return ts
}

// AddJob appends a job to the slice.
func (ts *TimeSlice) AddJob(j *Job) {
	ts.Jobs = append(ts.Jobs, j)
	ts.RecomputeLength()
}

// RemoveJob removes the first job with the given name.
func (ts *TimeSlice) RemoveJob(name string) error {
	for i, j := range ts.Jobs {
		if j.Name == name {
			ts.Jobs = append(ts.Jobs[:i], ts.Jobs[i+1:]...)
			ts.RecomputeLength()
			return nil
		}
	}
	return fmt.Errorf("%w: job %q not in slice", ErrInvalidArgument, name)
}

// AddBackfill appends a continuation job executed in the slack of the slice.
func (ts *TimeSlice) AddBackfill(j *Job) {
	ts.Backfill = append(ts.Backfill, j)
	ts.RecomputeLength()
}

func (ts *TimeSlice) removeLastBackfill() {
	if len(ts.Backfill) == 0 {
		return
	}
	ts.Backfill = ts.Backfill[:len(ts.Backfill)-1]
	ts.RecomputeLength()
}

// RecomputeLength derives ActualLength from the jobs of the slice.
func (ts *TimeSlice) RecomputeLength() {
	length := 0.0
	for _, j := range ts.Jobs {
		switch ts.Mode {
		case Packed:
			length += j.CompletionTime
		default:
			if j.CompletionTime > length {
				length = j.CompletionTime
			}
		}
	}
	for _, j := range ts.Backfill {
		length += j.CompletionTime
	}
	ts.ActualLength = length
}

// Tail returns the last primary job of the slice, or nil for an empty slice.
func (ts *TimeSlice) Tail() *Job {
	if len(ts.Jobs) == 0 {
		return nil
	}
	return ts.Jobs[len(ts.Jobs)-1]
}

// Clone returns a deep copy of the slice.
func (ts *TimeSlice) Clone() *TimeSlice {
	c := *ts
	c.Jobs = make([]*Job, len(ts.Jobs))
	for i, j := range ts.Jobs {
		c.Jobs[i] = j.Clone()
	}
	c.Backfill = nil
	for _, j := range ts.Backfill {
		c.Backfill = append(c.Backfill, j.Clone())
	}
	return &c
}
