package plan

import (
	"errors"
	"fmt"

	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/common/trainingjob"
)

// ErrInvalidArgument reports a broken invariant of the plan model. It is
// always a logic error of the caller; values are never clamped instead.
var ErrInvalidArgument = errors.New("invalid argument")

// Job represents a single training job placed in a plan.
type Job struct {
	Name string
	// Wave tag, jobs sharing an order are meant to start together.
	Order  int
	GpuNum int
	// Remaining epochs, never increases once epochs were executed.
	EpochNum int
	// Seconds per epoch at GpuNum GPUs
	EpochTime float64
	// Always EpochNum * EpochTime after any setter returns
	CompletionTime float64

	// Continuation is a copy of the epochs of this job that are executed
	// early in the slack of the previous batch. A job holds at most one.
	Continuation *Job

	// progressed is set once epochs were executed (reduced), after which GPU
	// changes only refresh the epoch time.
	progressed bool
}

// NewJob creates a fresh job with gpuNum GPUs, taking both the epoch count and
// the epoch time from lookup.
func NewJob(name string, order int, gpuNum int, lookup trainingjob.Lookup) (*Job, error) {
	j := &Job{
		Name:  name,
		Order: order,
	}
	if err := j.SetGpuAllocation(gpuNum, lookup); err != nil {
		return nil, err
	}
	return j, nil
}

// RecomputeCompletionTime derives the completion time from the remaining
// epochs and the epoch time.
func (j *Job) RecomputeCompletionTime() {
	j.CompletionTime = float64(j.EpochNum) * j.EpochTime
}

// ReduceEpochs marks n epochs as executed elsewhere.
func (j *Job) ReduceEpochs(n int) error {
	if n < 0 || n > j.EpochNum {
		return fmt.Errorf("%w: reducing %d epochs of job %q with %d remaining", ErrInvalidArgument,
			n, j.Name, j.EpochNum)
	}
	j.EpochNum -= n
	if n > 0 {
		j.progressed = true
	}
	j.RecomputeCompletionTime()
	return nil
}

// SetGpuAllocation grants gpuNum GPUs to the job and refreshes its epoch time.
// A fresh job also takes its epoch count from lookup; a job whose epochs were
// already reduced keeps its remaining epochs.
func (j *Job) SetGpuAllocation(gpuNum int, lookup trainingjob.Lookup) error {
	if gpuNum <= 0 {
		return fmt.Errorf("%w: granting %d GPUs to job %q", ErrInvalidArgument, gpuNum, j.Name)
	}
	r, err := lookup.Get(j.Name, gpuNum)
	if err != nil {
		return err
	}
	j.GpuNum = gpuNum
	j.EpochTime = r.EpochTime
	if !j.progressed {
		j.EpochNum = r.EpochNum
	}
	j.RecomputeCompletionTime()
	return nil
}

// InProgress tells whether some epochs of the job were executed elsewhere.
func (j *Job) InProgress() bool {
	return j.progressed
}

// Clone returns a deep copy of the job.
func (j *Job) Clone() *Job {
	c := *j
	if j.Continuation != nil {
		c.Continuation = j.Continuation.Clone()
	}
	return &c
}

func (j *Job) String() string {
	return fmt.Sprintf("Job(name=%s, order=%d, gpu_num=%d, epoch_num=%d, epoch_time=%.3f, completion_time=%.3f)",
		j.Name, j.Order, j.GpuNum, j.EpochNum, j.EpochTime, j.CompletionTime)
}
