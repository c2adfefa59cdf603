package allocator

import (
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/common/types"
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/plan"
)

// PlanRequest asks for the plan of a set of training jobs on a GPU pool.
// Zero values fall back to the defaults of the config package.
type PlanRequest struct {
	RequestID string              `json:"requestId,omitempty"`
	Algorithm types.AlgorithmName `json:"algorithm,omitempty"`
	JobNames  []string            `json:"jobNames"`
	NumGpu    int                 `json:"numGpu,omitempty"`

	// Options of the genetic search
	PopulationSize int   `json:"populationSize,omitempty"`
	Generations    int   `json:"generations,omitempty"`
	Backfill       *bool `json:"backfill,omitempty"`
	EvolveShares   bool  `json:"evolveShares,omitempty"`
	Seed           int64 `json:"seed,omitempty"`
}

// PlanResponse is the rendering of a plan sent back to clients.
type PlanResponse struct {
	RequestID       string      `json:"requestId"`
	Algorithm       string      `json:"algorithm"`
	NumGpu          int         `json:"numGpu"`
	TotalTime       float64     `json:"totalTime"`
	Minutes         float64     `json:"minutes"`
	UtilizationRate float64     `json:"utilizationRate"`
	Batches         []BatchView `json:"batches"`

	// Set by the genetic search only
	InitialTotalTime float64 `json:"initialTotalTime,omitempty"`
	Generations      int     `json:"generations,omitempty"`
}

type BatchView struct {
	Length float64     `json:"length"`
	Slices []SliceView `json:"slices"`
}

type SliceView struct {
	GpuNum   int       `json:"gpuNum"`
	Mode     string    `json:"mode"`
	Length   float64   `json:"length"`
	Remain   float64   `json:"remain"`
	Devices  []int     `json:"devices,omitempty"`
	Jobs     []JobView `json:"jobs"`
	Backfill []JobView `json:"backfill,omitempty"`
}

type JobView struct {
	Name           string  `json:"name"`
	Order          int     `json:"order"`
	GpuNum         int     `json:"gpuNum"`
	EpochNum       int     `json:"epochNum"`
	EpochTime      float64 `json:"epochTime"`
	CompletionTime float64 `json:"completionTime"`
}

func jobViews(jobs []*plan.Job) []JobView {
	if len(jobs) == 0 {
		return nil
	}
	views := make([]JobView, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, JobView{
			Name:           j.Name,
			Order:          j.Order,
			GpuNum:         j.GpuNum,
			EpochNum:       j.EpochNum,
			EpochTime:      j.EpochTime,
			CompletionTime: j.CompletionTime,
		})
	}
	return views
}
