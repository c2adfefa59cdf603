package trainingjob

import (
	"fmt"
	"io"
	"os"

	"k8s.io/apimachinery/pkg/util/yaml"
)

// decoder buffer size used to sniff YAML or JSON
const decodeBufferSize = 4096

// TableSpec is the on-disk representation of a training table.
//
//	jobs:
//	- name: alexnet
//	  epochs: 90
//	  epochTimes: [25.245, 16.03, 14.637, 9.074]
//
// epochTimes[i] is the epoch time with i+1 GPUs. epochNums optionally
// overrides the epoch count per GPU count with the same indexing.
type TableSpec struct {
	Jobs []JobSpec `json:"jobs"`
}

// JobSpec describes the training profile of one job.
type JobSpec struct {
	Name       string    `json:"name"`
	Epochs     int       `json:"epochs"`
	EpochTimes []float64 `json:"epochTimes"`
	EpochNums  []int     `json:"epochNums,omitempty"`
}

// LoadTable decodes a YAML or JSON table spec from r.
func LoadTable(r io.Reader) (*Table, error) {
	spec := TableSpec{}
	if err := yaml.NewYAMLOrJSONDecoder(r, decodeBufferSize).Decode(&spec); err != nil {
		return nil, err
	}
	return NewTableFromSpec(spec)
}

// LoadTableFile decodes the table spec stored at path.
func LoadTableFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadTable(f)
}

// NewTableFromSpec builds a table from its spec.
func NewTableFromSpec(spec TableSpec) (*Table, error) {
	t := NewTable()
	for _, job := range spec.Jobs {
		if job.Name == "" {
			return nil, fmt.Errorf("job without name in training table")
		}
		if job.EpochNums != nil && len(job.EpochNums) != len(job.EpochTimes) {
			return nil, fmt.Errorf("job %q: %d epoch counts for %d epoch times", job.Name,
				len(job.EpochNums), len(job.EpochTimes))
		}
		for i, epochTime := range job.EpochTimes {
			epochs := job.Epochs
			if job.EpochNums != nil {
				epochs = job.EpochNums[i]
			}
			if epochs < 0 || epochTime < 0 {
				return nil, fmt.Errorf("job %q: negative profile at %d GPUs", job.Name, i+1)
			}
			t.Set(job.Name, i+1, Record{EpochNum: epochs, EpochTime: epochTime})
		}
	}
	return t, nil
}

// Spec converts the table back into its on-disk representation, keeping the
// GPU counts from 1 up to the first gap.
func (t *Table) Spec() TableSpec {
	spec := TableSpec{}
	for _, name := range t.JobNames() {
		job := JobSpec{Name: name}
		byGpu := t.records[name]
		for g := 1; ; g++ {
			r, ok := byGpu[g]
			if !ok {
				break
			}
			job.EpochTimes = append(job.EpochTimes, r.EpochTime)
			job.EpochNums = append(job.EpochNums, r.EpochNum)
		}
		if len(job.EpochNums) > 0 {
			job.Epochs = job.EpochNums[0]
		}
		spec.Jobs = append(spec.Jobs, job)
	}
	return spec
}
