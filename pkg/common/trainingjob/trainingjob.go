package trainingjob

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

// ErrLookupMiss is returned when no training data exists for a job at a
// given number of GPUs.
var ErrLookupMiss = errors.New("training data not found")

// Record represents the measured training profile of a job at one GPU count.
type Record struct {
	// Number of epochs required to finish the training
	EpochNum int `json:"epochNum"`
	// Wall-clock seconds per epoch
	EpochTime float64 `json:"epochTime"`
}

// CompletionTime returns the training time of the whole record.
func (r Record) CompletionTime() float64 {
	return float64(r.EpochNum) * r.EpochTime
}

// Lookup is implemented by things that know the training profile of jobs.
// Implementations may block (e.g. on a database round trip) and must be safe
// for concurrent use.
type Lookup interface {
	Get(jobName string, gpuNum int) (Record, error)
}

// NewLookupMiss wraps ErrLookupMiss with the requested key.
func NewLookupMiss(jobName string, gpuNum int) error {
	return fmt.Errorf("%w: job %q with %d GPUs", ErrLookupMiss, jobName, gpuNum)
}

// Table is an in-memory Lookup. It must be fully built before being shared;
// concurrent Get calls are safe as long as no Set runs at the same time.
type Table struct {
	records map[string]map[int]Record
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{records: make(map[string]map[int]Record)}
}

// Set records the profile of a job at gpuNum GPUs.
func (t *Table) Set(jobName string, gpuNum int, r Record) {
	if _, ok := t.records[jobName]; !ok {
		t.records[jobName] = make(map[int]Record)
	}
	t.records[jobName][gpuNum] = r
}

// Get implements Lookup.
func (t *Table) Get(jobName string, gpuNum int) (Record, error) {
	r, ok := t.records[jobName][gpuNum]
	if !ok {
		return Record{}, NewLookupMiss(jobName, gpuNum)
	}
	return r, nil
}

// JobNames returns the sorted names of all jobs in the table.
func (t *Table) JobNames() []string {
	names := make([]string, 0, len(t.records))
	for name := range t.records {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MaxGpuNum returns the largest GPU count every job has a record for.
func (t *Table) MaxGpuNum() int {
	max := -1
	for _, byGpu := range t.records {
		n := 0
		for {
			if _, ok := byGpu[n+1]; !ok {
				break
			}
			n++
		}
		if max == -1 || n < max {
			max = n
		}
	}
	if max < 0 {
		return 0
	}
	return max
}

// Validate checks that every job has a record for every GPU count from 1 to
// maxGpu. All missing entries are reported at once.
func Validate(lookup Lookup, jobNames []string, maxGpu int) error {
	errs := []error{}
	for _, name := range jobNames {
		for g := 1; g <= maxGpu; g++ {
			if _, err := lookup.Get(name, g); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return utilerrors.NewAggregate(errs)
}

// Memo caches lookups for the lifetime of a single plan decode. It is not
// safe for concurrent use; every decode owns its own Memo.
type Memo struct {
	lookup  Lookup
	records map[memoKey]Record
}

type memoKey struct {
	job  string
	gpus int
}

// NewMemo creates a Memo in front of lookup.
func NewMemo(lookup Lookup) *Memo {
	return &Memo{lookup: lookup, records: make(map[memoKey]Record)}
}

// Get implements Lookup. Misses are not cached.
func (m *Memo) Get(jobName string, gpuNum int) (Record, error) {
	key := memoKey{job: jobName, gpus: gpuNum}
	if r, ok := m.records[key]; ok {
		return r, nil
	}
	r, err := m.lookup.Get(jobName, gpuNum)
	if err != nil {
		return Record{}, err
	}
	m.records[key] = r
	return r, nil
}

// SharedCache is a goroutine-safe cache in front of a latent Lookup, e.g. a
// database. Concurrent misses of the same key result in a single backend
// call.
type SharedCache struct {
	lookup  Lookup
	records sync.Map
	group   singleflight.Group
}

// NewSharedCache creates a SharedCache in front of lookup.
func NewSharedCache(lookup Lookup) *SharedCache {
	return &SharedCache{lookup: lookup}
}

// Get implements Lookup.
func (c *SharedCache) Get(jobName string, gpuNum int) (Record, error) {
	key := memoKey{job: jobName, gpus: gpuNum}
	if r, ok := c.records.Load(key); ok {
		return r.(Record), nil
	}
	v, err, _ := c.group.Do(fmt.Sprintf("%s/%d", jobName, gpuNum), func() (interface{}, error) {
		r, err := c.lookup.Get(jobName, gpuNum)
		if err != nil {
			return nil, err
		}
		c.records.Store(key, r)
		return r, nil
	})
	if err != nil {
		return Record{}, err
	}
	return v.(Record), nil
}
