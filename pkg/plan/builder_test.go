package plan

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/common/trainingjob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// linearTable profiles jobs whose epoch time shrinks linearly with the GPUs.
func linearTable(maxGpu int, epochs int, base map[string]float64) *trainingjob.Table {
	t := trainingjob.NewTable()
	for name, b := range base {
		for g := 1; g <= maxGpu; g++ {
			t.Set(name, g, trainingjob.Record{EpochNum: epochs, EpochTime: b / float64(g)})
		}
	}
	return t
}

func assertWellFormed(t *testing.T, p *Plan, jobCount int) {
	t.Helper()
	require.True(t, p.Valid())
	total := 0.0
	seen := map[string]bool{}
	for _, b := range p.Batches {
		assert.Equal(t, p.MaxGpuNum, b.GpuNum())
		longest := 0.0
		for _, s := range b.Slices {
			assert.GreaterOrEqual(t, s.RemainLength, -epsilon)
			if s.ActualLength > longest {
				longest = s.ActualLength
			}
			for _, j := range append(append([]*Job{}, s.Jobs...), s.Backfill...) {
				assert.GreaterOrEqual(t, j.EpochNum, 0)
				assertConsistent(t, j)
			}
			for _, j := range s.Jobs {
				assert.False(t, seen[j.Name], "job %s placed twice", j.Name)
				seen[j.Name] = true
			}
		}
		assert.InDelta(t, longest, b.Length, epsilon)
		total += b.Length
	}
	assert.Len(t, seen, jobCount)
	assert.InDelta(t, total, p.TotalTime, 1e-6)
	assert.GreaterOrEqual(t, p.UtilizationRate, 0.0)
	assert.LessOrEqual(t, p.UtilizationRate, 100.0)
}

func TestAllocateGreedyFeedsLongestJob(t *testing.T) {
	table := linearTable(8, 10, map[string]float64{"a": 100, "b": 60, "c": 30})
	jobs := []*Job{}
	for _, name := range []string{"a", "b", "c"} {
		j, err := NewJob(name, 1, 1, table)
		require.NoError(t, err)
		jobs = append(jobs, j)
	}

	require.NoError(t, AllocateGreedy(jobs, 8, table))
	assert.Equal(t, 4, jobs[0].GpuNum)
	assert.Equal(t, 3, jobs[1].GpuNum)
	assert.Equal(t, 1, jobs[2].GpuNum)
	assert.InDelta(t, 250.0, jobs[0].CompletionTime, 1e-9)

	err := AllocateGreedy(jobs, 2, table)
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestBuildFromOrders(t *testing.T) {
	table := linearTable(8, 10, map[string]float64{"a": 100, "b": 60, "c": 30})
	names := []string{"c", "a", "b"}

	p, err := BuildFromOrders(names, []int{1, 1, 1}, 8, table, Options{})
	require.NoError(t, err)
	assertWellFormed(t, p, 3)
	require.Len(t, p.Batches, 1)
	assert.Equal(t, map[string]int{"a": 4, "b": 3, "c": 1}, map[string]int(p.Batches[0].Allocation()))
	assert.Equal(t, 300.0, p.TotalTime)

	p, err = BuildFromOrders(names, []int{3, 1, 2}, 8, table, Options{})
	require.NoError(t, err)
	assertWellFormed(t, p, 3)
	require.Len(t, p.Batches, 3)
	assert.Equal(t, "a", p.Batches[0].Slices[0].Jobs[0].Name)
	assert.Equal(t, "b", p.Batches[1].Slices[0].Jobs[0].Name)
	assert.Equal(t, "c", p.Batches[2].Slices[0].Jobs[0].Name)
	assert.InDelta(t, 237.5, p.TotalTime, 1e-9)
	assert.InDelta(t, 100.0, p.UtilizationRate, 1e-9)
}

func TestBuildFromOrdersSplitsWideWaves(t *testing.T) {
	base := map[string]float64{}
	names := []string{}
	for i := 0; i < 5; i++ {
		name := fmt.Sprintf("j%d", i)
		base[name] = float64(10 * (i + 1))
		names = append(names, name)
	}
	table := linearTable(2, 1, base)

	p, err := BuildFromOrders(names, []int{1, 1, 1, 1, 1}, 2, table, Options{})
	require.NoError(t, err)
	assertWellFormed(t, p, 5)
	require.Len(t, p.Batches, 3)
	assert.Len(t, p.Batches[0].Slices, 2)
	assert.Len(t, p.Batches[1].Slices, 2)
	require.Len(t, p.Batches[2].Slices, 1)
	assert.Equal(t, 2, p.Batches[2].Slices[0].GpuNum)
	assert.Equal(t, "j0", p.Batches[2].Slices[0].Jobs[0].Name)
}

func TestBuildRejectsBadInput(t *testing.T) {
	table := linearTable(2, 1, map[string]float64{"a": 10})

	_, err := BuildFromOrders([]string{"a"}, []int{1, 2}, 2, table, Options{})
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	_, err = BuildFromOrders([]string{"a"}, []int{1}, 0, table, Options{})
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	_, err = BuildFromOrders([]string{"a", "zz"}, []int{1, 1}, 2, table, Options{})
	assert.True(t, errors.Is(err, trainingjob.ErrLookupMiss))

	_, err = BuildFromShares([]string{"a"}, []int{1}, nil, 2, table, Options{})
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestBuildFromShares(t *testing.T) {
	table := linearTable(6, 10, map[string]float64{"x": 20, "y": 20, "z": 20})

	p, err := BuildFromShares([]string{"x", "y"}, []int{1, 1}, []int{1, 3}, 6, table, Options{})
	require.NoError(t, err)
	assertWellFormed(t, p, 2)
	assert.Equal(t, map[string]int{"x": 2, "y": 4}, map[string]int(p.Batches[0].Allocation()))

	p, err = BuildFromShares([]string{"x", "y", "z"}, []int{1, 1, 1}, []int{1, 1, 1}, 5, table, Options{})
	require.NoError(t, err)
	assertWellFormed(t, p, 3)
	assert.Equal(t, map[string]int{"x": 2, "y": 2, "z": 1}, map[string]int(p.Batches[0].Allocation()))

	p, err = BuildFromShares([]string{"x", "y"}, []int{1, 2}, []int{0, 5}, 5, table, Options{})
	require.NoError(t, err)
	assertWellFormed(t, p, 2)
	assert.Len(t, p.Batches, 2)
}

func TestRandomAssignmentsOnSampleTable(t *testing.T) {
	table := trainingjob.SampleTable()
	names := table.JobNames()
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 50; round++ {
		orders := make([]int, len(names))
		for i := range orders {
			orders[i] = rng.Intn(len(names)) + 1
		}
		gpus := rng.Intn(8) + 1

		plain, err := BuildFromOrders(names, orders, gpus, table, Options{})
		require.NoError(t, err)
		assertWellFormed(t, plain, len(names))

		filled, err := BuildFromOrders(names, orders, gpus, table, Options{Backfill: true})
		require.NoError(t, err)
		assertWellFormed(t, filled, len(names))

		assert.LessOrEqual(t, filled.TotalTime, plain.TotalTime+epsilon)
		assert.GreaterOrEqual(t, filled.UtilizationRate, plain.UtilizationRate-epsilon)

		for _, j := range filled.Jobs() {
			if j.Continuation == nil {
				continue
			}
			r, err := table.Get(j.Name, j.GpuNum)
			require.NoError(t, err)
			assert.Equal(t, r.EpochNum, j.EpochNum+j.Continuation.EpochNum)
		}

		total, rate := filled.TotalTime, filled.UtilizationRate
		filled.Arrange()
		assert.Equal(t, total, filled.TotalTime)
		assert.Equal(t, rate, filled.UtilizationRate)
	}
}
