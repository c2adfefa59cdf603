package algorithm

import (
	"context"
	"errors"
	"testing"

	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/common/trainingjob"
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/common/types"
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/genetic"
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func epochTable(epochs int, times map[string][]float64) *trainingjob.Table {
	t := trainingjob.NewTable()
	for name, ts := range times {
		for i, et := range ts {
			t.Set(name, i+1, trainingjob.Record{EpochNum: epochs, EpochTime: et})
		}
	}
	return t
}

func linearTable(maxGpu int, base map[string]float64) *trainingjob.Table {
	times := map[string][]float64{}
	for name, b := range base {
		for g := 1; g <= maxGpu; g++ {
			times[name] = append(times[name], b/float64(g))
		}
	}
	return epochTable(10, times)
}

var smallGenetic = genetic.Config{PopulationSize: 6, Generations: 5, Backfill: true, Workers: 2, Seed: 1}

func TestSingleJobGetsWholePool(t *testing.T) {
	table := trainingjob.SampleTable()
	totals := []float64{}
	for _, name := range types.AllAlgorithms {
		a, err := NewAlgorithmFactory(name, 4, table, smallGenetic)
		require.NoError(t, err)
		assert.Equal(t, string(name), a.GetName())

		p, err := a.Schedule([]string{"resnet50"})
		require.NoError(t, err, "algorithm %s", name)
		require.Len(t, p.Batches, 1)
		require.Len(t, p.Batches[0].Slices, 1)
		assert.Equal(t, 4, p.Batches[0].Slices[0].Jobs[0].GpuNum)
		totals = append(totals, p.TotalTime)
	}
	for _, total := range totals[1:] {
		assert.Equal(t, totals[0], total)
	}
}

func TestSequentialKeepsListedOrder(t *testing.T) {
	table := linearTable(4, map[string]float64{"a": 40, "b": 80, "c": 20})
	p, err := NewSequential(4, table).Schedule([]string{"c", "a", "b"})
	require.NoError(t, err)

	require.Len(t, p.Batches, 3)
	for i, name := range []string{"c", "a", "b"} {
		assert.Equal(t, name, p.Batches[i].Slices[0].Jobs[0].Name)
		assert.Equal(t, 4, p.Batches[i].Slices[0].GpuNum)
	}
	assert.Equal(t, 350.0, p.TotalTime)
	assert.InDelta(t, 100.0, p.UtilizationRate, 1e-9)
}

func TestParallelGrantsLongestJob(t *testing.T) {
	table := linearTable(8, map[string]float64{"a": 100, "b": 60, "c": 30})
	p, err := NewParallel(8, table).Schedule([]string{"a", "b", "c"})
	require.NoError(t, err)

	require.Len(t, p.Batches, 1)
	alloc := p.Batches[0].Allocation()
	assert.Equal(t, 8, alloc.Total())
	assert.Equal(t, types.JobAllocation{"a": 4, "b": 3, "c": 1}, alloc)
}

func TestParallelPacksWhenJobsOutnumberGpus(t *testing.T) {
	table := epochTable(1, map[string][]float64{
		"j1": {100}, "j2": {80}, "j3": {60}, "j4": {50}, "j5": {30},
	})
	names := []string{"j5", "j3", "j1", "j4", "j2"}
	p, err := NewParallel(3, table).Schedule(names)
	require.NoError(t, err)

	require.Len(t, p.Batches, 1)
	slices := p.Batches[0].Slices
	require.Len(t, slices, 3)

	content := [][]string{}
	placed := map[string]int{}
	for _, s := range slices {
		assert.Equal(t, 1, s.GpuNum)
		assert.Equal(t, plan.Packed, s.Mode)
		names := []string{}
		for _, j := range s.Jobs {
			names = append(names, j.Name)
			placed[j.Name]++
		}
		content = append(content, names)
	}
	assert.Equal(t, [][]string{{"j1"}, {"j2", "j5"}, {"j3", "j4"}}, content)
	assert.Len(t, placed, 5)
	for _, n := range placed {
		assert.Equal(t, 1, n)
	}
	assert.Equal(t, 110.0, p.TotalTime)
	assert.Equal(t, 10.0, slices[0].RemainLength)
}

func TestOptimusDividesByHeldGpus(t *testing.T) {
	table := epochTable(1, map[string][]float64{
		"x": {100, 60, 48, 40},
		"y": {50, 43, 40, 38},
	})
	p, err := NewOptimus(4, table).Schedule([]string{"x", "y"})
	require.NoError(t, err)

	assert.Equal(t, types.JobAllocation{"x": 2, "y": 2}, p.Batches[0].Allocation())
	assert.Equal(t, 60.0, p.TotalTime)

	_, err = NewOptimus(2, table).Schedule([]string{"x", "y"})
	assert.True(t, errors.Is(err, ErrNotApplicable))
}

func TestFfDLOptimizerMaximisesSpeedup(t *testing.T) {
	table := epochTable(1, map[string][]float64{
		"x": {100, 60, 48, 40},
		"y": {50, 43, 40, 38},
	})
	p, err := NewFfDLOptimizer(4, table).Schedule([]string{"x", "y"})
	require.NoError(t, err)
	assert.Equal(t, types.JobAllocation{"x": 3, "y": 1}, p.Batches[0].Allocation())

	_, err = NewFfDLOptimizer(1, table).Schedule([]string{"x", "y"})
	assert.True(t, errors.Is(err, ErrNotApplicable))
}

func TestGeneticSearch(t *testing.T) {
	table := trainingjob.SampleTable()
	names := []string{"alexnet", "vgg16", "slowfast", "i3d", "tsn"}
	a := NewGenetic(4, table, smallGenetic)

	res, err := a.Search(context.Background(), names)
	require.NoError(t, err)
	require.NoError(t, validatePlan(4, res.Best.Plan, names))
	assert.LessOrEqual(t, res.Best.Fitness, res.InitialBest.Fitness)

	p, err := a.Schedule(names)
	require.NoError(t, err)
	assert.Equal(t, res.Best.Fitness, p.TotalTime)
}

func TestDegenerateInput(t *testing.T) {
	table := trainingjob.SampleTable()
	for _, name := range types.AllAlgorithms {
		a, err := NewAlgorithmFactory(name, 4, table, smallGenetic)
		require.NoError(t, err)

		_, err = a.Schedule(nil)
		assert.True(t, errors.Is(err, ErrDegenerateInput), "algorithm %s", name)
		_, err = a.Schedule([]string{"alexnet", "alexnet"})
		assert.True(t, errors.Is(err, ErrDegenerateInput), "algorithm %s", name)
	}

	a, err := NewAlgorithmFactory(types.AlgorithmSequential, 0, table, smallGenetic)
	require.NoError(t, err)
	_, err = a.Schedule([]string{"alexnet"})
	assert.True(t, errors.Is(err, ErrDegenerateInput))

	_, err = NewAlgorithmFactory("Tetris", 4, table, smallGenetic)
	assert.True(t, errors.Is(err, ErrUnknownAlgorithm))
}

func TestLookupMissIsFatalForHeuristics(t *testing.T) {
	table := epochTable(1, map[string][]float64{"x": {10, 6}, "y": {10}})
	for _, a := range []SchedulerAlgorithm{
		NewSequential(2, table),
		NewOptimus(3, table),
		NewFfDLOptimizer(3, table),
	} {
		_, err := a.Schedule([]string{"x", "y"})
		assert.True(t, errors.Is(err, trainingjob.ErrLookupMiss), "algorithm %s", a.GetName())
	}

	_, err := NewParallel(2, table).Schedule([]string{"x", "unknown"})
	assert.True(t, errors.Is(err, trainingjob.ErrLookupMiss))
}

func TestValidatePlanDetectsMissingJobs(t *testing.T) {
	table := linearTable(2, map[string]float64{"a": 10, "b": 10})
	p, err := NewSequential(2, table).Schedule([]string{"a", "b"})
	require.NoError(t, err)

	assert.NoError(t, validatePlan(2, p, []string{"a", "b"}))
	assert.True(t, errors.Is(validatePlan(2, p, []string{"a"}), plan.ErrInvalidArgument))
	assert.True(t, errors.Is(validatePlan(4, p, []string{"a", "b"}), plan.ErrInvalidArgument))
}
