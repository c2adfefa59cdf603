package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backfillFixture(cOneGpuEpochTime float64) ([]string, []int, *Plan, *Plan, error) {
	table := profileTable(
		map[string]int{"a": 10, "b": 4, "c": 10},
		map[string][]float64{
			"a": {10, 6},
			"b": {10, 6},
			"c": {cOneGpuEpochTime, 10},
		})
	names := []string{"a", "b", "c"}
	orders := []int{1, 1, 2}
	plain, err := BuildFromOrders(names, orders, 2, table, Options{})
	if err != nil {
		return nil, nil, nil, nil, err
	}
	filled, err := BuildFromOrders(names, orders, 2, table, Options{Backfill: true})
	return names, orders, plain, filled, err
}

func TestBackfillFillsSlack(t *testing.T) {
	_, _, plain, filled, err := backfillFixture(15)
	require.NoError(t, err)

	assert.Equal(t, 200.0, plain.TotalTime)
	assert.InDelta(t, 85.0, plain.UtilizationRate, 1e-9)

	assert.Equal(t, 160.0, filled.TotalTime)
	assert.InDelta(t, 100.0, filled.UtilizationRate, 1e-9)

	slack := filled.Batches[0].Slices[1]
	assert.Equal(t, "b", slack.Jobs[0].Name)
	require.Len(t, slack.Backfill, 1)
	cont := slack.Backfill[0]
	assert.Equal(t, "c", cont.Name)
	assert.Equal(t, 1, cont.GpuNum)
	assert.Equal(t, 4, cont.EpochNum)
	assert.Equal(t, 60.0, cont.CompletionTime)
	assert.InDelta(t, 0.0, slack.RemainLength, epsilon)

	c := filled.Batches[1].Slices[0].Jobs[0]
	assert.Equal(t, 6, c.EpochNum)
	assert.Equal(t, 60.0, c.CompletionTime)
	assert.True(t, c.InProgress())
	require.NotNil(t, c.Continuation)
	assert.Equal(t, 4, c.Continuation.EpochNum)
}

func TestBackfillSkipsWhenNoEpochFits(t *testing.T) {
	_, _, plain, filled, err := backfillFixture(70)
	require.NoError(t, err)

	assert.Equal(t, plain.TotalTime, filled.TotalTime)
	assert.Equal(t, plain.UtilizationRate, filled.UtilizationRate)
	assert.Empty(t, filled.Batches[0].Slices[1].Backfill)
	assert.Nil(t, filled.Batches[1].Slices[0].Jobs[0].Continuation)
}

func TestBackfillCapsAtRemainingEpochs(t *testing.T) {
	table := profileTable(
		map[string]int{"a": 10, "b": 1, "c": 2},
		map[string][]float64{
			"a": {10, 6},
			"b": {10, 6},
			"c": {5, 4},
		})
	p, err := BuildFromOrders([]string{"a", "b", "c"}, []int{1, 1, 2}, 2, table, Options{Backfill: true})
	require.NoError(t, err)

	slack := p.Batches[0].Slices[1]
	require.Len(t, slack.Backfill, 1)
	assert.Equal(t, 2, slack.Backfill[0].EpochNum)
	assert.Equal(t, 0, p.Batches[1].Slices[0].Jobs[0].EpochNum)
	assert.Equal(t, 100.0, p.TotalTime)
}

func TestBackfillIgnoresInvalidPlan(t *testing.T) {
	p := InvalidPlan(2, assert.AnError)
	require.NoError(t, ApplyBackfill(p, profileTable(nil, nil)))
	assert.Empty(t, p.Batches)
}
