package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/common/trainingjob"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type key struct {
	job  string
	gpus int
}

// fakePool keeps the training data table in memory.
type fakePool struct {
	records map[key]trainingjob.Record
	execs   []string
	closed  bool
}

func newFakePool() *fakePool {
	return &fakePool{records: make(map[key]trainingjob.Record)}
}

func (p *fakePool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	p.execs = append(p.execs, sql)
	if strings.HasPrefix(sql, "INSERT") {
		p.records[key{args[0].(string), args[1].(int)}] = trainingjob.Record{
			EpochNum:  args[2].(int),
			EpochTime: args[3].(float64),
		}
	}
	return pgconn.CommandTag{}, nil
}

func (p *fakePool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	rows := &fakeRows{}
	for k, r := range p.records {
		rows.values = append(rows.values, []any{k.job, k.gpus, r.EpochNum, r.EpochTime})
	}
	return rows, nil
}

func (p *fakePool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	r, ok := p.records[key{args[0].(string), args[1].(int)}]
	if !ok {
		return &fakeRow{err: pgx.ErrNoRows}
	}
	return &fakeRow{values: []any{r.EpochNum, r.EpochTime}}
}

func (p *fakePool) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	return &fakeBatchResults{pool: p, batch: b}
}

func (p *fakePool) Close() {
	p.closed = true
}

func assign(dest []any, values []any) error {
	if len(dest) != len(values) {
		return errors.New("column count mismatch")
	}
	for i, d := range dest {
		switch d := d.(type) {
		case *string:
			*d = values[i].(string)
		case *int:
			*d = values[i].(int)
		case *float64:
			*d = values[i].(float64)
		default:
			return errors.New("unsupported destination")
		}
	}
	return nil
}

type fakeRow struct {
	values []any
	err    error
}

func (r *fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(dest, r.values)
}

type fakeRows struct {
	values [][]any
	pos    int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos <= len(r.values)
}

func (r *fakeRows) Scan(dest ...any) error {
	return assign(dest, r.values[r.pos-1])
}

func (r *fakeRows) Values() ([]any, error) {
	return r.values[r.pos-1], nil
}

type fakeBatchResults struct {
	pool  *fakePool
	batch *pgx.Batch
	pos   int
}

func (b *fakeBatchResults) Exec() (pgconn.CommandTag, error) {
	q := b.batch.QueuedQueries[b.pos]
	b.pos++
	return b.pool.Exec(context.Background(), q.SQL, q.Arguments...)
}

func (b *fakeBatchResults) Query() (pgx.Rows, error) { return nil, errors.New("not supported") }
func (b *fakeBatchResults) QueryRow() pgx.Row        { return &fakeRow{err: errors.New("not supported")} }
func (b *fakeBatchResults) Close() error             { return nil }

func TestImportThenLoad(t *testing.T) {
	pool := newFakePool()
	s := NewWithPool(pool)
	spec := trainingjob.TableSpec{Jobs: []trainingjob.JobSpec{
		{Name: "alexnet", Epochs: 90, EpochTimes: []float64{25.245, 16.03}},
		{Name: "vgg16", Epochs: 74, EpochTimes: []float64{15.391}, EpochNums: []int{70}},
	}}

	require.NoError(t, s.Import(context.Background(), spec))
	assert.Contains(t, pool.execs[0], "CREATE TABLE IF NOT EXISTS training_times")
	assert.Len(t, pool.records, 3)

	r, err := s.Get("vgg16", 1)
	require.NoError(t, err)
	assert.Equal(t, trainingjob.Record{EpochNum: 70, EpochTime: 15.391}, r)
	_, err = s.Get("vgg16", 2)
	assert.True(t, errors.Is(err, trainingjob.ErrLookupMiss))

	table, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alexnet", "vgg16"}, table.JobNames())
	r, err = table.Get("alexnet", 2)
	require.NoError(t, err)
	assert.Equal(t, trainingjob.Record{EpochNum: 90, EpochTime: 16.03}, r)

	s.Close()
	assert.True(t, pool.closed)
}

func TestImportRejectsBadSpec(t *testing.T) {
	s := NewWithPool(newFakePool())
	err := s.Import(context.Background(), trainingjob.TableSpec{Jobs: []trainingjob.JobSpec{{Epochs: 1}}})
	assert.Error(t, err)
}

// hangingPool never answers a single-row query before its context ends.
type hangingPool struct {
	*fakePool
}

func (p hangingPool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	select {
	case <-ctx.Done():
		return &fakeRow{err: ctx.Err()}
	case <-time.After(3 * time.Second):
		return &fakeRow{err: errors.New("query was never canceled")}
	}
}

func TestGetTimesOut(t *testing.T) {
	s := NewWithPool(hangingPool{newFakePool()}).WithTimeout(50 * time.Millisecond)

	start := time.Now()
	_, err := s.Get("vgg16", 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, errors.Is(err, trainingjob.ErrLookupMiss))
	assert.Less(t, time.Since(start), time.Second)
}
