package cmd

import (
	"errors"
	"fmt"

	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/common/mongo"
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/common/postgres"
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/common/trainingjob"
	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"
)

var errNoSource = errors.New("at most one of --table, --sample, --mongo and --postgres may be set")

// source is an opened training-data lookup. table is set when the whole
// data set lives in memory.
type source struct {
	lookup trainingjob.Lookup
	table  *trainingjob.Table
	close  func()
}

// openSource opens the lookup selected by the flags. Without any flag the
// built-in sample table is used. Database backends are read once into memory
// unless --lazy is set, in which case records are fetched on first use.
func openSource(c *cli.Context) (*source, error) {
	set := 0
	for _, name := range []string{"table", "sample", "mongo", "postgres"} {
		if c.IsSet(name) {
			set++
		}
	}
	if set > 1 {
		return nil, errNoSource
	}

	switch {
	case c.String("table") != "":
		t, err := trainingjob.LoadTableFile(c.String("table"))
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", c.String("table"), err)
		}
		klog.V(4).InfoS("Loaded training table", "file", c.String("table"), "jobs", len(t.JobNames()))
		return tableSource(t), nil

	case c.String("mongo") != "":
		sess, err := mongo.ConnectMongo(c.String("mongo"))
		if err != nil {
			return nil, err
		}
		store := mongo.NewStore(sess)
		if c.Bool("lazy") {
			return &source{lookup: trainingjob.NewSharedCache(store), close: sess.Close}, nil
		}
		defer sess.Close()
		t, err := store.Load()
		if err != nil {
			return nil, err
		}
		return tableSource(t), nil

	case c.String("postgres") != "":
		store, err := postgres.New(c.Context, c.String("postgres"), int32(c.Int("pg-max-conns")))
		if err != nil {
			return nil, err
		}
		if c.Bool("lazy") {
			return &source{lookup: trainingjob.NewSharedCache(store), close: store.Close}, nil
		}
		defer store.Close()
		t, err := store.Load(c.Context)
		if err != nil {
			return nil, err
		}
		return tableSource(t), nil

	default:
		return tableSource(trainingjob.SampleTable()), nil
	}
}

func tableSource(t *trainingjob.Table) *source {
	return &source{lookup: t, table: t, close: func() {}}
}

// jobNames returns the job names given as arguments, or every job of an
// in-memory table when there are none.
func (s *source) jobNames(c *cli.Context) ([]string, error) {
	if c.Args().Len() > 0 {
		return c.Args().Slice(), nil
	}
	if s.table == nil {
		return nil, errors.New("must specify job names when training data is read lazily")
	}
	return s.table.JobNames(), nil
}
