package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/1a2yd09/gpu-scheduling-algorithm/config"
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/allocator/allocator"
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/common/mongo"
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/common/postgres"
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/common/rabbitmq"
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/common/trainingjob"
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/common/types"
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/service/service"
	"github.com/streadway/amqp"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/klog/v2"
)

const shutdownTimeout = 5 * time.Second

// planRequest builds a request from the planning flags and the given jobs.
func planRequest(c *cli.Context, algorithm types.AlgorithmName, jobNames []string) allocator.PlanRequest {
	backfill := c.Bool("backfill")
	return allocator.Normalize(allocator.PlanRequest{
		Algorithm:      algorithm,
		JobNames:       jobNames,
		NumGpu:         c.Int("gpus"),
		PopulationSize: c.Int("population"),
		Generations:    c.Int("generations"),
		Backfill:       &backfill,
		EvolveShares:   c.Bool("shares"),
		Seed:           c.Int64("seed"),
	})
}

func Plan(c *cli.Context) error {
	src, err := openSource(c)
	if err != nil {
		return err
	}
	defer src.close()
	jobNames, err := src.jobNames(c)
	if err != nil {
		return err
	}

	ra := allocator.NewResourceAllocator(src.lookup, c.Int("gpus-per-node"))
	a, err := ra.Allocate(c.Context, planRequest(c, types.AlgorithmName(c.String("algorithm")), jobNames))
	if err != nil {
		return err
	}

	out := c.App.Writer
	if c.String("format") == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(a.Response())
	}
	if c.Bool("history") && a.Search != nil {
		if err := writeHistory(out, a); err != nil {
			return err
		}
	}
	return a.WriteReport(out)
}

func writeHistory(w io.Writer, a *allocator.Allocation) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "generation\tbest\tmean\tstddev\tinvalid")
	for _, g := range a.Search.History {
		fmt.Fprintf(tw, "%d\t%.3f\t%.3f\t%.3f\t%d\n", g.Index, g.Best, g.Mean, g.StdDev, g.Invalid)
	}
	return tw.Flush()
}

// Compare plans the same jobs with every algorithm, prints each report and
// then a summary. Algorithms that cannot plan the jobs are reported and
// skipped; it fails only when none could.
func Compare(c *cli.Context) error {
	src, err := openSource(c)
	if err != nil {
		return err
	}
	defer src.close()
	jobNames, err := src.jobNames(c)
	if err != nil {
		return err
	}

	out := c.App.Writer
	ra := allocator.NewResourceAllocator(src.lookup, c.Int("gpus-per-node"))
	planned := []*allocator.Allocation{}
	errs := []error{}
	for _, name := range types.AllAlgorithms {
		a, err := ra.Allocate(c.Context, planRequest(c, name, jobNames))
		if err != nil {
			fmt.Fprintf(out, "%s is skipped: %v\n", name, err)
			errs = append(errs, err)
			continue
		}
		if err := a.WriteReport(out); err != nil {
			return err
		}
		planned = append(planned, a)
	}
	if len(planned) == 0 {
		return fmt.Errorf("no algorithm could plan the jobs: %v", utilerrors.NewAggregate(errs))
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "algorithm\ttotal time\tminutes\tutilization\tbatches")
	for _, a := range planned {
		fmt.Fprintf(tw, "%s\t%.3f\t%.0f\t%.3f%%\t%d\n", a.Request.Algorithm, a.Plan.TotalTime, a.Plan.Minutes(),
			a.Plan.UtilizationRate, len(a.Plan.Batches))
	}
	return tw.Flush()
}

// Serve runs the plan service until SIGINT or SIGTERM.
func Serve(c *cli.Context) error {
	fmt.Fprintf(c.App.Writer, "%s (v%s) - Plan Service\n", config.Msg, config.Version)
	klog.InfoS(config.Msg, "version", config.Version)

	src, err := openSource(c)
	if err != nil {
		return err
	}
	defer src.close()

	var mqConn *amqp.Connection
	if url := c.String("amqp"); url != "" {
		mqConn, err = rabbitmq.ConnectRabbitMQ(url)
		if err != nil {
			return err
		}
		defer mqConn.Close()
	}

	ra := allocator.NewResourceAllocator(src.lookup, c.Int("gpus-per-node"))
	s := service.NewService(ra, mqConn)
	srv := &http.Server{Addr: ":" + c.String("port"), Handler: s.Router}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		klog.InfoS("Starting plan service", "addr", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if mqConn != nil {
		g.Go(func() error {
			if err := s.ConsumePlanRequests(ctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	err = g.Wait()
	klog.InfoS("Plan service shut down", "err", err)
	return err
}

// Submit posts a plan request to a running service and prints the answer.
func Submit(c *cli.Context) error {
	if c.Args().Len() == 0 {
		return errors.New("must specify job names")
	}
	req := planRequest(c, types.AlgorithmName(c.String("algorithm")), c.Args().Slice())
	if id := c.String("request-id"); id != "" {
		req.RequestID = id
	}
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}

	url := c.String("url")
	if c.String("format") == "text" {
		url += "?format=text"
	}
	resp, err := httpPost(url, data)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, string(resp))
	return nil
}

// ValidateTable checks that a training table covers every job from 1 to
// --gpus GPUs.
func ValidateTable(c *cli.Context) error {
	src, err := openSource(c)
	if err != nil {
		return err
	}
	defer src.close()
	jobNames, err := src.jobNames(c)
	if err != nil {
		return err
	}
	// an aggregate would be handled by the cli as an exit code
	if err := trainingjob.Validate(src.lookup, jobNames, c.Int("gpus")); err != nil {
		return fmt.Errorf("invalid training data: %v", err)
	}
	fmt.Fprintf(c.App.Writer, "%d jobs have training data for 1 to %d GPUs\n", len(jobNames), c.Int("gpus"))
	return nil
}

// ImportTable copies a table file into mongodb or postgres.
func ImportTable(c *cli.Context) error {
	file := c.String("table")
	if file == "" {
		return errors.New("must specify --table")
	}
	t, err := trainingjob.LoadTableFile(file)
	if err != nil {
		return err
	}
	spec := t.Spec()

	switch {
	case c.String("mongo") != "":
		sess, err := mongo.ConnectMongo(c.String("mongo"))
		if err != nil {
			return err
		}
		defer sess.Close()
		err = mongo.NewStore(sess).Import(spec)
		if err != nil {
			return err
		}
	case c.String("postgres") != "":
		store, err := postgres.New(c.Context, c.String("postgres"), int32(c.Int("pg-max-conns")))
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Import(c.Context, spec); err != nil {
			return err
		}
	default:
		return errors.New("must specify --mongo or --postgres")
	}
	fmt.Fprintf(c.App.Writer, "Imported %d jobs from %s\n", len(spec.Jobs), file)
	return nil
}
