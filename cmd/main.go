package main

import (
	"os"
	"sort"

	"github.com/1a2yd09/gpu-scheduling-algorithm/cmd/cmd"
	"github.com/1a2yd09/gpu-scheduling-algorithm/config"
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/common/logger"
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/common/types"
	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"
)

func sourceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "table",
			Aliases: []string{"t"},
			Usage:   "read training data from the YAML or JSON `FILE`",
			EnvVars: []string{"GSA_TABLE"},
		},
		&cli.BoolFlag{
			Name:  "sample",
			Usage: "use the built-in sample training data (default without other source)",
		},
		&cli.StringFlag{
			Name:    "mongo",
			Usage:   "read training data from mongodb at `URI`",
			EnvVars: []string{"GSA_MONGO"},
		},
		&cli.StringFlag{
			Name:    "postgres",
			Usage:   "read training data from postgres at `DSN`",
			EnvVars: []string{"GSA_POSTGRES"},
		},
		&cli.IntFlag{
			Name:  "pg-max-conns",
			Usage: "maximum number of postgres connections",
			Value: 4,
		},
		&cli.BoolFlag{
			Name:  "lazy",
			Usage: "query the database on first use instead of loading it once",
		},
	}
}

func planFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "algorithm",
			Aliases: []string{"a"},
			Usage:   "scheduling `ALGORITHM`: Sequential, Parallel, Optimus, FfDLOptimizer or Genetic",
			Value:   string(types.AlgorithmGenetic),
		},
		&cli.IntFlag{
			Name:    "gpus",
			Aliases: []string{"g"},
			Usage:   "number of GPUs of the pool",
			Value:   config.DefaultNumGpu,
		},
		&cli.IntFlag{
			Name:  "gpus-per-node",
			Usage: "GPUs of each node when binding devices, 0 for a single node",
		},
		&cli.IntFlag{
			Name:  "population",
			Usage: "population size of the genetic search",
			Value: config.DefaultPopulationSize,
		},
		&cli.IntFlag{
			Name:  "generations",
			Usage: "number of generations of the genetic search",
			Value: config.DefaultGenerations,
		},
		&cli.BoolFlag{
			Name:  "backfill",
			Usage: "run epochs of the next batch in the slack of the current one",
			Value: true,
		},
		&cli.BoolFlag{
			Name:  "shares",
			Usage: "let the genetic search evolve the GPU share of every job",
		},
		&cli.Int64Flag{
			Name:  "seed",
			Usage: "seed of the genetic search",
			Value: 1,
		},
	}
}

func formatFlag(value string) cli.Flag {
	return &cli.StringFlag{
		Name:  "format",
		Usage: "output `FORMAT`: text or json",
		Value: value,
	}
}

func main() {
	app := cli.NewApp()
	app.Name = config.Name
	app.Version = config.Version
	app.Usage = "GPU training job plan engine"
	app.Description = "Plan the execution of training jobs on a GPU pool"
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "log-dir",
			Usage:   "write logs to a file under `DIR` as well as stderr",
			EnvVars: []string{"GSA_LOG_DIR"},
		},
		&cli.StringFlag{
			Name:  "verbosity",
			Usage: "klog verbosity `LEVEL`",
			Value: logger.V,
		},
	}
	app.Before = func(c *cli.Context) error {
		logger.InitLogger(c.String("log-dir"), c.String("verbosity"))
		return nil
	}
	app.After = func(c *cli.Context) error {
		logger.Flush()
		return nil
	}
	app.Commands = []*cli.Command{
		{
			Name:      "plan",
			Usage:     "Plan training jobs with one algorithm",
			ArgsUsage: "[JOB...]",
			Action:    cmd.Plan,
			Flags: append(append(sourceFlags(), planFlags()...), formatFlag("text"),
				&cli.BoolFlag{
					Name:  "history",
					Usage: "print the statistics of every generation of the genetic search",
				}),
		},
		{
			Name:      "compare",
			Usage:     "Plan training jobs with every algorithm and compare the plans",
			ArgsUsage: "[JOB...]",
			Action:    cmd.Compare,
			Flags:     append(sourceFlags(), planFlags()...),
		},
		{
			Name:   "serve",
			Usage:  "Run the plan service",
			Action: cmd.Serve,
			Flags: append(sourceFlags(),
				&cli.StringFlag{
					Name:  "port",
					Usage: "listen on `PORT`",
					Value: config.Port,
				},
				&cli.StringFlag{
					Name:    "amqp",
					Usage:   "also answer plan requests queued at rabbit-mq `URL`",
					EnvVars: []string{"GSA_AMQP"},
				},
				&cli.IntFlag{
					Name:  "gpus-per-node",
					Usage: "GPUs of each node when binding devices, 0 for a single node",
				}),
		},
		{
			Name:      "submit",
			Usage:     "Send a plan request to a running plan service",
			ArgsUsage: "JOB...",
			Action:    cmd.Submit,
			Flags: append(planFlags(), formatFlag("json"),
				&cli.StringFlag{
					Name:  "url",
					Usage: "`URL` of the plan endpoint",
					Value: "http://localhost:" + config.Port + config.EntryPoint,
				},
				&cli.StringFlag{
					Name:  "request-id",
					Usage: "request `ID`, a random one by default",
				}),
		},
		{
			Name:  "table",
			Usage: "Manage training data",
			Subcommands: []*cli.Command{
				{
					Name:      "validate",
					Usage:     "Check that every job has training data for every GPU count",
					ArgsUsage: "[JOB...]",
					Action:    cmd.ValidateTable,
					Flags: append(sourceFlags(), &cli.IntFlag{
						Name:    "gpus",
						Aliases: []string{"g"},
						Usage:   "largest GPU count to check",
						Value:   config.DefaultNumGpu,
					}),
				},
				{
					Name:   "import",
					Usage:  "Import a training table file into mongodb or postgres",
					Action: cmd.ImportTable,
					Flags:  sourceFlags(),
				},
			},
		},
	}

	sort.Sort(cli.FlagsByName(app.Flags))
	sort.Sort(cli.CommandsByName(app.Commands))

	err := app.Run(os.Args)
	if err != nil {
		klog.ErrorS(err, "Failed")
		os.Exit(1)
	}
}
