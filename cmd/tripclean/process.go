package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/cleaner"
	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/connector"
	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/converter"
	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/store"
	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/transfer"
)

// jobOptions are the output and source flags of the process command
type jobOptions struct {
	inputs    []string
	outCSV    string
	logPath   string
	outDir    string
	snowflake string // table name; empty when not reading from Snowflake
	load      bool
}

// buildJobs turns the command flags into batch jobs. A single input may
// name its outputs directly; several inputs share --out-dir.
func buildJobs(opts jobOptions) ([]transfer.BatchJob, error) {
	sources := len(opts.inputs)
	if opts.snowflake != "" {
		sources++
	}
	if sources == 0 {
		return nil, errors.New("at least one --input or --snowflake is required")
	}

	explicit := opts.outCSV != "" || opts.logPath != ""
	if explicit {
		if sources > 1 {
			return nil, errors.New("--out-csv and --log name a single output; use --out-dir for several inputs")
		}
		if opts.outCSV == "" || opts.logPath == "" {
			return nil, errors.New("--out-csv and --log must be given together")
		}
	} else if opts.outDir == "" {
		return nil, errors.New("either --out-csv with --log or --out-dir is required")
	}

	paths := func(input string) (string, string) {
		if explicit {
			return opts.outCSV, opts.logPath
		}
		return transfer.OutputPaths(opts.outDir, input)
	}

	jobs := make([]transfer.BatchJob, 0, sources)
	seen := make(map[string]string, sources)
	add := func(job transfer.BatchJob) error {
		if prev, ok := seen[job.OutputCSV]; ok {
			return fmt.Errorf("inputs %s and %s write the same output %s", prev, job.Input, job.OutputCSV)
		}
		seen[job.OutputCSV] = job.Input
		jobs = append(jobs, job.WithLoad(opts.load))
		return nil
	}

	for _, input := range opts.inputs {
		csvPath, logPath := paths(input)
		if err := add(transfer.NewFileJob(input, csvPath, logPath)); err != nil {
			return nil, err
		}
	}
	if opts.snowflake != "" {
		csvPath, logPath := paths(strings.ReplaceAll(opts.snowflake, ".", "_"))
		if err := add(transfer.NewSnowflakeJob(opts.snowflake, csvPath, logPath)); err != nil {
			return nil, err
		}
	}
	return jobs, nil
}

func processCommand(env *runtimeEnv) *cli.Command {
	return &cli.Command{
		Name:  "process",
		Usage: "enrich raw trip files into an enriched CSV and a cleaning log",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "input", Aliases: []string{"i"}, Usage: "raw trip CSV (repeatable)"},
			&cli.StringFlag{Name: "out-csv", Usage: "enriched CSV path (single input)"},
			&cli.StringFlag{Name: "log", Usage: "cleaning log JSON path (single input)"},
			&cli.StringFlag{Name: "out-dir", Usage: "output directory for <input>.enriched.csv and <input>.cleaning_log.json"},
			&cli.BoolFlag{Name: "load", Usage: "also load the retained trips into the trip store"},
			&cli.Float64Flag{Name: "threshold", Usage: "robust z-score threshold for suspicious speeds"},
			&cli.BoolFlag{Name: "snowflake", Usage: "also read raw trips from the configured Snowflake table"},
			&cli.IntFlag{Name: "workers", Usage: "worker pool size (default WORKER_POOL_SIZE or CPU count)"},
		},
		Action: func(c *cli.Context) error {
			cfg, logger := env.cfg, env.logger.Named("process")
			ctx := c.Context

			cleanerConfig, err := cfg.Pipeline.CleanerConfig()
			if err != nil {
				return err
			}
			if c.IsSet("threshold") {
				cleanerConfig.AnomalyThreshold = c.Float64("threshold")
				if err := cleanerConfig.Validate(); err != nil {
					return fmt.Errorf("invalid --threshold: %w", err)
				}
			}

			opts := jobOptions{
				inputs:  c.StringSlice("input"),
				outCSV:  c.String("out-csv"),
				logPath: c.String("log"),
				outDir:  c.String("out-dir"),
				load:    c.Bool("load"),
			}
			if c.Bool("snowflake") {
				if cfg.Snowflake == nil {
					return errors.New("--snowflake requires SNOWFLAKE_ACCOUNT and related settings")
				}
				opts.snowflake = cfg.Snowflake.TripsTable
			}
			jobs, err := buildJobs(opts)
			if err != nil {
				return err
			}

			dataCleaner, err := cleaner.NewDataCleaner(cleanerConfig, logger.Named("cleaner"))
			if err != nil {
				return err
			}
			conv := converter.NewTypeConverter(logger.Named("converter"))

			var source transfer.RawTripReader
			if opts.snowflake != "" {
				src, conn, err := connector.NewConnectorFactory(cfg, logger).CreateRawTripSource(ctx, conv)
				if err != nil {
					return err
				}
				defer conn.Close()
				source = src
			}

			var loader transfer.TripLoader
			if opts.load {
				st, err := store.Open(ctx, cfg, logger)
				if err != nil {
					return err
				}
				defer st.Close()
				loader = st
			}

			workers := cfg.WorkerPoolSize
			if c.IsSet("workers") {
				workers = c.Int("workers")
			}

			tm, err := transfer.NewTransferManager(dataCleaner, conv, source, loader,
				transfer.NewTransferMetrics(logger.Named("metrics"), nil), logger)
			if err != nil {
				return err
			}
			tm.WithWorkerCount(workers).
				WithRetry(cfg.RetryAttempts, cfg.RetryDelay).
				WithPageSize(cfg.ChunkSize)

			summary, runErr := tm.Run(ctx, jobs)
			if summary != nil {
				fmt.Fprint(c.App.Writer, tm.GenerateReport())
				logger.Info(fmt.Sprintf("clean rows %d / %d", summary.TotalRowsClean, summary.TotalRowsRead),
					zap.Int("jobs", summary.TotalJobs),
					zap.Int("failedJobs", summary.FailedJobs))
			}
			if runErr != nil {
				return runErr
			}
			if summary.FailedJobs > 0 {
				return cli.Exit(fmt.Sprintf("%d of %d batch jobs failed", summary.FailedJobs, summary.TotalJobs), 1)
			}
			return nil
		},
	}
}
