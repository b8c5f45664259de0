// Command tripclean enriches raw trip exports, loads them into the trip
// store and serves the query API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/config"
	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/logging"
)

// runtimeEnv is shared by every subcommand
type runtimeEnv struct {
	cfg    *config.Config
	logger *zap.Logger
	flush  func()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func newApp() *cli.App {
	env := &runtimeEnv{}

	return &cli.App{
		Name:  "tripclean",
		Usage: "enrich, load and query ride-hailing trip records",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "env-file",
				Usage: "environment files to load before reading configuration",
				Value: cli.NewStringSlice(".env"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override LOG_LEVEL",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "override LOG_FORMAT (json or console)",
			},
		},
		Before: func(c *cli.Context) error {
			return env.setup(c)
		},
		After: func(c *cli.Context) error {
			if env.flush != nil {
				env.flush()
			}
			return nil
		},
		Commands: []*cli.Command{
			processCommand(env),
			loadCommand(env),
			serveCommand(env),
		},
	}
}

// setup loads configuration and installs the logger
func (e *runtimeEnv) setup(c *cli.Context) error {
	if err := config.LoadEnvFiles(c.StringSlice("env-file")...); err != nil {
		return err
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	if format := c.String("log-format"); format != "" {
		cfg.LogFormat = format
	}

	logger, flush, err := logging.Install(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	e.cfg = cfg
	e.logger = logger
	e.flush = flush
	return nil
}
