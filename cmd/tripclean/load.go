package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/converter"
	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/store"
	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/tripio"
)

func loadCommand(env *runtimeEnv) *cli.Command {
	return &cli.Command{
		Name:  "load",
		Usage: "bulk-load an enriched CSV into the trip store",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "csv", Usage: "enriched CSV written by process", Required: true},
		},
		Action: func(c *cli.Context) error {
			cfg, logger := env.cfg, env.logger.Named("load")
			ctx := c.Context
			path := c.String("csv")
			start := time.Now()

			trips, err := tripio.ReadEnrichedTripsFile(path, converter.NewTypeConverter(logger.Named("converter")))
			if err != nil {
				return err
			}

			st, err := store.Open(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.EnsureSchema(ctx); err != nil {
				return err
			}
			loaded, err := st.LoadTrips(ctx, trips)
			if err != nil {
				return fmt.Errorf("loaded %d of %d rows: %w", loaded, len(trips), err)
			}

			logger.Info("Load complete",
				zap.String("csv", path),
				zap.Int64("rows", loaded),
				zap.String("driver", cfg.Storage.Driver),
				zap.Duration("duration", time.Since(start)))
			return nil
		},
	}
}
