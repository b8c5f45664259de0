package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"

	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/api"
	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/store"
)

func serveCommand(env *runtimeEnv) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "serve the trip query API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "listen address (default API_ADDR)"},
			&cli.StringFlag{Name: "static", Usage: "frontend directory served at / (default API_STATIC_DIR)"},
		},
		Action: func(c *cli.Context) error {
			cfg, logger := env.cfg, env.logger
			ctx := c.Context

			apiConfig := *cfg.API
			if addr := c.String("addr"); addr != "" {
				apiConfig.Addr = addr
			}
			if dir := c.String("static"); dir != "" {
				apiConfig.StaticDir = dir
			}

			st, err := store.Open(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.EnsureSchema(ctx); err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			server, err := api.NewServer(st, &apiConfig, reg, logger)
			if err != nil {
				return err
			}
			return server.ListenAndServe(ctx)
		},
	}
}
