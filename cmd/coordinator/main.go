package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/holiman/uint256"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/yourorg/zkmint/pkg/config"
	"github.com/yourorg/zkmint/pkg/coordinator"
)

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if cfg.Format == "json" {
		logger = zerolog.New(os.Stderr)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Logger()
}

func serveMetrics(ctx context.Context, listen string, reg *prometheus.Registry, logger zerolog.Logger) error {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("metrics server shutdown")
		}
	}()

	logger.Info().Str("listen", listen).Msg("serving metrics")
	if err := e.Start(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func runCmd() *cobra.Command {
	var (
		configPath string
		envFiles   []string
		once       bool
		local      bool
		simBalance string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the mint coordinators on their schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath, envFiles...)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger := newLogger(cfg.Log)

			if !local {
				return fmt.Errorf("no destination chain client is configured: run with --local")
			}
			var sim *uint256.Int
			if simBalance != "" {
				if sim, err = uint256.FromDecimal(simBalance); err != nil {
					return fmt.Errorf("--sim-balance: %w", err)
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

			env, err := wireLocal(ctx, cfg, sim, coordinator.NewMetrics(reg), logger)
			if err != nil {
				return err
			}
			defer env.Close()

			g, gctx := errgroup.WithContext(ctx)
			if once {
				for _, c := range env.Coordinators {
					c := c
					g.Go(func() error {
						report, err := c.Cycle(gctx)
						if err != nil {
							return err
						}
						logger.Info().
							Str("cycle", report.ID).
							Str("minted", report.Expected.String()).
							Bool("matched", report.Matched).
							Msg("cycle report")
						return nil
					})
				}
				return g.Wait()
			}

			if cfg.Metrics.Listen != "" {
				g.Go(func() error { return serveMetrics(gctx, cfg.Metrics.Listen, reg, logger) })
			}
			for _, c := range env.Coordinators {
				c := c
				g.Go(func() error { return coordinator.Schedule(gctx, cfg.Coordinator.Schedule, c) })
			}
			logger.Info().Int("coordinators", len(env.Coordinators)).Str("schedule", cfg.Coordinator.Schedule).Msg("started")
			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "TOML configuration file")
	cmd.Flags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files (default ./.env if present)")
	cmd.Flags().BoolVar(&once, "once", false, "Run a single cycle per target and exit")
	cmd.Flags().BoolVar(&local, "local", false, "Prove in-process and mint on an in-process chain")
	cmd.Flags().StringVar(&simBalance, "sim-balance", "",
		"Prove against a simulated Ethereum state giving every holder this balance instead of ethereum.rpc_url")
	return cmd
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "coordinator",
		Short: "Drive Ethereum state proofs into CW20 mints on Neutron",
	}
	rootCmd.AddCommand(runCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Fatal(err)
	}
}
