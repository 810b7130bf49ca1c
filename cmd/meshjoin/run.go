package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"meshjoin/internal/config"
	"meshjoin/internal/meshjoin"
	"meshjoin/internal/metrics"
	"meshjoin/internal/metrics/datadog"
	"meshjoin/internal/metrics/prompush"
)

func (a *app) newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Join the transaction stream and load the warehouse",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := a.load()
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			if err := checkConfig(cmd.ErrOrStderr(), cfg); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log = log.With(zap.String("run_id", uuid.NewString()))
			stats, err := runJob(ctx, cfg, log)
			if err != nil {
				log.Error("run failed", zap.Error(err))
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"segments=%d read=%d resolved=%d skipped=%d suppressed=%d inserted=%d time_rows=%d refreshes=%d\n",
				stats.Segments, stats.Read, stats.Resolved, stats.Skipped, stats.Suppressed,
				stats.Inserted, stats.TimeRows, stats.Refreshes)
			return nil
		},
	}
}

// runJob wires metrics and storage around one engine run.
func runJob(ctx context.Context, cfg config.Config, log *zap.Logger) (meshjoin.Stats, error) {
	if err := setupMetrics(cfg, log); err != nil {
		return meshjoin.Stats{}, err
	}
	defer func() {
		if err := metrics.Flush(); err != nil {
			log.Warn("metrics: flush", zap.Error(err))
		}
	}()

	src, dw, err := openStores(ctx, cfg, log)
	if err != nil {
		return meshjoin.Stats{}, err
	}
	defer closeStores(log, src, dw)

	if cfg.Warehouse.AutoCreateSchema {
		if err := ensureSchema(ctx, "warehouse", dw, log); err != nil {
			return meshjoin.Stats{}, err
		}
	}

	eng, err := meshjoin.New(src, dw, cfg.EngineConfig(), log)
	if err != nil {
		return meshjoin.Stats{}, err
	}
	return eng.Run(ctx)
}

// setupMetrics installs the configured metrics backend.
func setupMetrics(cfg config.Config, log *zap.Logger) error {
	switch backend := strings.ToLower(strings.TrimSpace(cfg.Metrics.Backend)); backend {
	case "", "none":
		log.Debug("metrics: disabled")
		return nil

	case "prometheus":
		b, err := prompush.NewBackend(cfg.Job, cfg.Metrics.PushgatewayURL)
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		metrics.SetBackend(b)

	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       cfg.Metrics.DatadogAddr,
			Namespace:  cfg.Metrics.DatadogNamespace,
			GlobalTags: append([]string{"job:" + cfg.Job}, cfg.Metrics.DatadogTags...),
		})
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		metrics.SetBackend(b)

	default:
		return fmt.Errorf("metrics: unknown backend %q", cfg.Metrics.Backend)
	}

	log.Info("metrics: enabled",
		zap.String("backend", cfg.Metrics.Backend),
		zap.String("pushgateway_url", cfg.Metrics.PushgatewayURL),
		zap.String("datadog_addr", cfg.Metrics.DatadogAddr),
	)
	return nil
}
