package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/gezibash/arc-ledger/internal/config"
	"github.com/gezibash/arc-ledger/internal/directory"
	"github.com/gezibash/arc-ledger/internal/kvstore/physical"
	"github.com/gezibash/arc-ledger/internal/ledger"
	"github.com/gezibash/arc-ledger/internal/mailbox"
	"github.com/gezibash/arc-ledger/internal/observability"
	"github.com/gezibash/arc-ledger/internal/server"
	"github.com/gezibash/arc-ledger/pkg/logging"

	_ "github.com/gezibash/arc-ledger/internal/kvstore/physical/badger"
	_ "github.com/gezibash/arc-ledger/internal/kvstore/physical/memory"
	_ "github.com/gezibash/arc-ledger/internal/kvstore/physical/redis"
	_ "github.com/gezibash/arc-ledger/internal/kvstore/physical/sqlite"
)

const shutdownTimeout = 15 * time.Second

func newStartCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the ledger server",
		Long: `Start the sequencer HTTP server.

Group ledgers live in memory for the life of the process. Usernames, keys and
queued messages go to the configured record backend.

Examples:
  arc-ledger start                                # memory backend on :6000
  arc-ledger start --addr :6001 --log-level debug
  arc-ledger start --storage badger --data-dir /var/lib/arc-ledger`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd, v)
		},
	}
	config.BindServeFlags(cmd, v)
	return cmd
}

func runStart(cmd *cobra.Command, v *viper.Viper) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs, err := observability.New(ctx, observability.ObsConfig{
		LogLevel:       cfg.Observability.LogLevel,
		LogFormat:      cfg.Observability.LogFormat,
		OTLPEndpoint:   cfg.Observability.OTLPEndpoint,
		OTLPProtocol:   cfg.Observability.OTLPProtocol,
		SampleRatio:    cfg.Observability.SampleRatio,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
	}, os.Stderr)
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := obs.Close(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	store, err := physical.New(ctx, cfg.Storage.Backend, cfg.StorageOptions(), obs.Metrics)
	if err != nil {
		return fmt.Errorf("init record store: %w", err)
	}
	obs.Shutdown.Register("kvstore", func(context.Context) error {
		return store.Close()
	})

	log := logging.New(obs.Logger)
	dir, err := directory.New(store,
		directory.WithCacheSize(cfg.Directory.CacheSize),
		directory.WithMetrics(obs.Metrics),
		directory.WithLogger(log),
	)
	if err != nil {
		return fmt.Errorf("init directory: %w", err)
	}
	ldg := ledger.New(dir, ledger.WithMetrics(obs.Metrics), ledger.WithLogger(log))
	mb := mailbox.New(store, obs.Metrics, log)

	srv := server.New(ldg, dir, mb, server.WithMetrics(obs.Metrics), server.WithLogger(log)).
		HTTPServer(cfg.HTTP.Addr, cfg.HTTP.ReadTimeout, cfg.HTTP.WriteTimeout)
	obs.Shutdown.Register("http-server", func(ctx context.Context) error {
		return srv.Shutdown(ctx)
	})

	servers := []*http.Server{srv}
	names := []string{"ledger"}
	if cfg.Observability.MetricsAddr != "" {
		servers = append(servers, obs.MetricsServer(cfg.Observability.MetricsAddr))
		names = append(names, "metrics")
	}

	slog.Info("serving",
		"addr", cfg.HTTP.Addr,
		"metrics", cfg.Observability.MetricsAddr,
		"storage", cfg.Storage.Backend,
	)

	g, gctx := errgroup.WithContext(ctx)
	for i, s := range servers {
		g.Go(func() error { return observability.ListenAndServe(s, names[i]) })
	}
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		var errs []error
		for _, s := range servers {
			if err := s.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}
