package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rcourtman/pulse-snmp-profiles/internal/api"
	"github.com/rcourtman/pulse-snmp-profiles/internal/snmpconfig"
)

var apiShutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the SNMP profile HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	svc, err := buildServices(cfg, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer svc.Close()

	log.Info().Str("version", Version).Msg("Starting Pulse SNMP profile service")

	g, ctx := errgroup.WithContext(ctx)

	if cfg.MetricsAddr != "" {
		startMetricsServer(ctx, cfg.MetricsAddr, prometheus.DefaultGatherer)
	}

	watcher, err := snmpconfig.NewWatcher(cfg.ProfilesFile, svc.factory)
	if err != nil {
		return err
	}
	defer watcher.Stop()
	trackCatalog(prometheus.DefaultRegisterer, svc.factory, watcher)
	if cfg.WatchProfiles {
		if err := watcher.Start(); err != nil {
			return err
		}
	}

	g.Go(func() error {
		reloadOnSIGHUP(ctx, watcher)
		return nil
	})

	router := api.NewRouter(svc.mapper, svc.factory, svc.store, api.WithRegisterer(prometheus.DefaultRegisterer))
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g.Go(func() error {
		log.Info().Str("addr", cfg.ListenAddr).Msg("SNMP profile API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("Shutting down SNMP profile API")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), apiShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Failed to shut down API server cleanly")
		}
		return nil
	})

	return g.Wait()
}

func reloadOnSIGHUP(ctx context.Context, watcher *snmpconfig.Watcher) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	for {
		select {
		case <-sigChan:
			log.Info().Msg("Received SIGHUP; reloading SNMP profiles")
			_ = watcher.Reload()
		case <-ctx.Done():
			return
		}
	}
}
