package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/rcourtman/pulse-snmp-profiles/internal/snmpconfig"
)

var metricsShutdownTimeout = 5 * time.Second

func newMetricsHandler(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	}))
	return mux
}

// startMetricsServer serves /metrics on addr until ctx is done.
func startMetricsServer(ctx context.Context, addr string, gatherer prometheus.Gatherer) {
	srv := &http.Server{
		Addr:         addr,
		Handler:      newMetricsHandler(gatherer),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn().Err(err).Msg("Failed to shut down metrics server cleanly")
		}
	}()

	go func() {
		log.Info().Str("addr", addr).Msg("Metrics endpoint listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn().Err(err).Str("addr", addr).Msg("Metrics server stopped unexpectedly")
		}
	}()
}

// trackCatalog exports the size of the active profile catalog and keeps it
// current across reloads.
func trackCatalog(reg prometheus.Registerer, factory *snmpconfig.Factory, watcher *snmpconfig.Watcher) prometheus.Gauge {
	gauge := promauto.With(reg).NewGauge(prometheus.GaugeOpts{
		Name: "snmp_profiles_catalog_profiles",
		Help: "Number of SNMP profiles in the active catalog",
	})
	gauge.Set(float64(len(factory.Profiles())))

	watcher.OnReload(func(cat *snmpconfig.Catalog) {
		gauge.Set(float64(len(cat.Profiles)))
	})
	return gauge
}
