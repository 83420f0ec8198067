package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/rcourtman/pulse-snmp-profiles/internal/config"
	"github.com/rcourtman/pulse-snmp-profiles/internal/filter"
	"github.com/rcourtman/pulse-snmp-profiles/internal/inventory"
	"github.com/rcourtman/pulse-snmp-profiles/internal/logging"
	"github.com/rcourtman/pulse-snmp-profiles/internal/profiles"
	"github.com/rcourtman/pulse-snmp-profiles/internal/snmpclient"
	"github.com/rcourtman/pulse-snmp-profiles/internal/snmpconfig"
)

// services bundles the collaborators every command resolves against.
type services struct {
	cfg     *config.Config
	factory *snmpconfig.Factory
	store   *inventory.Store
	client  *snmpclient.LocationAwareClient
	mapper  *profiles.Mapper
}

// loadConfig loads configuration and re-initializes logging from it.
func loadConfig() (*config.Config, error) {
	logging.Init(logging.Config{Format: "auto", Level: "info", Component: "pulse-snmp"})

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{Format: cfg.LogFormat, Level: cfg.LogLevel, Component: "pulse-snmp"})
	return cfg, nil
}

// loadCatalog reads the profile file. A missing file yields an empty catalog
// so the service can start before profiles are written.
func loadCatalog(path string) (*snmpconfig.Catalog, error) {
	cat, err := snmpconfig.Load(path)
	if err == nil {
		return cat, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		log.Warn().Str("path", path).Msg("SNMP profile file not found; starting with an empty catalog")
		return &snmpconfig.Catalog{}, nil
	}
	return nil, err
}

// buildServices wires catalog, inventory, filter, probe client and mapper.
// reg may be nil to skip metrics.
func buildServices(cfg *config.Config, reg prometheus.Registerer) (*services, error) {
	cat, err := loadCatalog(cfg.ProfilesFile)
	if err != nil {
		return nil, err
	}

	store, err := inventory.Open(cfg.InventoryDB)
	if err != nil {
		return nil, err
	}

	factory := snmpconfig.NewFactory(cat, snmpconfig.MultiSource{store, snmpconfig.EnvMetadata{}})

	evaluator, err := filter.NewEvaluator(store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	client := snmpclient.NewLocationAwareClient(snmpclient.Config{
		DefaultLocation: cfg.DefaultLocation,
		LocalLocations:  cfg.LocalLocations,
		MaxConcurrent:   cfg.MaxConcurrentProbes,
	}, snmpclient.NewGoSNMPDispatcher())

	var opts []profiles.Option
	if reg != nil {
		opts = append(opts, profiles.WithMetrics(profiles.NewMetrics(reg)))
	}

	log.Info().
		Str("profiles_file", cfg.ProfilesFile).
		Int("profiles", len(cat.Profiles)).
		Str("inventory", cfg.InventoryDB).
		Str("default_location", cfg.DefaultLocation).
		Strs("local_locations", cfg.LocalLocations).
		Int64("max_concurrent_probes", cfg.MaxConcurrentProbes).
		Msg("SNMP profile services initialized")

	return &services{
		cfg:     cfg,
		factory: factory,
		store:   store,
		client:  client,
		mapper:  profiles.New(factory, evaluator, client, opts...),
	}, nil
}

func (s *services) Close() {
	if err := s.store.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close inventory")
	}
}
