package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/rcourtman/pulse-snmp-profiles/internal/logging"
	"github.com/rcourtman/pulse-snmp-profiles/internal/utils"
)

// Defaults used when the environment does not override them.
const (
	DefaultDataDir             = "/etc/pulse-snmp"
	DefaultProfilesFileName    = "snmp-profiles.yaml"
	DefaultInventoryFileName   = "inventory.db"
	DefaultListenAddr          = ":8980"
	DefaultMetricsAddr         = ":9091"
	DefaultLocation            = "Default"
	DefaultMaxConcurrentProbes = 64
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "auto"
)

// Config holds the service configuration.
type Config struct {
	DataDir      string
	ProfilesFile string
	InventoryDB  string

	ListenAddr  string
	MetricsAddr string

	DefaultLocation     string
	LocalLocations      []string
	MaxConcurrentProbes int64
	WatchProfiles       bool

	LogLevel  string
	LogFormat string

	// EnvOverrides records which settings came from the environment.
	EnvOverrides map[string]bool
}

// Load reads configuration from the environment. A .env file in the data
// directory, then one in the working directory, is loaded first; variables
// already set in the process environment win.
func Load() (*Config, error) {
	dataDir := DefaultDataDir
	if dir := utils.GetenvTrim("SNMP_DATA_DIR"); dir != "" {
		dataDir = dir
	}

	envFile := filepath.Join(dataDir, ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			log.Warn().Err(err).Str("file", envFile).Msg("Failed to load .env file")
		} else {
			log.Info().Str("file", envFile).Msg("Loaded .env file for deployment overrides")
		}
	}
	if err := godotenv.Load(); err == nil {
		log.Info().Msg("Loaded configuration from .env in current directory")
	}

	cfg := &Config{
		DataDir:             dataDir,
		ProfilesFile:        filepath.Join(dataDir, DefaultProfilesFileName),
		InventoryDB:         filepath.Join(dataDir, DefaultInventoryFileName),
		ListenAddr:          DefaultListenAddr,
		MetricsAddr:         DefaultMetricsAddr,
		DefaultLocation:     DefaultLocation,
		LocalLocations:      []string{},
		MaxConcurrentProbes: DefaultMaxConcurrentProbes,
		WatchProfiles:       true,
		LogLevel:            DefaultLogLevel,
		LogFormat:           DefaultLogFormat,
		EnvOverrides:        make(map[string]bool),
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := utils.GetenvTrim("SNMP_PROFILES_FILE"); v != "" {
		c.ProfilesFile = v
		c.EnvOverrides["profilesFile"] = true
	}
	if v := utils.GetenvTrim("SNMP_INVENTORY_DB"); v != "" {
		c.InventoryDB = v
		c.EnvOverrides["inventoryDB"] = true
	}
	if v := utils.GetenvTrim("SNMP_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
		c.EnvOverrides["listenAddr"] = true
	}
	if v, ok := os.LookupEnv("SNMP_METRICS_ADDR"); ok {
		// An explicitly empty value disables the metrics listener.
		c.MetricsAddr = strings.TrimSpace(v)
		c.EnvOverrides["metricsAddr"] = true
	}
	if v := utils.GetenvTrim("SNMP_DEFAULT_LOCATION"); v != "" {
		c.DefaultLocation = v
		c.EnvOverrides["defaultLocation"] = true
	}
	if v := utils.GetenvTrim("SNMP_LOCAL_LOCATIONS"); v != "" {
		c.LocalLocations = utils.SplitCSV(v)
		c.EnvOverrides["localLocations"] = true
	}
	if v := utils.GetenvTrim("SNMP_MAX_CONCURRENT_PROBES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid SNMP_MAX_CONCURRENT_PROBES %q: %w", v, err)
		}
		c.MaxConcurrentProbes = n
		c.EnvOverrides["maxConcurrentProbes"] = true
	}
	if v := utils.GetenvTrim("SNMP_WATCH_PROFILES"); v != "" {
		c.WatchProfiles = utils.ParseBool(v)
		c.EnvOverrides["watchProfiles"] = true
	}
	if v := utils.GetenvTrim("LOG_LEVEL"); v != "" {
		c.LogLevel = strings.ToLower(v)
		c.EnvOverrides["logLevel"] = true
		log.Info().Str("level", c.LogLevel).Msg("Log level overridden by LOG_LEVEL env var")
	}
	if v := utils.GetenvTrim("LOG_FORMAT"); v != "" {
		c.LogFormat = strings.ToLower(v)
		c.EnvOverrides["logFormat"] = true
	}
	return nil
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ProfilesFile) == "" {
		return fmt.Errorf("profiles file is required")
	}
	if strings.TrimSpace(c.InventoryDB) == "" {
		return fmt.Errorf("inventory database path is required")
	}
	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", c.ListenAddr, err)
	}
	if c.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(c.MetricsAddr); err != nil {
			return fmt.Errorf("invalid metrics address %q: %w", c.MetricsAddr, err)
		}
		if c.MetricsAddr == c.ListenAddr {
			return fmt.Errorf("metrics address must differ from listen address")
		}
	}
	if strings.TrimSpace(c.DefaultLocation) == "" {
		return fmt.Errorf("default location is required")
	}
	if c.MaxConcurrentProbes <= 0 {
		return fmt.Errorf("max concurrent probes must be positive, got %d", c.MaxConcurrentProbes)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if _, err := logging.ParseFormat(c.LogFormat); err != nil {
		return err
	}
	return nil
}
