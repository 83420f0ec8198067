package snmpconfig

import (
	"net/netip"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rcourtman/pulse-snmp-profiles/internal/snmp"
)

// Built-in agent defaults, applied beneath the file's defaults block.
const (
	DefaultPort           = 161
	DefaultTimeout        = 1800 * time.Millisecond
	DefaultRetries        = 1
	DefaultMaxVarsPerPdu  = 10
	DefaultMaxRepetitions = 2
	DefaultReadCommunity  = "public"
	DefaultWriteCommunity = "private"
)

// Factory builds agent configs from the current catalog. The catalog can be
// swapped at runtime; readers always see a complete snapshot.
type Factory struct {
	current  atomic.Pointer[Catalog]
	metadata MetadataSource
}

// NewFactory creates a factory over cat. A nil catalog behaves as empty.
// The catalog's own metadata block is consulted after md.
func NewFactory(cat *Catalog, md MetadataSource) *Factory {
	f := &Factory{metadata: md}
	f.Replace(cat)
	return f
}

// Replace atomically swaps the catalog.
func (f *Factory) Replace(cat *Catalog) {
	if cat == nil {
		cat = &Catalog{}
	}
	f.current.Store(cat)
}

// Catalog returns the current snapshot. Callers must not modify it.
func (f *Factory) Catalog() *Catalog {
	return f.current.Load()
}

// Snapshot pins the current catalog. Configs built from the snapshot keep
// using its defaults and metadata even if the factory is reloaded meanwhile.
func (f *Factory) Snapshot() *Snapshot {
	return &Snapshot{catalog: f.current.Load(), metadata: f.metadata}
}

// Profiles returns the current profiles in file order.
func (f *Factory) Profiles() []Profile {
	return f.Snapshot().Profiles()
}

// AgentConfigFromProfile builds a config against the current catalog. See
// Snapshot.AgentConfigFromProfile.
func (f *Factory) AgentConfigFromProfile(p Profile, addr netip.Addr, interpolate bool) snmp.AgentConfig {
	return f.Snapshot().AgentConfigFromProfile(p, addr, interpolate)
}

// Snapshot is one immutable catalog version together with the metadata
// sources used to interpolate it.
type Snapshot struct {
	catalog  *Catalog
	metadata MetadataSource
}

// Profiles returns the snapshot's profiles in file order.
func (s *Snapshot) Profiles() []Profile {
	return append([]Profile(nil), s.catalog.Profiles...)
}

// AgentConfigFromProfile merges built-in defaults, the file defaults and the
// profile for addr. With interpolate set, metadata placeholders are resolved;
// otherwise they are kept verbatim so the config can be stored and
// re-interpolated later.
func (s *Snapshot) AgentConfigFromProfile(p Profile, addr netip.Addr, interpolate bool) snmp.AgentConfig {
	cat := s.catalog

	cfg := snmp.AgentConfig{
		Address:        addr,
		Port:           DefaultPort,
		Version:        snmp.Version2c,
		ReadCommunity:  DefaultReadCommunity,
		WriteCommunity: DefaultWriteCommunity,
		Timeout:        DefaultTimeout,
		Retries:        DefaultRetries,
		MaxVarsPerPdu:  DefaultMaxVarsPerPdu,
		MaxRepetitions: DefaultMaxRepetitions,
		ProfileLabel:   p.Label,
	}
	apply(&cfg, cat.Defaults)
	apply(&cfg, p.AgentParams)

	if cfg.Version == snmp.Version3 && cfg.SecurityLevel == 0 {
		cfg.SecurityLevel = impliedSecurityLevel(cfg)
	}

	if interpolate {
		src := MultiSource{s.metadata, StaticMetadata(cat.Metadata)}
		for _, field := range []*string{
			&cfg.ReadCommunity, &cfg.WriteCommunity,
			&cfg.SecurityName, &cfg.AuthPassPhrase, &cfg.PrivPassPhrase,
			&cfg.ContextName, &cfg.EngineID,
		} {
			*field = Interpolate(*field, addr, src)
		}
	}

	return cfg
}

func apply(cfg *snmp.AgentConfig, p AgentParams) {
	if p.Version != "" {
		if v, err := snmp.ParseVersion(p.Version); err == nil {
			cfg.Version = v
		}
	}
	if p.Port != nil {
		cfg.Port = *p.Port
	}
	if p.ReadCommunity != "" {
		cfg.ReadCommunity = p.ReadCommunity
	}
	if p.WriteCommunity != "" {
		cfg.WriteCommunity = p.WriteCommunity
	}
	if p.Timeout != "" {
		if d, err := time.ParseDuration(p.Timeout); err == nil {
			cfg.Timeout = d
		} else {
			log.Warn().Str("timeout", p.Timeout).Msg("Ignoring invalid profile timeout")
		}
	}
	if p.Retries != nil {
		cfg.Retries = *p.Retries
	}
	if p.MaxVarsPerPdu != nil {
		cfg.MaxVarsPerPdu = *p.MaxVarsPerPdu
	}
	if p.MaxRepetitions != nil {
		cfg.MaxRepetitions = *p.MaxRepetitions
	}
	if p.MaxRequestSize != nil {
		cfg.MaxRequestSize = *p.MaxRequestSize
	}
	if p.TTL != "" {
		if d, err := time.ParseDuration(p.TTL); err == nil {
			cfg.TTL = d
		}
	}
	if p.SecurityName != "" {
		cfg.SecurityName = p.SecurityName
	}
	if p.SecurityLevel != "" {
		if level, err := parseSecurityLevel(p.SecurityLevel); err == nil {
			cfg.SecurityLevel = level
		}
	}
	if p.AuthProtocol != "" {
		cfg.AuthProtocol = strings.ToLower(p.AuthProtocol)
	}
	if p.AuthPassPhrase != "" {
		cfg.AuthPassPhrase = p.AuthPassPhrase
	}
	if p.PrivProtocol != "" {
		cfg.PrivProtocol = strings.ToLower(p.PrivProtocol)
	}
	if p.PrivPassPhrase != "" {
		cfg.PrivPassPhrase = p.PrivPassPhrase
	}
	if p.ContextName != "" {
		cfg.ContextName = p.ContextName
	}
	if p.EngineID != "" {
		cfg.EngineID = p.EngineID
	}
}

func impliedSecurityLevel(cfg snmp.AgentConfig) snmp.SecurityLevel {
	switch {
	case cfg.AuthPassPhrase != "" && cfg.PrivPassPhrase != "":
		return snmp.AuthPriv
	case cfg.AuthPassPhrase != "":
		return snmp.AuthNoPriv
	default:
		return snmp.NoAuthNoPriv
	}
}
