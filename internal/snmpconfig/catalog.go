package snmpconfig

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rcourtman/pulse-snmp-profiles/internal/snmp"
)

// AgentParams are the agent settings a profile or the defaults block may set.
// Zero values (empty strings, nil pointers) mean "inherit".
type AgentParams struct {
	Version        string `yaml:"version,omitempty" json:"version,omitempty"`
	Port           *int   `yaml:"port,omitempty" json:"port,omitempty"`
	ReadCommunity  string `yaml:"read-community,omitempty" json:"-"`
	WriteCommunity string `yaml:"write-community,omitempty" json:"-"`
	Timeout        string `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Retries        *int   `yaml:"retries,omitempty" json:"retries,omitempty"`
	MaxVarsPerPdu  *int   `yaml:"max-vars-per-pdu,omitempty" json:"maxVarsPerPdu,omitempty"`
	MaxRepetitions *int   `yaml:"max-repetitions,omitempty" json:"maxRepetitions,omitempty"`
	MaxRequestSize *int   `yaml:"max-request-size,omitempty" json:"maxRequestSize,omitempty"`
	TTL            string `yaml:"ttl,omitempty" json:"ttl,omitempty"`

	SecurityName   string `yaml:"security-name,omitempty" json:"securityName,omitempty"`
	SecurityLevel  string `yaml:"security-level,omitempty" json:"securityLevel,omitempty"`
	AuthProtocol   string `yaml:"auth-protocol,omitempty" json:"authProtocol,omitempty"`
	AuthPassPhrase string `yaml:"auth-passphrase,omitempty" json:"-"`
	PrivProtocol   string `yaml:"priv-protocol,omitempty" json:"privProtocol,omitempty"`
	PrivPassPhrase string `yaml:"priv-passphrase,omitempty" json:"-"`
	ContextName    string `yaml:"context-name,omitempty" json:"contextName,omitempty"`
	EngineID       string `yaml:"engine-id,omitempty" json:"engineId,omitempty"`
}

// Profile is a named agent template with an optional applicability filter.
type Profile struct {
	Label            string `yaml:"label" json:"label"`
	FilterExpression string `yaml:"filter,omitempty" json:"filter,omitempty"`
	AgentParams      `yaml:",inline"`
}

// Catalog is the parsed profile file. Profile order is significant: it is the
// priority order used when several profiles fit the same agent.
type Catalog struct {
	Defaults AgentParams                  `yaml:"defaults"`
	Metadata map[string]map[string]string `yaml:"metadata,omitempty"`
	Profiles []Profile                    `yaml:"profiles"`
}

var (
	authProtocols = map[string]struct{}{"": {}, "md5": {}, "sha": {}, "sha-224": {}, "sha-256": {}, "sha-384": {}, "sha-512": {}}
	privProtocols = map[string]struct{}{"": {}, "des": {}, "aes": {}, "aes192": {}, "aes256": {}, "aes192c": {}, "aes256c": {}}
)

// Load reads and validates a profile file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile file %s: %w", path, err)
	}
	cat, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse profile file %s: %w", path, err)
	}
	return cat, nil
}

// Parse decodes and validates profile YAML.
func Parse(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return &cat, nil
}

// Validate checks labels are present and unique and agent params are well formed.
func (c *Catalog) Validate() error {
	if err := c.Defaults.validate(); err != nil {
		return fmt.Errorf("defaults: %w", err)
	}

	seen := make(map[string]int, len(c.Profiles))
	for i, p := range c.Profiles {
		label := strings.TrimSpace(p.Label)
		if label == "" {
			return fmt.Errorf("profile #%d: label is required", i+1)
		}
		if label != p.Label {
			return fmt.Errorf("profile %q: label has surrounding whitespace", p.Label)
		}
		if prev, dup := seen[label]; dup {
			return fmt.Errorf("profile %q: duplicate label (also profile #%d)", label, prev+1)
		}
		seen[label] = i
		if err := p.AgentParams.validate(); err != nil {
			return fmt.Errorf("profile %q: %w", label, err)
		}
	}
	return nil
}

func (p AgentParams) validate() error {
	if p.Version != "" {
		if _, err := snmp.ParseVersion(p.Version); err != nil {
			return err
		}
	}
	if p.Port != nil && (*p.Port <= 0 || *p.Port > 65535) {
		return fmt.Errorf("port %d out of range", *p.Port)
	}
	for name, value := range map[string]string{"timeout": p.Timeout, "ttl": p.TTL} {
		if value == "" {
			continue
		}
		if d, err := time.ParseDuration(value); err != nil || d < 0 {
			return fmt.Errorf("invalid %s %q", name, value)
		}
	}
	for name, value := range map[string]*int{"retries": p.Retries, "max-vars-per-pdu": p.MaxVarsPerPdu, "max-repetitions": p.MaxRepetitions, "max-request-size": p.MaxRequestSize} {
		if value != nil && *value < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if _, ok := authProtocols[strings.ToLower(p.AuthProtocol)]; !ok {
		return fmt.Errorf("unknown auth protocol %q", p.AuthProtocol)
	}
	if _, ok := privProtocols[strings.ToLower(p.PrivProtocol)]; !ok {
		return fmt.Errorf("unknown priv protocol %q", p.PrivProtocol)
	}
	if p.SecurityLevel != "" {
		if _, err := parseSecurityLevel(p.SecurityLevel); err != nil {
			return err
		}
	}
	return nil
}

func parseSecurityLevel(s string) (snmp.SecurityLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "noauthnopriv":
		return snmp.NoAuthNoPriv, nil
	case "2", "authnopriv":
		return snmp.AuthNoPriv, nil
	case "3", "authpriv":
		return snmp.AuthPriv, nil
	default:
		return 0, fmt.Errorf("unknown security level %q", s)
	}
}
