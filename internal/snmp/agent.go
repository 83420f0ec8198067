package snmp

import (
	"fmt"
	"net/netip"
	"strings"
	"time"
)

// Version identifies the SNMP protocol version of an agent.
type Version int

const (
	Version1 Version = iota + 1
	Version2c
	Version3
)

// ParseVersion accepts the spellings used in profile files ("v1", "2c", ...).
func ParseVersion(s string) (Version, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "v1", "1":
		return Version1, nil
	case "", "v2c", "2c", "v2", "2":
		return Version2c, nil
	case "v3", "3":
		return Version3, nil
	default:
		return 0, fmt.Errorf("unknown snmp version %q", s)
	}
}

func (v Version) String() string {
	switch v {
	case Version1:
		return "v1"
	case Version2c:
		return "v2c"
	case Version3:
		return "v3"
	default:
		return fmt.Sprintf("version(%d)", int(v))
	}
}

// MarshalText renders the version for JSON and YAML output.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// SecurityLevel is the SNMPv3 message security level.
type SecurityLevel int

const (
	NoAuthNoPriv SecurityLevel = iota + 1
	AuthNoPriv
	AuthPriv
)

func (l SecurityLevel) String() string {
	switch l {
	case NoAuthNoPriv:
		return "noAuthNoPriv"
	case AuthNoPriv:
		return "authNoPriv"
	case AuthPriv:
		return "authPriv"
	default:
		return ""
	}
}

// MarshalText renders the level for JSON and YAML output.
func (l SecurityLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

const redacted = "********"

// AgentConfig describes how to reach one SNMP agent. It is a value type; every
// profile build produces an independent copy.
type AgentConfig struct {
	Address        netip.Addr    `json:"address"`
	Port           int           `json:"port"`
	Version        Version       `json:"version"`
	ReadCommunity  string        `json:"readCommunity,omitempty"`
	WriteCommunity string        `json:"writeCommunity,omitempty"`
	Timeout        time.Duration `json:"timeout"`
	Retries        int           `json:"retries"`
	MaxVarsPerPdu  int           `json:"maxVarsPerPdu"`
	MaxRepetitions int           `json:"maxRepetitions"`
	MaxRequestSize int           `json:"maxRequestSize,omitempty"`
	TTL            time.Duration `json:"ttl,omitempty"`

	SecurityName   string        `json:"securityName,omitempty"`
	SecurityLevel  SecurityLevel `json:"securityLevel,omitempty"`
	AuthProtocol   string        `json:"authProtocol,omitempty"`
	AuthPassPhrase string        `json:"authPassPhrase,omitempty"`
	PrivProtocol   string        `json:"privProtocol,omitempty"`
	PrivPassPhrase string        `json:"privPassPhrase,omitempty"`
	ContextName    string        `json:"contextName,omitempty"`
	EngineID       string        `json:"engineId,omitempty"`

	ProfileLabel string `json:"profileLabel,omitempty"`
}

// Redacted returns a copy with communities and passphrases masked.
func (c AgentConfig) Redacted() AgentConfig {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return redacted
	}
	c.ReadCommunity = mask(c.ReadCommunity)
	c.WriteCommunity = mask(c.WriteCommunity)
	c.AuthPassPhrase = mask(c.AuthPassPhrase)
	c.PrivPassPhrase = mask(c.PrivPassPhrase)
	return c
}

// Target renders host:port for logging.
func (c AgentConfig) Target() string {
	return netip.AddrPortFrom(c.Address, uint16(c.Port)).String()
}

// GetRequest is a single probe: one OID fetched with one agent config at one
// monitoring location.
type GetRequest struct {
	Agent       AgentConfig
	OID         ObjID
	Location    string
	Description string
}
