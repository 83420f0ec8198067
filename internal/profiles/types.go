package profiles

import (
	"context"
	"net/netip"

	"github.com/rcourtman/pulse-snmp-profiles/internal/snmp"
	"github.com/rcourtman/pulse-snmp-profiles/internal/snmpconfig"
)

// Catalog supplies profiles in priority order and builds agent configs from them.
type Catalog interface {
	Profiles() []snmpconfig.Profile
	AgentConfigFromProfile(p snmpconfig.Profile, addr netip.Addr, interpolate bool) snmp.AgentConfig
}

// snapshotter is implemented by catalogs that can pin one version for the
// duration of a resolution, so a reload never mixes profiles and defaults
// from different files.
type snapshotter interface {
	Snapshot() *snmpconfig.Snapshot
}

// Filter decides whether an address satisfies a profile's filter expression.
type Filter interface {
	IsValid(address, expression string) (bool, error)
}

// ProbeClient performs a single GET. Errors are transport failures; agent
// exception values are returned as values.
type ProbeClient interface {
	Get(ctx context.Context, req snmp.GetRequest) (snmp.Value, error)
}

// Candidate is a profile selected for one resolution. Index is its catalog
// position and therefore its priority.
type Candidate struct {
	Index   int
	Profile snmpconfig.Profile
}

// OutcomeStatus tags the result of one candidate's probe.
type OutcomeStatus int

const (
	OutcomeFailure OutcomeStatus = iota
	OutcomeSuccess
	OutcomeError
)

func (s OutcomeStatus) String() string {
	switch s {
	case OutcomeSuccess:
		return "success"
	case OutcomeError:
		return "error"
	default:
		return "failure"
	}
}

// Outcome is one candidate's probe result. Config holds the raw agent config
// and is only meaningful for OutcomeSuccess.
type Outcome struct {
	Status OutcomeStatus
	Config snmp.AgentConfig
}

// Result is the outcome of a resolution. Found is false when no candidate
// produced a working config.
type Result struct {
	Config snmp.AgentConfig
	Found  bool
}
