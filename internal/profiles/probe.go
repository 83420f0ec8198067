package profiles

import (
	"context"
	"net/netip"
	"time"

	"github.com/rs/zerolog"

	internalerrors "github.com/rcourtman/pulse-snmp-profiles/internal/errors"
	"github.com/rcourtman/pulse-snmp-profiles/internal/snmp"
)

const probeDescriptionPrefix = "Snmp-Profile:"

// probe issues one GET for a candidate. The interpolated config is used on
// the wire; the raw config is what a success carries back.
func (m *Mapper) probe(ctx context.Context, logger zerolog.Logger, cat Catalog, c Candidate, addr netip.Addr, location string, oid snmp.ObjID) Outcome {
	interpolated := cat.AgentConfigFromProfile(c.Profile, addr, true)
	raw := cat.AgentConfigFromProfile(c.Profile, addr, false)

	req := snmp.GetRequest{
		Agent:       interpolated,
		OID:         oid,
		Location:    location,
		Description: probeDescriptionPrefix + c.Profile.Label,
	}

	start := time.Now()
	value, err := m.client.Get(ctx, req)
	elapsed := time.Since(start)

	var outcome Outcome
	switch {
	case err != nil:
		err = internalerrors.TagProfile(err, c.Profile.Label)
		// Unreachable or silent agents are expected while probing.
		event := logger.Info()
		if !internalerrors.IsTransportError(err) {
			event = logger.Warn()
		}
		event.
			Err(err).
			Str("profile", c.Profile.Label).
			Str("oid", oid.String()).
			Str("error_type", string(internalerrors.TypeOf(err))).
			Bool("retryable", internalerrors.IsRetryableError(err)).
			Msg("SNMP profile probe failed")
		outcome = Outcome{Status: OutcomeError}
	case value.IsError():
		logger.Debug().
			Str("profile", c.Profile.Label).
			Str("oid", oid.String()).
			Str("value_type", value.Type.String()).
			Msg("SNMP profile probe returned no usable value")
		outcome = Outcome{Status: OutcomeFailure}
	default:
		logger.Debug().
			Str("profile", c.Profile.Label).
			Str("oid", oid.String()).
			Str("value", value.String()).
			Msg("SNMP profile probe succeeded")
		outcome = Outcome{Status: OutcomeSuccess, Config: raw}
	}

	m.metrics.recordProbe(outcome.Status, elapsed)
	return outcome
}
