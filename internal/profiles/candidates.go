package profiles

import (
	"strings"

	"github.com/rs/zerolog"

	internalerrors "github.com/rcourtman/pulse-snmp-profiles/internal/errors"
	"github.com/rcourtman/pulse-snmp-profiles/internal/snmpconfig"
)

// selectCandidates returns the profiles whose filter matches address, in
// catalog order. A blank filter always matches. A filter that fails to
// evaluate excludes its profile.
func (m *Mapper) selectCandidates(logger zerolog.Logger, address string, profiles []snmpconfig.Profile) []Candidate {
	candidates := make([]Candidate, 0, len(profiles))
	for i, p := range profiles {
		expression := strings.TrimSpace(p.FilterExpression)
		if expression == "" {
			candidates = append(candidates, Candidate{Index: i, Profile: p})
			continue
		}

		matched, err := m.filter.IsValid(address, p.FilterExpression)
		if err != nil {
			err = internalerrors.TagProfile(err, p.Label)
			logger.Warn().
				Err(err).
				Str("profile", p.Label).
				Str("filter", p.FilterExpression).
				Msg("Failed to evaluate profile filter; skipping profile")
			m.metrics.recordFilterError()
			continue
		}
		if matched {
			candidates = append(candidates, Candidate{Index: i, Profile: p})
		}
	}
	return candidates
}
