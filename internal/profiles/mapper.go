package profiles

import (
	"context"
	"net/netip"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/rcourtman/pulse-snmp-profiles/internal/snmp"
)

const (
	methodProbing = "probing"
	methodLabel   = "label"
	methodDefault = "default"
)

// Mapper resolves which SNMP profile works for an agent by probing every
// applicable profile concurrently and picking the first success in catalog
// order. It holds no per-call state and is safe for concurrent use.
//
// Probes are never cancelled once started, and the mapper adds no timeout of
// its own: a probe that never returns blocks its resolution.
type Mapper struct {
	catalog Catalog
	filter  Filter
	client  ProbeClient
	metrics *Metrics
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithMetrics records resolution metrics.
func WithMetrics(m *Metrics) Option {
	return func(mp *Mapper) {
		mp.metrics = m
	}
}

// New creates a Mapper over the given collaborators.
func New(catalog Catalog, filter Filter, client ProbeClient, opts ...Option) *Mapper {
	m := &Mapper{
		catalog: catalog,
		filter:  filter,
		client:  client,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ResolveByProbing probes every profile whose filter matches addr and returns
// the raw config of the highest-priority profile that answered. oid overrides
// the probed object; blank means sysObjectID.0.
func (m *Mapper) ResolveByProbing(ctx context.Context, addr netip.Addr, location, oid string) Result {
	logger := m.resolutionLogger(addr, location)
	result := m.resolveByProbing(ctx, logger, addr, location, oid)
	m.metrics.recordResolution(methodProbing, result.Found)
	return result
}

// ResolveByLabel probes only the first profile labelled label. The profile's
// filter is not evaluated. A blank label behaves like ResolveByProbing; an
// unknown label returns an empty result without probing.
func (m *Mapper) ResolveByLabel(ctx context.Context, label string, addr netip.Addr, location, oid string) Result {
	logger := m.resolutionLogger(addr, location)
	result := m.resolveByLabel(ctx, logger, label, addr, location, oid)
	m.metrics.recordResolution(methodLabel, result.Found)
	return result
}

// ResolveDefault probes every matching profile for sysObjectID.0.
func (m *Mapper) ResolveDefault(ctx context.Context, addr netip.Addr, location string) Result {
	logger := m.resolutionLogger(addr, location)
	result := m.resolveByProbing(ctx, logger, addr, location, "")
	m.metrics.recordResolution(methodDefault, result.Found)
	return result
}

// ResolveByProbingAsync runs ResolveByProbing in the background. The channel
// yields exactly one Result and is then closed.
func (m *Mapper) ResolveByProbingAsync(ctx context.Context, addr netip.Addr, location, oid string) <-chan Result {
	return async(func() Result { return m.ResolveByProbing(ctx, addr, location, oid) })
}

// ResolveByLabelAsync runs ResolveByLabel in the background.
func (m *Mapper) ResolveByLabelAsync(ctx context.Context, label string, addr netip.Addr, location, oid string) <-chan Result {
	return async(func() Result { return m.ResolveByLabel(ctx, label, addr, location, oid) })
}

// ResolveDefaultAsync runs ResolveDefault in the background.
func (m *Mapper) ResolveDefaultAsync(ctx context.Context, addr netip.Addr, location string) <-chan Result {
	return async(func() Result { return m.ResolveDefault(ctx, addr, location) })
}

func async(fn func() Result) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		ch <- fn()
	}()
	return ch
}

func (m *Mapper) resolutionLogger(addr netip.Addr, location string) zerolog.Logger {
	return log.With().
		Str("resolution_id", ulid.Make().String()).
		Str("ip", addr.String()).
		Str("location", location).
		Logger()
}

// catalogView returns the catalog one resolution reads from.
func (m *Mapper) catalogView() Catalog {
	if s, ok := m.catalog.(snapshotter); ok {
		return s.Snapshot()
	}
	return m.catalog
}

func (m *Mapper) resolveByProbing(ctx context.Context, logger zerolog.Logger, addr netip.Addr, location, oid string) Result {
	target, ok := targetOID(logger, oid)
	if !ok {
		return Result{}
	}

	cat := m.catalogView()
	candidates := m.selectCandidates(logger, addr.String(), cat.Profiles())
	m.metrics.recordCandidates(len(candidates))
	if len(candidates) == 0 {
		logger.Debug().Msg("No SNMP profiles match address")
		return Result{}
	}

	outcomes := m.probeAll(ctx, logger, cat, candidates, addr, location, target)
	result := firstSuccess(outcomes)
	logResult(logger, result, len(candidates))
	return result
}

func (m *Mapper) resolveByLabel(ctx context.Context, logger zerolog.Logger, label string, addr netip.Addr, location, oid string) Result {
	if strings.TrimSpace(label) == "" {
		return m.resolveByProbing(ctx, logger, addr, location, oid)
	}

	target, ok := targetOID(logger, oid)
	if !ok {
		return Result{}
	}

	cat := m.catalogView()
	for i, p := range cat.Profiles() {
		if p.Label != label {
			continue
		}
		outcome := m.probe(ctx, logger, cat, Candidate{Index: i, Profile: p}, addr, location, target)
		result := firstSuccess([]Outcome{outcome})
		logResult(logger, result, 1)
		return result
	}

	logger.Debug().Str("profile", label).Msg("No SNMP profile with label")
	return Result{}
}

// probeAll probes every candidate concurrently and waits for all of them.
// Each task writes only its own slot, so outcomes stay in priority order.
func (m *Mapper) probeAll(ctx context.Context, logger zerolog.Logger, cat Catalog, candidates []Candidate, addr netip.Addr, location string, oid snmp.ObjID) []Outcome {
	outcomes := make([]Outcome, len(candidates))

	var g errgroup.Group
	for i, c := range candidates {
		g.Go(func() error {
			outcomes[i] = m.probe(ctx, logger, cat, c, addr, location, oid)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func targetOID(logger zerolog.Logger, oid string) (snmp.ObjID, bool) {
	if strings.TrimSpace(oid) == "" {
		return snmp.SysObjectID(), true
	}
	parsed, err := snmp.ParseObjID(oid)
	if err != nil {
		logger.Warn().Err(err).Str("oid", oid).Msg("Invalid probe OID; skipping resolution")
		return snmp.ObjID{}, false
	}
	return parsed, true
}

func logResult(logger zerolog.Logger, result Result, candidates int) {
	if !result.Found {
		logger.Info().Int("candidates", candidates).Msg("No SNMP profile answered")
		return
	}
	logger.Info().
		Int("candidates", candidates).
		Str("profile", result.Config.ProfileLabel).
		Msg("Resolved SNMP profile")
}
