package snmpclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	internalerrors "github.com/rcourtman/pulse-snmp-profiles/internal/errors"
	"github.com/rcourtman/pulse-snmp-profiles/internal/snmp"
)

// DefaultLocation is the monitoring location served by this process.
const DefaultLocation = "Default"

// DefaultMaxConcurrent caps in-flight probes when no limit is configured.
const DefaultMaxConcurrent = 64

// Dispatcher executes a single GET against an agent.
type Dispatcher interface {
	Get(ctx context.Context, req snmp.GetRequest) (snmp.Value, error)
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, req snmp.GetRequest) (snmp.Value, error)

func (f DispatcherFunc) Get(ctx context.Context, req snmp.GetRequest) (snmp.Value, error) {
	return f(ctx, req)
}

// Config controls location routing and probe capacity.
type Config struct {
	// DefaultLocation names the local location; empty means "Default".
	DefaultLocation string
	// LocalLocations are extra location names served by the local dispatcher.
	LocalLocations []string
	// MaxConcurrent bounds in-flight probes across all locations.
	MaxConcurrent int64
}

// LocationAwareClient dispatches probes for the monitoring locations this
// process serves and rejects every other location.
type LocationAwareClient struct {
	local    Dispatcher
	locals   map[string]struct{}
	sem      *semaphore.Weighted
	fallback string
}

// NewLocationAwareClient creates a client whose local locations are served by local.
func NewLocationAwareClient(cfg Config, local Dispatcher) *LocationAwareClient {
	defaultLocation := strings.TrimSpace(cfg.DefaultLocation)
	if defaultLocation == "" {
		defaultLocation = DefaultLocation
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}

	locals := map[string]struct{}{defaultLocation: {}}
	for _, name := range cfg.LocalLocations {
		if name = strings.TrimSpace(name); name != "" {
			locals[name] = struct{}{}
		}
	}

	return &LocationAwareClient{
		local:    local,
		locals:   locals,
		sem:      semaphore.NewWeighted(maxConcurrent),
		fallback: defaultLocation,
	}
}

// Get performs one GET. A blank location means the default location. The
// returned error is a transport error; SNMP exception values come back as
// values with IsError set.
func (c *LocationAwareClient) Get(ctx context.Context, req snmp.GetRequest) (snmp.Value, error) {
	location := strings.TrimSpace(req.Location)
	if location == "" {
		location = c.fallback
	}
	target := req.Agent.Target()

	dispatcher, err := c.dispatcherFor(location)
	if err != nil {
		return snmp.Value{}, internalerrors.WrapTransportError("snmp_get", target, err)
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return snmp.Value{}, internalerrors.WrapTransportError("snmp_get", target, err)
	}
	defer c.sem.Release(1)

	log.Debug().
		Str("description", req.Description).
		Str("target", target).
		Str("oid", req.OID.String()).
		Str("location", location).
		Msg("Dispatching SNMP GET")

	value, err := dispatcher.Get(ctx, req)
	if err != nil {
		return snmp.Value{}, internalerrors.WrapTransportError("snmp_get", target, err)
	}
	return value, nil
}

func (c *LocationAwareClient) dispatcherFor(location string) (Dispatcher, error) {
	if _, ok := c.locals[location]; !ok {
		return nil, fmt.Errorf("location %q: %w", location, internalerrors.ErrUnknownLocation)
	}
	if c.local == nil {
		return nil, fmt.Errorf("no local dispatcher configured")
	}
	return c.local, nil
}
