package main

import (
	"context"
	"net/netip"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcourtman/pulse-snmp-profiles/internal/filter"
	"github.com/rcourtman/pulse-snmp-profiles/internal/inventory"
	"github.com/rcourtman/pulse-snmp-profiles/internal/profiles"
	"github.com/rcourtman/pulse-snmp-profiles/internal/snmp"
	"github.com/rcourtman/pulse-snmp-profiles/internal/snmpconfig"
)

// answeringClient answers every GET and remembers which profiles were tried.
type answeringClient struct {
	mu     sync.Mutex
	probed []string
}

func (c *answeringClient) Get(_ context.Context, req snmp.GetRequest) (snmp.Value, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probed = append(c.probed, req.Agent.ProfileLabel)
	return snmp.Value{Type: snmp.TypeObjectIdentifier, Raw: ".1.3.6.1.4.1.318.1.3.27"}, nil
}

func (c *answeringClient) labels() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.probed...)
}

func TestInventoryFailureExcludesFilteredProfiles(t *testing.T) {
	store, err := inventory.Open(filepath.Join(t.TempDir(), "inventory.db"))
	require.NoError(t, err)

	addr := netip.MustParseAddr("10.0.0.1")
	_, err = store.UpsertNode(context.Background(), inventory.Node{
		Label:      "legacy-ups",
		Interfaces: []netip.Addr{addr},
		Categories: []string{"Excluded"},
	})
	require.NoError(t, err)

	evaluator, err := filter.NewEvaluator(store)
	require.NoError(t, err)
	factory := snmpconfig.NewFactory(&snmpconfig.Catalog{Profiles: []snmpconfig.Profile{
		{Label: "modern", FilterExpression: `!("Excluded" in categories)`},
		{Label: "fallback"},
	}}, store)

	client := &answeringClient{}
	mapper := profiles.New(factory, evaluator, client)

	result := mapper.ResolveByProbing(context.Background(), addr, "", "")
	require.True(t, result.Found)
	assert.Equal(t, "fallback", result.Config.ProfileLabel)
	assert.Equal(t, []string{"fallback"}, client.labels())

	// With the inventory unreadable the filter cannot be evaluated, so the
	// filtered profile stays excluded instead of matching empty facts.
	require.NoError(t, store.Close())
	client = &answeringClient{}
	mapper = profiles.New(factory, evaluator, client)

	result = mapper.ResolveByProbing(context.Background(), addr, "", "")
	require.True(t, result.Found)
	assert.Equal(t, "fallback", result.Config.ProfileLabel)
	assert.Equal(t, []string{"fallback"}, client.labels())
}
