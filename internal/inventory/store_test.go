package inventory

import (
	"context"
	"errors"
	"net/netip"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalerrors "github.com/rcourtman/pulse-snmp-profiles/internal/errors"
	"github.com/rcourtman/pulse-snmp-profiles/internal/filter"
	"github.com/rcourtman/pulse-snmp-profiles/internal/snmpconfig"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "inventory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestUpsertAndLookup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.UpsertNode(ctx, Node{
		Label:       "core-sw-01",
		Location:    "Default",
		SysObjectID: ".1.3.6.1.4.1.9.1.1",
		Interfaces:  []netip.Addr{netip.MustParseAddr("10.0.0.2"), netip.MustParseAddr("10.0.0.1")},
		Categories:  []string{"Switches", " ", "Production"},
		Metadata:    map[string]map[string]string{"node": {"community": "n0de"}},
	})
	require.NoError(t, err)
	assert.NotZero(t, id)

	node, err := store.NodeByIP(ctx, netip.MustParseAddr("10.0.0.2"))
	require.NoError(t, err)
	assert.Equal(t, id, node.ID)
	assert.Equal(t, "core-sw-01", node.Label)
	assert.Equal(t, []netip.Addr{netip.MustParseAddr("10.0.0.1"), netip.MustParseAddr("10.0.0.2")}, node.Interfaces)
	assert.Equal(t, []string{"Production", "Switches"}, node.Categories)
	assert.Equal(t, "n0de", node.Metadata["node"]["community"])

	_, err = store.NodeByIP(ctx, netip.MustParseAddr("10.9.9.9"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, internalerrors.ErrNotFound))
}

func TestUpsertReplacesChildren(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.UpsertNode(ctx, Node{
		Label:      "edge",
		Interfaces: []netip.Addr{netip.MustParseAddr("192.0.2.1")},
		Categories: []string{"Old"},
	})
	require.NoError(t, err)

	second, err := store.UpsertNode(ctx, Node{
		Label:      "edge",
		Location:   "branch",
		Interfaces: []netip.Addr{netip.MustParseAddr("192.0.2.2")},
		Categories: []string{"New"},
	})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	nodes, err := store.ListNodes(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "branch", nodes[0].Location)
	assert.Equal(t, []string{"New"}, nodes[0].Categories)
	assert.Equal(t, []netip.Addr{netip.MustParseAddr("192.0.2.2")}, nodes[0].Interfaces)
}

func TestInterfaceMovesBetweenNodes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	addr := netip.MustParseAddr("10.1.1.1")

	_, err := store.UpsertNode(ctx, Node{Label: "a", Interfaces: []netip.Addr{addr}})
	require.NoError(t, err)
	_, err = store.UpsertNode(ctx, Node{Label: "b", Interfaces: []netip.Addr{addr}})
	require.NoError(t, err)

	node, err := store.NodeByIP(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, "b", node.Label)
}

func TestUpsertRequiresLabel(t *testing.T) {
	store := newTestStore(t)
	_, err := store.UpsertNode(context.Background(), Node{Label: "  "})
	require.Error(t, err)
	assert.True(t, errors.Is(err, internalerrors.ErrInvalidInput))
}

func TestNodeFactsAndMetadata(t *testing.T) {
	store, err := Open(MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, err = store.UpsertNode(context.Background(), Node{
		Label:         "fw-01",
		ForeignSource: "firewalls",
		Hostname:      "fw-01.example.net",
		Interfaces:    []netip.Addr{netip.MustParseAddr("2001:db8::1")},
		Categories:    []string{"Firewalls"},
		Metadata:      map[string]map[string]string{"node": {"snmp-user": "fwops"}},
	})
	require.NoError(t, err)

	facts, ok, err := store.NodeFacts(netip.MustParseAddr("2001:db8::1"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "fw-01", facts.NodeLabel)
	assert.Equal(t, "firewalls", facts.ForeignSource)
	assert.Equal(t, "fw-01.example.net", facts.Hostname)
	assert.Equal(t, []string{"Firewalls"}, facts.Categories)

	_, ok, err = store.NodeFacts(netip.MustParseAddr("2001:db8::2"))
	require.NoError(t, err, "a missing node is not an error")
	assert.False(t, ok)

	var src snmpconfig.MetadataSource = store
	v, ok := src.Metadata(netip.MustParseAddr("2001:db8::1"), "node", "snmp-user")
	require.True(t, ok)
	assert.Equal(t, "fwops", v)

	_, ok = src.Metadata(netip.MustParseAddr("2001:db8::1"), "requisition", "snmp-user")
	assert.False(t, ok)

	assert.Equal(t, "fwops", snmpconfig.Interpolate("${node:snmp-user|guest}", netip.MustParseAddr("2001:db8::1"), store))
	assert.Equal(t, "guest", snmpconfig.Interpolate("${node:snmp-user|guest}", netip.MustParseAddr("2001:db8::9"), store))
}

func TestFilterExcludesWhenInventoryFails(t *testing.T) {
	store := newTestStore(t)
	addr := netip.MustParseAddr("10.0.0.1")
	_, err := store.UpsertNode(context.Background(), Node{
		Label:      "legacy-ups",
		Interfaces: []netip.Addr{addr},
		Categories: []string{"Excluded"},
	})
	require.NoError(t, err)

	eval, err := filter.NewEvaluator(store)
	require.NoError(t, err)
	const expr = `!("Excluded" in categories)`

	matched, err := eval.IsValid(addr.String(), expr)
	require.NoError(t, err)
	assert.False(t, matched)

	require.NoError(t, store.db.Close())

	_, _, err = store.NodeFacts(addr)
	require.Error(t, err)

	matched, err = eval.IsValid(addr.String(), expr)
	require.Error(t, err)
	assert.False(t, matched)
	var parseErr *filter.ParseError
	assert.True(t, errors.As(err, &parseErr))
}
