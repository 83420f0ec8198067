package snmpconfig

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcourtman/pulse-snmp-profiles/internal/snmp"
)

const sampleYAML = `
defaults:
  timeout: 3s
  retries: 2
  read-community: fallback
metadata:
  scv:
    lab-community: s3cret
profiles:
  - label: lab
    filter: 'iplike(ipaddr, "10.*.*.*")'
    read-community: ${scv:lab-community|public}
    port: 1161
  - label: core-v3
    version: v3
    security-name: ${env:SNMP_USER|monitor}
    auth-protocol: SHA
    auth-passphrase: authpass
    priv-protocol: AES
    priv-passphrase: privpass
  - label: plain
`

func TestParseKeepsFileOrder(t *testing.T) {
	cat, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	require.Len(t, cat.Profiles, 3)

	labels := []string{}
	for _, p := range cat.Profiles {
		labels = append(labels, p.Label)
	}
	assert.Equal(t, []string{"lab", "core-v3", "plain"}, labels)
	assert.Equal(t, `iplike(ipaddr, "10.*.*.*")`, cat.Profiles[0].FilterExpression)
	assert.Empty(t, cat.Profiles[2].FilterExpression)
}

func TestParseValidation(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		yaml string
	}{
		{name: "missing label", yaml: "profiles:\n  - filter: x\n"},
		{name: "duplicate label", yaml: "profiles:\n  - label: a\n  - label: a\n"},
		{name: "padded label", yaml: "profiles:\n  - label: ' a'\n"},
		{name: "bad version", yaml: "profiles:\n  - label: a\n    version: v9\n"},
		{name: "bad port", yaml: "profiles:\n  - label: a\n    port: 70000\n"},
		{name: "bad timeout", yaml: "defaults:\n  timeout: soon\n"},
		{name: "negative retries", yaml: "profiles:\n  - label: a\n    retries: -1\n"},
		{name: "bad auth", yaml: "profiles:\n  - label: a\n    auth-protocol: rot13\n"},
		{name: "bad level", yaml: "profiles:\n  - label: a\n    security-level: maximum\n"},
		{name: "bad yaml", yaml: "profiles: [\n"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestAgentConfigFromProfileMergesLayers(t *testing.T) {
	cat, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	f := NewFactory(cat, nil)
	addr := netip.MustParseAddr("10.1.2.3")

	raw := f.AgentConfigFromProfile(cat.Profiles[0], addr, false)
	assert.Equal(t, addr, raw.Address)
	assert.Equal(t, 1161, raw.Port)
	assert.Equal(t, 3*time.Second, raw.Timeout)
	assert.Equal(t, 2, raw.Retries)
	assert.Equal(t, snmp.Version2c, raw.Version)
	assert.Equal(t, DefaultMaxVarsPerPdu, raw.MaxVarsPerPdu)
	assert.Equal(t, "${scv:lab-community|public}", raw.ReadCommunity, "raw config keeps placeholders")
	assert.Equal(t, "lab", raw.ProfileLabel)

	interpolated := f.AgentConfigFromProfile(cat.Profiles[0], addr, true)
	assert.Equal(t, "s3cret", interpolated.ReadCommunity)

	plain := f.AgentConfigFromProfile(cat.Profiles[2], addr, true)
	assert.Equal(t, "fallback", plain.ReadCommunity)
	assert.Equal(t, DefaultPort, plain.Port)
}

func TestAgentConfigFromProfileV3(t *testing.T) {
	cat, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	env := EnvMetadata{LookupEnv: func(key string) (string, bool) {
		if key == "SNMP_USER" {
			return "ops", true
		}
		return "", false
	}}
	f := NewFactory(cat, env)

	cfg := f.AgentConfigFromProfile(cat.Profiles[1], netip.MustParseAddr("192.0.2.1"), true)
	assert.Equal(t, snmp.Version3, cfg.Version)
	assert.Equal(t, "ops", cfg.SecurityName)
	assert.Equal(t, snmp.AuthPriv, cfg.SecurityLevel)
	assert.Equal(t, "sha", cfg.AuthProtocol)
	assert.Equal(t, "aes", cfg.PrivProtocol)

	f = NewFactory(cat, nil)
	cfg = f.AgentConfigFromProfile(cat.Profiles[1], netip.MustParseAddr("192.0.2.1"), true)
	assert.Equal(t, "monitor", cfg.SecurityName, "falls back to literal default")
}

func TestConfigsAreIndependentValues(t *testing.T) {
	f := NewFactory(&Catalog{Profiles: []Profile{{Label: "a"}}}, nil)
	p := f.Profiles()[0]

	a := f.AgentConfigFromProfile(p, netip.MustParseAddr("10.0.0.1"), true)
	b := f.AgentConfigFromProfile(p, netip.MustParseAddr("10.0.0.2"), true)
	a.ReadCommunity = "changed"
	assert.Equal(t, DefaultReadCommunity, b.ReadCommunity)
	assert.NotEqual(t, a.Address, b.Address)
}

func TestProfilesReturnsCopy(t *testing.T) {
	f := NewFactory(&Catalog{Profiles: []Profile{{Label: "a"}, {Label: "b"}}}, nil)
	profiles := f.Profiles()
	profiles[0].Label = "mutated"
	assert.Equal(t, "a", f.Profiles()[0].Label)

	f.Replace(nil)
	assert.Empty(t, f.Profiles())
}

func TestSnapshotSurvivesReplace(t *testing.T) {
	f := NewFactory(&Catalog{
		Defaults: AgentParams{Timeout: "1s"},
		Profiles: []Profile{{Label: "a"}},
	}, nil)
	snap := f.Snapshot()

	f.Replace(&Catalog{
		Defaults: AgentParams{Timeout: "9s"},
		Profiles: []Profile{{Label: "b"}},
	})

	require.Len(t, snap.Profiles(), 1)
	assert.Equal(t, "a", snap.Profiles()[0].Label)
	cfg := snap.AgentConfigFromProfile(snap.Profiles()[0], netip.MustParseAddr("10.0.0.1"), true)
	assert.Equal(t, time.Second, cfg.Timeout)

	current := f.AgentConfigFromProfile(f.Profiles()[0], netip.MustParseAddr("10.0.0.1"), true)
	assert.Equal(t, "b", current.ProfileLabel)
	assert.Equal(t, 9*time.Second, current.Timeout)
}

func TestInterpolate(t *testing.T) {
	src := MultiSource{
		StaticMetadata{"node": {"community": "nodecomm"}},
		StaticMetadata{"scv": {"community": "vaultcomm", "user": "u"}},
	}
	addr := netip.MustParseAddr("10.0.0.1")

	assert.Equal(t, "nodecomm", Interpolate("${node:community|scv:community}", addr, src))
	assert.Equal(t, "vaultcomm", Interpolate("${requisition:community|scv:community}", addr, src))
	assert.Equal(t, "def", Interpolate("${missing:x|def}", addr, src))
	assert.Equal(t, "", Interpolate("${missing:x}", addr, src))
	assert.Equal(t, "u@nodecomm", Interpolate("${scv:user}@${node:community}", addr, src))
	assert.Equal(t, "literal", Interpolate("literal", addr, nil))
	assert.Equal(t, "fallback", Interpolate("${scv:user|fallback}", addr, nil))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snmp-profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte("profiles:\n  - label: first\n"), 0o600))

	cat, err := Load(path)
	require.NoError(t, err)
	factory := NewFactory(cat, nil)

	w, err := NewWatcher(path, factory)
	require.NoError(t, err)
	reloaded := make(chan *Catalog, 4)
	w.OnReload(func(c *Catalog) {
		select {
		case reloaded <- c:
		default:
		}
	})
	require.NoError(t, w.Start())
	t.Cleanup(w.Stop)

	require.NoError(t, os.WriteFile(path, []byte("profiles:\n  - label: first\n  - label: second\n"), 0o600))

	deadline := time.After(5 * time.Second)
	for len(factory.Profiles()) != 2 {
		select {
		case <-reloaded:
		case <-deadline:
			t.Fatal("watcher did not reload profile file")
		}
	}
	assert.Equal(t, "second", factory.Profiles()[1].Label)
}

func TestWatcherKeepsCatalogOnBadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snmp-profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte("profiles:\n  - label: only\n"), 0o600))

	cat, err := Load(path)
	require.NoError(t, err)
	factory := NewFactory(cat, nil)
	w, err := NewWatcher(path, factory)
	require.NoError(t, err)
	t.Cleanup(w.Stop)

	require.NoError(t, os.WriteFile(path, []byte("profiles:\n  - label: dup\n  - label: dup\n"), 0o600))
	assert.Error(t, w.Reload())
	require.Len(t, factory.Profiles(), 1)
	assert.Equal(t, "only", factory.Profiles()[0].Label)
}
