package snmpconfig

import (
	"net/netip"
	"os"
	"regexp"
	"strings"
)

// MetadataSource resolves "${scope:key}" placeholders for a given agent address.
type MetadataSource interface {
	Metadata(addr netip.Addr, scope, key string) (string, bool)
}

// StaticMetadata serves fixed scope/key values, e.g. the metadata block of the
// profile file.
type StaticMetadata map[string]map[string]string

func (s StaticMetadata) Metadata(_ netip.Addr, scope, key string) (string, bool) {
	values, ok := s[scope]
	if !ok {
		return "", false
	}
	v, ok := values[key]
	return v, ok
}

// EnvMetadata serves the "env" scope from process environment variables.
type EnvMetadata struct {
	LookupEnv func(string) (string, bool)
}

func (e EnvMetadata) Metadata(_ netip.Addr, scope, key string) (string, bool) {
	if scope != "env" {
		return "", false
	}
	lookup := e.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return lookup(key)
}

// MultiSource consults each source in order and returns the first hit.
type MultiSource []MetadataSource

func (m MultiSource) Metadata(addr netip.Addr, scope, key string) (string, bool) {
	for _, src := range m {
		if src == nil {
			continue
		}
		if v, ok := src.Metadata(addr, scope, key); ok {
			return v, true
		}
	}
	return "", false
}

var placeholderPattern = regexp.MustCompile(`\$\{([^{}]+)\}`)

// Interpolate replaces every ${scope:key|scope:key|default} placeholder in
// value. Alternatives are tried left to right; a trailing alternative without a
// colon is a literal default. Unresolved placeholders become empty strings.
func Interpolate(value string, addr netip.Addr, src MetadataSource) string {
	if !strings.Contains(value, "${") {
		return value
	}
	return placeholderPattern.ReplaceAllStringFunc(value, func(match string) string {
		body := match[2 : len(match)-1]
		for _, alt := range strings.Split(body, "|") {
			alt = strings.TrimSpace(alt)
			scope, key, scoped := strings.Cut(alt, ":")
			if !scoped {
				return alt
			}
			if src == nil {
				continue
			}
			if v, ok := src.Metadata(addr, strings.TrimSpace(scope), strings.TrimSpace(key)); ok {
				return v
			}
		}
		return ""
	})
}
