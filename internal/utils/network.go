package utils

import (
	"fmt"
	"net/netip"
	"strings"
)

// ParseHostAddress parses an IP literal, tolerating a trailing port and IPv6
// brackets ("10.0.0.1:161", "[fe80::1]:161").
func ParseHostAddress(value string) (netip.Addr, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return netip.Addr{}, fmt.Errorf("empty address")
	}

	if addr, err := netip.ParseAddr(strings.Trim(value, "[]")); err == nil {
		return addr.Unmap(), nil
	}

	addrPort, err := netip.ParseAddrPort(value)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("invalid address %q: %w", value, err)
	}
	return addrPort.Addr().Unmap(), nil
}
