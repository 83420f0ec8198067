package filter

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// MatchIPLike reports whether addr matches an IPLIKE pattern. IPv4 patterns
// have four dot-separated decimal octets, IPv6 patterns eight colon-separated
// hexadecimal hextets (no "::" shorthand). Each part is "*", a value, a range
// "a-b", or a comma-separated list of values and ranges.
func MatchIPLike(addr netip.Addr, pattern string) (bool, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return false, fmt.Errorf("empty iplike pattern")
	}
	addr = addr.Unmap()

	var (
		parts  []uint64
		fields []string
		base   int
		max    uint64
	)
	switch {
	case addr.Is4() && !strings.Contains(pattern, ":"):
		fields = strings.Split(pattern, ".")
		if len(fields) != 4 {
			return false, fmt.Errorf("iplike pattern %q: expected 4 octets", pattern)
		}
		for _, b := range addr.As4() {
			parts = append(parts, uint64(b))
		}
		base, max = 10, 0xff
	case addr.Is6() && strings.Contains(pattern, ":"):
		fields = strings.Split(pattern, ":")
		if len(fields) != 8 {
			return false, fmt.Errorf("iplike pattern %q: expected 8 hextets", pattern)
		}
		raw := addr.As16()
		for i := 0; i < 16; i += 2 {
			parts = append(parts, uint64(raw[i])<<8|uint64(raw[i+1]))
		}
		base, max = 16, 0xffff
	default:
		// Address family mismatch never matches.
		if err := checkPatternSyntax(pattern); err != nil {
			return false, err
		}
		return false, nil
	}

	matched := true
	for i, field := range fields {
		ok, err := matchPart(parts[i], field, base, max)
		if err != nil {
			return false, fmt.Errorf("iplike pattern %q: %w", pattern, err)
		}
		if !ok {
			matched = false
		}
	}
	return matched, nil
}

func checkPatternSyntax(pattern string) error {
	fields, base, max := strings.Split(pattern, "."), 10, uint64(0xff)
	if strings.Contains(pattern, ":") {
		fields, base, max = strings.Split(pattern, ":"), 16, 0xffff
		if len(fields) != 8 {
			return fmt.Errorf("iplike pattern %q: expected 8 hextets", pattern)
		}
	} else if len(fields) != 4 {
		return fmt.Errorf("iplike pattern %q: expected 4 octets", pattern)
	}
	for _, field := range fields {
		if _, err := matchPart(0, field, base, max); err != nil {
			return fmt.Errorf("iplike pattern %q: %w", pattern, err)
		}
	}
	return nil
}

func matchPart(value uint64, field string, base int, max uint64) (bool, error) {
	field = strings.TrimSpace(field)
	if field == "*" {
		return true, nil
	}
	if field == "" {
		return false, fmt.Errorf("empty part")
	}

	matched := false
	for _, item := range strings.Split(field, ",") {
		lo, hi, isRange := strings.Cut(item, "-")
		start, err := parsePart(lo, base, max)
		if err != nil {
			return false, err
		}
		end := start
		if isRange {
			if end, err = parsePart(hi, base, max); err != nil {
				return false, err
			}
			if end < start {
				return false, fmt.Errorf("descending range %q", item)
			}
		}
		if value >= start && value <= end {
			matched = true
		}
	}
	return matched, nil
}

func parsePart(s string, base int, max uint64) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "*" {
		return 0, fmt.Errorf("wildcard inside list or range")
	}
	v, err := strconv.ParseUint(s, base, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q", s)
	}
	if v > max {
		return 0, fmt.Errorf("value %q out of range", s)
	}
	return v, nil
}
