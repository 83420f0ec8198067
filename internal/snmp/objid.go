package snmp

import (
	"fmt"
	"strconv"
	"strings"
)

// SysObjectIDInstance is the sysObjectID.0 instance every SNMP agent is
// expected to answer. It is the default probe target when resolving profiles.
const SysObjectIDInstance = ".1.3.6.1.2.1.1.2.0"

// ObjID is a parsed numeric object identifier.
type ObjID struct {
	arcs []uint32
}

// ParseObjID parses a dotted numeric OID. A single leading dot is optional.
func ParseObjID(s string) (ObjID, error) {
	trimmed := strings.TrimSpace(s)
	trimmed = strings.TrimPrefix(trimmed, ".")
	if trimmed == "" {
		return ObjID{}, fmt.Errorf("invalid object id %q: empty", s)
	}

	parts := strings.Split(trimmed, ".")
	arcs := make([]uint32, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			return ObjID{}, fmt.Errorf("invalid object id %q: empty arc", s)
		}
		n, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return ObjID{}, fmt.Errorf("invalid object id %q: %w", s, err)
		}
		arcs = append(arcs, uint32(n))
	}

	return ObjID{arcs: arcs}, nil
}

// MustParseObjID is ParseObjID for package-level constants.
func MustParseObjID(s string) ObjID {
	oid, err := ParseObjID(s)
	if err != nil {
		panic(err)
	}
	return oid
}

// SysObjectID returns the parsed sysObjectID.0 instance.
func SysObjectID() ObjID {
	return MustParseObjID(SysObjectIDInstance)
}

// IsZero reports whether the OID was never set.
func (o ObjID) IsZero() bool {
	return len(o.arcs) == 0
}

// String renders the OID with a leading dot, the form gosnmp expects.
func (o ObjID) String() string {
	if len(o.arcs) == 0 {
		return ""
	}
	var b strings.Builder
	for _, arc := range o.arcs {
		b.WriteByte('.')
		b.WriteString(strconv.FormatUint(uint64(arc), 10))
	}
	return b.String()
}
