package snmp

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ValueType mirrors the ASN.1 types an agent can return for a GET.
type ValueType int

const (
	TypeUnknown ValueType = iota
	TypeInteger
	TypeOctetString
	TypeNull
	TypeObjectIdentifier
	TypeIPAddress
	TypeCounter32
	TypeGauge32
	TypeTimeTicks
	TypeOpaque
	TypeCounter64
	TypeNoSuchObject
	TypeNoSuchInstance
	TypeEndOfMibView
)

var valueTypeNames = map[ValueType]string{
	TypeUnknown:          "unknown",
	TypeInteger:          "integer",
	TypeOctetString:      "octet-string",
	TypeNull:             "null",
	TypeObjectIdentifier: "object-identifier",
	TypeIPAddress:        "ip-address",
	TypeCounter32:        "counter32",
	TypeGauge32:          "gauge32",
	TypeTimeTicks:        "timeticks",
	TypeOpaque:           "opaque",
	TypeCounter64:        "counter64",
	TypeNoSuchObject:     "no-such-object",
	TypeNoSuchInstance:   "no-such-instance",
	TypeEndOfMibView:     "end-of-mib-view",
}

func (t ValueType) String() string {
	if name, ok := valueTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// Value is a single varbind value returned by a probe.
type Value struct {
	Type ValueType
	Raw  any
}

// IsError reports whether the agent answered with an exception value instead
// of data. A zero Value counts as an error: the agent returned nothing usable.
func (v Value) IsError() bool {
	switch v.Type {
	case TypeNoSuchObject, TypeNoSuchInstance, TypeEndOfMibView, TypeUnknown:
		return true
	default:
		return false
	}
}

func (v Value) String() string {
	switch raw := v.Raw.(type) {
	case nil:
		return v.Type.String()
	case []byte:
		if utf8.Valid(raw) {
			return strings.TrimRight(string(raw), "\x00")
		}
		return fmt.Sprintf("%x", raw)
	case string:
		return raw
	default:
		return fmt.Sprintf("%v", raw)
	}
}
