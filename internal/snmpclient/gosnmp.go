package snmpclient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/rcourtman/pulse-snmp-profiles/internal/snmp"
)

// GoSNMPDispatcher issues GETs from this process using gosnmp. Each request
// opens its own UDP socket, so the dispatcher is safe for concurrent use.
type GoSNMPDispatcher struct {
	// Transport is "udp" (default), "udp4", "udp6" or "tcp".
	Transport string
}

// NewGoSNMPDispatcher returns a UDP dispatcher.
func NewGoSNMPDispatcher() *GoSNMPDispatcher {
	return &GoSNMPDispatcher{Transport: "udp"}
}

func (d *GoSNMPDispatcher) Get(ctx context.Context, req snmp.GetRequest) (snmp.Value, error) {
	if req.OID.IsZero() {
		return snmp.Value{}, fmt.Errorf("get from %s: no object id", req.Agent.Target())
	}
	session, err := newSession(ctx, req.Agent, d.Transport)
	if err != nil {
		return snmp.Value{}, err
	}
	if err := session.Connect(); err != nil {
		return snmp.Value{}, fmt.Errorf("connect %s: %w", req.Agent.Target(), err)
	}
	defer session.Conn.Close()

	packet, err := session.Get([]string{req.OID.String()})
	if err != nil {
		return snmp.Value{}, fmt.Errorf("get %s from %s: %w", req.OID, req.Agent.Target(), err)
	}
	if packet.Error != gosnmp.NoError {
		// Agent-level errors (e.g. v1 noSuchName) are answers, not transport failures.
		return snmp.Value{Type: snmp.TypeNoSuchObject, Raw: packet.Error.String()}, nil
	}
	if len(packet.Variables) == 0 {
		return snmp.Value{}, nil
	}
	return convertPDU(packet.Variables[0]), nil
}

func newSession(ctx context.Context, cfg snmp.AgentConfig, transport string) (*gosnmp.GoSNMP, error) {
	if !cfg.Address.IsValid() {
		return nil, fmt.Errorf("agent address is not set")
	}
	if transport == "" {
		transport = "udp"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	session := &gosnmp.GoSNMP{
		Context:        ctx,
		Target:         cfg.Address.String(),
		Port:           uint16(cfg.Port),
		Transport:      transport,
		Community:      cfg.ReadCommunity,
		Timeout:        timeout,
		Retries:        cfg.Retries,
		MaxOids:        cfg.MaxVarsPerPdu,
		MaxRepetitions: uint32(cfg.MaxRepetitions),
		ContextName:    cfg.ContextName,
	}
	if session.MaxOids <= 0 {
		session.MaxOids = gosnmp.MaxOids
	}

	switch cfg.Version {
	case snmp.Version1:
		session.Version = gosnmp.Version1
	case snmp.Version3:
		session.Version = gosnmp.Version3
		session.SecurityModel = gosnmp.UserSecurityModel
		session.MsgFlags = msgFlags(cfg.SecurityLevel)

		auth, err := authProtocol(cfg.AuthProtocol)
		if err != nil {
			return nil, err
		}
		priv, err := privProtocol(cfg.PrivProtocol)
		if err != nil {
			return nil, err
		}
		session.SecurityParameters = &gosnmp.UsmSecurityParameters{
			UserName:                 cfg.SecurityName,
			AuthenticationProtocol:   auth,
			AuthenticationPassphrase: cfg.AuthPassPhrase,
			PrivacyProtocol:          priv,
			PrivacyPassphrase:        cfg.PrivPassPhrase,
			AuthoritativeEngineID:    cfg.EngineID,
		}
	default:
		session.Version = gosnmp.Version2c
	}
	return session, nil
}

func msgFlags(level snmp.SecurityLevel) gosnmp.SnmpV3MsgFlags {
	switch level {
	case snmp.AuthPriv:
		return gosnmp.AuthPriv
	case snmp.AuthNoPriv:
		return gosnmp.AuthNoPriv
	default:
		return gosnmp.NoAuthNoPriv
	}
}

func authProtocol(name string) (gosnmp.SnmpV3AuthProtocol, error) {
	switch strings.ToLower(name) {
	case "":
		return gosnmp.NoAuth, nil
	case "md5":
		return gosnmp.MD5, nil
	case "sha":
		return gosnmp.SHA, nil
	case "sha-224":
		return gosnmp.SHA224, nil
	case "sha-256":
		return gosnmp.SHA256, nil
	case "sha-384":
		return gosnmp.SHA384, nil
	case "sha-512":
		return gosnmp.SHA512, nil
	default:
		return gosnmp.NoAuth, fmt.Errorf("unsupported auth protocol %q", name)
	}
}

func privProtocol(name string) (gosnmp.SnmpV3PrivProtocol, error) {
	switch strings.ToLower(name) {
	case "":
		return gosnmp.NoPriv, nil
	case "des":
		return gosnmp.DES, nil
	case "aes":
		return gosnmp.AES, nil
	case "aes192":
		return gosnmp.AES192, nil
	case "aes256":
		return gosnmp.AES256, nil
	case "aes192c":
		return gosnmp.AES192C, nil
	case "aes256c":
		return gosnmp.AES256C, nil
	default:
		return gosnmp.NoPriv, fmt.Errorf("unsupported priv protocol %q", name)
	}
}

func convertPDU(pdu gosnmp.SnmpPDU) snmp.Value {
	var t snmp.ValueType
	switch pdu.Type {
	case gosnmp.Integer:
		t = snmp.TypeInteger
	case gosnmp.OctetString, gosnmp.BitString:
		t = snmp.TypeOctetString
	case gosnmp.Null:
		t = snmp.TypeNull
	case gosnmp.ObjectIdentifier:
		t = snmp.TypeObjectIdentifier
	case gosnmp.IPAddress:
		t = snmp.TypeIPAddress
	case gosnmp.Counter32:
		t = snmp.TypeCounter32
	case gosnmp.Gauge32, gosnmp.Uinteger32:
		t = snmp.TypeGauge32
	case gosnmp.TimeTicks:
		t = snmp.TypeTimeTicks
	case gosnmp.Opaque, gosnmp.OpaqueFloat, gosnmp.OpaqueDouble:
		t = snmp.TypeOpaque
	case gosnmp.Counter64:
		t = snmp.TypeCounter64
	case gosnmp.NoSuchObject:
		t = snmp.TypeNoSuchObject
	case gosnmp.NoSuchInstance:
		t = snmp.TypeNoSuchInstance
	case gosnmp.EndOfMibView:
		t = snmp.TypeEndOfMibView
	default:
		t = snmp.TypeUnknown
	}
	return snmp.Value{Type: t, Raw: pdu.Value}
}
