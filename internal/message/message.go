// Package message defines the polymorphic telemetry message that flows
// through the ingestion pipeline: a common envelope plus exactly one
// variant extension (syslog or SNMP trap).
package message

import (
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/muttd/internal/severity"
)

// Type tags which variant a Message carries.
type Type string

const (
	TypeSyslog   Type = "SYSLOG"
	TypeSNMPTrap Type = "SNMP_TRAP"
	TypeUnknown  Type = "UNKNOWN"
)

// SyslogExt carries the fields specific to a syslog-sourced message.
type SyslogExt struct {
	Facility    int
	Priority    int
	Hostname    string
	ProcessName string
	ProcessID   *int
}

// SNMPTrapExt carries the fields specific to an SNMP-trap-sourced message.
type SNMPTrapExt struct {
	OID      string
	Varbinds map[string]string
	Version  string
}

// Message is the tagged union the rest of the daemon operates on. At most
// one of Syslog or SNMPTrap is non-nil: the listener that builds a
// SYSLOG/SNMP_TRAP message sets the matching one. Both are nil for
// Unknown, for a Message fresh from New, and for one decoded from the
// file buffer or the store.
type Message struct {
	ID        string
	Timestamp time.Time
	SourceIP  string
	Type      Type
	Severity  severity.Severity
	Payload   string
	Metadata  map[string]any

	Syslog   *SyslogExt
	SNMPTrap *SNMPTrapExt
}

// New builds a Message with a fresh id, a UTC-now timestamp, and an empty
// metadata map ready for enrichment.
func New(sourceIP string, typ Type, sev severity.Severity, payload string) Message {
	return Message{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		SourceIP:  sourceIP,
		Type:      typ,
		Severity:  sev,
		Payload:   payload,
		Metadata:  map[string]any{},
	}
}

// AppendValidationError appends a validation error to
// m.Metadata["validation_errors"], creating the slice on first use.
func (m *Message) AppendValidationError(err string) {
	if m.Metadata == nil {
		m.Metadata = map[string]any{}
	}
	existing, _ := m.Metadata["validation_errors"].([]string)
	m.Metadata["validation_errors"] = append(existing, err)
}
