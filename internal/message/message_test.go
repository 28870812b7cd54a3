package message_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/marmos91/muttd/internal/message"
	"github.com/marmos91/muttd/internal/severity"
)

func TestNew(t *testing.T) {
	m := message.New("10.0.0.1", message.TypeSyslog, severity.Warning, "disk full")

	assert.NotEmpty(t, m.ID)
	assert.False(t, m.Timestamp.IsZero())
	assert.Equal(t, "UTC", m.Timestamp.Location().String())
	assert.Equal(t, "10.0.0.1", m.SourceIP)
	assert.Equal(t, message.TypeSyslog, m.Type)
	assert.Equal(t, severity.Warning, m.Severity)
	assert.Equal(t, "disk full", m.Payload)
	assert.NotNil(t, m.Metadata)
	assert.Nil(t, m.Syslog)
	assert.Nil(t, m.SNMPTrap)
}

func TestNew_UniqueIDs(t *testing.T) {
	a := message.New("10.0.0.1", message.TypeSyslog, severity.Info, "a")
	b := message.New("10.0.0.1", message.TypeSyslog, severity.Info, "a")
	assert.NotEqual(t, a.ID, b.ID)
}

func TestAppendValidationError(t *testing.T) {
	m := message.Message{}

	m.AppendValidationError("missing source_ip")
	m.AppendValidationError("empty payload")

	errs, ok := m.Metadata["validation_errors"].([]string)
	assert.True(t, ok)
	assert.Equal(t, []string{"missing source_ip", "empty payload"}, errs)
}
