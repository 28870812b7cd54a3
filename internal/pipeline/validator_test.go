package pipeline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/muttd/internal/message"
	"github.com/marmos91/muttd/internal/pipeline"
	"github.com/marmos91/muttd/internal/severity"
)

func TestValidate_Valid(t *testing.T) {
	msg := message.New("10.0.0.1", message.TypeSyslog, severity.Info, "hello")
	assert.True(t, pipeline.Validate(&msg))
	assert.Nil(t, msg.Metadata["validation_errors"])
}

func TestValidate_EmptySourceIP(t *testing.T) {
	msg := message.New("", message.TypeSyslog, severity.Info, "hello")
	assert.False(t, pipeline.Validate(&msg))
	errs, ok := msg.Metadata["validation_errors"].([]string)
	require.True(t, ok)
	assert.Len(t, errs, 1)
}

func TestValidate_EmptyPayload(t *testing.T) {
	msg := message.New("10.0.0.1", message.TypeSyslog, severity.Info, "")
	assert.False(t, pipeline.Validate(&msg))
}

func TestValidate_BothEmpty_RecordsBothErrors(t *testing.T) {
	msg := message.New("", message.TypeSyslog, severity.Info, "")
	assert.False(t, pipeline.Validate(&msg))
	errs, ok := msg.Metadata["validation_errors"].([]string)
	require.True(t, ok)
	assert.Len(t, errs, 2)
}
