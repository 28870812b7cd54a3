// Package pipeline implements the per-message transform stages that run
// between dequeue and buffer write: validation, rule matching,
// enrichment, and action routing.
package pipeline

import "github.com/marmos91/muttd/internal/message"

// Validate reports whether msg is valid: source_ip and payload both
// non-empty. On failure it appends a human-readable error to
// msg.Metadata["validation_errors"]; the caller is responsible for
// discarding invalid messages (dropped, not stored, not routed).
func Validate(msg *message.Message) bool {
	valid := true
	if msg.SourceIP == "" {
		msg.AppendValidationError("source_ip is empty")
		valid = false
	}
	if msg.Payload == "" {
		msg.AppendValidationError("payload is empty")
		valid = false
	}
	return valid
}
