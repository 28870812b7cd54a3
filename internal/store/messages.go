package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/marmos91/muttd/internal/message"
	"github.com/marmos91/muttd/internal/severity"
)

// StoreMessage inserts msg, flattening its variant extension into the
// metadata JSON blob alongside whatever metadata the pipeline already
// accumulated (e.g. validation_errors, hostname). Commits immediately.
func (s *Store) StoreMessage(ctx context.Context, msg message.Message) error {
	metadata := map[string]any{}
	for k, v := range msg.Metadata {
		metadata[k] = v
	}

	switch {
	case msg.Syslog != nil:
		metadata["facility"] = msg.Syslog.Facility
		metadata["priority"] = msg.Syslog.Priority
		metadata["hostname"] = msg.Syslog.Hostname
		metadata["process_name"] = msg.Syslog.ProcessName
		if msg.Syslog.ProcessID != nil {
			metadata["process_id"] = *msg.Syslog.ProcessID
		}
	case msg.SNMPTrap != nil:
		metadata["oid"] = msg.SNMPTrap.OID
		metadata["varbinds"] = msg.SNMPTrap.Varbinds
		metadata["version"] = msg.SNMPTrap.Version
	}

	blob, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("store: marshal metadata: %w", err)
	}

	row := messageRow{
		ID:        msg.ID,
		Timestamp: msg.Timestamp,
		SourceIP:  msg.SourceIP,
		Type:      string(msg.Type),
		Severity:  msg.Severity.String(),
		Payload:   msg.Payload,
		Metadata:  string(blob),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// GetMessages returns the most recently received messages, most recent
// first. Variant-specific fields remain inside Metadata.
func (s *Store) GetMessages(ctx context.Context, limit int) ([]message.Message, error) {
	var rows []messageRow
	if err := s.db.WithContext(ctx).
		Order("timestamp DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]message.Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToMessage(r))
	}
	return out, nil
}

// messagesBefore returns every message with timestamp < cutoff, ordered
// ascending by timestamp, for archival.
func (s *Store) messagesBefore(ctx context.Context, cutoff time.Time) ([]messageRow, error) {
	var rows []messageRow
	if err := s.db.WithContext(ctx).
		Where("timestamp < ?", cutoff).
		Order("timestamp ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func rowToMessage(r messageRow) message.Message {
	var metadata map[string]any
	_ = json.Unmarshal([]byte(r.Metadata), &metadata)
	if metadata == nil {
		metadata = map[string]any{}
	}

	sev, _ := severity.Parse(r.Severity)

	return message.Message{
		ID:        r.ID,
		Timestamp: r.Timestamp,
		SourceIP:  r.SourceIP,
		Type:      message.Type(r.Type),
		Severity:  sev,
		Payload:   r.Payload,
		Metadata:  metadata,
	}
}
