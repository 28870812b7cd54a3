// Package archive rotates aged messages out of the relational store into
// dated, append-only JSONL files.
package archive

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/marmos91/muttd/internal/message"
	"github.com/marmos91/muttd/internal/store"
)

// messageStore is the subset of *store.Store the manager needs, so tests
// can substitute a fake.
type messageStore interface {
	MessagesBefore(ctx context.Context, cutoff time.Time) ([]message.Message, error)
	CommitArchive(ctx context.Context, cutoff time.Time, rec store.ArchiveRecord) error
}

// Manager extracts messages older than a retention horizon into flat
// files, recording each extraction in the store's archive index.
type Manager struct {
	store      messageStore
	archiveDir string
}

// New returns a Manager writing archive files under archiveDir.
func New(s messageStore, archiveDir string) *Manager {
	return &Manager{store: s, archiveDir: archiveDir}
}

// ArchiveOld implements the full cutoff-select-write-delete-index
// sequence. It is a no-op if nothing is older than the cutoff.
func (m *Manager) ArchiveOld(ctx context.Context, retention time.Duration) error {
	cutoff := time.Now().UTC().Add(-retention)

	rows, err := m.store.MessagesBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive: select aged rows: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	filename := fmt.Sprintf("archive_%s.jsonl", time.Now().UTC().Format("20060102_150405"))
	if err := m.writeFile(filename, rows); err != nil {
		return fmt.Errorf("archive: write file: %w", err)
	}

	start, end := rows[0].Timestamp, rows[0].Timestamp
	for _, r := range rows {
		if r.Timestamp.Before(start) {
			start = r.Timestamp
		}
		if r.Timestamp.After(end) {
			end = r.Timestamp
		}
	}

	if err := m.store.CommitArchive(ctx, cutoff, store.ArchiveRecord{
		Filename:    filename,
		StartDate:   start,
		EndDate:     end,
		RecordCount: len(rows),
	}); err != nil {
		return fmt.Errorf("archive: commit: %w", err)
	}
	return nil
}

func (m *Manager) writeFile(filename string, rows []message.Message) error {
	if err := os.MkdirAll(m.archiveDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(m.archiveDir, filename)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, row := range rows {
		line, err := json.Marshal(archiveLine{
			ID:        row.ID,
			Timestamp: row.Timestamp,
			SourceIP:  row.SourceIP,
			Type:      string(row.Type),
			Severity:  row.Severity.String(),
			Payload:   row.Payload,
			Metadata:  row.Metadata,
		})
		if err != nil {
			return err
		}
		if _, err := w.Write(line); err != nil {
			return err
		}
		if err := w.WriteByte('\n'); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Sync()
}

type archiveLine struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	SourceIP  string         `json:"source_ip"`
	Type      string         `json:"type"`
	Severity  string         `json:"severity"`
	Payload   string         `json:"payload"`
	Metadata  map[string]any `json:"metadata"`
}
