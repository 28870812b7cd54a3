package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/marmos91/muttd/internal/message"
)

// ArchiveRecord is the caller-facing view of an archives index row.
type ArchiveRecord struct {
	Filename    string
	StartDate   time.Time
	EndDate     time.Time
	RecordCount int
}

// MessagesBefore returns every message with timestamp < cutoff, ordered
// ascending by timestamp, for the archive manager to write out before
// deleting them.
func (s *Store) MessagesBefore(ctx context.Context, cutoff time.Time) ([]message.Message, error) {
	rows, err := s.messagesBefore(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	out := make([]message.Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToMessage(r))
	}
	return out, nil
}

// CommitArchive deletes every message with timestamp < cutoff and inserts
// the archives index row in a single transaction, so a crash can never
// leave an archive file referenced by a missing index row, or vice versa
// leave rows deleted with no index row recorded.
func (s *Store) CommitArchive(ctx context.Context, cutoff time.Time, rec ArchiveRecord) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("timestamp < ?", cutoff).Delete(&messageRow{}).Error; err != nil {
			return err
		}
		row := archiveRow{
			Filename:    rec.Filename,
			StartDate:   rec.StartDate,
			EndDate:     rec.EndDate,
			RecordCount: rec.RecordCount,
		}
		return tx.Create(&row).Error
	})
}

// ListArchives returns every archive index row.
func (s *Store) ListArchives(ctx context.Context) ([]ArchiveRecord, error) {
	var rows []archiveRow
	if err := s.db.WithContext(ctx).Order("start_date ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]ArchiveRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, ArchiveRecord{
			Filename:    r.Filename,
			StartDate:   r.StartDate,
			EndDate:     r.EndDate,
			RecordCount: r.RecordCount,
		})
	}
	return out, nil
}
