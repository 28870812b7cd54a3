package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/muttd/internal/message"
	"github.com/marmos91/muttd/internal/severity"
	"github.com/marmos91/muttd/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mutt.db")
	s, err := store.New(store.Config{Driver: store.DriverSQLite, SQLitePath: path})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreMessage_AndGetMessages(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	msg := message.New("10.0.0.5", message.TypeSyslog, severity.Warning, "disk failure")
	msg.Syslog = &message.SyslogExt{Facility: 1, Priority: 13, Hostname: "myhost", ProcessName: "myproc"}

	require.NoError(t, s.StoreMessage(ctx, msg))

	got, err := s.GetMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, msg.ID, got[0].ID)
	assert.Equal(t, "disk failure", got[0].Payload)
	assert.Equal(t, severity.Warning, got[0].Severity)
	assert.Equal(t, "myhost", got[0].Metadata["hostname"])
}

func TestGetMessages_OrdersMostRecentFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	older := message.New("10.0.0.1", message.TypeSyslog, severity.Info, "first")
	older.Timestamp = time.Now().UTC().Add(-time.Hour)
	newer := message.New("10.0.0.1", message.TypeSyslog, severity.Info, "second")

	require.NoError(t, s.StoreMessage(ctx, older))
	require.NoError(t, s.StoreMessage(ctx, newer))

	got, err := s.GetMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "second", got[0].Payload)
	assert.Equal(t, "first", got[1].Payload)
}

func TestUpdateDevice_CoalescesNilFields(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	hostname := "router1"
	snmpVersion := "v2c"
	require.NoError(t, s.UpdateDevice(ctx, "10.0.0.9", &hostname, &snmpVersion))

	require.NoError(t, s.UpdateDevice(ctx, "10.0.0.9", nil, nil))

	dev, ok, err := s.GetDevice(ctx, "10.0.0.9")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, dev.Hostname)
	assert.Equal(t, "router1", *dev.Hostname)
	require.NotNil(t, dev.SNMPVersion)
	assert.Equal(t, "v2c", *dev.SNMPVersion)
}

func TestUpdateDevice_LastSeenAdvances(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.UpdateDevice(ctx, "10.0.0.9", nil, nil))
	first, ok, err := s.GetDevice(ctx, "10.0.0.9")
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, s.UpdateDevice(ctx, "10.0.0.9", nil, nil))
	second, ok, err := s.GetDevice(ctx, "10.0.0.9")
	require.NoError(t, err)
	require.True(t, ok)

	assert.True(t, second.LastSeen.After(first.LastSeen))
}

func TestAuthFailures_RecordIncrementsCounter(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.RecordAuthFailure(ctx, "u1", "h1"))
	require.NoError(t, s.RecordAuthFailure(ctx, "u1", "h2"))
	require.NoError(t, s.RecordAuthFailure(ctx, "u1", "h3"))

	all, err := s.ListAuthFailures(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "u1", all[0].Username)
	assert.Equal(t, 3, all[0].NumFailures)
	require.NotNil(t, all[0].Hostname)
	assert.Equal(t, "h3", *all[0].Hostname)
}

func TestAuthFailures_ClearIsNoOpOnMissingRow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	assert.NoError(t, s.ClearAuthFailure(ctx, "ghost"))
}

func TestAuthFailures_ClearDeletesRow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.RecordAuthFailure(ctx, "u1", "h1"))
	require.NoError(t, s.ClearAuthFailure(ctx, "u1"))

	all, err := s.ListAuthFailures(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCommitArchive_DeletesAndIndexesAtomically(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	old := message.New("10.0.0.1", message.TypeSyslog, severity.Info, "old")
	old.Timestamp = time.Now().UTC().Add(-48 * time.Hour)
	fresh := message.New("10.0.0.1", message.TypeSyslog, severity.Info, "fresh")

	require.NoError(t, s.StoreMessage(ctx, old))
	require.NoError(t, s.StoreMessage(ctx, fresh))

	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	toArchive, err := s.MessagesBefore(ctx, cutoff)
	require.NoError(t, err)
	require.Len(t, toArchive, 1)

	require.NoError(t, s.CommitArchive(ctx, cutoff, store.ArchiveRecord{
		Filename:    "archive_20260101_000000.jsonl",
		StartDate:   toArchive[0].Timestamp,
		EndDate:     toArchive[0].Timestamp,
		RecordCount: len(toArchive),
	}))

	remaining, err := s.GetMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "fresh", remaining[0].Payload)

	archives, err := s.ListArchives(ctx)
	require.NoError(t, err)
	require.Len(t, archives, 1)
	assert.Equal(t, 1, archives[0].RecordCount)
}

func TestHealthcheck(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Healthcheck(context.Background()))
}
