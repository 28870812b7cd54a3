package store

import (
	"context"
	"time"
)

// UpdateDevice upserts a device row keyed by ip. A nil hostname or
// snmpVersion leaves the prior stored value untouched (COALESCE merge);
// LastSeen always advances to now-UTC.
func (s *Store) UpdateDevice(ctx context.Context, ip string, hostname, snmpVersion *string) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Exec(`
		INSERT INTO devices (ip, hostname, last_seen, snmp_version, notes)
		VALUES (?, ?, ?, ?, NULL)
		ON CONFLICT(ip) DO UPDATE SET
			hostname = COALESCE(excluded.hostname, devices.hostname),
			last_seen = excluded.last_seen,
			snmp_version = COALESCE(excluded.snmp_version, devices.snmp_version)
	`, ip, hostname, now, snmpVersion).Error
}

// GetDevice returns the device row for ip, or ok=false if none exists.
func (s *Store) GetDevice(ctx context.Context, ip string) (Device, bool, error) {
	var row deviceRow
	err := s.db.WithContext(ctx).Where("ip = ?", ip).First(&row).Error
	if isNotFound(err) {
		return Device{}, false, nil
	}
	if err != nil {
		return Device{}, false, err
	}
	return deviceRowToDevice(row), true, nil
}

// Device is the caller-facing view of a device row.
type Device struct {
	IP          string
	Hostname    *string
	LastSeen    time.Time
	SNMPVersion *string
	Notes       *string
}

func deviceRowToDevice(r deviceRow) Device {
	return Device{
		IP:          r.IP,
		Hostname:    r.Hostname,
		LastSeen:    r.LastSeen,
		SNMPVersion: r.SNMPVersion,
		Notes:       r.Notes,
	}
}
