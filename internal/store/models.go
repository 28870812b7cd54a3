package store

import "time"

// deviceRow backs the devices table: one row per observed source IP.
type deviceRow struct {
	IP         string `gorm:"column:ip;primaryKey"`
	Hostname   *string
	LastSeen   time.Time `gorm:"column:last_seen;index:idx_devices_last_seen"`
	SNMPVersion *string  `gorm:"column:snmp_version"`
	Notes      *string
}

func (deviceRow) TableName() string { return "devices" }

// messageRow backs the messages table. Variant-specific fields (syslog
// facility/priority/hostname/process, or trap oid/varbinds/version) are
// flattened into Metadata as a JSON blob; the row itself only ever carries
// the common envelope.
type messageRow struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Timestamp time.Time `gorm:"column:timestamp;index:idx_messages_timestamp"`
	SourceIP  string    `gorm:"column:source_ip;index:idx_messages_source_ip"`
	Type      string    `gorm:"column:type;index:idx_messages_type"`
	Severity  string    `gorm:"column:severity;index:idx_messages_severity"`
	Payload   string    `gorm:"column:payload"`
	Metadata  string    `gorm:"column:metadata"` // JSON object
}

func (messageRow) TableName() string { return "messages" }

// archiveRow backs the archives index table, one row per JSONL archive file.
type archiveRow struct {
	Filename    string    `gorm:"column:filename;primaryKey"`
	StartDate   time.Time `gorm:"column:start_date;index:idx_archives_range,priority:1"`
	EndDate     time.Time `gorm:"column:end_date;index:idx_archives_range,priority:2"`
	RecordCount int       `gorm:"column:record_count"`
}

func (archiveRow) TableName() string { return "archives" }

// authFailureRow backs snmpv3_auth_failures: one row per username.
type authFailureRow struct {
	ID          string    `gorm:"column:id;primaryKey"`
	Username    string    `gorm:"column:username;uniqueIndex:idx_auth_failures_username"`
	Hostname    *string   `gorm:"column:hostname"`
	NumFailures int       `gorm:"column:num_failures;default:1"`
	LastFailure time.Time `gorm:"column:last_failure"`
}

func (authFailureRow) TableName() string { return "snmpv3_auth_failures" }

// allModels lists every row type AutoMigrate should create or update.
func allModels() []any {
	return []any{
		&deviceRow{},
		&messageRow{},
		&archiveRow{},
		&authFailureRow{},
	}
}
