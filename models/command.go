package models

import "time"

type CommandType string

const (
	CmdSyncNow    CommandType = "sync_now"
	CmdGeocodeNow CommandType = "geocode_now"
)

// Command is an operational request queued by the CLI/TUI and polled by
// the daemon's scheduler.
type Command struct {
	ID          int64       `json:"id" db:"id"`
	Command     CommandType `json:"command" db:"command"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	ProcessedAt *time.Time  `json:"processed_at" db:"processed_at"`
}
