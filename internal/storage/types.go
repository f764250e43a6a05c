package storage

import (
	"errors"
	"time"

	"snoozebot/internal/mute"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file at Path
//   - "file": journal + snapshot files next to Path
//   - "redis": Redis server at Addr
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default

	// redis only
	Addr      string
	Password  string
	DB        int
	KeyPrefix string // default "snoozebot:"
}

// AuditEntry records one mute/unmute attempt.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At       time.Time `json:"at"`
	OpID     string    `json:"op_id"`
	Action   string    `json:"action"`
	MemberID int64     `json:"member_id"`
	ActorID  int64     `json:"actor_id"`
	Trigger  string    `json:"trigger,omitempty"`
	OK       bool      `json:"ok"`
	Error    string    `json:"err,omitempty"`
	Detail   string    `json:"detail,omitempty"`
}

// muteRow is the serialized form of mute.Record (file and redis drivers).
type muteRow struct {
	ID              int64 `json:"mute_id"`
	MemberID        int64 `json:"member_id"`
	UnmuteDateUnix  int64 `json:"unmute_date_unix"`
	HasElevatedRole bool  `json:"has_elevated_role"`
	AllowSelfUnmute bool  `json:"allow_self_unmute"`
}

func rowOf(r mute.Record) muteRow {
	return muteRow{
		ID:              r.ID,
		MemberID:        r.MemberID,
		UnmuteDateUnix:  r.ExpiresAt,
		HasElevatedRole: r.HadElevatedRole,
		AllowSelfUnmute: r.SelfLiftAllowed,
	}
}

func (r muteRow) record() mute.Record {
	return mute.Record{
		ID:              r.ID,
		MemberID:        r.MemberID,
		ExpiresAt:       r.UnmuteDateUnix,
		HadElevatedRole: r.HasElevatedRole,
		SelfLiftAllowed: r.AllowSelfUnmute,
	}
}
