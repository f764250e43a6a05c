package mute

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// Store is the durable table of restriction records.
//
// Upsert deletes any record for rec.MemberID and inserts rec with a fresh,
// store-assigned id, atomically. Delete is a no-op when nothing matches.
// Once a call returns nil the change must survive a process restart.
type Store interface {
	Upsert(ctx context.Context, rec Record) (Record, error)
	Get(ctx context.Context, memberID int64) (Record, bool, error)
	Delete(ctx context.Context, memberID int64) error
	ListAll(ctx context.Context) ([]Record, error)
}

// RoleID names a role on the membership backend.
type RoleID string

// Member is a resolved member handle.
type Member struct {
	ID       int64
	Username string
	Name     string
}

// Display returns the best human label for replies and announcements.
func (m Member) Display() string {
	if n := strings.TrimSpace(m.Name); n != "" {
		return n
	}
	if u := strings.TrimSpace(m.Username); u != "" {
		return "@" + u
	}
	return strconv.FormatInt(m.ID, 10)
}

// Membership toggles roles on the remote membership service.
// Granting a role the member already holds must be a no-op.
type Membership interface {
	HasRole(ctx context.Context, memberID int64, role RoleID) (bool, error)
	GrantRole(ctx context.Context, memberID int64, role RoleID) error
	RevokeRole(ctx context.Context, memberID int64, role RoleID) error
	// ResolveMember returns ErrMemberNotFound (wrapped) for unknown ids.
	ResolveMember(ctx context.Context, memberID int64) (Member, error)
}

// Notifier posts best-effort announcements (e.g. "Unmuted alice" on expiry).
type Notifier interface {
	Announce(ctx context.Context, text string) error
}

// Trigger says what lifted (or tried to lift) a restriction.
type Trigger string

const (
	TriggerSelf     Trigger = "self"
	TriggerOverride Trigger = "override"
	TriggerExpiry   Trigger = "expiry"
)

// AuditEvent describes one mute/unmute attempt.
type AuditEvent struct {
	At       time.Time
	Action   string // "mute" | "unmute"
	MemberID int64
	ActorID  int64
	Trigger  Trigger
	OK       bool
	Err      string
	Detail   string
}

type Auditor interface {
	Audit(ctx context.Context, ev AuditEvent) error
}

// Recorder receives operational counters. internal/metrics implements it.
type Recorder interface {
	Muted()
	Unmuted(trigger Trigger)
	TimerArmed()
	TimerDone()
	Failure(kind string)
}

type nopRecorder struct{}

func (nopRecorder) Muted()          {}
func (nopRecorder) Unmuted(Trigger) {}
func (nopRecorder) TimerArmed()     {}
func (nopRecorder) TimerDone()      {}
func (nopRecorder) Failure(string)  {}
