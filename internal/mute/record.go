package mute

import (
	"math"
	"time"
)

// IndefiniteExpiry is the sentinel ExpiresAt for restrictions that never
// lift on their own.
const IndefiniteExpiry int64 = math.MaxInt64

// Record is one row per currently-restricted member.
type Record struct {
	ID              int64
	MemberID        int64
	ExpiresAt       int64 // unix seconds, IndefiniteExpiry = never
	HadElevatedRole bool
	SelfLiftAllowed bool
}

// Indefinite reports whether the record carries the sentinel expiry.
func (r Record) Indefinite() bool { return r.ExpiresAt == IndefiniteExpiry }

// ExpiryTime returns the expiry as a time.Time. ok is false for the sentinel,
// which has no meaningful time.Time representation.
func (r Record) ExpiryTime() (t time.Time, ok bool) {
	if r.Indefinite() {
		return time.Time{}, false
	}
	return time.Unix(r.ExpiresAt, 0), true
}
