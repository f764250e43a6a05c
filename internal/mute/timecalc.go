package mute

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Unit is a validated duration unit code.
type Unit int

const (
	UnitMinute Unit = iota + 1
	UnitHour
	UnitDay
	UnitWeek
	// UnitUnlimited skips quantity validation and yields Indefinite.
	UnitUnlimited
)

var unitCodes = map[string]Unit{
	"m": UnitMinute, "min": UnitMinute, "mins": UnitMinute, "minute": UnitMinute, "minutes": UnitMinute,
	"h": UnitHour, "hr": UnitHour, "hrs": UnitHour, "hour": UnitHour, "hours": UnitHour,
	"d": UnitDay, "day": UnitDay, "days": UnitDay,
	"w": UnitWeek, "wk": UnitWeek, "week": UnitWeek, "weeks": UnitWeek,
	"unlimited": UnitUnlimited, "inf": UnitUnlimited, "forever": UnitUnlimited, "indefinite": UnitUnlimited,
}

// Seconds returns the length of one unit. UnitUnlimited has no length.
func (u Unit) Seconds() int64 {
	switch u {
	case UnitMinute:
		return 60
	case UnitHour:
		return 60 * 60
	case UnitDay:
		return 24 * 60 * 60
	case UnitWeek:
		return 7 * 24 * 60 * 60
	default:
		return 0
	}
}

func (u Unit) String() string {
	switch u {
	case UnitMinute:
		return "m"
	case UnitHour:
		return "h"
	case UnitDay:
		return "d"
	case UnitWeek:
		return "w"
	case UnitUnlimited:
		return "unlimited"
	default:
		return "?"
	}
}

// ParseUnit maps a unit token (case-insensitive) to its code.
func ParseUnit(raw string) (Unit, error) {
	u, ok := unitCodes[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return 0, fmt.Errorf("%w: unknown unit %q (use m, h, d, w or unlimited)", ErrInvalidArgument, raw)
	}
	return u, nil
}

// Duration is a validated restriction length in whole seconds, or Indefinite.
// The zero value is a zero-length finite duration.
type Duration struct {
	secs       int64
	indefinite bool
}

// Indefinite never expires.
var Indefinite = Duration{indefinite: true}

// Seconds returns a finite duration. Negative input is clamped to zero.
func Seconds(n int64) Duration {
	if n < 0 {
		n = 0
	}
	return Duration{secs: n}
}

func (d Duration) IsIndefinite() bool { return d.indefinite }

// Seconds returns the finite length; it is meaningless for Indefinite.
func (d Duration) Seconds() int64 { return d.secs }

func (d Duration) String() string {
	if d.indefinite {
		return "unlimited"
	}
	return (time.Duration(d.secs) * time.Second).String()
}

var reQuantity = regexp.MustCompile(`^([0-9]*[.])?[0-9]+$`)

// ParseDuration validates a quantity/unit pair.
//
// Fractional quantities are truncated to whole seconds. A product too large
// for int64 seconds collapses to Indefinite, the same value ComputeExpiry
// clamps to.
func ParseDuration(quantity, unit string) (Duration, error) {
	u, err := ParseUnit(unit)
	if err != nil {
		return Duration{}, err
	}
	if u == UnitUnlimited {
		return Indefinite, nil
	}

	q := strings.TrimSpace(quantity)
	if !reQuantity.MatchString(q) {
		return Duration{}, fmt.Errorf("%w: quantity %q is not a non-negative number", ErrInvalidArgument, quantity)
	}
	f, err := strconv.ParseFloat(q, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return Indefinite, nil
		}
		return Duration{}, fmt.Errorf("%w: quantity %q: %v", ErrInvalidArgument, quantity, err)
	}

	secs := f * float64(u.Seconds())
	// float64(math.MaxInt64) rounds up to 2^63, so >= catches the boundary.
	if math.IsInf(secs, 1) || secs >= float64(math.MaxInt64) {
		return Indefinite, nil
	}
	return Seconds(int64(secs)), nil
}

// ComputeExpiry returns now+d in unix seconds, clamped to IndefiniteExpiry on
// overflow or when d is Indefinite.
func ComputeExpiry(now int64, d Duration) int64 {
	if d.indefinite {
		return IndefiniteExpiry
	}
	if now > 0 && d.secs > IndefiniteExpiry-now {
		return IndefiniteExpiry
	}
	return now + d.secs
}

const maxWait = time.Duration(math.MaxInt64)

// Remaining returns max(0, expiresAt-now). ok is false for the sentinel: no
// timer may ever be armed for an indefinite record.
func Remaining(now time.Time, expiresAt int64) (d time.Duration, ok bool) {
	if expiresAt == IndefiniteExpiry {
		return 0, false
	}
	nowSec := now.Unix()
	if expiresAt <= nowSec {
		return 0, true
	}
	diff := expiresAt - nowSec
	if diff < 0 || diff > int64(maxWait/time.Second) {
		return maxWait, true
	}
	d = time.Duration(diff)*time.Second - time.Duration(now.Nanosecond())
	if d < 0 {
		d = 0
	}
	return d, true
}
