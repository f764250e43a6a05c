package mute

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// RelativeHours returns expiresAt-now in hours, rounded to two decimals.
// ok is false for the sentinel.
func RelativeHours(expiresAt int64, now time.Time) (hours float64, ok bool) {
	if expiresAt == IndefiniteExpiry {
		return 0, false
	}
	h := float64(expiresAt-now.Unix()) / 3600
	return math.Round(h*100) / 100, true
}

func describeExpiry(expiresAt int64, now time.Time) string {
	h, ok := RelativeHours(expiresAt, now)
	if !ok {
		return "expires=never"
	}
	return fmt.Sprintf("expires=%d (%s hrs)", expiresAt, formatHours(h))
}

func formatHours(h float64) string {
	return strconv.FormatFloat(h, 'f', -1, 64)
}

// FormatRecord renders one record for the owner's dump listing.
func FormatRecord(rec Record, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[Mute ID: %d, Member ID: %d, ", rec.ID, rec.MemberID)
	if h, ok := RelativeHours(rec.ExpiresAt, now); ok {
		fmt.Fprintf(&b, "Unmute Unix: %d (%s hrs), ", rec.ExpiresAt, formatHours(h))
	} else {
		b.WriteString("Unmute Unix: never, ")
	}
	fmt.Fprintf(&b, "Has Elevated Role: %s, Allow Self Unmute: %s]", boolWord(rec.HadElevatedRole), boolWord(rec.SelfLiftAllowed))
	return b.String()
}

// FormatRecords renders the dump listing; empty input yields a short notice.
func FormatRecords(recs []Record, now time.Time) string {
	if len(recs) == 0 {
		return "Muted users: none"
	}
	var b strings.Builder
	b.WriteString("Muted users:\n")
	for _, r := range recs {
		b.WriteString(FormatRecord(r, now))
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func boolWord(v bool) string {
	if v {
		return "True"
	}
	return "False"
}
