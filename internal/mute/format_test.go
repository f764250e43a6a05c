package mute

import (
	"strings"
	"testing"
)

func TestFormatRecord(t *testing.T) {
	t.Parallel()
	rec := Record{ID: 3, MemberID: 42, ExpiresAt: epoch.Unix() + 5400, HadElevatedRole: true}
	got := FormatRecord(rec, epoch)
	want := "[Mute ID: 3, Member ID: 42, Unmute Unix: 1700005400 (1.5 hrs), Has Elevated Role: True, Allow Self Unmute: False]"
	if got != want {
		t.Fatalf("FormatRecord = %q, want %q", got, want)
	}

	rec.ExpiresAt = IndefiniteExpiry
	if got := FormatRecord(rec, epoch); !strings.Contains(got, "Unmute Unix: never") {
		t.Fatalf("indefinite record rendered as %q", got)
	}
}

func TestFormatRecords(t *testing.T) {
	t.Parallel()
	if got := FormatRecords(nil, epoch); got != "Muted users: none" {
		t.Fatalf("empty = %q", got)
	}
	out := FormatRecords([]Record{{ID: 1, MemberID: 1, ExpiresAt: IndefiniteExpiry}, {ID: 2, MemberID: 2, ExpiresAt: epoch.Unix() - 36}}, epoch)
	lines := strings.Split(out, "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3: %q", len(lines), out)
	}
	if !strings.Contains(lines[2], "(-0.01 hrs)") {
		t.Fatalf("overdue record rendered as %q", lines[2])
	}
}
