package mute

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		quantity   string
		unit       string
		secs       int64
		indefinite bool
	}{
		{name: "days", quantity: "4", unit: "d", secs: 4 * 24 * 3600},
		{name: "weeks long spelling", quantity: "6", unit: "weeks", secs: 6 * 7 * 24 * 3600},
		{name: "upper case unit", quantity: "2", unit: "HR", secs: 7200},
		{name: "fractional hours", quantity: "1.5", unit: "h", secs: 5400},
		{name: "leading dot", quantity: ".5", unit: "min", secs: 30},
		{name: "truncates sub-second", quantity: "0.0001", unit: "m", secs: 0},
		{name: "zero", quantity: "0", unit: "m", secs: 0},
		{name: "unlimited ignores quantity", quantity: "whatever", unit: "unlimited", indefinite: true},
		{name: "forever alias", quantity: "", unit: "forever", indefinite: true},
		{name: "product overflow", quantity: "100000000000000000000", unit: "w", indefinite: true},
		{name: "float overflow", quantity: strings.Repeat("9", 400), unit: "m", indefinite: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseDuration(tt.quantity, tt.unit)
			if err != nil {
				t.Fatalf("ParseDuration(%q, %q) error: %v", tt.quantity, tt.unit, err)
			}
			if got.IsIndefinite() != tt.indefinite {
				t.Fatalf("IsIndefinite = %v, want %v", got.IsIndefinite(), tt.indefinite)
			}
			if !tt.indefinite && got.Seconds() != tt.secs {
				t.Fatalf("Seconds = %d, want %d", got.Seconds(), tt.secs)
			}
		})
	}
}

func TestParseDurationInvalid(t *testing.T) {
	t.Parallel()
	cases := [][2]string{
		{"abc", "m"},
		{"-1", "m"},
		{"1e5", "m"},
		{"1.", "h"},
		{"4", "s"},
		{"4", ""},
		{"4", "mm"},
	}
	for _, c := range cases {
		if _, err := ParseDuration(c[0], c[1]); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("ParseDuration(%q, %q) err = %v, want ErrInvalidArgument", c[0], c[1], err)
		}
	}
}

func TestComputeExpiry(t *testing.T) {
	t.Parallel()
	if got := ComputeExpiry(1000, Seconds(60)); got != 1060 {
		t.Fatalf("finite = %d, want 1060", got)
	}
	if got := ComputeExpiry(1000, Indefinite); got != IndefiniteExpiry {
		t.Fatalf("indefinite = %d, want sentinel", got)
	}
	if got := ComputeExpiry(math.MaxInt64-10, Seconds(20)); got != IndefiniteExpiry {
		t.Fatalf("overflow = %d, want sentinel", got)
	}
	if got := ComputeExpiry(1000, Seconds(-5)); got != 1000 {
		t.Fatalf("negative clamps to now, got %d", got)
	}

	d, err := ParseDuration("4", "d")
	if err != nil {
		t.Fatal(err)
	}
	now := epoch.Unix()
	if got, want := ComputeExpiry(now, d), now+345600; got != want {
		t.Fatalf("4d expiry = %d, want %d", got, want)
	}
}

func TestRemaining(t *testing.T) {
	t.Parallel()
	now := epoch

	if _, ok := Remaining(now, IndefiniteExpiry); ok {
		t.Fatal("sentinel must not report a remaining duration")
	}
	if d, ok := Remaining(now, now.Unix()+5); !ok || d != 5*time.Second {
		t.Fatalf("future = %v/%v, want 5s/true", d, ok)
	}
	if d, ok := Remaining(now, now.Unix()-10); !ok || d != 0 {
		t.Fatalf("past = %v/%v, want 0/true", d, ok)
	}
	half := now.Add(500 * time.Millisecond)
	if d, _ := Remaining(half, now.Unix()+5); d != 4500*time.Millisecond {
		t.Fatalf("sub-second now = %v, want 4.5s", d)
	}
	if d, ok := Remaining(now, math.MaxInt64-1); !ok || d != time.Duration(math.MaxInt64) {
		t.Fatalf("far future = %v/%v, want capped wait", d, ok)
	}
}

func TestParseUnitAliases(t *testing.T) {
	t.Parallel()
	for raw, want := range map[string]Unit{
		"m": UnitMinute, "Minutes": UnitMinute,
		"hrs": UnitHour, "day": UnitDay, "wk": UnitWeek,
		"INF": UnitUnlimited, "indefinite": UnitUnlimited,
	} {
		got, err := ParseUnit(raw)
		if err != nil {
			t.Fatalf("ParseUnit(%q) error: %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParseUnit(%q) = %v, want %v", raw, got, want)
		}
	}
}
