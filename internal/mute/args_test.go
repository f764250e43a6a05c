package mute

import (
	"errors"
	"testing"
)

func TestMuteArgsParse(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		args       MuteArgs
		wantErr    bool
		secs       int64
		indefinite bool
		selfLift   bool
	}{
		{name: "no args", args: Args(), indefinite: true, selfLift: true},
		{name: "full", args: Args("4", "d", "yes"), secs: 345600, selfLift: true},
		{name: "no self lift", args: Args("6", "w", "false"), secs: 6 * 604800, selfLift: false},
		{name: "unlimited unit", args: Args("1", "unlimited", "n"), indefinite: true},
		{name: "quantity only", args: Args("4"), wantErr: true},
		{name: "quantity and unit", args: Args("4", "d"), wantErr: true},
		{name: "bad flag", args: Args("4", "d", "maybe"), wantErr: true},
		{name: "bad unit", args: Args("4", "x", "true"), wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := tt.args.Parse()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidArgument) {
					t.Fatalf("err = %v, want ErrInvalidArgument", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse error: %v", err)
			}
			if got.Duration.IsIndefinite() != tt.indefinite {
				t.Fatalf("indefinite = %v, want %v", got.Duration.IsIndefinite(), tt.indefinite)
			}
			if !tt.indefinite && got.Duration.Seconds() != tt.secs {
				t.Fatalf("secs = %d, want %d", got.Duration.Seconds(), tt.secs)
			}
			if got.SelfLift != tt.selfLift {
				t.Fatalf("selfLift = %v, want %v", got.SelfLift, tt.selfLift)
			}
		})
	}
}

func TestParseBool(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"true", "T", "yes", "Y"} {
		if v, err := ParseBool(raw); err != nil || !v {
			t.Fatalf("ParseBool(%q) = %v, %v", raw, v, err)
		}
	}
	for _, raw := range []string{"false", "F", "no", "N"} {
		if v, err := ParseBool(raw); err != nil || v {
			t.Fatalf("ParseBool(%q) = %v, %v", raw, v, err)
		}
	}
	if _, err := ParseBool("1"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("ParseBool(1) err = %v", err)
	}
}
