package mute

import (
	"fmt"
	"strings"
)

// MuteArgs holds the raw optional mute arguments. All nil means an
// indefinite, self-liftable restriction; a partial set is rejected.
type MuteArgs struct {
	Quantity *string
	Unit     *string
	SelfLift *string
}

// Args builds MuteArgs from positional tokens. Missing positions stay nil.
func Args(tokens ...string) MuteArgs {
	var a MuteArgs
	ptr := func(i int) *string {
		if i >= len(tokens) {
			return nil
		}
		v := tokens[i]
		return &v
	}
	a.Quantity, a.Unit, a.SelfLift = ptr(0), ptr(1), ptr(2)
	return a
}

// MuteSpec is the validated form of MuteArgs.
type MuteSpec struct {
	Duration Duration
	SelfLift bool
}

func (a MuteArgs) empty() bool {
	return a.Quantity == nil && a.Unit == nil && a.SelfLift == nil
}

func (a MuteArgs) complete() bool {
	return a.Quantity != nil && a.Unit != nil && a.SelfLift != nil
}

// Parse validates the arguments.
func (a MuteArgs) Parse() (MuteSpec, error) {
	if a.empty() {
		return MuteSpec{Duration: Indefinite, SelfLift: true}, nil
	}
	if !a.complete() {
		return MuteSpec{}, fmt.Errorf("%w: quantity, unit and self-lift flag must be given together", ErrInvalidArgument)
	}
	d, err := ParseDuration(*a.Quantity, *a.Unit)
	if err != nil {
		return MuteSpec{}, err
	}
	selfLift, err := ParseBool(*a.SelfLift)
	if err != nil {
		return MuteSpec{}, err
	}
	return MuteSpec{Duration: d, SelfLift: selfLift}, nil
}

// ParseBool accepts {true,t,yes,y} and {false,f,no,n}, case-insensitive.
func ParseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "t", "yes", "y":
		return true, nil
	case "false", "f", "no", "n":
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q is not a boolean (use true/false, yes/no, t/f, y/n)", ErrInvalidArgument, raw)
	}
}
