package mute

import "errors"

// Error taxonomy. Callers match with errors.Is; the scheduler wraps these
// with context ("parse unit: %w").
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrAlreadyRestricted = errors.New("already restricted")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrStorageFailure    = errors.New("storage failure")
	ErrRoleAPIFailure    = errors.New("role api failure")
	ErrMemberNotFound    = errors.New("member not found")
	ErrNotStarted        = errors.New("scheduler not started")
)

// Kind returns a short label for err's category (metrics, audit).
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrAlreadyRestricted):
		return "already_restricted"
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrStorageFailure):
		return "storage"
	case errors.Is(err, ErrRoleAPIFailure):
		return "role_api"
	case errors.Is(err, ErrMemberNotFound):
		return "member_not_found"
	case errors.Is(err, ErrNotStarted):
		return "not_started"
	default:
		return "other"
	}
}
