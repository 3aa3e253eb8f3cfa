package domain

import "errors"

// Error kinds returned by the convoy aggregate. Callers match them with
// errors.Is; the wrapping error carries the human-readable detail.
var (
	ErrValidation     = errors.New("validation error")
	ErrNotFound       = errors.New("not found")
	ErrForbidden      = errors.New("forbidden")
	ErrAlreadyMember  = errors.New("already a member")
	ErrNotMember      = errors.New("not a member")
	ErrCapacity       = errors.New("convoy is full")
	ErrInviteRequired = errors.New("join code required")

	// ErrStorageUnavailable marks transient persistence failures. It is the
	// only retryable kind.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

var kinds = []struct {
	err  error
	code string
}{
	{ErrValidation, "validation_error"},
	{ErrNotFound, "not_found"},
	{ErrForbidden, "forbidden"},
	{ErrAlreadyMember, "already_member"},
	{ErrNotMember, "not_member"},
	{ErrCapacity, "capacity"},
	{ErrInviteRequired, "invite_required"},
	{ErrStorageUnavailable, "storage_unavailable"},
}

// Code returns a stable machine-readable code for err's kind, "ok" for nil
// and "internal" for anything unclassified.
func Code(err error) string {
	if err == nil {
		return "ok"
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.code
		}
	}
	return "internal"
}

// IsRetryable reports whether retrying the same call may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}
