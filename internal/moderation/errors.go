package moderation

import (
	"errors"
	"fmt"

	"storozh.org/internal/roles"
)

var (
	// ErrUserInput covers malformed arguments and unknown users.
	ErrUserInput = errors.New("invalid input")
	// ErrDenied matches every *DeniedError.
	ErrDenied = errors.New("permission denied")
	// ErrPlatform matches every *PlatformError.
	ErrPlatform = errors.New("platform call failed")
	// ErrLeftBanned marks a kick whose ban took effect but whose unban failed.
	ErrLeftBanned = errors.New("user was banned but could not be unbanned")
	// ErrNoStaff is returned by Report when nobody in the chat can act on it.
	ErrNoStaff = fmt.Errorf("%w: no active moderators in this chat", ErrUserInput)
)

func userInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUserInput, fmt.Sprintf(format, args...))
}

// DeniedError carries the authorization decision that refused the command.
type DeniedError struct {
	Decision roles.Decision
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%s denied: %s", e.Decision.Op, e.Decision.Reason)
}

func (e *DeniedError) Is(target error) bool { return target == ErrDenied }

// Message renders the denial for the invoking actor.
func (e *DeniedError) Message() string {
	d := e.Decision
	switch d.Reason {
	case roles.ReasonSelfTarget:
		return fmt.Sprintf("You cannot %s yourself.", d.Op)
	case roles.ReasonInsufficientRole:
		return "Not allowed: insufficient rights."
	case roles.ReasonEqualRank:
		return fmt.Sprintf("Not allowed: you are both %s.", d.Actor)
	case roles.ReasonTargetOutranks:
		return fmt.Sprintf("Not allowed: target is %s and you are %s.", d.Target, d.Actor)
	case roles.ReasonCeilingExceeded:
		return fmt.Sprintf("Not allowed: as %s you may grant or revoke up to %s.", d.Actor, roles.Ceiling(d.Actor))
	case roles.ReasonNothingToDemote:
		return "Not allowed: the user has no role to remove."
	}
	return "Not allowed."
}

// PlatformError is a failed foreground platform call. No local state was
// changed when it is returned; platform state may have changed only when the
// error also matches ErrLeftBanned.
type PlatformError struct {
	Op  string
	Err error
}

func (e *PlatformError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *PlatformError) Unwrap() error { return e.Err }

func (e *PlatformError) Is(target error) bool { return target == ErrPlatform }

func denied(d roles.Decision) error { return &DeniedError{Decision: d} }

// outcome classifies an error for metrics and replies.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrDenied):
		return "denied"
	case errors.Is(err, ErrUserInput):
		return "invalid"
	case errors.Is(err, ErrPlatform):
		return "platform_error"
	}
	return "error"
}
