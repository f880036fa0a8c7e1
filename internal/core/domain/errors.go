package domain

import (
	"errors"
	"sync/atomic"
)

var (
	ErrRoomNotFound     = errors.New("no class with that code")
	ErrRoomInactive     = errors.New("class is not active")
	ErrNotMember        = errors.New("not a member of this classroom")
	ErrPollNotFound     = errors.New("no poll is running")
	ErrPollNotActive    = errors.New("poll is not accepting responses")
	ErrRespondentBarred = errors.New("respondent is excluded from this poll")
	ErrForbidden        = errors.New("access forbidden")

	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("a user with that email already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrValidation = errors.New("validation failed")
)

// errorNumber is the process-wide counter embedded in generic server-error
// messages so support can correlate a user report with a log line.
var errorNumber atomic.Int64

// NextErrorNumber returns a fresh correlation number for a server error.
func NextErrorNumber() int64 {
	return errorNumber.Add(1)
}
