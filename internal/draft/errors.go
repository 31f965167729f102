package draft

import (
	"errors"
	"fmt"
)

type ErrorCode int

const (
	ErrInvalidCode ErrorCode = iota
	ErrFull
	ErrAlreadySignedUp
	ErrNotSignedUp
	ErrInsufficientPlayers
	ErrUnbalancedTeams
	ErrUnsupportedPlayerCount
	ErrUnknownMatch
	ErrBadResult
	ErrUnresolvedMatch
	ErrWrongStage
	ErrAlreadyInitiated
	ErrNoSuchSession
)

// Error is a caller-facing validation failure. Guards return it without
// mutating the session, so callers may report the message verbatim and retry.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("draft error %v: %v", e.Code, e.Message)
}

var _ error = (*Error)(nil)

func MatchesError(err error, code ErrorCode) bool {
	var dErr *Error
	return errors.As(err, &dErr) && dErr.Code == code
}

func errWrongStage(op string, stage Stage) *Error {
	return &Error{
		Code:    ErrWrongStage,
		Message: fmt.Sprintf("cannot %v while session is in stage %q", op, stage),
	}
}
