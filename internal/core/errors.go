package core

import (
	"fmt"

	"github.com/mikey-austin/screener/pkg/screener"
)

// Exit codes.
const (
	ExitOK       = 0
	ExitRuntime  = 1
	ExitUsage    = 2
	ExitState    = 3
	ExitNotFound = 4
	ExitFailed   = 5
)

// CLIError carries a user-visible message and exit code.
type CLIError struct {
	Code   int
	Status screener.Status
	Msg    string
	Trace  string
	Err    error
}

func (e *CLIError) Error() string {
	msg := e.Msg
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	if e.Trace != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Trace)
	}
	return msg
}

func (e *CLIError) Unwrap() error { return e.Err }

// WrapError creates a CLIError with an underlying error.
func WrapError(code int, msg string, err error) *CLIError {
	return &CLIError{Code: code, Msg: msg, Err: err}
}

// ErrorForReply maps a failed reply to a CLI error.
func ErrorForReply(reply screener.Reply) *CLIError {
	msg := reply.ErrMsg
	if msg == "" {
		msg = reply.Status.Message()
	}
	err := &CLIError{Status: reply.Status, Msg: msg, Trace: reply.Trace}
	switch reply.Status {
	case screener.StatusCPLNotFound, screener.StatusPlaylistNotFound, screener.StatusPositionNotFound,
		screener.StatusEventNotFound, screener.StatusScheduleNotFound, screener.StatusIngestNotFound:
		err.Code = ExitNotFound
	case screener.StatusNothingLoaded, screener.StatusCPLLoaded, screener.StatusNoPlaylistLoaded:
		err.Code = ExitState
	case screener.StatusInvalidPlaylist, screener.StatusInvalidMode, screener.StatusInvalidArguments,
		screener.StatusInvalidCPL, screener.StatusNotImplemented:
		err.Code = ExitUsage
	case screener.StatusIngestFailed:
		err.Code = ExitFailed
	default:
		err.Code = ExitRuntime
	}
	return err
}

// ExitCode returns the CLI exit code from error.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if cliErr, ok := err.(*CLIError); ok {
		return cliErr.Code
	}
	return ExitRuntime
}
