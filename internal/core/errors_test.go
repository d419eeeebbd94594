package core

import (
	"errors"
	"testing"

	"github.com/mikey-austin/screener/pkg/screener"
)

func TestErrorForReply(t *testing.T) {
	tests := []struct {
		status   screener.Status
		expected int
	}{
		{screener.StatusCPLNotFound, ExitNotFound},
		{screener.StatusIngestNotFound, ExitNotFound},
		{screener.StatusNothingLoaded, ExitState},
		{screener.StatusCPLLoaded, ExitState},
		{screener.StatusInvalidPlaylist, ExitUsage},
		{screener.StatusNotImplemented, ExitUsage},
		{screener.StatusIngestFailed, ExitFailed},
		{screener.StatusInternalError, ExitRuntime},
	}

	for _, test := range tests {
		err := ErrorForReply(screener.Fail(test.status))
		if err.Code != test.expected {
			t.Fatalf("status %d expected %d got %d", test.status, test.expected, err.Code)
		}
		if err.Msg != test.status.Message() {
			t.Fatalf("status %d expected message %q got %q", test.status, test.status.Message(), err.Msg)
		}
	}
}

func TestCLIErrorMessage(t *testing.T) {
	err := ErrorForReply(screener.Fail(screener.StatusInvalidCPL).WithTrace("missing asset"))
	if err.Error() != "Invalid CPL supplied (missing asset)" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	wrapped := WrapError(ExitRuntime, "send", errors.New("refused"))
	if wrapped.Error() != "send: refused" || ExitCode(wrapped) != ExitRuntime {
		t.Fatalf("unexpected wrapped error %v", wrapped)
	}
	if ExitCode(nil) != ExitOK || ExitCode(errors.New("x")) != ExitRuntime {
		t.Fatalf("unexpected exit codes")
	}
}
