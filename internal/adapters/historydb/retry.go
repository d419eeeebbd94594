package historydb

import (
	"math/rand"
	"strings"
	"time"
)

const (
	maxRetries = 3
	baseDelay  = 50 * time.Millisecond
	maxDelay   = 500 * time.Millisecond
)

// isBusy reports SQLite lock contention that busy_timeout did not absorb.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, pattern := range []string{"SQLITE_BUSY", "SQLITE_LOCKED", "database is locked", "database table is locked"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// retryOnBusy runs fn, retrying with jittered exponential backoff while it
// fails with a busy error.
func retryOnBusy(fn func() error) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err = fn(); !isBusy(err) {
			return err
		}
		if attempt < maxRetries {
			time.Sleep(backoff(attempt))
		}
	}
	return err
}

func backoff(attempt int) time.Duration {
	delay := baseDelay << uint(attempt)
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay + time.Duration(rand.Int63n(int64(baseDelay)))
}
