package eventually

import (
	"context"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tHelper interface {
	Helper()
}

// Assert marks t as failed when err is a poll failure.
func Assert(t assert.TestingT, err error, msgAndArgs ...any) bool {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	if err == nil {
		return true
	}
	return assert.Fail(t, err.Error(), msgAndArgs...)
}

// Require stops the test when err is a poll failure.
func Require(t require.TestingT, err error, msgAndArgs ...any) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	if !Assert(t, err, msgAndArgs...) {
		t.FailNow()
	}
}

// AssertTrue polls condition within timeout and fails t with the formatted
// message if it never returns true.
func AssertTrue(t assert.TestingT, condition func() bool, timeout, interval time.Duration, msg string, args ...any) bool {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	cfg := Config{Timeout: timeout, Interval: interval, Message: msg, Args: args}
	err := True(context.Background(), cfg, func() (bool, error) { return condition(), nil })
	return Assert(t, err)
}
