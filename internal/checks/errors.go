package checks

import (
	"context"
	"errors"
	"fmt"

	"github.com/pideploy/pideploy/internal/config"
	"github.com/pideploy/pideploy/internal/eventually"
	"github.com/pideploy/pideploy/internal/models"
	"github.com/pideploy/pideploy/internal/piwebapi"
)

// Registry errors
var (
	ErrEmptyID        = errors.New("check id cannot be empty")
	ErrDuplicateCheck = errors.New("check already registered")
	ErrUnknownSuite   = errors.New("unknown suite")
	ErrUnknownCheck   = errors.New("unknown check")
)

// SkipError marks a check that did not apply to the system under test.
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string {
	return "skipped: " + e.Reason
}

// Skipf returns a SkipError.
func Skipf(format string, args ...any) error {
	return &SkipError{Reason: fmt.Sprintf(format, args...)}
}

// FailError is an assertion failure raised by a check.
type FailError struct {
	Message string
}

func (e *FailError) Error() string {
	return e.Message
}

// Failf returns a FailError.
func Failf(format string, args ...any) error {
	return &FailError{Message: fmt.Sprintf(format, args...)}
}

// PanicError is a panic recovered while running a check.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("check panicked: %v", e.Value)
}

// Classify maps the error returned by a check to a result status.
// Assertion failures, poll timeouts and PI Web API rejections fail the
// check; anything else is reported as an error.
func Classify(err error) models.Status {
	if err == nil {
		return models.StatusPass
	}

	var skip *SkipError
	if errors.As(err, &skip) || errors.Is(err, config.ErrMissingSetting) {
		return models.StatusSkip
	}

	var (
		fail    *FailError
		panicE  *PanicError
		attempt *eventually.AttemptError
		apiErr  *piwebapi.APIError
		timeout *eventually.TimeoutError
	)
	switch {
	case errors.As(err, &fail),
		errors.As(err, &panicE),
		errors.As(err, &timeout),
		errors.As(err, &attempt),
		errors.As(err, &apiErr),
		errors.Is(err, context.DeadlineExceeded),
		piwebapi.IsCertificateError(err):
		return models.StatusFail
	default:
		return models.StatusError
	}
}
