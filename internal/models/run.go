// Package models contains the run history entities.
package models

import (
	"errors"
	"fmt"
	"time"
)

// Status is the outcome of a check or a run.
type Status string

const (
	StatusPass    Status = "pass"
	StatusFail    Status = "fail"
	StatusSkip    Status = "skip"
	StatusError   Status = "error"
	StatusRunning Status = "running"
)

// Validation errors
var (
	ErrRunNotFound   = errors.New("run not found")
	ErrInvalidStatus = errors.New("invalid status")
	ErrEmptyCheckID  = errors.New("check id cannot be empty")
)

// ParseStatus validates a stored status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPass, StatusFail, StatusSkip, StatusError, StatusRunning:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
}

// Failed reports whether the status should fail a run.
func (s Status) Failed() bool {
	return s == StatusFail || s == StatusError
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	RunID     string        `json:"run_id,omitempty"`
	Suite     string        `json:"suite"`
	CheckID   string        `json:"check"`
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Validate validates the result before it is stored.
func (r *CheckResult) Validate() error {
	if r.CheckID == "" {
		return ErrEmptyCheckID
	}
	if _, err := ParseStatus(string(r.Status)); err != nil {
		return err
	}
	if r.Status == StatusRunning {
		return fmt.Errorf("%w: a check result cannot be %q", ErrInvalidStatus, r.Status)
	}
	return nil
}

// Summary counts results by status.
type Summary struct {
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Errored int `json:"errored"`
}

// Add counts one result.
func (s *Summary) Add(status Status) {
	switch status {
	case StatusPass:
		s.Passed++
	case StatusFail:
		s.Failed++
	case StatusSkip:
		s.Skipped++
	case StatusError:
		s.Errored++
	}
}

// Total returns the number of counted results.
func (s Summary) Total() int {
	return s.Passed + s.Failed + s.Skipped + s.Errored
}

// Status returns fail when any check failed or errored, otherwise pass.
func (s Summary) Status() Status {
	if s.Failed > 0 || s.Errored > 0 {
		return StatusFail
	}
	return StatusPass
}

// Run is one execution of a set of checks against a PI Web API.
type Run struct {
	ID          string        `json:"id"`
	Target      string        `json:"target"`
	Suites      []string      `json:"suites"`
	Status      Status        `json:"status"`
	TriggeredBy string        `json:"triggered_by"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  *time.Time    `json:"finished_at,omitempty"`
	Summary     Summary       `json:"summary"`
	Results     []CheckResult `json:"results,omitempty"`
}

// Duration returns how long the run took, or zero while it is running.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// IsFinished reports whether the run has completed.
func (r *Run) IsFinished() bool {
	return r.FinishedAt != nil
}
