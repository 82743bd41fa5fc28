package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	for _, s := range []string{"pass", "fail", "skip", "error", "running"} {
		st, err := ParseStatus(s)
		require.NoError(t, err)
		assert.Equal(t, Status(s), st)
	}

	_, err := ParseStatus("PASS")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestStatus_Failed(t *testing.T) {
	assert.True(t, StatusFail.Failed())
	assert.True(t, StatusError.Failed())
	assert.False(t, StatusPass.Failed())
	assert.False(t, StatusSkip.Failed())
}

func TestCheckResult_Validate(t *testing.T) {
	tests := []struct {
		name    string
		result  CheckResult
		wantErr error
	}{
		{"valid", CheckResult{CheckID: "batch", Status: StatusPass}, nil},
		{"empty id", CheckResult{Status: StatusPass}, ErrEmptyCheckID},
		{"unknown status", CheckResult{CheckID: "batch", Status: "ok"}, ErrInvalidStatus},
		{"running", CheckResult{CheckID: "batch", Status: StatusRunning}, ErrInvalidStatus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.result.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSummary(t *testing.T) {
	var s Summary
	for _, st := range []Status{StatusPass, StatusPass, StatusSkip} {
		s.Add(st)
	}
	assert.Equal(t, 3, s.Total())
	assert.Equal(t, StatusPass, s.Status())

	s.Add(StatusError)
	assert.Equal(t, StatusFail, s.Status())
	assert.Equal(t, Summary{Passed: 2, Skipped: 1, Errored: 1}, s)
}

func TestRun_Duration(t *testing.T) {
	start := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	r := &Run{StartedAt: start}
	assert.False(t, r.IsFinished())
	assert.Zero(t, r.Duration())

	end := start.Add(90 * time.Second)
	r.FinishedAt = &end
	assert.True(t, r.IsFinished())
	assert.Equal(t, 90*time.Second, r.Duration())
}
