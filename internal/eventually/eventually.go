// Package eventually polls a read function against an asynchronously
// updated system until it reports the expected state or a time budget runs
// out.
//
// Every call is independent: a poll keeps its attempt count and last value on
// its own stack, so the helpers are safe to use from concurrent call sites.
package eventually

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Default budget used by checks that do not override it.
const (
	DefaultTimeout  = 30 * time.Second
	DefaultInterval = time.Second
)

// ErrPollTimeoutExceeded is matched by every *TimeoutError.
var ErrPollTimeoutExceeded = errors.New("poll timeout exceeded")

// Sample reads the current state of the system under test.
type Sample[T any] func() (T, error)

// Config bounds a single poll.
type Config struct {
	// Timeout is the total budget. Zero or negative means a single attempt.
	Timeout time.Duration
	// Interval is the pause between attempts.
	Interval time.Duration
	// Clock defaults to the system clock.
	Clock Clock
	// Message and Args describe what was being waited for.
	Message string
	Args    []any
	// Observer, when set, is called once with the attempt count and the
	// final error before Poll returns.
	Observer func(attempts int, err error)
}

// Defaults returns the default budget.
func Defaults() Config {
	return Config{Timeout: DefaultTimeout, Interval: DefaultInterval}
}

// Within returns a copy of c with a different budget.
func (c Config) Within(timeout, interval time.Duration) Config {
	c.Timeout = timeout
	c.Interval = interval
	return c
}

// Describe returns a copy of c with a failure message.
func (c Config) Describe(format string, args ...any) Config {
	c.Message = format
	c.Args = args
	return c
}

func (c Config) message() string {
	if len(c.Args) == 0 {
		return c.Message
	}
	return fmt.Sprintf(c.Message, c.Args...)
}

// TimeoutError reports a poll that never satisfied its predicate.
type TimeoutError struct {
	Host     string
	Timeout  time.Duration
	Elapsed  time.Duration
	Attempts int
	Last     any
	Message  string
}

// Error renders the timeout with the last observed value.
func (e *TimeoutError) Error() string {
	var b strings.Builder
	if e.Host != "" {
		b.WriteString(e.Host)
		b.WriteString(": ")
	}
	fmt.Fprintf(&b, "waited for %s", e.Timeout)
	if e.Message != "" {
		b.WriteString(". ")
		b.WriteString(e.Message)
	}
	fmt.Fprintf(&b, " (last observed: %v, attempts: %d)", e.Last, e.Attempts)
	return b.String()
}

// Is reports whether target is ErrPollTimeoutExceeded.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrPollTimeoutExceeded
}

// AttemptError wraps an error returned by the sample itself.
type AttemptError struct {
	Attempt int
	Err     error
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("attempt %d failed: %v", e.Attempt, e.Err)
}

func (e *AttemptError) Unwrap() error {
	return e.Err
}

// Poll invokes sample immediately and then once per interval until ok accepts
// the returned value or the timeout elapses. It returns the accepted value,
// a *TimeoutError carrying the last value, an *AttemptError when the sample
// fails, or the context error if ctx ends while sleeping.
func Poll[T any](ctx context.Context, cfg Config, sample Sample[T], ok func(T) bool) (T, error) {
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	start := clock.Now()
	attempts := 0
	done := func(v T, err error) (T, error) {
		if cfg.Observer != nil {
			cfg.Observer(attempts, err)
		}
		return v, err
	}

	for {
		attempts++
		v, err := sample()
		if err != nil {
			return done(v, &AttemptError{Attempt: attempts, Err: err})
		}
		if ok(v) {
			return done(v, nil)
		}

		elapsed := clock.Now().Sub(start)
		if elapsed >= cfg.Timeout {
			return done(v, &TimeoutError{
				Host:     hostname(),
				Timeout:  cfg.Timeout,
				Elapsed:  elapsed,
				Attempts: attempts,
				Last:     v,
				Message:  cfg.message(),
			})
		}

		if err := clock.Sleep(ctx, interval); err != nil {
			return done(v, err)
		}
	}
}

// True polls until sample returns true.
func True(ctx context.Context, cfg Config, sample func() (bool, error)) error {
	_, err := Poll(ctx, cfg, sample, func(v bool) bool { return v })
	return err
}

// Equal polls until sample returns expected and returns the last value.
func Equal[T comparable](ctx context.Context, cfg Config, expected T, sample Sample[T]) (T, error) {
	if cfg.Message == "" {
		cfg = cfg.Describe("expected %v", expected)
	}
	return Poll(ctx, cfg, sample, func(v T) bool { return v == expected })
}

// hostname prefixes failures so reports from several machines stay apart.
func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return ""
	}
	return strings.ToUpper(name)
}
