package checks

import (
	"context"
	"crypto/x509"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pideploy/pideploy/internal/config"
	"github.com/pideploy/pideploy/internal/eventually"
	"github.com/pideploy/pideploy/internal/metrics"
	"github.com/pideploy/pideploy/internal/piwebapi"
	"github.com/pideploy/pideploy/pkg/logger"
)

const cleanupTimeout = 30 * time.Second

// Deps are the collaborators shared by every check in a run.
type Deps struct {
	Client   *piwebapi.Client
	Resolver *piwebapi.CachedResolver
	PI       config.PIConfig
	Polling  config.PollingConfig
	Log      *logger.Logger
	Clock    eventually.Clock

	// ManualLogger talks to PI Manual Logger Web when it is configured.
	ManualLogger *piwebapi.Client
	// TLSRoots verifies server certificates. Nil means the system pool.
	TLSRoots *x509.CertPool
}

func (d *Deps) withDefaults() *Deps {
	cp := *d
	if cp.Log == nil {
		cp.Log = logger.Nop()
	}
	if cp.Clock == nil {
		cp.Clock = eventually.SystemClock
	}
	if cp.Resolver == nil && cp.Client != nil {
		cp.Resolver = piwebapi.NewCachedResolver(cp.Client, nil, cp.Log)
	}
	return &cp
}

// Environment is what the run learned about the server before the first
// check. It is read once and shared.
type Environment struct {
	Home          *piwebapi.Home
	HomeErr       error
	Configuration piwebapi.SystemConfiguration
	ConfigErr     error
}

// DiscoverEnvironment reads the home page and system configuration.
func DiscoverEnvironment(ctx context.Context, client *piwebapi.Client) *Environment {
	env := &Environment{}
	if client == nil {
		env.HomeErr = fmt.Errorf("%w: PIWebAPI", config.ErrMissingSetting)
		env.ConfigErr = env.HomeErr
		return env
	}
	env.Home, env.HomeErr = client.Home(ctx)
	env.Configuration, env.ConfigErr = client.SystemConfiguration(ctx)
	return env
}

type cleanup struct {
	name string
	fn   func(ctx context.Context) error
}

// Context is handed to a running check.
type Context struct {
	ctx      context.Context
	check    *Check
	deps     *Deps
	env      *Environment
	log      *logger.Logger
	started  time.Time
	cleanups []cleanup
}

func newContext(ctx context.Context, check *Check, deps *Deps, env *Environment) *Context {
	log := deps.Log.With("suite", check.Suite, "check", check.ID)
	return &Context{
		ctx:     ctx,
		check:   check,
		deps:    deps,
		env:     env,
		log:     log,
		started: deps.Clock.Now(),
	}
}

// Context returns the context bounding the check.
func (c *Context) Context() context.Context { return c.ctx }

// Client returns the PI Web API client.
func (c *Context) Client() *piwebapi.Client { return c.deps.Client }

// Resolver returns the WebId resolver.
func (c *Context) Resolver() *piwebapi.CachedResolver { return c.deps.Resolver }

// ManualLogger returns the PI Manual Logger Web client, or an error naming
// the missing setting when none was built.
func (c *Context) ManualLogger() (*piwebapi.Client, error) {
	if c.deps.ManualLogger == nil {
		return nil, fmt.Errorf("%w: PIManualLogger", config.ErrMissingSetting)
	}
	return c.deps.ManualLogger, nil
}

// TLSRoots returns the pool server certificates are verified against.
func (c *Context) TLSRoots() *x509.CertPool { return c.deps.TLSRoots }

// PI returns the settings of the system under test.
func (c *Context) PI() config.PIConfig { return c.deps.PI }

// Env returns the environment read at the start of the run.
func (c *Context) Env() *Environment { return c.env }

// Log returns the check logger.
func (c *Context) Log() *logger.Logger { return c.log }

// Started returns when the check began.
func (c *Context) Started() time.Time { return c.started }

// Now returns the current time from the run clock.
func (c *Context) Now() time.Time { return c.deps.Clock.Now() }

// Step logs a progress line.
func (c *Context) Step(format string, args ...any) {
	c.log.Info(fmt.Sprintf(format, args...))
}

// Skip returns a SkipError for the running check.
func (c *Context) Skip(format string, args ...any) error {
	return Skipf(format, args...)
}

// Poll returns the poller configuration for server-side state changes.
func (c *Context) Poll() eventually.Config {
	return c.pollConfig(c.deps.Polling.Timeout, c.deps.Polling.Interval)
}

// StreamPoll returns the poller configuration for stream data, which
// arrives more slowly.
func (c *Context) StreamPoll() eventually.Config {
	return c.pollConfig(c.deps.Polling.StreamTimeout, c.deps.Polling.StreamInterval)
}

func (c *Context) pollConfig(timeout, interval time.Duration) eventually.Config {
	cfg := eventually.Defaults()
	if timeout > 0 {
		cfg.Timeout = timeout
	}
	if interval > 0 {
		cfg.Interval = interval
	}
	cfg.Clock = c.deps.Clock
	cfg.Observer = metrics.RecordPoll
	return cfg
}

// Unique returns prefix with a random suffix, used to name objects a check
// creates.
func (c *Context) Unique(prefix string) string {
	return prefix + Suffix()
}

// Suffix returns a short random identifier.
func Suffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Cleanup registers fn to run after the check, newest first. Cleanups run
// even when the check fails or its context is cancelled.
func (c *Context) Cleanup(name string, fn func(ctx context.Context) error) {
	c.cleanups = append(c.cleanups, cleanup{name: name, fn: fn})
}

// Track registers the object at location for deletion after the check and
// returns a function that deletes it now. Deleting an object twice is not
// an error.
func (c *Context) Track(what, location string) func() error {
	deleted := false
	remove := func(ctx context.Context) error {
		if deleted {
			return nil
		}
		err := c.deps.Client.Delete(ctx, location)
		if err != nil && !piwebapi.IsNotFound(err) {
			return fmt.Errorf("delete %s: %w", what, err)
		}
		deleted = true
		return nil
	}
	c.Cleanup("delete "+what, remove)
	return func() error {
		c.Step("Delete %s at %s", what, location)
		return remove(c.ctx)
	}
}

func (c *Context) runCleanups() []error {
	var errs []error
	for i := len(c.cleanups) - 1; i >= 0; i-- {
		cl := c.cleanups[i]
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), cleanupTimeout)
		err := safeCleanup(ctx, cl.fn)
		cancel()
		if err != nil {
			c.log.Warn("Cleanup failed", "cleanup", cl.name, "error", err.Error())
			errs = append(errs, err)
		}
	}
	c.cleanups = nil
	return errs
}

func safeCleanup(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return fn(ctx)
}

// Execute evaluates the check's conditions, runs it and its cleanups. A
// panic inside the check is recovered as a PanicError.
func Execute(ctx context.Context, check *Check, deps *Deps, env *Environment) (err error) {
	deps = deps.withDefaults()
	if env == nil {
		env = &Environment{}
	}

	for _, cond := range check.Requires {
		if err := cond(env, deps.PI); err != nil {
			return err
		}
	}

	c := newContext(ctx, check, deps, env)
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Check panicked", "panic", fmt.Sprint(r))
			err = &PanicError{Value: r}
		}
		c.runCleanups()
	}()
	return check.Run(c)
}
