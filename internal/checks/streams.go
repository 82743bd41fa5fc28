package checks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pideploy/pideploy/internal/eventually"
	"github.com/pideploy/pideploy/internal/piwebapi"
)

func checkStreamUpdates(c *Context) error {
	ctx, client, pi := c.Context(), c.Client(), c.PI()
	start := c.Started()

	webID, err := findTestPoint(c)
	if err != nil {
		return err
	}

	c.Step("Register for stream updates on %s", pi.TestPointName)
	marker, err := client.RegisterStreamUpdates(ctx, webID)
	if err != nil {
		return fmt.Errorf("register stream updates: %w", err)
	}

	sample := func() (*piwebapi.StreamUpdates, error) {
		updates, err := client.StreamUpdates(ctx, marker)
		if err != nil {
			return nil, err
		}
		if updates.LatestMarker != "" {
			marker = updates.LatestMarker
		}
		return updates, nil
	}

	c.Step("Wait for stream update events")
	cfg := c.StreamPoll().Describe("No stream updates were received for %s", pi.TestPointName)
	if _, err := eventually.Poll(ctx, cfg, sample, func(u *piwebapi.StreamUpdates) bool {
		return len(u.Events) > 0
	}); err != nil {
		return err
	}

	c.Step("Wait for a stream update after %s", start.Format(time.RFC3339))
	cfg = c.StreamPoll().Describe("No stream update for %s was newer than %s", pi.TestPointName, start.Format(time.RFC3339))
	_, err = eventually.Poll(ctx, cfg, sample, func(u *piwebapi.StreamUpdates) bool {
		last := u.LastEvent()
		return last != nil && last.Timestamp.After(start)
	})
	return err
}

// channelAttempts is how many channel connections fit in one stream timeout.
const channelAttempts = 4

// channelAttemptTimeout bounds a single channel connection so a silent
// channel is reopened instead of consuming the whole timeout.
func channelAttemptTimeout(cfg eventually.Config) time.Duration {
	if cfg.Timeout <= 0 {
		return eventually.DefaultTimeout
	}
	wait := max(cfg.Timeout/channelAttempts, cfg.Interval)
	return min(wait, cfg.Timeout)
}

func checkChannels(c *Context) error {
	ctx, client, pi := c.Context(), c.Client(), c.PI()
	start := c.Started()

	webID, err := findTestPoint(c)
	if err != nil {
		return err
	}

	cfg := c.StreamPoll().Describe("No channel message for %s was newer than %s", pi.TestPointName, start.Format(time.RFC3339))
	wait := channelAttemptTimeout(cfg)

	c.Step("Open stream channel for %s", pi.TestPointName)
	_, err = eventually.Poll(ctx, cfg, func() (*piwebapi.ChannelMessage, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, wait)
		defer cancel()
		msg, err := client.OpenChannel(attemptCtx, webID)
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, nil
		}
		return msg, err
	}, func(msg *piwebapi.ChannelMessage) bool {
		ts, ok := msg.FirstTimestamp()
		return ok && ts.After(start)
	})
	return err
}
