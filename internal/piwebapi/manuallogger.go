package piwebapi

import "context"

// ManualLoggerConnection asks PI Manual Logger Web whether its API can reach
// the PI servers behind it.
func (c *Client) ManualLoggerConnection(ctx context.Context) (bool, error) {
	var online bool
	if err := c.Get(ctx, "api/checkconnection", &online); err != nil {
		return false, err
	}
	return online, nil
}

// ManualLoggerDatabaseConnection asks PI Manual Logger Web whether its SQL
// database is online.
func (c *Client) ManualLoggerDatabaseConnection(ctx context.Context) (bool, error) {
	var status struct {
		Online bool `json:"online"`
	}
	if err := c.Get(ctx, "api/checkdbconnection", &status); err != nil {
		return false, err
	}
	return status.Online, nil
}

// ManualLoggerUsername returns the account PI Manual Logger Web resolved for
// the caller.
func (c *Client) ManualLoggerUsername(ctx context.Context) (string, error) {
	var name string
	if err := c.Get(ctx, "api/username", &name); err != nil {
		return "", err
	}
	return name, nil
}
