package piwebapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// ErrUnexpectedFrame is returned when a channel sends a non-text frame.
var ErrUnexpectedFrame = errors.New("channel sent a non-text message")

const maxChannelMessage = 65535

// OpenChannel connects to the stream channel of webID and returns the first
// message it delivers. The connection is closed before returning.
func (c *Client) OpenChannel(ctx context.Context, webID string) (*ChannelMessage, error) {
	u := fmt.Sprintf("%s/streams/%s/channel", c.channelURL, webID)

	header := http.Header{}
	if err := c.auth.Authorize(ctx, header); err != nil {
		return nil, fmt.Errorf("authorize channel: %w", err)
	}

	conn, resp, err := c.dialer.DialContext(ctx, u, header)
	if err != nil {
		if resp != nil {
			return nil, &APIError{Method: "GET", URL: u, StatusCode: resp.StatusCode, Status: resp.Status}
		}
		return nil, fmt.Errorf("open channel %s: %w", u, err)
	}
	defer conn.Close()
	conn.SetReadLimit(maxChannelMessage)

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.SetReadDeadline(time.Now())
		case <-done:
		}
	}()

	msgType, data, err := conn.ReadMessage()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("read channel %s: %w", u, err)
	}

	if msgType != websocket.TextMessage {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseUnsupportedData, "Message type is not text"),
			time.Now().Add(time.Second))
		return nil, ErrUnexpectedFrame
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "Closing connection"),
		time.Now().Add(time.Second))

	var msg ChannelMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode channel message: %w", err)
	}
	return &msg, nil
}
