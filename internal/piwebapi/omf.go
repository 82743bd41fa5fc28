package piwebapi

import (
	"context"
	"net/http"
)

// OMFResponse is the body PI Web API returns for an accepted OMF message.
// Deletes may return an empty body.
type OMFResponse struct {
	OperationID string   `json:"OperationId"`
	Messages    []string `json:"Messages,omitempty"`
	Status      int      `json:"-"`
}

// OMF posts a raw OMF message with the given headers to the omf endpoint.
func (c *Client) OMF(ctx context.Context, headers map[string]string, body []byte) (*OMFResponse, error) {
	resp, err := c.do(ctx, http.MethodPost, "omf", body, headers)
	if err != nil {
		return nil, err
	}
	out := &OMFResponse{Status: resp.status}
	if err := decode(resp, out); err != nil {
		return nil, err
	}
	return out, nil
}
