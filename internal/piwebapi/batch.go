package piwebapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// BatchRequest is one sub-request of a batch call. Parameters are JSONPath
// expressions into parent responses, substituted into Resource as {0}, {1}.
type BatchRequest struct {
	Method     string            `json:"Method"`
	Resource   string            `json:"Resource"`
	Content    string            `json:"Content,omitempty"`
	Parameters []string          `json:"Parameters,omitempty"`
	ParentIDs  []string          `json:"ParentIds,omitempty"`
	Headers    map[string]string `json:"Headers,omitempty"`
}

// BatchResponse is the outcome of one sub-request.
type BatchResponse struct {
	Status  int               `json:"Status"`
	Headers map[string]string `json:"Headers,omitempty"`
	Content json.RawMessage   `json:"Content,omitempty"`
}

// OK reports whether the sub-request succeeded.
func (r BatchResponse) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Decode unmarshals the sub-request content into out.
func (r BatchResponse) Decode(out interface{}) error {
	if len(r.Content) == 0 {
		return nil
	}
	return json.Unmarshal(r.Content, out)
}

// BatchResult is the set of sub-responses keyed by request id.
type BatchResult struct {
	StatusCode int
	Responses  map[string]BatchResponse
}

// Failed returns the ids of sub-requests that did not succeed.
func (b *BatchResult) Failed() []string {
	var failed []string
	for id, r := range b.Responses {
		if !r.OK() {
			failed = append(failed, id)
		}
	}
	return failed
}

// Batch posts a batch of requests. PI Web API answers 207 Multi-Status with
// one response per request id.
func (c *Client) Batch(ctx context.Context, requests map[string]BatchRequest) (*BatchResult, error) {
	for id, req := range requests {
		for _, parent := range req.ParentIDs {
			if _, ok := requests[parent]; !ok {
				return nil, fmt.Errorf("batch request %s: unknown parent %s", id, parent)
			}
		}
	}

	resp, err := c.do(ctx, http.MethodPost, "batch", requests, nil)
	if err != nil {
		return nil, err
	}
	result := &BatchResult{StatusCode: resp.status}
	if err := decode(resp, &result.Responses); err != nil {
		return nil, err
	}
	return result, nil
}
