package piwebapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// ErrNoMarker is returned when stream update registration yields no marker.
var ErrNoMarker = errors.New("stream updates registration returned no marker")

// StreamValue reads the current value of a stream.
func (c *Client) StreamValue(ctx context.Context, webID string) (*TimedValue, error) {
	var v TimedValue
	if err := c.Get(ctx, fmt.Sprintf("streams/%s/value", webID), &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Recorded reads up to maxCount recorded values of a stream.
func (c *Client) Recorded(ctx context.Context, webID string, maxCount int) ([]TimedValue, error) {
	params := url.Values{}
	if maxCount > 0 {
		params.Set("maxCount", strconv.Itoa(maxCount))
	}
	var items Items[TimedValue]
	if err := c.Get(ctx, withQuery(fmt.Sprintf("streams/%s/recorded", webID), params), &items); err != nil {
		return nil, err
	}
	return items.Items, nil
}

// RecordedBetween reads recorded values inside a time range. Times use PI
// time syntax, e.g. "*-1h".
func (c *Client) RecordedBetween(ctx context.Context, webID, startTime, endTime string) ([]TimedValue, error) {
	params := url.Values{"startTime": {startTime}, "endTime": {endTime}}
	var items Items[TimedValue]
	if err := c.Get(ctx, withQuery(fmt.Sprintf("streams/%s/recorded", webID), params), &items); err != nil {
		return nil, err
	}
	return items.Items, nil
}

// UpdateValue writes a single value to a stream.
func (c *Client) UpdateValue(ctx context.Context, webID string, v TimedValue) error {
	_, err := c.Post(ctx, fmt.Sprintf("streams/%s/value", webID), v)
	return err
}

// SetAttributeValue writes the value of an attribute without a data reference.
func (c *Client) SetAttributeValue(ctx context.Context, attributeWebID string, value interface{}) error {
	return c.Put(ctx, fmt.Sprintf("attributes/%s/value", attributeWebID), TimedValue{Value: value})
}

// UpdateRecorded writes recorded values to a stream.
func (c *Client) UpdateRecorded(ctx context.Context, webID string, values []TimedValue) error {
	_, err := c.Post(ctx, fmt.Sprintf("streams/%s/recorded", webID), values)
	return err
}

// StreamWriteError reports the streams a streamset write rejected. PI Web
// API answers 207 Multi-Status when only some streams accepted their values.
type StreamWriteError struct {
	Failed map[string][]string
}

func (e *StreamWriteError) Error() string {
	ids := make([]string, 0, len(e.Failed))
	for id := range e.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		msg := id
		if errs := e.Failed[id]; len(errs) > 0 {
			msg += " (" + strings.Join(errs, "; ") + ")"
		}
		parts = append(parts, msg)
	}
	return fmt.Sprintf("%d of the streams rejected their values: %s", len(ids), strings.Join(parts, ", "))
}

// Rejected reports whether the write failed for webID.
func (e *StreamWriteError) Rejected(webID string) bool {
	_, ok := e.Failed[webID]
	return ok
}

// UpdateStreamSetRecorded writes recorded values to several streams at once.
// A partial failure returns a *StreamWriteError naming the rejected streams.
func (c *Client) UpdateStreamSetRecorded(ctx context.Context, sets []StreamValues) error {
	resp, err := c.do(ctx, http.MethodPost, "streamsets/recorded", sets, nil)
	if err != nil {
		return err
	}
	if resp.status != http.StatusMultiStatus {
		return nil
	}

	var result Items[streamWriteResult]
	if err := decode(resp, &result); err != nil {
		return fmt.Errorf("decode streamset write status: %w", err)
	}
	failed := make(map[string][]string)
	for i, item := range result.Items {
		if len(item.Errors) == 0 && item.Substatus < 300 {
			continue
		}
		id := item.WebID
		if id == "" && i < len(sets) {
			id = sets[i].WebID
		}
		errs := item.Errors
		if item.Message != "" {
			errs = append(errs, item.Message)
		}
		failed[id] = errs
	}
	if len(failed) == 0 {
		return nil
	}
	return &StreamWriteError{Failed: failed}
}

type streamWriteResult struct {
	WebID     string   `json:"WebId"`
	Substatus int      `json:"Substatus"`
	Message   string   `json:"Message"`
	Errors    []string `json:"Errors"`
}

// RegisterStreamUpdates registers for updates on a stream and returns the
// marker to poll with.
func (c *Client) RegisterStreamUpdates(ctx context.Context, webID string) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, fmt.Sprintf("streams/%s/updates", webID), nil, nil)
	if err != nil {
		return "", err
	}
	var reg StreamUpdates
	if err := decode(resp, &reg); err != nil {
		return "", err
	}
	if reg.LatestMarker == "" {
		return "", ErrNoMarker
	}
	return reg.LatestMarker, nil
}

// StreamUpdates fetches the events recorded since marker.
func (c *Client) StreamUpdates(ctx context.Context, marker string) (*StreamUpdates, error) {
	var updates StreamUpdates
	if err := c.Get(ctx, "streams/updates/"+url.PathEscape(marker), &updates); err != nil {
		return nil, err
	}
	return &updates, nil
}
