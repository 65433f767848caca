package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RemoteError is a non-2xx answer from a remote gateway.
type RemoteError struct {
	Status  int
	Message string
	Details string
}

func (e *RemoteError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("gateway %d: %s: %s", e.Status, e.Message, e.Details)
	}
	return fmt.Sprintf("gateway %d: %s", e.Status, e.Message)
}

// Client calls a gateway endpoint over HTTP.
type Client struct {
	endpoint string
	http     *http.Client
}

func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
	}
}

func (c *Client) Insights(ctx context.Context, p InsightsPayload) (string, error) {
	var out InsightsResponse
	if err := c.call(ctx, ActionInsights, p, &out); err != nil {
		return "", err
	}
	return out.Text, nil
}

func (c *Client) Categorize(ctx context.Context, p CategorizePayload) (string, error) {
	var out CategorizeResponse
	if err := c.call(ctx, ActionCategorize, p, &out); err != nil {
		return "", err
	}
	return out.Category, nil
}

func (c *Client) ParseCSV(ctx context.Context, p ParseCSVPayload) (json.RawMessage, error) {
	var out ParseCSVResponse
	if err := c.call(ctx, ActionParseCSV, p, &out); err != nil {
		return nil, err
	}
	return out.Transactions, nil
}

func (c *Client) call(ctx context.Context, action Action, payload, out any) error {
	rawPayload, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", action, err)
	}
	body, err := json.Marshal(Request{Action: action, Payload: rawPayload})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call gateway %s: %w", action, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read gateway %s response: %w", action, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e ErrorResponse
		_ = json.Unmarshal(data, &e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &RemoteError{Status: resp.StatusCode, Message: e.Error, Details: e.Details}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode gateway %s response: %w", action, err)
	}
	return nil
}
