package tenancy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 5 * time.Second

// Client resolves keys against the tenant service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

func (c *Client) Resolve(ctx context.Context, apiKey string) (*Tenant, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tenant/info", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(HeaderAPIKey, apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var tenant Tenant
		if err := json.NewDecoder(resp.Body).Decode(&tenant); err != nil {
			return nil, fmt.Errorf("%w: decode tenant: %v", ErrUnavailable, err)
		}
		return &tenant, nil
	case http.StatusUnauthorized:
		return nil, ErrInvalidKey
	case http.StatusForbidden:
		var body struct {
			Status string `json:"status"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if body.Status == "" {
			body.Status = StatusSuspended
		}
		return nil, &StatusError{Status: body.Status}
	default:
		return nil, fmt.Errorf("%w: unexpected status %d", ErrUnavailable, resp.StatusCode)
	}
}

func (c *Client) RecordUsage(ctx context.Context, apiKey string, usage Usage) error {
	body, err := json.Marshal(usage)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/tenant/usage", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set(HeaderAPIKey, apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("record usage: status %d", resp.StatusCode)
	}
	return nil
}
