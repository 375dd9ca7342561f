// Package meridian is a Go client for the meridian monitor API.
package meridian

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"meridian/internal/live"
	"meridian/internal/store"
)

// ErrNotFound is returned when the server answers 404.
var ErrNotFound = errors.New("meridian: not found")

// APIError is a non-2xx response carrying the server's error message.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("meridian: HTTP %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps 404 responses to ErrNotFound.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

// Holdings mirrors the /api/v1/holdings response.
type Holdings struct {
	Time       time.Time          `json:"time"`
	Cash       float64            `json:"cash"`
	Commission float64            `json:"commission"`
	Total      float64            `json:"total"`
	Values     map[string]float64 `json:"values"`
}

// Client provides a Go SDK for the meridian monitor API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new meridian API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// GetStatus retrieves the headline state of the monitored run.
func (c *Client) GetStatus(ctx context.Context) (live.Status, error) {
	var st live.Status
	err := c.get(ctx, "/api/v1/status", nil, &st)
	return st, err
}

// GetPositions retrieves current positions.
func (c *Client) GetPositions(ctx context.Context) ([]live.Position, error) {
	var resp struct {
		Data []live.Position `json:"data"`
	}
	err := c.get(ctx, "/api/v1/positions", nil, &resp)
	return resp.Data, err
}

// GetHoldings retrieves cash, commission and per-symbol market values.
func (c *Client) GetHoldings(ctx context.Context) (Holdings, error) {
	var h Holdings
	err := c.get(ctx, "/api/v1/holdings", nil, &h)
	return h, err
}

// GetEquity retrieves the live equity curve.
func (c *Client) GetEquity(ctx context.Context) ([]live.EquityPoint, error) {
	var resp struct {
		Data []live.EquityPoint `json:"data"`
	}
	err := c.get(ctx, "/api/v1/equity", nil, &resp)
	return resp.Data, err
}

// GetOrders retrieves recently submitted orders.
func (c *Client) GetOrders(ctx context.Context) ([]live.Order, error) {
	var resp struct {
		Data []live.Order `json:"data"`
	}
	err := c.get(ctx, "/api/v1/orders", nil, &resp)
	return resp.Data, err
}

// GetFills retrieves recently applied fills.
func (c *Client) GetFills(ctx context.Context) ([]live.Fill, error) {
	var resp struct {
		Data []live.Fill `json:"data"`
	}
	err := c.get(ctx, "/api/v1/fills", nil, &resp)
	return resp.Data, err
}

// ListRuns retrieves the most recent journaled runs. limit <= 0 uses the
// server default.
func (c *Client) ListRuns(ctx context.Context, limit int) ([]store.Run, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp struct {
		Data []store.Run `json:"data"`
	}
	err := c.get(ctx, "/api/v1/runs", q, &resp)
	return resp.Data, err
}

// GetRun retrieves one journaled run.
func (c *Client) GetRun(ctx context.Context, id string) (store.Run, error) {
	var run store.Run
	err := c.get(ctx, "/api/v1/runs/"+url.PathEscape(id), nil, &run)
	return run, err
}

// GetRunEquity retrieves the stored equity curve of a run.
func (c *Client) GetRunEquity(ctx context.Context, id string) ([]store.EquityRow, error) {
	var resp struct {
		Data []store.EquityRow `json:"data"`
	}
	err := c.get(ctx, "/api/v1/runs/"+url.PathEscape(id)+"/equity", nil, &resp)
	return resp.Data, err
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var body struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &body) != nil || body.Error == "" {
			body.Error = strings.TrimSpace(string(raw))
		}
		return &APIError{StatusCode: resp.StatusCode, Message: body.Error}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
