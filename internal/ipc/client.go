package ipc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	dialTimeout    = 2 * time.Second
	requestTimeout = 10 * time.Second
)

// Client provides HTTP access to a running daemon.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client for the daemon API at bind (host:port).
func NewClient(bind string) *Client {
	base := strings.TrimSpace(bind)
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	dialer := &net.Dialer{Timeout: dialTimeout}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		http: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				DialContext: dialer.DialContext,
			},
		},
	}
}

// Status retrieves combined daemon/session status.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.get(ctx, "/api/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Devices lists the attached capture devices.
func (c *Client) Devices(ctx context.Context) (*DevicesResponse, error) {
	var resp DevicesResponse
	if err := c.get(ctx, "/api/devices", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ToggleCamera flips the persisted camera selection.
func (c *Client) ToggleCamera(ctx context.Context) (*ToggleResponse, error) {
	var resp ToggleResponse
	if err := c.post(ctx, "/api/devices/toggle", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// History returns up to limit stored scans, newest first. A limit of
// zero uses the daemon's configured cap.
func (c *Client) History(ctx context.Context, limit int) (*HistoryResponse, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var resp HistoryResponse
	if err := c.get(ctx, "/api/history", query, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ClearHistory removes all stored scans.
func (c *Client) ClearHistory(ctx context.Context) (*ClearHistoryResponse, error) {
	var resp ClearHistoryResponse
	if err := c.post(ctx, "/api/history/clear", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StartSession starts a scan session on the daemon.
func (c *Client) StartSession(ctx context.Context) (*StartResponse, error) {
	var resp StartResponse
	if err := c.post(ctx, "/api/session/start", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StopSession stops the daemon's scan session.
func (c *Client) StopSession(ctx context.Context) (*StopResponse, error) {
	var resp StopResponse
	if err := c.post(ctx, "/api/session/stop", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SwitchCamera retargets the running session to another camera.
func (c *Client) SwitchCamera(ctx context.Context, req SwitchRequest) (*SwitchResponse, error) {
	var resp SwitchResponse
	if err := c.post(ctx, "/api/session/switch", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ClearResult drops the session's last surfaced scan result.
func (c *Client) ClearResult(ctx context.Context) error {
	return c.post(ctx, "/api/session/result/clear", nil, nil)
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("connect to daemon at %s: %w (is `glint daemon run` active?)", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var wireErr ErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&wireErr); decodeErr == nil && wireErr.Error != "" {
			return fmt.Errorf("daemon: %s", wireErr.Error)
		}
		return fmt.Errorf("daemon returned %s", resp.Status)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode daemon response: %w", err)
	}
	return nil
}
