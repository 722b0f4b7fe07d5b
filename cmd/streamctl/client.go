package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"streamd/pkg/types"
)

// Client is a thin HTTP client for the streamd API.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func newClient(baseURL string) *Client {
	return &Client{BaseURL: baseURL, HTTP: &http.Client{Timeout: 30 * time.Second}}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var apiErr types.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (%d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: HTTP %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) Generate(ctx context.Context, req types.GenerateRequest) (types.TaskResponse, error) {
	var out types.TaskResponse
	err := c.do(ctx, http.MethodPost, "/api/chat/generate", req, &out)
	return out, err
}

func (c *Client) Status(ctx context.Context, taskID string) (types.Task, error) {
	var out types.Task
	err := c.do(ctx, http.MethodGet, "/api/chat/status/"+url.PathEscape(taskID), nil, &out)
	return out, err
}

func (c *Client) Chunks(ctx context.Context, taskID string, fromID int) (types.ChunksResponse, error) {
	var out types.ChunksResponse
	path := "/api/chat/chunks/" + url.PathEscape(taskID) + "?from_id=" + strconv.Itoa(fromID)
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) Cancel(ctx context.Context, taskID string) (types.CancelResponse, error) {
	var out types.CancelResponse
	err := c.do(ctx, http.MethodPost, "/api/chat/cancel/"+url.PathEscape(taskID), nil, &out)
	return out, err
}

func (c *Client) Sessions(ctx context.Context, ownerID string, hours float64) (types.SessionsResponse, error) {
	var out types.SessionsResponse
	path := "/api/sessions/" + url.PathEscape(ownerID) + "/recent"
	if hours > 0 {
		path += "?hours=" + strconv.FormatFloat(hours, 'f', -1, 64)
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) DeleteSession(ctx context.Context, ownerID, taskID string) error {
	path := "/api/sessions/" + url.PathEscape(ownerID) + "/" + url.PathEscape(taskID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) Cleanup(ctx context.Context, hours float64) (types.CleanupResponse, error) {
	var out types.CleanupResponse
	path := "/api/sessions/cleanup"
	if hours > 0 {
		path += "?hours=" + strconv.FormatFloat(hours, 'f', -1, 64)
	}
	err := c.do(ctx, http.MethodPost, path, nil, &out)
	return out, err
}

func (c *Client) Stats(ctx context.Context) (types.StatsResponse, error) {
	var out types.StatsResponse
	err := c.do(ctx, http.MethodGet, "/api/stats", nil, &out)
	return out, err
}

// Follow polls the chunk endpoint from the given offset until the task reaches
// a terminal state, writing fragment text to w as it arrives. It returns the
// final status and, for error states, the error detail.
func (c *Client) Follow(ctx context.Context, taskID string, fromID int, interval time.Duration, w io.Writer) (types.TaskStatus, string, error) {
	offset := fromID
	for {
		res, err := c.Chunks(ctx, taskID, offset)
		if err != nil {
			return "", "", err
		}
		for _, ch := range res.Chunks {
			if _, err := io.WriteString(w, ch.Text); err != nil {
				return "", "", err
			}
		}
		offset += len(res.Chunks)
		if res.Status.Terminal() {
			return res.Status, res.ErrorDetail, nil
		}
		select {
		case <-ctx.Done():
			return "", "", ctx.Err()
		case <-time.After(interval):
		}
	}
}
