// Package clients provides a typed Go client for the duelmath REST API.
// Real-time play happens over the WebSocket gateway; this client covers the
// HTTP precursors: creating a room, joining by code and fetching snapshots.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/duelmath/duelmath/internal/room"
)

type Client struct {
	baseURL string
	client  *http.Client
	headers map[string]string
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		headers: make(map[string]string),
	}
}

func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

func (c *Client) SetTimeout(timeout time.Duration) {
	c.client.Timeout = timeout
}

// RoomInfo describes a freshly created room.
type RoomInfo struct {
	RoomCode string `json:"roomCode"`
	Mode     int    `json:"mode"`
	Capacity int    `json:"capacity"`
}

// PlayerState is one player's score and position.
type PlayerState struct {
	Identity     string `json:"identity"`
	Score        int    `json:"score"`
	CurrentIndex int    `json:"currentIndex"`
}

// JoinResult is the response to a join request.
type JoinResult struct {
	RoomCode    string      `json:"roomCode"`
	PlayerState PlayerState `json:"playerState"`
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API returned status code: %d, response: %s", e.StatusCode, e.Message)
}

// CreateRoom creates a room for a game of the given mode (minutes). A
// capacity of 0 uses the server default.
func (c *Client) CreateRoom(ctx context.Context, mode, capacity int) (*RoomInfo, error) {
	body := map[string]int{"mode": mode}
	if capacity > 0 {
		body["capacity"] = capacity
	}
	var info RoomInfo
	if err := c.doJSON(ctx, http.MethodPost, "/v1/rooms", body, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// JoinRoom binds an identity to the room. Joining twice with the same
// identity returns the existing state.
func (c *Client) JoinRoom(ctx context.Context, code, identity string) (*JoinResult, error) {
	body := map[string]string{"identity": identity}
	var result JoinResult
	if err := c.doJSON(ctx, http.MethodPost, "/v1/rooms/"+url.PathEscape(code)+"/join", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetRoom fetches the authoritative snapshot for a known member.
func (c *Client) GetRoom(ctx context.Context, code, identity string) (*room.RejoinSnapshot, error) {
	endpoint := "/v1/rooms/" + url.PathEscape(code) + "?identity=" + url.QueryEscape(identity)
	var snapshot room.RejoinSnapshot
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// Health checks the server's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	var status map[string]string
	return c.doJSON(ctx, http.MethodGet, "/health", nil, &status)
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		message := string(responseBody)
		if json.Unmarshal(responseBody, &apiErr) == nil && apiErr.Error != "" {
			message = apiErr.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: message}
	}

	if out != nil {
		if err := json.Unmarshal(responseBody, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
