// Package client talks to the chat server: REST calls through Client, live
// events through Stream, and a deduplicated per-room view through Timeline
// and Conversation.
package client

import (
	"bytes"
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
)

type Profile struct {
	ID          string  `json:"id"`
	Username    string  `json:"username"`
	DisplayName *string `json:"displayName"`
}

// Name is the label shown for the profile: display name, then username.
func (p Profile) Name() string {
	if p.DisplayName != nil && *p.DisplayName != "" {
		return *p.DisplayName
	}
	return p.Username
}

type Message struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	SenderID  string    `json:"senderId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	Sender    Profile   `json:"sender"`
}

type RoomRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type RoomSummary struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status int    `json:"-"`
	Code   string `json:"error"`
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%d %s: %s %s", e.Status, e.Code, e.Field, e.Reason)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Code)
}

// IsCode reports whether err is an APIError carrying code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New returns a client for the server at baseURL authenticating with token.
// A nil httpClient uses one with a 15 second timeout.
func New(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

// StreamURL is the websocket address derived from the base URL.
func (c *Client) StreamURL() string {
	switch {
	case strings.HasPrefix(c.baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(c.baseURL, "https://") + "/ws"
	case strings.HasPrefix(c.baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(c.baseURL, "http://") + "/ws"
	default:
		return c.baseURL + "/ws"
	}
}

func (c *Client) Token() string {
	return c.token
}

func (c *Client) Me(ctx context.Context) (*Profile, error) {
	var me Profile
	if err := c.do(ctx, http.MethodGet, "/api/v1/me", nil, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

func (c *Client) CreateRoom(ctx context.Context, name string) (*RoomRef, error) {
	var room RoomRef
	if err := c.do(ctx, http.MethodPost, "/api/v1/rooms", map[string]string{"name": name}, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (c *Client) OpenDirect(ctx context.Context, otherUserID string) (*RoomRef, error) {
	var room RoomRef
	if err := c.do(ctx, http.MethodPost, "/api/v1/rooms/dm", map[string]string{"otherUid": otherUserID}, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// ListRooms returns the caller's rooms, most recently active first.
func (c *Client) ListRooms(ctx context.Context) ([]RoomSummary, error) {
	var rooms []RoomSummary
	if err := c.do(ctx, http.MethodGet, "/api/v1/me/rooms", nil, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// ListMessages returns up to limit recent messages, oldest first. A limit of
// zero leaves the choice to the server.
func (c *Client) ListMessages(ctx context.Context, roomID string, limit int) ([]Message, error) {
	path := "/api/v1/rooms/" + url.PathEscape(roomID) + "/messages"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var messages []Message
	if err := c.do(ctx, http.MethodGet, path, nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (c *Client) Send(ctx context.Context, roomID, text string) (*Message, error) {
	var msg Message
	if err := c.do(ctx, http.MethodPost, "/api/v1/messages", map[string]string{"roomId": roomID, "text": text}, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) Rename(ctx context.Context, roomID, name string) (*RoomSummary, error) {
	var room RoomSummary
	path := "/api/v1/rooms/" + url.PathEscape(roomID) + "/name"
	if err := c.do(ctx, http.MethodPatch, path, map[string]string{"name": name}, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (c *Client) SearchUsers(ctx context.Context, query string) ([]Profile, error) {
	var users []Profile
	path := "/api/v1/users/search?query=" + url.QueryEscape(query)
	if err := c.do(ctx, http.MethodGet, path, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Code == "" {
			apiErr.Code = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
