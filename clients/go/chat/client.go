// Package chat provides a Go client for the chat backend API.
package chat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is a chat API client. Token is the bearer token issued by the
// central auth service.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewClient creates a new chat client.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// doRequest performs an HTTP request.
func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return nil, fmt.Errorf("chat error %d: %s", resp.StatusCode, errResp.Error)
	}

	return respBody, nil
}

// Message represents a chat message.
type Message struct {
	ID           int64  `json:"id"`
	Type         string `json:"type"`
	Content      string `json:"content"`
	SenderUUID   string `json:"sender_uuid,omitempty"`
	SenderName   string `json:"sender_name,omitempty"`
	ReplyToID    *int64 `json:"reply_to_id,omitempty"`
	ThreadRootID *int64 `json:"thread_root_id,omitempty"`
	IsDeleted    bool   `json:"is_deleted"`
	IsSystem     bool   `json:"is_system"`
	ReplyCount   int64  `json:"reply_count"`
	ReadCount    int64  `json:"read_count"`
	CreatedAt    string `json:"created_at"`
}

// Room represents a chat room.
type Room struct {
	ID               int64  `json:"id"`
	Code             string `json:"code"`
	Title            string `json:"title"`
	Status           string `json:"status"`
	MessageCount     int64  `json:"message_count"`
	ParticipantCount int64  `json:"participant_count"`
}

// CreateRoomRequest is the request body for creating a room.
type CreateRoomRequest struct {
	Code            string `json:"code"`
	Title           string `json:"title"`
	SlowModeSeconds int    `json:"slow_mode_seconds,omitempty"`
	DailyMessageCap int64  `json:"daily_message_cap,omitempty"`
}

// CreateRoom creates a new room; the caller becomes its owner.
func (c *Client) CreateRoom(ctx context.Context, req CreateRoomRequest) (*Room, error) {
	body, _ := json.Marshal(req)
	respBody, err := c.doRequest(ctx, "POST", "/rooms", body)
	if err != nil {
		return nil, err
	}
	var room Room
	if err := json.Unmarshal(respBody, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// JoinRoom joins an active room.
func (c *Client) JoinRoom(ctx context.Context, roomID int64) error {
	_, err := c.doRequest(ctx, "POST", fmt.Sprintf("/rooms/%d/join", roomID), nil)
	return err
}

// LeaveRoom leaves a room.
func (c *Client) LeaveRoom(ctx context.Context, roomID int64) error {
	_, err := c.doRequest(ctx, "POST", fmt.Sprintf("/rooms/%d/leave", roomID), nil)
	return err
}

// PostMessageRequest is the request body for posting a message.
type PostMessageRequest struct {
	Type             string `json:"type,omitempty"`
	Content          string `json:"content"`
	ContentEncrypted string `json:"content_encrypted,omitempty"`
	ReplyToID        *int64 `json:"reply_to_id,omitempty"`
}

// PostMessage posts a message to a room.
func (c *Client) PostMessage(ctx context.Context, roomID int64, req PostMessageRequest) (*Message, error) {
	body, _ := json.Marshal(req)
	respBody, err := c.doRequest(ctx, "POST", fmt.Sprintf("/rooms/%d/messages", roomID), body)
	if err != nil {
		return nil, err
	}
	var msg Message
	if err := json.Unmarshal(respBody, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// MessagesResponse is the response from listing room messages.
type MessagesResponse struct {
	RoomID   int64     `json:"room_id"`
	Messages []Message `json:"messages"`
}

// Messages retrieves messages appended after a known id.
func (c *Client) Messages(ctx context.Context, roomID, after int64, limit int) (*MessagesResponse, error) {
	path := fmt.Sprintf("/rooms/%d/messages?after=%d", roomID, after)
	if limit > 0 {
		path += fmt.Sprintf("&limit=%d", limit)
	}

	respBody, err := c.doRequest(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}
	var resp MessagesResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// MarkRead records a read receipt for a message.
func (c *Client) MarkRead(ctx context.Context, roomID, messageID int64) error {
	body, _ := json.Marshal(map[string]int64{"message_id": messageID})
	_, err := c.doRequest(ctx, "POST", fmt.Sprintf("/rooms/%d/read", roomID), body)
	return err
}

// Typing publishes a typing indicator; action is "start" or "stop".
func (c *Client) Typing(ctx context.Context, roomID int64, action string) error {
	body, _ := json.Marshal(map[string]string{"action": action})
	_, err := c.doRequest(ctx, "POST", fmt.Sprintf("/rooms/%d/typing", roomID), body)
	return err
}

// Event is one frame from the streaming connection.
type Event struct {
	Name string
	Data json.RawMessage
}

// Stream opens the room's push stream and delivers events to handler until
// ctx is cancelled, the server closes the connection, or handler returns an
// error.
func (c *Client) Stream(ctx context.Context, roomID int64, handler func(Event) error) error {
	req, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s/rooms/%d/stream", c.BaseURL, roomID), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Accept", "text/event-stream")

	// No client-side timeout: the server heartbeats every 30s and the
	// connection is meant to stay open.
	httpClient := &http.Client{Transport: c.HTTPClient.Transport}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return fmt.Errorf("chat error %d: %s", resp.StatusCode, errResp.Error)
	}

	var ev Event
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			ev.Name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.Data = json.RawMessage(strings.TrimPrefix(line, "data: "))
		case line == "":
			// Blank line terminates the frame.
			if ev.Name != "" {
				if err := handler(ev); err != nil {
					return err
				}
			}
			ev = Event{}
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return ctx.Err()
}
