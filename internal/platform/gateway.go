package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Gateway talks JSON over HTTP to the bot gateway that holds the platform
// connection. Each method is a POST to <base>/v1/<method>.
type Gateway struct {
	baseURL string
	token   string
	http    *http.Client
}

// GatewayOption configures Gateway.
type GatewayOption func(*Gateway)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) GatewayOption {
	return func(g *Gateway) {
		if c != nil {
			g.http = c
		}
	}
}

// NewGateway builds a gateway client. token is sent as a bearer token when set.
func NewGateway(baseURL, token string, timeout time.Duration, opts ...GatewayOption) (*Gateway, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("platform: gateway url is required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	g := &Gateway{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

type callRequest struct {
	ChatID    int64  `json:"chat_id,omitempty"`
	UserID    int64  `json:"user_id,omitempty"`
	MessageID int64  `json:"message_id,omitempty"`
	Until     int64  `json:"until,omitempty"`
	Handle    string `json:"handle,omitempty"`
	Target    int64  `json:"target,omitempty"`
	Text      string `json:"text,omitempty"`
}

type callResponse struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	UserID int64  `json:"user_id,omitempty"`
}

func (g *Gateway) Restrict(ctx context.Context, chatID, userID int64, until time.Time) error {
	_, err := g.call(ctx, "restrict", callRequest{ChatID: chatID, UserID: userID, Until: until.Unix()})
	return err
}

func (g *Gateway) Unrestrict(ctx context.Context, chatID, userID int64) error {
	_, err := g.call(ctx, "unrestrict", callRequest{ChatID: chatID, UserID: userID})
	return err
}

func (g *Gateway) Ban(ctx context.Context, chatID, userID int64) error {
	_, err := g.call(ctx, "ban", callRequest{ChatID: chatID, UserID: userID})
	return err
}

func (g *Gateway) Unban(ctx context.Context, chatID, userID int64) error {
	_, err := g.call(ctx, "unban", callRequest{ChatID: chatID, UserID: userID})
	return err
}

func (g *Gateway) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	_, err := g.call(ctx, "delete_message", callRequest{ChatID: chatID, MessageID: messageID})
	return err
}

// ResolveUser maps a @handle or numeric string to a user id.
func (g *Gateway) ResolveUser(ctx context.Context, handle string) (int64, error) {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if handle == "" {
		return 0, ErrUserNotFound
	}
	resp, err := g.call(ctx, "resolve_user", callRequest{Handle: handle})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return 0, fmt.Errorf("%w: %s", ErrUserNotFound, handle)
		}
		return 0, err
	}
	if resp.UserID == 0 {
		return 0, fmt.Errorf("%w: %s", ErrUserNotFound, handle)
	}
	return resp.UserID, nil
}

func (g *Gateway) SendMessage(ctx context.Context, target int64, text string) error {
	_, err := g.call(ctx, "send_message", callRequest{Target: target, Text: text})
	return err
}

func (g *Gateway) call(ctx context.Context, method string, body callRequest) (callResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return callResponse{}, fmt.Errorf("encode %s: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/"+method, bytes.NewReader(payload))
	if err != nil {
		return callResponse{}, fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	res, err := g.http.Do(req)
	if err != nil {
		return callResponse{}, fmt.Errorf("platform %s: %w", method, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return callResponse{}, fmt.Errorf("read %s response: %w", method, err)
	}
	var out callResponse
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil && res.StatusCode < 300 {
			return callResponse{}, fmt.Errorf("decode %s response: %w", method, err)
		}
	}
	if res.StatusCode >= 300 || !out.OK {
		return callResponse{}, &APIError{Method: method, Status: res.StatusCode, Message: out.Error}
	}
	return out, nil
}
