package platform

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUserNotFound is returned by ResolveUser when the handle is unknown.
var ErrUserNotFound = errors.New("platform: user not found")

// Client is the messaging platform as seen by the moderation core. Every
// call may fail with a transient error.
type Client interface {
	Restrict(ctx context.Context, chatID, userID int64, until time.Time) error
	Unrestrict(ctx context.Context, chatID, userID int64) error
	Ban(ctx context.Context, chatID, userID int64) error
	Unban(ctx context.Context, chatID, userID int64) error
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	ResolveUser(ctx context.Context, handle string) (int64, error)
	SendMessage(ctx context.Context, target int64, text string) error
}

// APIError is a non-success answer from the gateway.
type APIError struct {
	Method  string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("platform %s: status %d", e.Method, e.Status)
	}
	return fmt.Sprintf("platform %s: status %d: %s", e.Method, e.Status, e.Message)
}
