package platform

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"storozh.org/internal/obs"
)

// DryRun logs every call instead of performing it. It is used when no
// gateway is configured so the service can run locally.
type DryRun struct{}

var _ Client = DryRun{}

func (DryRun) Restrict(_ context.Context, chatID, userID int64, until time.Time) error {
	obs.Info("dry-run restrict", map[string]any{"chat_id": chatID, "user_id": userID, "until": until.Unix()})
	return nil
}

func (DryRun) Unrestrict(_ context.Context, chatID, userID int64) error {
	obs.Info("dry-run unrestrict", map[string]any{"chat_id": chatID, "user_id": userID})
	return nil
}

func (DryRun) Ban(_ context.Context, chatID, userID int64) error {
	obs.Info("dry-run ban", map[string]any{"chat_id": chatID, "user_id": userID})
	return nil
}

func (DryRun) Unban(_ context.Context, chatID, userID int64) error {
	obs.Info("dry-run unban", map[string]any{"chat_id": chatID, "user_id": userID})
	return nil
}

func (DryRun) DeleteMessage(_ context.Context, chatID, messageID int64) error {
	obs.Info("dry-run delete message", map[string]any{"chat_id": chatID, "message_id": messageID})
	return nil
}

// ResolveUser only understands numeric ids.
func (DryRun) ResolveUser(_ context.Context, handle string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(handle), "@"), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: %s", ErrUserNotFound, handle)
	}
	return id, nil
}

func (DryRun) SendMessage(_ context.Context, target int64, text string) error {
	obs.Info("dry-run send message", map[string]any{"target": target, "text": text})
	return nil
}
