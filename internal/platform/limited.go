package platform

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"storozh.org/internal/obs"
)

// Limited wraps a Client with a shared token bucket and call metrics. The
// platform throttles bots per token, so every method draws from one limiter.
type Limited struct {
	next Client
	lim  *rate.Limiter
}

var _ Client = (*Limited)(nil)

// NewLimited allows perSecond calls with the given burst. A non-positive
// rate disables limiting but keeps the metrics.
func NewLimited(next Client, perSecond float64, burst int) *Limited {
	lim := rate.NewLimiter(rate.Inf, 0)
	if perSecond > 0 {
		if burst <= 0 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	return &Limited{next: next, lim: lim}
}

func (l *Limited) Restrict(ctx context.Context, chatID, userID int64, until time.Time) error {
	return l.do(ctx, "restrict", func() error { return l.next.Restrict(ctx, chatID, userID, until) })
}

func (l *Limited) Unrestrict(ctx context.Context, chatID, userID int64) error {
	return l.do(ctx, "unrestrict", func() error { return l.next.Unrestrict(ctx, chatID, userID) })
}

func (l *Limited) Ban(ctx context.Context, chatID, userID int64) error {
	return l.do(ctx, "ban", func() error { return l.next.Ban(ctx, chatID, userID) })
}

func (l *Limited) Unban(ctx context.Context, chatID, userID int64) error {
	return l.do(ctx, "unban", func() error { return l.next.Unban(ctx, chatID, userID) })
}

func (l *Limited) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	return l.do(ctx, "delete_message", func() error { return l.next.DeleteMessage(ctx, chatID, messageID) })
}

func (l *Limited) ResolveUser(ctx context.Context, handle string) (int64, error) {
	var id int64
	err := l.do(ctx, "resolve_user", func() error {
		var err error
		id, err = l.next.ResolveUser(ctx, handle)
		return err
	})
	return id, err
}

func (l *Limited) SendMessage(ctx context.Context, target int64, text string) error {
	return l.do(ctx, "send_message", func() error { return l.next.SendMessage(ctx, target, text) })
}

func (l *Limited) do(ctx context.Context, method string, call func() error) error {
	if err := l.lim.Wait(ctx); err != nil {
		obs.PlatformCalls.WithLabelValues(method, "throttled").Inc()
		return err
	}
	if err := call(); err != nil {
		obs.PlatformCalls.WithLabelValues(method, "error").Inc()
		return err
	}
	obs.PlatformCalls.WithLabelValues(method, "ok").Inc()
	return nil
}
