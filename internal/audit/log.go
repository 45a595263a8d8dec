package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"storozh.org/internal/ids"
	"storozh.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// Entry is one moderation action. Entries are never updated.
type Entry struct {
	ID       string    `json:"id"`
	TargetID int64     `json:"target_id"`
	At       time.Time `json:"at"`
	Action   string    `json:"action"`
	ActorID  int64     `json:"actor_id"`
	ChatID   int64     `json:"chat_id"`
}

// Store persists entries. Entries and ArchivedEntries return insertion order.
type Store interface {
	AppendEntry(ctx context.Context, e Entry) error
	Entries(ctx context.Context, targetID int64) ([]Entry, error)
	ArchivedEntries(ctx context.Context, targetID int64) ([]Entry, error)
	SweepEntries(ctx context.Context, plan SweepPlan) (SweepResult, error)
}

// Log is the append-only audit trail keyed by target user across chats.
type Log struct {
	store  Store
	policy Policy
	now    func() time.Time
}

// Option configures Log.
type Option func(*Log)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		if now != nil {
			l.now = now
		}
	}
}

// New constructs a Log.
func New(store Store, policy Policy, opts ...Option) (*Log, error) {
	if store == nil {
		return nil, errors.New("audit store is required")
	}
	if err := policy.validate(); err != nil {
		return nil, err
	}
	l := &Log{store: store, policy: policy, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Append writes the entry durably before returning. Timestamps are kept with
// second precision.
func (l *Log) Append(ctx context.Context, targetID int64, action string, actorID, chatID int64) (Entry, error) {
	action = strings.TrimSpace(action)
	if action == "" {
		return Entry{}, errors.New("audit action is required")
	}
	at := time.Unix(l.now().Unix(), 0).UTC()
	e := Entry{
		ID:       ids.At(at),
		TargetID: targetID,
		At:       at,
		Action:   action,
		ActorID:  actorID,
		ChatID:   chatID,
	}
	if err := l.store.AppendEntry(ctx, e); err != nil {
		return Entry{}, fmt.Errorf("append audit entry: %w", err)
	}
	obs.AuditAppends.Inc()
	_ = LogEvent(ctx, action, map[string]any{
		"target_id": targetID,
		"actor_id":  actorID,
		"chat_id":   chatID,
		"entry_id":  e.ID,
	})
	return e, nil
}

// Query returns the target's entries, oldest first.
func (l *Log) Query(ctx context.Context, targetID int64) ([]Entry, error) {
	entries, err := l.store.Entries(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	return entries, nil
}

// QueryChat is Query restricted to one chat.
func (l *Log) QueryChat(ctx context.Context, targetID, chatID int64) ([]Entry, error) {
	entries, err := l.Query(ctx, targetID)
	if err != nil {
		return nil, err
	}
	filtered := entries[:0]
	for _, e := range entries {
		if e.ChatID == chatID {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}

// Archived returns entries moved out of the primary log, oldest first.
func (l *Log) Archived(ctx context.Context, targetID int64) ([]Entry, error) {
	entries, err := l.store.ArchivedEntries(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("query audit archive: %w", err)
	}
	return entries, nil
}

// LogEvent writes an audit line to the service log enriched with the request id.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "audit",
		"event": event,
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	copyFields := make(map[string]any, len(fields))
	for k, v := range fields {
		copyFields[k] = v
	}
	entry["fields"] = copyFields

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}
