// Package legacy imports the flat JSON documents kept by the first version
// of the bot: admins.json and mutes.json keyed chat -> user, and logs.json
// keyed by target user.
package legacy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"storozh.org/internal/audit"
	"storozh.org/internal/ids"
	"storozh.org/internal/mute"
	"storozh.org/internal/obs"
	"storozh.org/internal/roles"
)

// Target receives imported rows. Writes are insert-or-replace, so the last
// occurrence of a key wins.
type Target interface {
	SetRole(ctx context.Context, chatID, userID int64, role roles.Role) error
	UpsertMute(ctx context.Context, rec mute.Record) error
	AppendEntry(ctx context.Context, e audit.Entry) error
}

// Counts reports imported and skipped rows for one document.
type Counts struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

type logRow struct {
	Time   json.RawMessage `json:"time"`
	Action *string         `json:"action"`
	By     json.RawMessage `json:"by"`
	ChatID json.RawMessage `json:"chat_id"`
}

// ImportAdmins reads {chat_id: {user_id: role}}.
func ImportAdmins(ctx context.Context, r io.Reader, dst Target) (Counts, error) {
	doc, err := decodeChats(r)
	if err != nil {
		return Counts{}, fmt.Errorf("decode admins: %w", err)
	}
	var c Counts
	for chatKey, rawUsers := range doc {
		chatID, users, ok := chatUsers(&c, "admins", chatKey, rawUsers)
		if !ok {
			continue
		}
		for userKey, raw := range users {
			userID, err := parseID(userKey)
			if err != nil {
				skip(&c, "admins", "user_id", userKey)
				continue
			}
			n, err := number(raw)
			role := roles.Role(n)
			if err != nil || !role.Valid() {
				skip(&c, "admins", "role", string(raw))
				continue
			}
			if err := dst.SetRole(ctx, chatID, userID, role); err != nil {
				return c, fmt.Errorf("import role %d/%d: %w", chatID, userID, err)
			}
			c.Imported++
		}
	}
	return c, nil
}

// ImportMutes reads {chat_id: {user_id: unmute_ts}}.
func ImportMutes(ctx context.Context, r io.Reader, dst Target) (Counts, error) {
	doc, err := decodeChats(r)
	if err != nil {
		return Counts{}, fmt.Errorf("decode mutes: %w", err)
	}
	var c Counts
	for chatKey, rawUsers := range doc {
		chatID, users, ok := chatUsers(&c, "mutes", chatKey, rawUsers)
		if !ok {
			continue
		}
		for userKey, raw := range users {
			userID, err := parseID(userKey)
			if err != nil {
				skip(&c, "mutes", "user_id", userKey)
				continue
			}
			ts, err := number(raw)
			if err != nil {
				skip(&c, "mutes", "unmute_ts", string(raw))
				continue
			}
			rec := mute.Record{ChatID: chatID, UserID: userID, UnmuteAt: time.Unix(ts, 0).UTC()}
			if err := dst.UpsertMute(ctx, rec); err != nil {
				return c, fmt.Errorf("import mute %d/%d: %w", chatID, userID, err)
			}
			c.Imported++
		}
	}
	return c, nil
}

// ImportLogs reads {target_id: [{time, action, by, chat_id}]} keeping the
// original timestamps and per-target order.
func ImportLogs(ctx context.Context, r io.Reader, dst Target) (Counts, error) {
	var doc map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return Counts{}, fmt.Errorf("decode logs: %w", err)
	}
	var c Counts
	for targetKey, rawRows := range doc {
		targetID, err := parseID(targetKey)
		if err != nil {
			skip(&c, "logs", "target_id", targetKey)
			continue
		}
		var rows []json.RawMessage
		if err := json.Unmarshal(rawRows, &rows); err != nil {
			skip(&c, "logs", "entries", targetKey)
			continue
		}
		for _, rawRow := range rows {
			var row logRow
			if err := json.Unmarshal(rawRow, &row); err != nil {
				skip(&c, "logs", "entry", string(rawRow))
				continue
			}
			ts, errT := number(row.Time)
			by, errB := number(row.By)
			chatID, errC := number(row.ChatID)
			if errT != nil || errB != nil || errC != nil || row.Action == nil {
				skip(&c, "logs", "entry", targetKey)
				continue
			}
			at := time.Unix(ts, 0).UTC()
			e := audit.Entry{
				ID:       ids.At(at),
				TargetID: targetID,
				At:       at,
				Action:   *row.Action,
				ActorID:  by,
				ChatID:   chatID,
			}
			if err := dst.AppendEntry(ctx, e); err != nil {
				return c, fmt.Errorf("import log for %d: %w", targetID, err)
			}
			c.Imported++
		}
	}
	return c, nil
}

func decodeChats(r io.Reader) (map[string]json.RawMessage, error) {
	var doc map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// chatUsers parses one chat section; non-object sections are skipped.
func chatUsers(c *Counts, doc, chatKey string, raw json.RawMessage) (int64, map[string]json.RawMessage, bool) {
	chatID, err := parseID(chatKey)
	if err != nil {
		skip(c, doc, "chat_id", chatKey)
		return 0, nil, false
	}
	var users map[string]json.RawMessage
	if err := json.Unmarshal(raw, &users); err != nil {
		skip(c, doc, "users", chatKey)
		return 0, nil, false
	}
	return chatID, users, true
}

// number accepts a JSON integer or a quoted one.
func number(raw json.RawMessage) (int64, error) {
	s := strings.TrimSpace(string(raw))
	if unq, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unq)
	}
	return strconv.ParseInt(s, 10, 64)
}

func parseID(s string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}

func skip(c *Counts, doc, field, value string) {
	c.Skipped++
	obs.Warn("legacy import: skipping row", map[string]any{"document": doc, "field": field, "value": value})
}
