package obs

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                               "/",
		"/metrics":                       "/metrics",
		"/v1/chats/-100123/logs/42":      "/v1/chats/:chat/logs/:user",
		"/v1/chats/-100123/logs/42?x=1":  "/v1/chats/:chat/logs/:user",
		"/v1/chats/-100123/logs":         "/v1/chats/-100123/logs",
		"/v1/commands":                   "/v1/commands",
		"/v1/chats/-100123/mutes/42/foo": "/v1/chats/-100123/mutes/42/foo",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestLevelsAndFields(t *testing.T) {
	logger := Logger()
	original := logger.Writer()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)
	defer SetLevel("info")

	SetLevel("warn")
	Info("hidden", nil)
	if buf.Len() != 0 {
		t.Fatalf("info line should be filtered, got %q", buf.String())
	}

	Warn("unmute failed", map[string]any{"chat_id": int64(-100), "error": errors.New("boom")})
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["level"] != "warn" || entry["msg"] != "unmute failed" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["error"] != "boom" {
		t.Fatalf("error not rendered as string: %v", entry["error"])
	}
}
