package legacy

import (
	"context"
	"strings"
	"testing"
	"time"

	"storozh.org/internal/roles"
	"storozh.org/internal/store/memory"
)

func TestImportAdmins(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	doc := `{
		"-100": {"1": 2, "2": "3", "3": 9, "x": 1},
		"oops": {"4": 1},
		"-200": "not an object"
	}`
	c, err := ImportAdmins(ctx, strings.NewReader(doc), s)
	if err != nil {
		t.Fatalf("ImportAdmins: %v", err)
	}
	if c.Imported != 2 || c.Skipped != 4 {
		t.Fatalf("unexpected counts %+v", c)
	}
	if r, _ := s.Role(ctx, -100, 2); r != roles.Owner {
		t.Fatalf("quoted role not imported: %v", r)
	}
}

func TestImportMutesLastWriteWins(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	if _, err := ImportMutes(ctx, strings.NewReader(`{"-100": {"5": 1700000000}}`), s); err != nil {
		t.Fatalf("ImportMutes: %v", err)
	}
	if _, err := ImportMutes(ctx, strings.NewReader(`{"-100": {"5": 1700000600}}`), s); err != nil {
		t.Fatalf("ImportMutes again: %v", err)
	}
	all, _ := s.Mutes(ctx)
	if len(all) != 1 || !all[0].UnmuteAt.Equal(time.Unix(1_700_000_600, 0)) {
		t.Fatalf("expected a single replaced mute, got %+v", all)
	}
}

func TestImportLogsKeepsTimestamps(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	doc := `{
		"42": [
			{"time": 1700000000, "action": "mute until 2023-11-14 22:23 UTC", "by": 7, "chat_id": -100},
			{"time": 1700000100, "action": "unmute", "by": 7, "chat_id": -100},
			{"time": 1700000200, "by": 7, "chat_id": -100},
			"garbage"
		],
		"nope": []
	}`
	c, err := ImportLogs(ctx, strings.NewReader(doc), s)
	if err != nil {
		t.Fatalf("ImportLogs: %v", err)
	}
	if c.Imported != 2 || c.Skipped != 3 {
		t.Fatalf("unexpected counts %+v", c)
	}
	entries, _ := s.Entries(ctx, 42)
	if len(entries) != 2 || entries[0].At.Unix() != 1_700_000_000 || entries[1].Action != "unmute" {
		t.Fatalf("unexpected entries %+v", entries)
	}
	if entries[0].ID >= entries[1].ID {
		t.Fatal("ids should follow timestamps")
	}
}

func TestImportRejectsBrokenDocument(t *testing.T) {
	if _, err := ImportAdmins(context.Background(), strings.NewReader(`[1,2`), memory.New()); err == nil {
		t.Fatal("expected decode error")
	}
}
