package memory

import (
	"context"
	"testing"
	"time"

	"storozh.org/internal/audit"
	"storozh.org/internal/mute"
	"storozh.org/internal/roles"
)

func TestRolesRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()

	if r, _ := s.Role(ctx, 1, 2); r != roles.Member {
		t.Fatalf("unknown user should be member, got %v", r)
	}
	_ = s.SetRole(ctx, 1, 2, roles.Admin)
	_ = s.SetRole(ctx, 1, 3, roles.Owner)
	_ = s.SetRole(ctx, 1, 4, roles.Moderator)
	_ = s.SetRole(ctx, 9, 5, roles.Admin)

	staff, err := s.Staff(ctx, 1)
	if err != nil {
		t.Fatalf("Staff: %v", err)
	}
	if len(staff) != 3 || staff[0].UserID != 3 || staff[2].UserID != 4 {
		t.Fatalf("unexpected staff order: %+v", staff)
	}

	if err := s.SetRole(ctx, 1, 2, roles.Member); err != nil {
		t.Fatalf("SetRole member: %v", err)
	}
	if r, _ := s.Role(ctx, 1, 2); r != roles.Member {
		t.Fatalf("demoted user should be member, got %v", r)
	}
	if err := s.SetRole(ctx, 1, 2, roles.Role(7)); err != roles.ErrInvalidRole {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestMutesSortedAndDeleted(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Unix(1_700_000_000, 0)
	_ = s.UpsertMute(ctx, mute.Record{ChatID: 1, UserID: 2, UnmuteAt: base.Add(time.Hour)})
	_ = s.UpsertMute(ctx, mute.Record{ChatID: 1, UserID: 3, UnmuteAt: base})
	_ = s.UpsertMute(ctx, mute.Record{ChatID: 1, UserID: 2, UnmuteAt: base.Add(2 * time.Hour)})

	all, _ := s.Mutes(ctx)
	if len(all) != 2 || all[0].UserID != 3 {
		t.Fatalf("unexpected mutes: %+v", all)
	}
	if ok, _ := s.DeleteMute(ctx, 1, 2); !ok {
		t.Fatal("first delete should report removal")
	}
	if ok, _ := s.DeleteMute(ctx, 1, 2); ok {
		t.Fatal("second delete should report nothing removed")
	}
}

func TestRetentionTiers(t *testing.T) {
	ctx := context.Background()
	s := New()
	start := time.Unix(1_700_000_000, 0).UTC()
	now := start
	log, err := audit.New(s, audit.DefaultPolicy(), audit.WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("audit.New: %v", err)
	}
	if _, err := log.Append(ctx, 42, "mute until 2023-11-15 00:00 UTC", 7, -100); err != nil {
		t.Fatalf("Append: %v", err)
	}

	steps := []struct {
		offset   time.Duration
		primary  int
		archived int
	}{
		{47*time.Hour + 59*time.Minute, 1, 0},
		{49 * time.Hour, 0, 1},
		{97 * time.Hour, 0, 0},
	}
	for _, st := range steps {
		now = start.Add(st.offset)
		if _, err := log.Sweep(ctx); err != nil {
			t.Fatalf("Sweep at %v: %v", st.offset, err)
		}
		primary, _ := log.Query(ctx, 42)
		archived, _ := log.Archived(ctx, 42)
		if len(primary) != st.primary || len(archived) != st.archived {
			t.Fatalf("at +%v: primary=%d archived=%d, want %d/%d",
				st.offset, len(primary), len(archived), st.primary, st.archived)
		}
	}
}

func TestRetentionWithoutArchive(t *testing.T) {
	ctx := context.Background()
	s := New()
	start := time.Unix(1_700_000_000, 0).UTC()
	now := start
	policy := audit.DefaultPolicy()
	policy.KeepArchive = false
	log, err := audit.New(s, policy, audit.WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("audit.New: %v", err)
	}
	_, _ = log.Append(ctx, 42, "unmute", 7, -100)

	now = start.Add(49 * time.Hour)
	res, err := log.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.Discarded != 1 || res.Archived != 0 {
		t.Fatalf("unexpected sweep result %+v", res)
	}
	if archived, _ := log.Archived(ctx, 42); len(archived) != 0 {
		t.Fatal("archive must stay empty when disabled")
	}
}
