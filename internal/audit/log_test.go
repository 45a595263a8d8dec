package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingStore struct {
	mu      sync.Mutex
	entries []Entry
	plans   []SweepPlan
	err     error
}

func (s *recordingStore) AppendEntry(_ context.Context, e Entry) error {
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *recordingStore) Entries(_ context.Context, targetID int64) ([]Entry, error) {
	var out []Entry
	for _, e := range s.entries {
		if e.TargetID == targetID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *recordingStore) ArchivedEntries(context.Context, int64) ([]Entry, error) { return nil, nil }

func (s *recordingStore) SweepEntries(_ context.Context, plan SweepPlan) (SweepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans = append(s.plans, plan)
	return SweepResult{}, s.err
}

func plansSnapshot(s *recordingStore) []SweepPlan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SweepPlan(nil), s.plans...)
}

func TestAppendTruncatesToSeconds(t *testing.T) {
	store := &recordingStore{}
	now := time.Date(2024, 3, 1, 12, 0, 0, 987_000_000, time.UTC)
	log, err := New(store, DefaultPolicy(), WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e, err := log.Append(WithRequestID(context.Background(), "req-1"), 5, "promote to 1", 9, -100)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if e.At.Nanosecond() != 0 || e.At.Unix() != now.Unix() {
		t.Fatalf("timestamp not truncated: %v", e.At)
	}
	if e.ID == "" || len(store.entries) != 1 {
		t.Fatal("entry should be persisted with an id")
	}
}

func TestAppendRejectsEmptyAction(t *testing.T) {
	log, _ := New(&recordingStore{}, DefaultPolicy())
	if _, err := log.Append(context.Background(), 1, "  ", 0, 0); err == nil {
		t.Fatal("expected error for empty action")
	}
}

func TestAppendPropagatesStoreError(t *testing.T) {
	boom := errors.New("disk full")
	log, _ := New(&recordingStore{err: boom}, DefaultPolicy())
	if _, err := log.Append(context.Background(), 1, "unmute", 2, 3); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}

func TestQueryOrderAndChatFilter(t *testing.T) {
	store := &recordingStore{}
	log, _ := New(store, DefaultPolicy())
	ctx := context.Background()
	_, _ = log.Append(ctx, 5, "promote to 1", 9, -100)
	_, _ = log.Append(ctx, 5, "demote", 9, -200)
	_, _ = log.Append(ctx, 6, "unmute", 9, -100)
	_, _ = log.Append(ctx, 5, "kick", 9, -100)

	all, _ := log.Query(ctx, 5)
	if len(all) != 3 || all[0].Action != "promote to 1" || all[2].Action != "kick" {
		t.Fatalf("unexpected order: %+v", all)
	}
	chat, _ := log.QueryChat(ctx, 5, -100)
	if len(chat) != 2 {
		t.Fatalf("expected 2 entries for chat, got %d", len(chat))
	}
}

func TestPlanAt(t *testing.T) {
	now := time.Unix(1_000_000, 0)
	plan := DefaultPolicy().PlanAt(now)
	if !plan.PrimaryCutoff.Equal(now.Add(-48*time.Hour)) || !plan.ArchiveCutoff.Equal(now.Add(-96*time.Hour)) || !plan.Archive {
		t.Fatalf("unexpected plan %+v", plan)
	}
	p := DefaultPolicy()
	p.KeepArchive = false
	if plan := p.PlanAt(now); plan.Archive || !plan.ArchiveCutoff.IsZero() {
		t.Fatalf("archive disabled plan %+v", plan)
	}
}

func TestPolicyValidation(t *testing.T) {
	p := DefaultPolicy()
	p.Archive = p.Primary
	if _, err := New(&recordingStore{}, p); err == nil {
		t.Fatal("archive window equal to primary should be rejected")
	}
	p = DefaultPolicy()
	p.Interval = 0
	if _, err := New(&recordingStore{}, p); err == nil {
		t.Fatal("zero interval should be rejected")
	}
}

func TestRunSweepsImmediatelyAndStops(t *testing.T) {
	store := &recordingStore{err: errors.New("db down")}
	p := DefaultPolicy()
	p.Interval = time.Hour
	log, _ := New(store, p)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		log.Run(ctx)
		close(done)
	}()
	deadline := time.Now().Add(time.Second)
	for {
		if len(plansSnapshot(store)) > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Run did not sweep on start")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
