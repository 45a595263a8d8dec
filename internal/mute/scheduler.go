package mute

import (
	"context"
	"errors"
	"fmt"
	"hash/maphash"
	"sync"
	"time"

	"storozh.org/internal/audit"
	"storozh.org/internal/obs"
)

// SystemActor is recorded as the actor of automatic unmutes.
const SystemActor int64 = 0

const (
	ActionAutoUnmute = "auto unmute"
	ActionUnmute     = "unmute"
)

var (
	ErrNotRecovered      = errors.New("mute: persisted mutes not recovered yet")
	ErrAlreadyRecovered  = errors.New("mute: recovery already ran")
	ErrRestrictFailed    = errors.New("mute: restrict call failed")
	ErrUnrestrictFailed  = errors.New("mute: unrestrict call failed")
	ErrSchedulerShutdown = errors.New("mute: scheduler is shut down")
)

// Record is an active mute. UnmuteAt has second precision.
type Record struct {
	ChatID   int64     `json:"chat_id"`
	UserID   int64     `json:"user_id"`
	UnmuteAt time.Time `json:"unmute_at"`
}

// Key identifies a (chat, user) pair.
type Key struct {
	ChatID int64
	UserID int64
}

func (r Record) Key() Key { return Key{ChatID: r.ChatID, UserID: r.UserID} }

// Store persists mute records with insert-or-replace semantics.
type Store interface {
	UpsertMute(ctx context.Context, rec Record) error
	Mute(ctx context.Context, chatID, userID int64) (Record, bool, error)
	DeleteMute(ctx context.Context, chatID, userID int64) (bool, error)
	Mutes(ctx context.Context) ([]Record, error)
}

// Client is the part of the messaging platform the scheduler drives.
type Client interface {
	Restrict(ctx context.Context, chatID, userID int64, until time.Time) error
	Unrestrict(ctx context.Context, chatID, userID int64) error
	SendMessage(ctx context.Context, target int64, text string) error
}

// Auditor appends audit entries.
type Auditor interface {
	Append(ctx context.Context, targetID int64, action string, actorID, chatID int64) (audit.Entry, error)
}

// Timer is the handle returned by the timer factory; *time.Timer satisfies it.
type Timer interface {
	Stop() bool
}

type armed struct {
	gen   uint64
	until time.Time
	timer Timer
}

const stripeCount = 64

// Scheduler owns the mute lifecycle: one armed timer per muted pair,
// persisted records, and recovery after restart.
type Scheduler struct {
	store       Store
	client      Client
	audit       Auditor
	now         func() time.Time
	afterFunc   func(time.Duration, func()) Timer
	callTimeout time.Duration

	// stripes serialise Mute, Unmute and expiry for the same pair.
	stripes [stripeCount]sync.Mutex
	seed    maphash.Seed

	mu        sync.Mutex
	timers    map[Key]*armed
	gen       uint64
	recovered bool
	closed    bool
}

// Option configures Scheduler.
type Option func(*Scheduler)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTimerFunc overrides time.AfterFunc.
func WithTimerFunc(fn func(time.Duration, func()) Timer) Option {
	return func(s *Scheduler) {
		if fn != nil {
			s.afterFunc = fn
		}
	}
}

// WithCallTimeout bounds platform and store calls made from expired timers.
func WithCallTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.callTimeout = d
		}
	}
}

// NewScheduler constructs a Scheduler. Recover must run before Mute is accepted.
func NewScheduler(store Store, client Client, auditor Auditor, opts ...Option) (*Scheduler, error) {
	if store == nil || client == nil || auditor == nil {
		return nil, errors.New("mute: store, client and auditor are required")
	}
	s := &Scheduler{
		store:       store,
		client:      client,
		audit:       auditor,
		now:         time.Now,
		afterFunc:   func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) },
		callTimeout: 10 * time.Second,
		seed:        maphash.MakeSeed(),
		timers:      make(map[Key]*armed),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Recover arms a timer for every persisted mute. Mutes whose expiry passed
// while the process was down fire immediately.
func (s *Scheduler) Recover(ctx context.Context) (int, error) {
	s.mu.Lock()
	if s.recovered {
		s.mu.Unlock()
		return 0, ErrAlreadyRecovered
	}
	s.mu.Unlock()

	records, err := s.store.Mutes(ctx)
	if err != nil {
		return 0, fmt.Errorf("list mutes: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recovered {
		return 0, ErrAlreadyRecovered
	}
	for _, rec := range records {
		s.armLocked(rec)
	}
	s.recovered = true
	obs.Info("mutes recovered", map[string]any{"count": len(records)})
	return len(records), nil
}

// Mute restricts the user on the platform, then persists the record,
// replacing any previous one, and re-arms the pair's timer. A failed
// restrict call leaves no local state behind.
func (s *Scheduler) Mute(ctx context.Context, actorID, chatID, userID int64, until time.Time) (Record, error) {
	if err := s.ready(); err != nil {
		return Record{}, err
	}
	rec := Record{ChatID: chatID, UserID: userID, UnmuteAt: time.Unix(until.Unix(), 0).UTC()}
	unlock := s.lockPair(rec.Key())
	defer unlock()

	if err := s.client.Restrict(ctx, chatID, userID, rec.UnmuteAt); err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrRestrictFailed, err)
	}
	if err := s.store.UpsertMute(ctx, rec); err != nil {
		obs.Error("mute persisted state diverged from platform", map[string]any{
			"chat_id": chatID, "user_id": userID, "error": err,
		})
		return Record{}, fmt.Errorf("persist mute: %w", err)
	}
	s.arm(rec)
	if _, err := s.audit.Append(ctx, userID, muteAction(rec.UnmuteAt), actorID, chatID); err != nil {
		return rec, err
	}
	s.notify(ctx, userID, fmt.Sprintf("You are muted in chat %d until %s.", chatID, formatUntil(rec.UnmuteAt)))
	return rec, nil
}

// Unmute lifts the restriction on request of an actor. The pair's timer is
// disarmed only after the platform call succeeds so a failed call keeps the
// pending auto-unmute.
func (s *Scheduler) Unmute(ctx context.Context, actorID, chatID, userID int64) error {
	if err := s.ready(); err != nil && !errors.Is(err, ErrNotRecovered) {
		return err
	}
	key := Key{ChatID: chatID, UserID: userID}
	unlock := s.lockPair(key)
	defer unlock()

	if err := s.client.Unrestrict(ctx, chatID, userID); err != nil {
		return fmt.Errorf("%w: %w", ErrUnrestrictFailed, err)
	}
	s.disarm(key)
	if _, err := s.store.DeleteMute(ctx, chatID, userID); err != nil {
		return fmt.Errorf("delete mute: %w", err)
	}
	if _, err := s.audit.Append(ctx, userID, ActionUnmute, actorID, chatID); err != nil {
		return err
	}
	s.notify(ctx, userID, fmt.Sprintf("You are unmuted in chat %d.", chatID))
	return nil
}

// Armed reports how many timers are pending.
func (s *Scheduler) Armed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Shutdown stops every pending timer. Records stay persisted and are
// re-armed by the next process.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, a := range s.timers {
		a.timer.Stop()
		delete(s.timers, key)
	}
	obs.MutesArmed.Set(0)
	s.closed = true
}

func (s *Scheduler) ready() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSchedulerShutdown
	}
	if !s.recovered {
		return ErrNotRecovered
	}
	return nil
}

func (s *Scheduler) arm(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armLocked(rec)
}

// armLocked replaces any timer of the pair. s.mu must be held; the timer
// callback takes it too, so an immediate firing waits for registration.
func (s *Scheduler) armLocked(rec Record) {
	key := rec.Key()
	if old, ok := s.timers[key]; ok {
		old.timer.Stop()
		obs.MutesArmed.Dec()
	}
	delay := rec.UnmuteAt.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	s.gen++
	gen := s.gen
	a := &armed{gen: gen, until: rec.UnmuteAt}
	a.timer = s.afterFunc(delay, func() { s.expire(key, gen) })
	s.timers[key] = a
	obs.MutesArmed.Inc()
}

func (s *Scheduler) disarm(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.timers[key]; ok {
		a.timer.Stop()
		delete(s.timers, key)
		obs.MutesArmed.Dec()
	}
}

// take removes the timer if it is still the one identified by gen.
func (s *Scheduler) take(key Key, gen uint64) (*armed, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.timers[key]
	if !ok || a.gen != gen {
		return nil, false
	}
	delete(s.timers, key)
	obs.MutesArmed.Dec()
	return a, true
}

// expire runs when a timer fires. It no-ops when the timer was superseded
// or the record is gone or replaced, and never leaves its own bookkeeping
// behind.
func (s *Scheduler) expire(key Key, gen uint64) {
	unlock := s.lockPair(key)
	defer unlock()

	a, ok := s.take(key, gen)
	if !ok {
		obs.MuteExpirations.WithLabelValues("superseded").Inc()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.callTimeout)
	defer cancel()
	fields := map[string]any{"chat_id": key.ChatID, "user_id": key.UserID}

	// take already proved this timer is current under the pair lock, so a
	// failed load must not strand the record without a timer.
	rec, found, err := s.store.Mute(ctx, key.ChatID, key.UserID)
	if err != nil {
		fields["error"] = err
		obs.Warn("auto unmute: load mute failed, unmuting anyway", fields)
		delete(fields, "error")
	} else if !found || !rec.UnmuteAt.Equal(a.until) {
		obs.MuteExpirations.WithLabelValues("stale").Inc()
		return
	}

	if err := s.client.Unrestrict(ctx, key.ChatID, key.UserID); err != nil {
		fields["error"] = err
		obs.Warn("auto unmute: unrestrict failed", fields)
		delete(fields, "error")
	}
	deleted, err := s.store.DeleteMute(ctx, key.ChatID, key.UserID)
	if err != nil {
		fields["error"] = err
		obs.Error("auto unmute: delete mute", fields)
		obs.MuteExpirations.WithLabelValues("error").Inc()
		return
	}
	if !deleted {
		obs.MuteExpirations.WithLabelValues("stale").Inc()
		return
	}
	if _, err := s.audit.Append(ctx, key.UserID, ActionAutoUnmute, SystemActor, key.ChatID); err != nil {
		fields["error"] = err
		obs.Error("auto unmute: audit append", fields)
		delete(fields, "error")
	}
	obs.MuteExpirations.WithLabelValues("unmuted").Inc()
	obs.Info("auto unmute", fields)

	s.notify(ctx, key.ChatID, fmt.Sprintf("User %d was unmuted automatically.", key.UserID))
	s.notify(ctx, key.UserID, fmt.Sprintf("You are unmuted in chat %d.", key.ChatID))
}

// notify is best-effort.
func (s *Scheduler) notify(ctx context.Context, target int64, text string) {
	if err := s.client.SendMessage(ctx, target, text); err != nil {
		obs.Warn("notification failed", map[string]any{"target": target, "error": err})
	}
}

func (s *Scheduler) lockPair(key Key) func() {
	m := &s.stripes[maphash.Comparable(s.seed, key)%stripeCount]
	m.Lock()
	return m.Unlock
}

func muteAction(until time.Time) string {
	return "mute until " + formatUntil(until)
}

func formatUntil(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04 UTC")
}
