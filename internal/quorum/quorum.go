package quorum

import (
	"context"
	"sync"
	"time"

	"storozh.org/internal/obs"
)

// DefaultWindow is how long a vote stays valid.
const DefaultWindow = 10 * time.Minute

// Kind names a confirmation-gated command.
type Kind string

const (
	KindClear     Kind = "clear"
	KindDelete    Kind = "delete"
	KindMassBlock Kind = "mass-block"
)

// Outcome of a confirmation request.
type Outcome int

const (
	Pending Outcome = iota
	Executed
)

func (o Outcome) String() string {
	if o == Executed {
		return "executed"
	}
	return "pending"
}

// Message identifies the message a command targets. Message ids are only
// unique within a chat.
type Message struct {
	ChatID    int64
	MessageID int64
}

// Key identifies a bucket of votes.
type Key struct {
	Kind    Kind
	Message Message
}

type vote struct {
	actor int64
	at    time.Time
}

// Quorum tracks pending confirmations in memory. Nothing is persisted; a
// restart forgets every open bucket.
type Quorum struct {
	mu              sync.Mutex
	window          time.Duration
	requireDistinct bool
	buckets         map[Key][]vote
	now             func() time.Time
}

// Option configures Quorum.
type Option func(*Quorum)

// WithWindow sets the vote lifetime.
func WithWindow(d time.Duration) Option {
	return func(q *Quorum) {
		if d > 0 {
			q.window = d
		}
	}
}

// WithRequireDistinct controls whether the confirming vote must come from a
// different actor. When false any earlier vote confirms, including one cast
// by the same actor.
func WithRequireDistinct(v bool) Option {
	return func(q *Quorum) { q.requireDistinct = v }
}

// WithClock overrides the time source used by Run.
func WithClock(now func() time.Time) Option {
	return func(q *Quorum) {
		if now != nil {
			q.now = now
		}
	}
}

// New constructs a Quorum with a 10 minute window requiring distinct actors.
func New(opts ...Option) *Quorum {
	q := &Quorum{
		window:          DefaultWindow,
		requireDistinct: true,
		buckets:         make(map[Key][]vote),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Request records a vote for (kind, msg). It returns Executed when an
// earlier live vote confirms this one; the caller then performs the action
// and calls Clear. Otherwise the vote is kept and Pending is returned.
func (q *Quorum) Request(kind Kind, msg Message, actor int64, now time.Time) Outcome {
	key := Key{Kind: kind, Message: msg}

	q.mu.Lock()
	defer q.mu.Unlock()

	votes := q.liveLocked(key, now)
	confirmed := false
	own := -1
	for i, v := range votes {
		if v.actor == actor {
			own = i
			if !q.requireDistinct {
				confirmed = true
			}
			continue
		}
		confirmed = true
	}

	outcome := Pending
	switch {
	case confirmed:
		outcome = Executed
	case own >= 0:
		votes[own].at = now
	default:
		votes = append(votes, vote{actor: actor, at: now})
	}
	if len(votes) > 0 {
		q.buckets[key] = votes
	}

	obs.QuorumVotes.WithLabelValues(string(kind), outcome.String()).Inc()
	return outcome
}

// Clear forgets every vote for (kind, msg).
func (q *Quorum) Clear(kind Kind, msg Message) {
	q.mu.Lock()
	delete(q.buckets, Key{Kind: kind, Message: msg})
	q.mu.Unlock()
}

// Voters returns the actors with live votes on (kind, msg).
func (q *Quorum) Voters(kind Kind, msg Message, now time.Time) []int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	votes := q.liveLocked(Key{Kind: kind, Message: msg}, now)
	out := make([]int64, 0, len(votes))
	for _, v := range votes {
		out = append(out, v.actor)
	}
	return out
}

// Prune drops expired votes across all buckets and returns how many buckets
// were removed.
func (q *Quorum) Prune(now time.Time) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	removed := 0
	for key := range q.buckets {
		if len(q.liveLocked(key, now)) == 0 {
			removed++
		}
	}
	return removed
}

// Len returns the number of open buckets.
func (q *Quorum) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buckets)
}

// Run prunes on every interval until ctx ends. Buckets are purged lazily on
// access anyway; this only bounds memory for abandoned requests.
func (q *Quorum) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = q.window
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := q.Prune(q.now()); n > 0 {
				obs.Debug("quorum pruned", map[string]any{"buckets": n})
			}
		}
	}
}

// liveLocked drops votes older than the window and deletes empty buckets.
func (q *Quorum) liveLocked(key Key, now time.Time) []vote {
	votes := q.buckets[key]
	cutoff := now.Add(-q.window)
	kept := votes[:0]
	for _, v := range votes {
		if v.at.Before(cutoff) {
			continue
		}
		kept = append(kept, v)
	}
	if len(kept) == 0 {
		delete(q.buckets, key)
		return nil
	}
	q.buckets[key] = kept
	return kept
}
