package memory

import (
	"context"
	"sort"
	"sync"

	"storozh.org/internal/audit"
	"storozh.org/internal/mute"
	"storozh.org/internal/roles"
)

type pairKey struct {
	chatID int64
	userID int64
}

// Store keeps roles, mutes and audit entries in process memory. It is a
// drop-in for the PostgreSQL store when no DSN is configured; nothing
// survives a restart.
type Store struct {
	mu      sync.RWMutex
	roles   map[pairKey]roles.Role
	mutes   map[pairKey]mute.Record
	log     []audit.Entry
	archive []audit.Entry
}

var (
	_ roles.Store = (*Store)(nil)
	_ mute.Store  = (*Store)(nil)
	_ audit.Store = (*Store)(nil)
)

// New creates an empty store.
func New() *Store {
	return &Store{
		roles: make(map[pairKey]roles.Role),
		mutes: make(map[pairKey]mute.Record),
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Role(_ context.Context, chatID, userID int64) (roles.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roles[pairKey{chatID, userID}], nil
}

func (s *Store) SetRole(_ context.Context, chatID, userID int64, role roles.Role) error {
	if !role.Valid() {
		return roles.ErrInvalidRole
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if role == roles.Member {
		delete(s.roles, pairKey{chatID, userID})
		return nil
	}
	s.roles[pairKey{chatID, userID}] = role
	return nil
}

func (s *Store) Staff(_ context.Context, chatID int64) ([]roles.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []roles.Assignment
	for k, r := range s.roles {
		if k.chatID == chatID && r >= roles.Moderator {
			out = append(out, roles.Assignment{ChatID: k.chatID, UserID: k.userID, Role: r})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Role != out[j].Role {
			return out[i].Role > out[j].Role
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (s *Store) UpsertMute(_ context.Context, rec mute.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mutes[pairKey{rec.ChatID, rec.UserID}] = rec
	return nil
}

func (s *Store) Mute(_ context.Context, chatID, userID int64) (mute.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.mutes[pairKey{chatID, userID}]
	return rec, ok, nil
}

func (s *Store) DeleteMute(_ context.Context, chatID, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := pairKey{chatID, userID}
	if _, ok := s.mutes[k]; !ok {
		return false, nil
	}
	delete(s.mutes, k)
	return true, nil
}

func (s *Store) Mutes(context.Context) ([]mute.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]mute.Record, 0, len(s.mutes))
	for _, rec := range s.mutes {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnmuteAt.Before(out[j].UnmuteAt) })
	return out, nil
}

func (s *Store) AppendEntry(_ context.Context, e audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, e)
	return nil
}

func (s *Store) Entries(_ context.Context, targetID int64) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterTarget(s.log, targetID), nil
}

func (s *Store) ArchivedEntries(_ context.Context, targetID int64) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterTarget(s.archive, targetID), nil
}

func (s *Store) SweepEntries(_ context.Context, plan audit.SweepPlan) (audit.SweepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res audit.SweepResult
	kept := s.log[:0]
	for _, e := range s.log {
		switch {
		case !e.At.Before(plan.PrimaryCutoff):
			kept = append(kept, e)
		case plan.Archive && !e.At.Before(plan.ArchiveCutoff):
			s.archive = append(s.archive, e)
			res.Archived++
		default:
			res.Discarded++
		}
	}
	s.log = kept
	if plan.Archive {
		keptArchive := s.archive[:0]
		for _, e := range s.archive {
			if e.At.Before(plan.ArchiveCutoff) {
				res.Purged++
				continue
			}
			keptArchive = append(keptArchive, e)
		}
		s.archive = keptArchive
	}
	return res, nil
}

func filterTarget(entries []audit.Entry, targetID int64) []audit.Entry {
	var out []audit.Entry
	for _, e := range entries {
		if e.TargetID == targetID {
			out = append(out, e)
		}
	}
	return out
}
