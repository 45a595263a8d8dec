package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"storozh.org/internal/audit"
	"storozh.org/internal/mute"
	"storozh.org/internal/roles"
)

// Store is the PostgreSQL PersistentStore. Schema lives in internal/migrate.
type Store struct {
	db *sql.DB
}

var (
	_ roles.Store = (*Store)(nil)
	_ mute.Store  = (*Store)(nil)
	_ audit.Store = (*Store)(nil)
)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Single bot process; a small pool is plenty.
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Role(ctx context.Context, chatID, userID int64) (roles.Role, error) {
	var r int
	err := s.db.QueryRowContext(ctx, `select role from admins where chat_id=$1 and user_id=$2`, chatID, userID).Scan(&r)
	if errors.Is(err, sql.ErrNoRows) {
		return roles.Member, nil
	}
	if err != nil {
		return roles.Member, err
	}
	return roles.Role(r), nil
}

// SetRole upserts the assignment; Member deletes it since members are never stored.
func (s *Store) SetRole(ctx context.Context, chatID, userID int64, role roles.Role) error {
	if !role.Valid() {
		return roles.ErrInvalidRole
	}
	if role == roles.Member {
		_, err := s.db.ExecContext(ctx, `delete from admins where chat_id=$1 and user_id=$2`, chatID, userID)
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		insert into admins(chat_id, user_id, role) values ($1,$2,$3)
		on conflict (chat_id, user_id) do update set role = excluded.role
	`, chatID, userID, int(role))
	return err
}

func (s *Store) Staff(ctx context.Context, chatID int64) ([]roles.Assignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		select user_id, role from admins
		where chat_id=$1 and role >= 1
		order by role desc, user_id asc
	`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []roles.Assignment
	for rows.Next() {
		a := roles.Assignment{ChatID: chatID}
		var r int
		if err := rows.Scan(&a.UserID, &r); err != nil {
			return nil, err
		}
		a.Role = roles.Role(r)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) UpsertMute(ctx context.Context, rec mute.Record) error {
	_, err := s.db.ExecContext(ctx, `
		insert into mutes(chat_id, user_id, unmute_ts) values ($1,$2,$3)
		on conflict (chat_id, user_id) do update set unmute_ts = excluded.unmute_ts
	`, rec.ChatID, rec.UserID, rec.UnmuteAt.Unix())
	return err
}

func (s *Store) Mute(ctx context.Context, chatID, userID int64) (mute.Record, bool, error) {
	var ts int64
	err := s.db.QueryRowContext(ctx, `select unmute_ts from mutes where chat_id=$1 and user_id=$2`, chatID, userID).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return mute.Record{}, false, nil
	}
	if err != nil {
		return mute.Record{}, false, err
	}
	return mute.Record{ChatID: chatID, UserID: userID, UnmuteAt: time.Unix(ts, 0).UTC()}, true, nil
}

// DeleteMute reports whether a row was removed.
func (s *Store) DeleteMute(ctx context.Context, chatID, userID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `delete from mutes where chat_id=$1 and user_id=$2`, chatID, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) Mutes(ctx context.Context) ([]mute.Record, error) {
	rows, err := s.db.QueryContext(ctx, `select chat_id, user_id, unmute_ts from mutes order by unmute_ts asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []mute.Record
	for rows.Next() {
		var rec mute.Record
		var ts int64
		if err := rows.Scan(&rec.ChatID, &rec.UserID, &ts); err != nil {
			return nil, err
		}
		rec.UnmuteAt = time.Unix(ts, 0).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) AppendEntry(ctx context.Context, e audit.Entry) error {
	_, err := s.db.ExecContext(ctx, `
		insert into logs(id, target_id, time_ts, action, by_id, chat_id)
		values ($1,$2,$3,$4,$5,$6)
	`, e.ID, e.TargetID, e.At.Unix(), e.Action, e.ActorID, e.ChatID)
	return err
}

// Entries are ordered by id; ULIDs sort in insertion order.
func (s *Store) Entries(ctx context.Context, targetID int64) ([]audit.Entry, error) {
	return s.entries(ctx, "logs", targetID)
}

func (s *Store) ArchivedEntries(ctx context.Context, targetID int64) ([]audit.Entry, error) {
	return s.entries(ctx, "logs_archive", targetID)
}

func (s *Store) entries(ctx context.Context, table string, targetID int64) ([]audit.Entry, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		select id, target_id, time_ts, action, by_id, chat_id
		from %s where target_id=$1 order by id asc
	`, table), targetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []audit.Entry
	for rows.Next() {
		var e audit.Entry
		var ts int64
		if err := rows.Scan(&e.ID, &e.TargetID, &ts, &e.Action, &e.ActorID, &e.ChatID); err != nil {
			return nil, err
		}
		e.At = time.Unix(ts, 0).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// SweepEntries applies the plan in one transaction so an entry is never in
// both tiers or lost between them.
func (s *Store) SweepEntries(ctx context.Context, plan audit.SweepPlan) (audit.SweepResult, error) {
	var res audit.SweepResult
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer func() { _ = tx.Rollback() }()

	primary := plan.PrimaryCutoff.Unix()
	if plan.Archive {
		archive := plan.ArchiveCutoff.Unix()
		moved, err := tx.ExecContext(ctx, `
			insert into logs_archive(id, target_id, time_ts, action, by_id, chat_id)
			select id, target_id, time_ts, action, by_id, chat_id from logs
			where time_ts < $1 and time_ts >= $2
			on conflict (id) do nothing
		`, primary, archive)
		if err != nil {
			return res, fmt.Errorf("archive entries: %w", err)
		}
		if res.Archived, err = moved.RowsAffected(); err != nil {
			return res, err
		}
	}

	removed, err := tx.ExecContext(ctx, `delete from logs where time_ts < $1`, primary)
	if err != nil {
		return res, fmt.Errorf("expire entries: %w", err)
	}
	total, err := removed.RowsAffected()
	if err != nil {
		return res, err
	}
	res.Discarded = max(total-res.Archived, 0)

	if plan.Archive {
		purged, err := tx.ExecContext(ctx, `delete from logs_archive where time_ts < $1`, plan.ArchiveCutoff.Unix())
		if err != nil {
			return res, fmt.Errorf("purge archive: %w", err)
		}
		if res.Purged, err = purged.RowsAffected(); err != nil {
			return res, err
		}
	}

	if err := tx.Commit(); err != nil {
		return audit.SweepResult{}, err
	}
	return res, nil
}
