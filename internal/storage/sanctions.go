package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type UserSanction struct {
	GuildID    string
	UserID     string
	Policy     string
	CountTotal int
	LastAt     time.Time
	LastAction string
	ResetAt    *time.Time
}

type SanctionEvent struct {
	ID        string
	GuildID   string
	UserID    string
	Policy    string
	Action    string
	Reason    string
	CreatedAt time.Time
}

func (s *Store) GetSanction(ctx context.Context, guildID, userID, policy string) (UserSanction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT guild_id, user_id, policy, count_total, last_at, COALESCE(last_action, ''), reset_at
		FROM user_sanctions
		WHERE guild_id = ? AND user_id = ? AND policy = ?
	`, guildID, userID, policy)

	var sanction UserSanction
	var lastAt int64
	var resetAt sql.NullInt64
	err := row.Scan(&sanction.GuildID, &sanction.UserID, &sanction.Policy, &sanction.CountTotal, &lastAt, &sanction.LastAction, &resetAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return UserSanction{}, nil
		}
		return UserSanction{}, err
	}
	sanction.LastAt = time.Unix(lastAt, 0)
	if resetAt.Valid {
		value := time.Unix(resetAt.Int64, 0)
		sanction.ResetAt = &value
	}
	return sanction, nil
}

// IncrementSanction bumps the per-user counter for a policy inside one
// transaction and returns the new total. A counter past its reset_at
// starts over from zero.
func (s *Store) IncrementSanction(ctx context.Context, guildID, userID, policy, lastAction string, forgiveAfter time.Duration) (int, error) {
	now := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var count int
	var resetAt sql.NullInt64
	row := tx.QueryRowContext(ctx, `
		SELECT count_total, reset_at
		FROM user_sanctions
		WHERE guild_id = ? AND user_id = ? AND policy = ?
	`, guildID, userID, policy)
	scanErr := row.Scan(&count, &resetAt)
	if scanErr != nil && !errors.Is(scanErr, sql.ErrNoRows) {
		err = scanErr
		return 0, err
	}
	if scanErr == nil && resetAt.Valid && now.Unix() >= resetAt.Int64 {
		count = 0
	}

	count++
	var nextReset any
	if forgiveAfter > 0 {
		nextReset = now.Add(forgiveAfter).Unix()
	} else {
		nextReset = nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO user_sanctions (guild_id, user_id, policy, count_total, last_at, last_action, reset_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(guild_id, user_id, policy) DO UPDATE SET
			count_total = excluded.count_total,
			last_at = excluded.last_at,
			last_action = excluded.last_action,
			reset_at = excluded.reset_at
	`, guildID, userID, policy, count, now.Unix(), lastAction, nextReset)
	if err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}

// RecordSanction appends one applied sanction to the event log and bumps
// the per-user counter.
func (s *Store) RecordSanction(ctx context.Context, id, guildID, userID, policy, action, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sanction_events (id, guild_id, user_id, policy, action, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, guildID, userID, policy, action, reason, time.Now().Unix())
	if err != nil {
		return err
	}
	_, err = s.IncrementSanction(ctx, guildID, userID, policy, action, 0)
	return err
}

func (s *Store) ListSanctionEvents(ctx context.Context, guildID string, since time.Time) ([]SanctionEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, guild_id, user_id, policy, action, reason, created_at
		FROM sanction_events
		WHERE guild_id = ? AND created_at >= ?
		ORDER BY created_at DESC
	`, guildID, since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []SanctionEvent
	for rows.Next() {
		var ev SanctionEvent
		var created int64
		if err := rows.Scan(&ev.ID, &ev.GuildID, &ev.UserID, &ev.Policy, &ev.Action, &ev.Reason, &created); err != nil {
			return nil, err
		}
		ev.CreatedAt = time.Unix(created, 0)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// CountSanctionsByPolicy aggregates recent sanction events per policy.
func (s *Store) CountSanctionsByPolicy(ctx context.Context, guildID string, since time.Time) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT policy, COUNT(*)
		FROM sanction_events
		WHERE guild_id = ? AND created_at >= ?
		GROUP BY policy
	`, guildID, since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var policy string
		var n int
		if err := rows.Scan(&policy, &n); err != nil {
			return nil, err
		}
		counts[policy] = n
	}
	return counts, rows.Err()
}
