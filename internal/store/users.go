package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"stockwatch/internal/model"
)

// GetUser fetches recipient preferences, returning ErrNotFound if userID has
// never interacted with the bot front-end.
func (s *Store) GetUser(ctx context.Context, userID string) (model.User, error) {
	q := s.rebind(`SELECT user_id, is_admin, is_banned, daily_added_count, daily_window_start,
		cooldown_seconds, daily_notify_limit, quiet_hours_start, quiet_hours_end, notifications_enabled
		FROM users WHERE user_id=$1`)
	row := s.db.QueryRowContext(ctx, q, userID)

	var u model.User
	var windowStart sql.NullString
	var isAdmin, isBanned, notificationsEnabled int
	err := row.Scan(&u.UserID, &isAdmin, &isBanned, &u.DailyAddedCount, &windowStart,
		&u.CooldownSeconds, &u.DailyNotifyLimit, &u.QuietHours.StartHour, &u.QuietHours.EndHour, &notificationsEnabled)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("store: get user: %w", err)
	}
	u.IsAdmin = isAdmin != 0
	u.IsBanned = isBanned != 0
	u.NotificationsEnabled = notificationsEnabled != 0
	if windowStart.Valid {
		u.DailyWindowStart = parseTime(windowStart.String)
	}
	return u, nil
}

// ListAdmins returns every user flagged is_admin, the recipient set for
// admin digests and health alerts (§4.8, §7).
func (s *Store) ListAdmins(ctx context.Context) ([]model.User, error) {
	q := s.rebind(`SELECT user_id, is_admin, is_banned, daily_added_count, daily_window_start,
		cooldown_seconds, daily_notify_limit, quiet_hours_start, quiet_hours_end, notifications_enabled
		FROM users WHERE is_admin=1 AND is_banned=0`)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: list admins: %w", err)
	}
	defer rows.Close()

	var admins []model.User
	for rows.Next() {
		var u model.User
		var windowStart sql.NullString
		var isAdmin, isBanned, notificationsEnabled int
		if err := rows.Scan(&u.UserID, &isAdmin, &isBanned, &u.DailyAddedCount, &windowStart,
			&u.CooldownSeconds, &u.DailyNotifyLimit, &u.QuietHours.StartHour, &u.QuietHours.EndHour, &notificationsEnabled); err != nil {
			return nil, fmt.Errorf("store: scan admin: %w", err)
		}
		u.IsAdmin = isAdmin != 0
		u.IsBanned = isBanned != 0
		u.NotificationsEnabled = notificationsEnabled != 0
		if windowStart.Valid {
			u.DailyWindowStart = parseTime(windowStart.String)
		}
		admins = append(admins, u)
	}
	return admins, rows.Err()
}

// UpsertUser creates or replaces a user's preference row wholesale, the
// shape the bot front-end's "set preferences" operation needs (§7).
func (s *Store) UpsertUser(ctx context.Context, u model.User) error {
	q := s.rebind(`INSERT INTO users
		(user_id, is_admin, is_banned, daily_added_count, daily_window_start,
		 cooldown_seconds, daily_notify_limit, quiet_hours_start, quiet_hours_end, notifications_enabled)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (user_id) DO UPDATE SET
			is_admin=excluded.is_admin, is_banned=excluded.is_banned,
			daily_added_count=excluded.daily_added_count, daily_window_start=excluded.daily_window_start,
			cooldown_seconds=excluded.cooldown_seconds, daily_notify_limit=excluded.daily_notify_limit,
			quiet_hours_start=excluded.quiet_hours_start, quiet_hours_end=excluded.quiet_hours_end,
			notifications_enabled=excluded.notifications_enabled`)

	_, err := s.db.ExecContext(ctx, q, u.UserID, boolToInt(u.IsAdmin), boolToInt(u.IsBanned),
		u.DailyAddedCount, nullTime(u.DailyWindowStart), u.CooldownSeconds, u.DailyNotifyLimit,
		u.QuietHours.StartHour, u.QuietHours.EndHour, boolToInt(u.NotificationsEnabled))
	if err != nil {
		return fmt.Errorf("store: upsert user: %w", err)
	}
	return nil
}

// SetUserBanned flips the admin ban flag (§7 AdminBan).
func (s *Store) SetUserBanned(ctx context.Context, userID string, banned bool) error {
	q := s.rebind(`INSERT INTO users (user_id, is_banned) VALUES ($1,$2)
		ON CONFLICT (user_id) DO UPDATE SET is_banned=excluded.is_banned`)
	_, err := s.db.ExecContext(ctx, q, userID, boolToInt(banned))
	if err != nil {
		return fmt.Errorf("store: set user banned: %w", err)
	}
	return nil
}

// IncrementDailyAddedCount bumps userID's quota counter, resetting it first
// if windowStart has rolled over to a new day (§4.2).
func (s *Store) IncrementDailyAddedCount(ctx context.Context, userID string, now time.Time) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		var count int
		var windowStart sql.NullString
		q := s.rebind(`SELECT daily_added_count, daily_window_start FROM users WHERE user_id=$1`)
		err := tx.QueryRowContext(ctx, q, userID).Scan(&count, &windowStart)
		if errors.Is(err, sql.ErrNoRows) {
			count, windowStart = 0, sql.NullString{}
		} else if err != nil {
			return fmt.Errorf("store: read daily_added_count: %w", err)
		}

		start := now
		if windowStart.Valid {
			ws := parseTime(windowStart.String)
			if now.Sub(ws) < 24*time.Hour {
				start = ws
				count++
			} else {
				count = 1
			}
		} else {
			count = 1
		}

		q2 := s.rebind(`INSERT INTO users (user_id, daily_added_count, daily_window_start) VALUES ($1,$2,$3)
			ON CONFLICT (user_id) DO UPDATE SET daily_added_count=excluded.daily_added_count, daily_window_start=excluded.daily_window_start`)
		if _, err := tx.ExecContext(ctx, q2, userID, count, start.UTC().Format(timeLayout)); err != nil {
			return fmt.Errorf("store: write daily_added_count: %w", err)
		}
		return nil
	})
}
