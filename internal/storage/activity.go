package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// LogActivity appends an activity record and, when the actor is a known
// user, sets their last_active to the same timestamp. Both writes commit
// together. Unknown user ids are recorded without error.
func (s *Store) LogActivity(ctx context.Context, userID int64, activityType string, details, ip *string) (ActivityRecord, error) {
	rec := ActivityRecord{
		UserID:       userID,
		ActivityType: activityType,
		Details:      details,
		IPAddress:    ip,
		Timestamp:    fromNanos(s.stamp()),
	}
	ts := rec.Timestamp.UnixNano()

	err := withTx(ctx, s.db, func(ctx context.Context, tx dbtx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO activity_log(user_id, activity_type, details, ip_address, timestamp)
			 VALUES(?, ?, ?, ?, ?)`,
			userID, activityType, nullStr(details), nullStr(ip), ts,
		)
		if err != nil {
			return err
		}
		if rec.LogID, err = res.LastInsertId(); err != nil {
			return err
		}
		// Stamps are taken before the transaction, so concurrent writers can
		// commit out of order; last_active only moves forward.
		_, err = tx.ExecContext(ctx,
			`UPDATE users SET last_active = MAX(COALESCE(last_active, 0), ?) WHERE user_id = ?`, ts, userID)
		return err
	})
	if err != nil {
		return ActivityRecord{}, wrap("log activity", err)
	}
	return rec, nil
}

// GetRecentActivities returns up to limit records, newest first.
// Records sharing a timestamp are ordered by descending log id.
func (s *Store) GetRecentActivities(ctx context.Context, limit int) ([]ActivityRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT log_id, user_id, activity_type, details, ip_address, timestamp
		 FROM activity_log
		 ORDER BY timestamp DESC, log_id DESC
		 LIMIT ?`, limit,
	)
	if err != nil {
		return nil, wrap("recent activities", err)
	}
	defer rows.Close()

	out := make([]ActivityRecord, 0, limit)
	for rows.Next() {
		var (
			r       ActivityRecord
			details sql.NullString
			ip      sql.NullString
			ts      int64
		)
		if err := rows.Scan(&r.LogID, &r.UserID, &r.ActivityType, &details, &ip, &ts); err != nil {
			return nil, wrap("recent activities", err)
		}
		r.Details = strPtr(details)
		r.IPAddress = strPtr(ip)
		r.Timestamp = fromNanos(ts)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("recent activities", err)
	}
	return out, nil
}

// CountActivities returns how many records the given actor has.
func (s *Store) CountActivities(ctx context.Context, userID int64) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM activity_log WHERE user_id = ?`, userID).Scan(&n); err != nil {
		return 0, wrap("count activities", err)
	}
	return n, nil
}
