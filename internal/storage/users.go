package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// AddUser registers a non-admin user. Registering an existing user_id fails
// with ErrDuplicateKey and leaves the stored row untouched.
func (s *Store) AddUser(ctx context.Context, u User) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users(user_id, username, first_name, last_name, is_admin, join_date)
		 VALUES(?, ?, ?, ?, 0, ?)
		 ON CONFLICT(user_id) DO NOTHING`,
		u.UserID, u.Username, u.FirstName, u.LastName, s.stamp(),
	)
	if err != nil {
		return wrap("add user", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrap("add user", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: user %d", ErrDuplicateKey, u.UserID)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, userID int64) (User, error) {
	var (
		u          User
		isAdmin    int
		joined     int64
		lastActive sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, username, first_name, last_name, is_admin, join_date, last_active
		 FROM users WHERE user_id = ?`, userID,
	).Scan(&u.UserID, &u.Username, &u.FirstName, &u.LastName, &isAdmin, &joined, &lastActive)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("%w: user %d", ErrNotFound, userID)
	}
	if err != nil {
		return User{}, wrap("get user", err)
	}
	u.IsAdmin = isAdmin != 0
	u.JoinDate = fromNanos(joined)
	u.LastActive = timePtr(lastActive)
	return u, nil
}
