package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const alertColumns = `alert_id, alert_type, severity, message, resolved, created_at, resolved_at`

// CreateAlert stores a new unresolved alert and returns its id.
// An empty severity means medium.
func (s *Store) CreateAlert(ctx context.Context, alertType, message string, severity Severity) (int64, error) {
	if severity == "" {
		severity = SeverityMedium
	}
	if !severity.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSeverity, string(severity))
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts(alert_type, severity, message, resolved, created_at)
		 VALUES(?, ?, ?, 0, ?)`,
		alertType, string(severity), message, s.stamp(),
	)
	if err != nil {
		return 0, wrap("create alert", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, wrap("create alert", err)
	}
	return id, nil
}

// GetUnresolvedAlerts returns every unresolved alert, newest first.
func (s *Store) GetUnresolvedAlerts(ctx context.Context) ([]Alert, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE resolved = 0 ORDER BY created_at DESC, alert_id DESC`)
	if err != nil {
		return nil, wrap("unresolved alerts", err)
	}
	defer rows.Close()

	var out []Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, wrap("unresolved alerts", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("unresolved alerts", err)
	}
	return out, nil
}

// HasUnresolvedAlert reports whether an unresolved alert of alertType exists.
func (s *Store) HasUnresolvedAlert(ctx context.Context, alertType string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM alerts WHERE resolved = 0 AND alert_type = ?`, alertType).Scan(&n)
	if err != nil {
		return false, wrap("has unresolved alert", err)
	}
	return n > 0, nil
}

func (s *Store) GetAlert(ctx context.Context, id int64) (Alert, error) {
	return getAlert(ctx, s.db, id)
}

// ResolveAlert moves an unresolved alert to resolved. Resolution is one-way:
// a second call fails with ErrAlreadyResolved.
func (s *Store) ResolveAlert(ctx context.Context, id int64) (Alert, error) {
	var out Alert
	err := withTx(ctx, s.db, func(ctx context.Context, tx dbtx) error {
		a, err := getAlert(ctx, tx, id)
		if err != nil {
			return err
		}
		if a.Resolved {
			return fmt.Errorf("%w: alert %d", ErrAlreadyResolved, id)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE alerts SET resolved = 1, resolved_at = ? WHERE alert_id = ? AND resolved = 0`,
			s.stamp(), id,
		); err != nil {
			return err
		}
		out, err = getAlert(ctx, tx, id)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyResolved) {
			return Alert{}, err
		}
		return Alert{}, wrap("resolve alert", err)
	}
	return out, nil
}

func getAlert(ctx context.Context, q dbtx, id int64) (Alert, error) {
	row := q.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE alert_id = ?`, id)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Alert{}, fmt.Errorf("%w: alert %d", ErrNotFound, id)
	}
	if err != nil {
		return Alert{}, wrap("get alert", err)
	}
	return a, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAlert(sc scanner) (Alert, error) {
	var (
		a          Alert
		severity   string
		resolved   int
		created    int64
		resolvedAt sql.NullInt64
	)
	if err := sc.Scan(&a.AlertID, &a.AlertType, &severity, &a.Message, &resolved, &created, &resolvedAt); err != nil {
		return Alert{}, err
	}
	a.Severity = Severity(severity)
	a.Resolved = resolved != 0
	a.CreatedAt = fromNanos(created)
	a.ResolvedAt = timePtr(resolvedAt)
	return a, nil
}
