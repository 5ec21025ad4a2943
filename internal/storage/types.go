package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultRecentLimit is the page size used when callers do not pick one.
const DefaultRecentLimit = 10

var (
	ErrNotFound        = errors.New("not found")
	ErrDuplicateKey    = errors.New("duplicate key")
	ErrAlreadyResolved = errors.New("alert already resolved")
	ErrInvalidLimit    = errors.New("limit must be positive")
	ErrInvalidSeverity = errors.New("invalid severity")
)

// Error wraps every storage fault (open, schema, I/O, constraint).
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	if e == nil || e.Err == nil {
		return "storage error"
	}
	return "storage: " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Op: op, Err: err}
}

// Config configures the SQLite database.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means 5s
}

// Admin is the administrator identity seeded by Initialize.
type Admin struct {
	UserID    int64
	Username  string
	FirstName string
}

type User struct {
	UserID     int64
	Username   string
	FirstName  string
	LastName   string
	IsAdmin    bool
	JoinDate   time.Time
	LastActive *time.Time
}

type ActivityRecord struct {
	LogID        int64
	UserID       int64
	ActivityType string
	Details      *string
	IPAddress    *string
	Timestamp    time.Time
}

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ParseSeverity accepts low/medium/high case-insensitively.
// An empty string yields SeverityMedium.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return SeverityMedium, nil
	case SeverityLow:
		return SeverityLow, nil
	case SeverityMedium:
		return SeverityMedium, nil
	case SeverityHigh:
		return SeverityHigh, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSeverity, s)
}

func (s Severity) Valid() bool {
	return s == SeverityLow || s == SeverityMedium || s == SeverityHigh
}

type Alert struct {
	AlertID    int64
	AlertType  string
	Severity   Severity
	Message    string
	Resolved   bool
	CreatedAt  time.Time
	ResolvedAt *time.Time
}

// Stats is a row-count snapshot used by status reports.
type Stats struct {
	Users          int64 `json:"users"`
	Activities     int64 `json:"activities"`
	Alerts         int64 `json:"alerts"`
	UnresolvedOpen int64 `json:"unresolved_alerts"`
}
