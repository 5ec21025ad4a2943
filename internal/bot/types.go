// Package bot is the chat command layer: it parses inbound messages, checks
// administrator access and per-command rate limits, and runs command
// handlers on a bounded worker pool.
package bot

import (
	"context"
	"time"

	"adminpanel/internal/storage"
	kit "adminpanel/internal/transport"
	logx "adminpanel/pkg/logx"
	"adminpanel/pkg/sysstat"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessAdminOnly
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Command struct {
	Name        string
	Description string
	Usage       string
	Access      Access
	Timeout     time.Duration // 0 uses Config.CommandTimeout
	Handle      HandlerFunc
}

type Request struct {
	Message *kit.Message
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string
	ReqID   string
	Logger  logx.Logger
}

// Store is the persistence used by command handlers.
type Store interface {
	AddUser(ctx context.Context, u storage.User) error
	LogActivity(ctx context.Context, userID int64, activityType string, details, ip *string) (storage.ActivityRecord, error)
	GetUnresolvedAlerts(ctx context.Context) ([]storage.Alert, error)
	GetRecentActivities(ctx context.Context, limit int) ([]storage.ActivityRecord, error)
	ResolveAlert(ctx context.Context, id int64) (storage.Alert, error)
	Stats(ctx context.Context) (storage.Stats, error)
}

type ResourceChecker interface {
	CheckResources(ctx context.Context) (sysstat.Usage, error)
}

type StatusSender interface {
	SendStatus(ctx context.Context, msg string) error
}
