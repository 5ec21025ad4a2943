package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"adminpanel/internal/eventbus"
	"adminpanel/internal/storage"
	kit "adminpanel/internal/transport"
	logx "adminpanel/pkg/logx"
)

const (
	timeLayout     = "2006-01-02 15:04:05"
	defaultLogSize = 5
	maxLogSize     = 50
	rule           = "━━━━━━━━━━━━━━"
)

// ActivityCommand is the activity type recorded for every handled command.
const ActivityCommand = "command"

func (b *Bot) builtinCommands() []Command {
	return []Command{
		{Name: "start", Description: "Register and show your id", Usage: "/start", Access: AccessEveryone, Handle: b.cmdStart},
		{Name: "help", Description: "List available commands", Usage: "/help", Access: AccessEveryone, Handle: b.cmdHelp},
		{Name: "status", Description: "System status (admin)", Usage: "/status", Access: AccessAdminOnly, Handle: b.cmdStatus},
		{Name: "alerts", Description: "Unresolved alerts (admin)", Usage: "/alerts", Access: AccessAdminOnly, Handle: b.cmdAlerts},
		{Name: "log", Description: "Recent activity (admin)", Usage: "/log [n]", Access: AccessAdminOnly, Handle: b.cmdLog},
		{Name: "resolve", Description: "Resolve an alert (admin)", Usage: "/resolve <id>", Access: AccessAdminOnly, Handle: b.cmdResolve},
	}
}

// UserRegistered is published when /start adds a new user.
type UserRegistered struct {
	UserID   int64
	Username string
}

func (b *Bot) cmdStart(ctx context.Context, req *Request) error {
	m := req.Message
	err := b.deps.Store.AddUser(ctx, storage.User{
		UserID:    m.FromID,
		Username:  m.FromUsername,
		FirstName: m.FromFirstName,
		LastName:  m.FromLastName,
	})
	isNew := err == nil
	if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		return fmt.Errorf("add user: %w", err)
	}

	if err := b.logCommand(ctx, req); err != nil {
		return err
	}

	name := m.FromFirstName
	if name == "" {
		name = m.FromUsername
	}
	b.reply(ctx, req.Chat, fmt.Sprintf("👋 Welcome %s!\n🆔 Your ID: %d\n🕒 %s", name, m.FromID, b.cfg.Now().Format(timeLayout)))
	req.Logger.Info("start command", logx.Bool("new_user", isNew))

	if isNew {
		eventbus.Publish(b.deps.Bus, eventbus.UserRegistered, UserRegistered{UserID: m.FromID, Username: m.FromUsername})
		if b.deps.Notifier != nil && !b.isAdmin(m.FromID) {
			if err := b.deps.Notifier.SendStatus(ctx, fmt.Sprintf("New user: %s (ID: %d)", displayName(m), m.FromID)); err != nil {
				req.Logger.Warn("new user notification failed", logx.Err(err))
			}
		}
	}
	return nil
}

func (b *Bot) cmdHelp(ctx context.Context, req *Request) error {
	var sb strings.Builder
	sb.WriteString("Available commands:\n")
	admin := b.isAdmin(req.FromID)
	for _, c := range b.Commands() {
		if c.Access == AccessAdminOnly && !admin {
			continue
		}
		fmt.Fprintf(&sb, "%s - %s\n", c.Usage, c.Description)
	}
	b.reply(ctx, req.Chat, strings.TrimRight(sb.String(), "\n"))
	return nil
}

func (b *Bot) cmdStatus(ctx context.Context, req *Request) error {
	if b.deps.Monitor == nil {
		return errors.New("resource monitor not configured")
	}
	usage, err := b.deps.Monitor.CheckResources(ctx)
	if err != nil {
		return err
	}
	st, err := b.deps.Store.Stats(ctx)
	if err != nil {
		return err
	}

	var sb strings.Builder
	sb.WriteString("📊 System Status\n" + rule + "\n")
	fmt.Fprintf(&sb, "Users: %d\nActivities: %d\nUnresolved alerts: %d\nUptime: %s\n\n",
		st.Users, st.Activities, st.UnresolvedOpen, b.cfg.Now().Sub(b.started).Truncate(time.Second))
	sb.WriteString("🖥️ Resources\n" + rule + "\n")
	fmt.Fprintf(&sb, "• CPU: %.1f%%\n• Memory: %.1f%%\n• Disk: %.1f%%", usage.CPU, usage.Memory, usage.Disk)
	b.reply(ctx, req.Chat, sb.String())

	return b.logCommand(ctx, req)
}

func (b *Bot) cmdAlerts(ctx context.Context, req *Request) error {
	alerts, err := b.deps.Store.GetUnresolvedAlerts(ctx)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		b.reply(ctx, req.Chat, "✅ No active alerts")
	} else {
		lines := make([]string, 0, len(alerts))
		for _, a := range alerts {
			lines = append(lines, FormatAlert(a))
		}
		b.reply(ctx, req.Chat, "🚨 Active Alerts\n"+rule+"\n"+strings.Join(lines, "\n"))
	}
	return b.logCommand(ctx, req)
}

// FormatAlert renders an alert as one chat line.
func FormatAlert(a storage.Alert) string {
	return fmt.Sprintf("⚠️ %s: %s (ID: %d)", strings.ToUpper(a.AlertType), a.Message, a.AlertID)
}

func (b *Bot) cmdLog(ctx context.Context, req *Request) error {
	n := defaultLogSize
	if len(req.Args) > 0 {
		v, err := strconv.Atoi(req.Args[0])
		if err != nil || v <= 0 || v > maxLogSize {
			return userErr(fmt.Sprintf("Usage: /log [n], 1 <= n <= %d", maxLogSize))
		}
		n = v
	}
	acts, err := b.deps.Store.GetRecentActivities(ctx, n)
	if err != nil {
		return err
	}
	lines := make([]string, 0, len(acts))
	for _, a := range acts {
		lines = append(lines, FormatActivity(a))
	}
	if len(lines) == 0 {
		lines = append(lines, "(no activity yet)")
	}
	b.reply(ctx, req.Chat, "📝 Recent Activities\n"+rule+"\n"+strings.Join(lines, "\n"))
	return b.logCommand(ctx, req)
}

// FormatActivity renders an activity record as one chat line.
func FormatActivity(a storage.ActivityRecord) string {
	details := ""
	if a.Details != nil {
		details = *a.Details
	}
	return fmt.Sprintf("%s - %s: %s", a.Timestamp.Format(timeLayout), a.ActivityType, details)
}

func (b *Bot) cmdResolve(ctx context.Context, req *Request) error {
	if len(req.Args) != 1 {
		return userErr("Usage: /resolve <id>")
	}
	id, err := strconv.ParseInt(req.Args[0], 10, 64)
	if err != nil || id <= 0 {
		return userErr("Usage: /resolve <id>")
	}
	a, err := b.deps.Store.ResolveAlert(ctx, id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return userErr(fmt.Sprintf("Alert %d not found", id))
	case errors.Is(err, storage.ErrAlreadyResolved):
		return userErr(fmt.Sprintf("Alert %d is already resolved", id))
	case err != nil:
		return err
	}
	eventbus.Publish(b.deps.Bus, eventbus.AlertResolved, a)
	b.reply(ctx, req.Chat, fmt.Sprintf("✅ Alert %d resolved", a.AlertID))
	return b.logCommand(ctx, req)
}

func (b *Bot) logCommand(ctx context.Context, req *Request) error {
	details := "/" + req.Command
	if _, err := b.deps.Store.LogActivity(ctx, req.FromID, ActivityCommand, &details, nil); err != nil {
		return fmt.Errorf("log activity: %w", err)
	}
	return nil
}

func displayName(m *kit.Message) string {
	if m.FromUsername != "" {
		return "@" + m.FromUsername
	}
	return strings.TrimSpace(m.FromFirstName + " " + m.FromLastName)
}
