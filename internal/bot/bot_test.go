package bot

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adminpanel/internal/eventbus"
	"adminpanel/internal/monitor"
	"adminpanel/internal/ratelimit"
	"adminpanel/internal/storage"
	kit "adminpanel/internal/transport"
	logx "adminpanel/pkg/logx"
	"adminpanel/pkg/sysstat"
)

const adminID = 1

type sent struct {
	to   kit.ChatTarget
	text string
}

type fakeSender struct {
	mu   sync.Mutex
	msgs []sent
}

func (f *fakeSender) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, sent{to: to, text: text})
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.msgs)}, nil
}

func (f *fakeSender) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.msgs) == 0 {
		return ""
	}
	return f.msgs[len(f.msgs)-1].text
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

type fakeNotifier struct {
	mu     sync.Mutex
	status []string
	err    error
}

func (f *fakeNotifier) SendStatus(_ context.Context, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = append(f.status, msg)
	return f.err
}

type env struct {
	bot    *Bot
	store  *storage.Store
	sender *fakeSender
	notif  *fakeNotifier
	bus    eventbus.Bus
}

func newEnv(t *testing.T, rules map[string]ratelimit.Rule) *env {
	t.Helper()
	ctx := context.Background()
	st, err := storage.Open(ctx, storage.Config{Path: filepath.Join(t.TempDir(), "bot.db")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Initialize(ctx, storage.Admin{UserID: adminID, Username: "root"}))

	limits, err := ratelimit.NewSet(rules)
	require.NoError(t, err)

	mon, err := monitor.New(sysstat.Static(sysstat.Usage{CPU: 12.5, Memory: 45, Disk: 60}))
	require.NoError(t, err)

	e := &env{store: st, sender: &fakeSender{}, notif: &fakeNotifier{}, bus: eventbus.New()}
	fixed := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	e.bot = New(Config{AdminID: adminID, Now: func() time.Time { return fixed }}, e.sender, Deps{
		Store:    st,
		Monitor:  mon,
		Notifier: e.notif,
		Limits:   limits,
		Bus:      e.bus,
	}, logx.Nop())
	return e
}

func msg(from int64, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ChatID: from, FromID: from, FromUsername: "alice", FromFirstName: "Alice", Text: text,
	}}
}

func TestStartRegistersUserAndNotifiesAdmin(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)
	events, unsub := e.bus.Subscribe(4)
	defer unsub()

	e.bot.Handle(ctx, msg(42, "/start"))

	u, err := e.store.GetUser(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.False(t, u.IsAdmin)
	require.NotNil(t, u.LastActive)

	acts, err := e.store.GetRecentActivities(ctx, 1)
	require.NoError(t, err)
	require.Len(t, acts, 1)
	assert.Equal(t, int64(42), acts[0].UserID)
	assert.Equal(t, "command", acts[0].ActivityType)
	assert.Equal(t, "/start", *acts[0].Details)

	assert.Equal(t, "👋 Welcome Alice!\n🆔 Your ID: 42\n🕒 2026-10-15 12:00:00", e.sender.last())
	assert.Equal(t, []string{"New user: @alice (ID: 42)"}, e.notif.status)

	ev := <-events
	assert.Equal(t, eventbus.UserRegistered, ev.Type)

	// second /start is benign: no duplicate error, no new notification
	e.bot.Handle(ctx, msg(42, "/start"))
	assert.Contains(t, e.sender.last(), "Welcome")
	assert.Len(t, e.notif.status, 1)
	n, err := e.store.CountActivities(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestStartNotificationFailureIsNotUserFacing(t *testing.T) {
	e := newEnv(t, nil)
	e.notif.err = errors.New("telegram down")
	e.bot.Handle(context.Background(), msg(42, "/start"))
	assert.Contains(t, e.sender.last(), "Welcome")
}

func TestStartRateLimited(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, map[string]ratelimit.Rule{"start": {MaxCalls: 5, Window: time.Minute}})

	for i := 0; i < 5; i++ {
		e.bot.Handle(ctx, msg(42, "/start"))
		assert.Contains(t, e.sender.last(), "Welcome")
	}
	e.bot.Handle(ctx, msg(42, "/start"))
	assert.Equal(t, msgRateLimited, e.sender.last())

	n, err := e.store.CountActivities(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func TestAdminCommandsRejectOthers(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)
	for _, c := range []string{"/status", "/alerts", "/log", "/resolve 1"} {
		e.bot.Handle(ctx, msg(42, c))
		assert.Equal(t, msgUnauthorized, e.sender.last(), c)
	}
	st, err := e.store.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Activities)
}

func TestAlertsListAndResolve(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)

	e.bot.Handle(ctx, msg(adminID, "/alerts"))
	assert.Equal(t, "✅ No active alerts", e.sender.last())

	id, err := e.store.CreateAlert(ctx, "resource", "High Memory Usage: 91.0%", storage.SeverityHigh)
	require.NoError(t, err)

	e.bot.Handle(ctx, msg(adminID, "/alerts"))
	assert.Contains(t, e.sender.last(), "⚠️ RESOURCE: High Memory Usage: 91.0% (ID: 1)")

	e.bot.Handle(ctx, msg(adminID, "/resolve 1"))
	assert.Equal(t, "✅ Alert 1 resolved", e.sender.last())
	a, err := e.store.GetAlert(ctx, id)
	require.NoError(t, err)
	assert.True(t, a.Resolved)

	e.bot.Handle(ctx, msg(adminID, "/resolve 1"))
	assert.Equal(t, "Alert 1 is already resolved", e.sender.last())
	e.bot.Handle(ctx, msg(adminID, "/resolve 99"))
	assert.Equal(t, "Alert 99 not found", e.sender.last())
	e.bot.Handle(ctx, msg(adminID, "/resolve x"))
	assert.Equal(t, "Usage: /resolve <id>", e.sender.last())
}

func TestStatusReport(t *testing.T) {
	e := newEnv(t, nil)
	e.bot.Handle(context.Background(), msg(adminID, "/status"))

	out := e.sender.last()
	assert.Contains(t, out, "📊 System Status")
	assert.Contains(t, out, "Users: 1")
	assert.Contains(t, out, "• CPU: 12.5%")
	assert.Contains(t, out, "• Memory: 45.0%")
	assert.Contains(t, out, "• Disk: 60.0%")
}

func TestLogShowsRecentActivities(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)
	for i := 0; i < 7; i++ {
		_, err := e.store.LogActivity(ctx, 0, "system", nil, nil)
		require.NoError(t, err)
	}
	e.bot.Handle(ctx, msg(adminID, "/log"))
	out := e.sender.last()
	assert.True(t, strings.HasPrefix(out, "📝 Recent Activities"))
	assert.Equal(t, 5, strings.Count(out, "system:"))

	e.bot.Handle(ctx, msg(adminID, "/log 0"))
	assert.Contains(t, e.sender.last(), "Usage: /log")
}

func TestUnknownAndPlainText(t *testing.T) {
	e := newEnv(t, nil)
	e.bot.Handle(context.Background(), msg(42, "hello there"))
	assert.Zero(t, e.sender.count())

	e.bot.Handle(context.Background(), msg(42, "/nope"))
	assert.Equal(t, msgUnknown, e.sender.last())
}

func TestHelpHidesAdminCommands(t *testing.T) {
	e := newEnv(t, nil)
	e.bot.Handle(context.Background(), msg(42, "/help@adminpanel_bot"))
	assert.NotContains(t, e.sender.last(), "/status")
	assert.Contains(t, e.sender.last(), "/start")

	e.bot.Handle(context.Background(), msg(adminID, "/help"))
	assert.Contains(t, e.sender.last(), "/resolve <id>")
}

func TestDispatchLoopRunsHandlers(t *testing.T) {
	e := newEnv(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan kit.Update, 4)
	done := make(chan error, 1)
	go func() { done <- e.bot.DispatchLoop(ctx, updates) }()

	updates <- msg(42, "/start")
	require.Eventually(t, func() bool {
		_, err := e.store.GetUser(context.Background(), 42)
		return err == nil && strings.Contains(e.sender.last(), "Welcome")
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("dispatch loop did not stop")
	}
}

func TestPanicInHandlerBecomesInternalError(t *testing.T) {
	e := newEnv(t, nil)
	e.bot.commands["boom"] = Command{Name: "boom", Handle: func(context.Context, *Request) error { panic("x") }}
	e.bot.Handle(context.Background(), msg(42, "/boom"))
	assert.Equal(t, msgInternalError, e.sender.last())
}

func TestParseCommand(t *testing.T) {
	name, args, ok := parseCommand("  /Resolve@my_bot  12  ")
	require.True(t, ok)
	assert.Equal(t, "resolve", name)
	assert.Equal(t, []string{"12"}, args)

	_, _, ok = parseCommand("/")
	assert.False(t, ok)
	_, _, ok = parseCommand("plain")
	assert.False(t, ok)
}
