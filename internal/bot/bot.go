package bot

import (
	"context"
	"errors"
	"runtime"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"adminpanel/internal/eventbus"
	"adminpanel/internal/ratelimit"
	rtsup "adminpanel/internal/runtime/supervisor"
	kit "adminpanel/internal/transport"
	logx "adminpanel/pkg/logx"
)

const (
	msgUnauthorized  = "⛔ Unauthorized: Admin access required"
	msgRateLimited   = "⏳ Too many requests, please slow down."
	msgInternalError = "❌ An internal error occurred. Please try again later."
	msgUnknown       = "Unknown command. Try /help"
	msgBusy          = "Busy, try again in a moment."
)

type Config struct {
	AdminID        int64
	Workers        int
	QueueSize      int
	CommandTimeout time.Duration
	// Now is the clock used for replies and uptime (tests).
	Now func() time.Time
}

type Deps struct {
	Store    Store
	Monitor  ResourceChecker
	Notifier StatusSender
	Limits   *ratelimit.Set
	Bus      eventbus.Bus
}

// Bot routes chat commands. Handlers run on a worker pool started by
// DispatchLoop; Handle runs one update inline.
type Bot struct {
	cfg     Config
	deps    Deps
	sender  kit.Sender
	log     logx.Logger
	started time.Time

	mu       sync.RWMutex
	commands map[string]Command

	runMu sync.Mutex
	sup   *rtsup.Supervisor
	jobs  chan func()
}

func New(cfg Config, sender kit.Sender, deps Deps, log logx.Logger) *Bot {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = max(2, runtime.NumCPU())
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	b := &Bot{
		cfg:     cfg,
		deps:    deps,
		sender:  sender,
		log:     log,
		started: cfg.Now(),
		jobs:    make(chan func(), cfg.QueueSize),
	}
	b.commands = map[string]Command{}
	for _, c := range b.builtinCommands() {
		b.commands[c.Name] = c
	}
	return b
}

// Commands returns the registered commands sorted by name.
func (b *Bot) Commands() []Command {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Command, 0, len(b.commands))
	for _, c := range b.commands {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (b *Bot) isAdmin(id int64) bool { return id != 0 && id == b.cfg.AdminID }

// DispatchLoop consumes updates until ctx is done or updates is closed.
func (b *Bot) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.New(ctx,
		rtsup.WithLogger(b.log.With(logx.String("comp", "bot.dispatch"))),
		rtsup.WithCancelOnError(false),
	)
	b.runMu.Lock()
	b.sup = sup
	b.runMu.Unlock()

	b.log.Info("command dispatcher started", logx.Int("workers", b.cfg.Workers), logx.Int("job_queue_cap", cap(b.jobs)))
	b.publishMenu(sup)

	for i := 0; i < b.cfg.Workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-b.jobs:
					if !ok {
						return nil
					}
					b.runJob(idx, job)
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithPublishFirstError(true),
		)
	}

	defer func() {
		b.runMu.Lock()
		b.sup = nil
		b.runMu.Unlock()
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		b.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			if job := b.route(ctx, up); job != nil && !b.tryEnqueue(job) {
				if up.Message != nil {
					b.reply(ctx, kit.ChatTarget{ChatID: up.Message.ChatID, ThreadID: up.Message.ThreadID}, msgBusy)
				}
			}
		}
	}
}

// Handle routes a single update and runs its handler on the caller goroutine.
func (b *Bot) Handle(ctx context.Context, up kit.Update) {
	if job := b.route(ctx, up); job != nil {
		job()
	}
}

func (b *Bot) runJob(worker int, job func()) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("panic in command job", logx.Int("worker", worker), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()
	job()
}

func (b *Bot) tryEnqueue(job func()) bool {
	select {
	case b.jobs <- job:
		return true
	default:
		return false
	}
}

// route resolves the command, applies access and rate limit checks, and
// returns the handler job. Rejections are answered inline and yield nil.
func (b *Bot) route(ctx context.Context, up kit.Update) func() {
	if up.Kind != kit.UpdateMessage || up.Message == nil {
		return nil
	}
	msg := up.Message
	name, args, ok := parseCommand(msg.Text)
	if !ok {
		return nil
	}
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	b.mu.RLock()
	cmd, found := b.commands[name]
	b.mu.RUnlock()
	if !found {
		b.reply(ctx, chat, msgUnknown)
		return nil
	}

	if cmd.Access == AccessAdminOnly && !b.isAdmin(msg.FromID) {
		b.log.Warn("unauthorized access attempt", logx.Int64("from_id", msg.FromID), logx.String("cmd", name))
		b.reply(ctx, chat, msgUnauthorized)
		return nil
	}

	if lim := b.deps.Limits.Get(name); lim != nil && !lim.TryAdmit() {
		b.log.Warn("rate limit exceeded", logx.Int64("from_id", msg.FromID), logx.String("cmd", name))
		eventbus.Publish(b.deps.Bus, eventbus.RateLimited, name)
		b.reply(ctx, chat, msgRateLimited)
		return nil
	}

	rid := uuid.NewString()
	req := &Request{
		Message: msg,
		Chat:    chat,
		FromID:  msg.FromID,
		Command: name,
		Args:    args,
		ReqID:   rid,
		Logger: b.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", name),
		),
	}
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = b.cfg.CommandTimeout
	}
	final := Chain(cmd.Handle,
		MWPanicRecover(b.log),
		MWRequestLog(b.log),
		MWTimeout(timeout),
	)
	return func() {
		if err := final(ctx, req); err != nil {
			b.replyError(ctx, req, err)
		}
	}
}

func (b *Bot) replyError(ctx context.Context, req *Request, err error) {
	var ue *userError
	if errors.As(err, &ue) {
		b.reply(ctx, req.Chat, ue.msg)
		return
	}
	b.reply(ctx, req.Chat, msgInternalError)
}

func (b *Bot) reply(ctx context.Context, to kit.ChatTarget, text string) {
	if b.sender == nil {
		return
	}
	if _, err := b.sender.SendText(ctx, to, text, &kit.SendOptions{DisablePreview: true}); err != nil {
		b.log.Warn("reply failed", logx.Int64("chat_id", to.ChatID), logx.Err(err))
	}
}

func (b *Bot) publishMenu(sup *rtsup.Supervisor) {
	up, ok := b.sender.(kit.CommandMenuUpdater)
	if !ok {
		return
	}
	var menu []kit.BotCommand
	for _, c := range b.Commands() {
		menu = append(menu, kit.BotCommand{Command: c.Name, Description: c.Description})
	}
	sup.Go("telegram.menu.update", func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := up.UpdateMenuCommands(cctx, menu); err != nil {
			b.log.Warn("menu update failed", logx.Err(err))
		}
		return nil
	})
}

// parseCommand splits "/name@bot arg1 arg2" into its lowercase name and args.
func parseCommand(text string) (string, []string, bool) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil, false
	}
	name := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return "", nil, false
	}
	return strings.ToLower(name), fields[1:], true
}

// userError carries a message meant for the chat user.
type userError struct{ msg string }

func (e *userError) Error() string { return e.msg }

func userErr(msg string) error { return &userError{msg: msg} }
