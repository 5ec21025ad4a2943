package notifier

import (
	"context"
	"errors"
	"sync"
	"time"

	"adminpanel/internal/eventbus"
	kit "adminpanel/internal/transport"
	logx "adminpanel/pkg/logx"

	"golang.org/x/time/rate"
)

// Service is safe for concurrent use.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	sender kit.Sender
	log    logx.Logger
	bus    eventbus.Bus

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, sender kit.Sender, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{sender: sender, log: log, bus: bus}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = defaultRatePerSec
	}
	s.cfg = cfg
	// burst = rate so a short spike is not delayed.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// SendAlert delivers "🚨 ALERT: "+msg to the administrator.
func (s *Service) SendAlert(ctx context.Context, msg string) error {
	return s.send(ctx, KindAlert, AlertPrefix+msg)
}

// SendStatus delivers "ℹ️ STATUS: "+msg to the administrator.
func (s *Service) SendStatus(ctx context.Context, msg string) error {
	return s.send(ctx, KindStatus, StatusPrefix+msg)
}

func (s *Service) send(ctx context.Context, kind Kind, text string) error {
	s.mu.Lock()
	cfg, lim := s.cfg, s.limiter
	s.mu.Unlock()

	if s.sender == nil {
		return s.fail(kind, errors.New("no transport"))
	}
	if cfg.ChatID == 0 {
		return s.fail(kind, errors.New("administrator chat is not configured"))
	}

	callCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	if err := lim.Wait(callCtx); err != nil {
		return s.fail(kind, err)
	}
	if _, err := s.sender.SendText(callCtx, kit.ChatTarget{ChatID: cfg.ChatID}, text, &kit.SendOptions{DisablePreview: true}); err != nil {
		return s.fail(kind, err)
	}

	s.appendHistory(kind, text)
	eventbus.Publish(s.bus, eventbus.NotifySent, Event{Kind: kind, At: time.Now()})
	return nil
}

func (s *Service) fail(kind Kind, err error) error {
	s.log.Warn("notification failed", logx.String("kind", string(kind)), logx.Err(err))
	eventbus.Publish(s.bus, eventbus.NotifyFailed, Event{Kind: kind, At: time.Now(), Error: err.Error()})
	return &DeliveryError{Kind: kind, Err: err}
}

// Snapshot returns delivered messages, oldest first.
func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) appendHistory(kind Kind, text string) {
	s.hmu.Lock()
	s.history = append(s.history, HistoryItem{At: time.Now(), Kind: kind, Text: text})
	if len(s.history) > historyCap {
		s.history = s.history[len(s.history)-historyCap:]
	}
	s.hmu.Unlock()
}
