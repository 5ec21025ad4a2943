package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adminpanel/internal/eventbus"
	kit "adminpanel/internal/transport"
	logx "adminpanel/pkg/logx"
)

type fakeSender struct {
	mu    sync.Mutex
	texts []string
	to    []kit.ChatTarget
	err   error
	block bool
}

func (f *fakeSender) SendText(ctx context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	if f.block {
		<-ctx.Done()
		return kit.MessageRef{}, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return kit.MessageRef{}, f.err
	}
	f.texts = append(f.texts, text)
	f.to = append(f.to, to)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.texts)}, nil
}

func TestSendAlertAndStatusPrefixes(t *testing.T) {
	snd := &fakeSender{}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	s := New(Config{ChatID: 100}, snd, logx.Nop(), bus)
	require.NoError(t, s.SendAlert(context.Background(), "High Memory Usage: 81.0%"))
	require.NoError(t, s.SendStatus(context.Background(), "Bot started"))

	assert.Equal(t, []string{"🚨 ALERT: High Memory Usage: 81.0%", "ℹ️ STATUS: Bot started"}, snd.texts)
	assert.Equal(t, int64(100), snd.to[0].ChatID)

	h := s.Snapshot()
	require.Len(t, h, 2)
	assert.Equal(t, KindAlert, h[0].Kind)
	assert.Equal(t, KindStatus, h[1].Kind)

	e := <-events
	assert.Equal(t, eventbus.NotifySent, e.Type)
}

func TestDeliveryErrorOnTransportFailure(t *testing.T) {
	snd := &fakeSender{err: errors.New("chat not found")}
	s := New(Config{ChatID: 100}, snd, logx.Nop(), nil)

	err := s.SendAlert(context.Background(), "x")
	require.ErrorIs(t, err, ErrDelivery)
	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, KindAlert, de.Kind)
	assert.ErrorContains(t, err, "chat not found")
	assert.Empty(t, s.Snapshot())
}

func TestSendIsBoundedByTimeout(t *testing.T) {
	s := New(Config{ChatID: 100, Timeout: 50 * time.Millisecond}, &fakeSender{block: true}, logx.Nop(), nil)

	start := time.Now()
	err := s.SendStatus(context.Background(), "x")
	require.ErrorIs(t, err, ErrDelivery)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestMissingChatOrSender(t *testing.T) {
	err := New(Config{}, &fakeSender{}, logx.Nop(), nil).SendStatus(context.Background(), "x")
	require.ErrorIs(t, err, ErrDelivery)

	err = New(Config{ChatID: 1}, nil, logx.Nop(), nil).SendAlert(context.Background(), "x")
	require.ErrorIs(t, err, ErrDelivery)
}

func TestApplyKeepsDefaults(t *testing.T) {
	s := New(Config{ChatID: 1}, &fakeSender{}, logx.Nop(), nil)
	s.Apply(Config{ChatID: 2, RatePerSec: 10})
	assert.Equal(t, defaultTimeout, s.cfg.Timeout)
	assert.Equal(t, 10, s.cfg.RatePerSec)
}
