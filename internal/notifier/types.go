package notifier

import (
	"errors"
	"time"
)

const (
	AlertPrefix  = "🚨 ALERT: "
	StatusPrefix = "ℹ️ STATUS: "

	defaultTimeout    = 10 * time.Second
	defaultRatePerSec = 3
	historyCap        = 100
)

// ErrDelivery matches every *DeliveryError.
var ErrDelivery = errors.New("notification delivery failed")

type Kind string

const (
	KindAlert  Kind = "alert"
	KindStatus Kind = "status"
)

type DeliveryError struct {
	Kind Kind
	Err  error
}

func (e *DeliveryError) Error() string {
	return "notifier: " + string(e.Kind) + " delivery failed: " + e.Err.Error()
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func (e *DeliveryError) Is(target error) bool { return target == ErrDelivery }

type Config struct {
	// ChatID is the administrator chat.
	ChatID     int64
	Timeout    time.Duration
	RatePerSec int
}

type HistoryItem struct {
	At   time.Time `json:"at"`
	Kind Kind      `json:"kind"`
	Text string    `json:"text"`
}

// Event is published on the bus for every delivery attempt.
type Event struct {
	Kind  Kind      `json:"kind"`
	At    time.Time `json:"at"`
	Error string    `json:"error,omitempty"`
}
