package notifier

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDisabled       = errors.New("notifier disabled")
	ErrQueueFull      = errors.New("notifier queue full")
	ErrStopped        = errors.New("notifier stopped")
	ErrNoSender       = errors.New("notifier: no sender for address")
	ErrInvalidAddress = errors.New("notifier: invalid address")
)

// Sender delivers one message to one address.
type Sender interface {
	Send(ctx context.Context, address, subject, body string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, address, subject, body string) error

func (f SenderFunc) Send(ctx context.Context, address, subject, body string) error {
	return f(ctx, address, subject, body)
}

// Config controls delivery policy.
type Config struct {
	Enabled         bool
	Workers         int
	QueueSize       int
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	SendTimeout     time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
}

type HistoryItem struct {
	At       time.Time `json:"at"`
	Address  string    `json:"address"`
	Subject  string    `json:"subject"`
	Attempts int       `json:"attempts"`
	Error    string    `json:"error,omitempty"`
}

// NotificationEvent is the Data of notifier.* bus events.
type NotificationEvent struct {
	Address  string    `json:"address"`
	Subject  string    `json:"subject"`
	Attempts int       `json:"attempts"`
	At       time.Time `json:"at"`
	Error    string    `json:"error,omitempty"`
}
