package notifier

import (
	"context"
	"time"
)

// Config controls delivery.
type Config struct {
	Enabled bool
	// Server defaults to https://ntfy.sh.
	Server string
	Topic  string
	// Timeout bounds one HTTP request. 0 means 10s.
	Timeout       time.Duration
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	// DedupWindow suppresses identical messages sent within the window.
	DedupWindow time.Duration
}

// Notification is one message. Priority follows the 0..10 scale used across
// the program and is mapped onto ntfy's 1..5.
type Notification struct {
	Title    string
	Text     string
	Priority int
	Tags     []string
}

// Sender delivers one notification.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

type HistoryItem struct {
	At   time.Time
	Text string
}

const (
	PriorityLow    = 3
	PriorityNormal = 5
	PriorityHigh   = 7
	PriorityUrgent = 9
)
