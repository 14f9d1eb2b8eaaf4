package notifier

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	logx "sessionkeeper/pkg/logx"
)

var (
	ErrDisabled = errors.New("notifier disabled")
	ErrNoTopic  = errors.New("notifier: topic is empty")
)

const (
	historyMax       = 32
	defaultTimeout   = 10 * time.Second
	defaultRetryBase = 500 * time.Millisecond
	defaultRetryCap  = 10 * time.Second
)

// Service delivers notifications on the caller's goroutine. Identical
// messages inside DedupWindow are dropped; the rest are rate limited and
// sent with at most RetryMax retries of temporary failures.
type Service struct {
	log     logx.Logger
	sender  Sender
	cfg     Config
	limiter *rate.Limiter

	mu      sync.Mutex
	seen    map[uint64]time.Time
	history []HistoryItem
}

// New builds a Service. A nil sender posts to cfg.Server/cfg.Topic.
func New(cfg Config, sender Sender, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if sender == nil {
		sender = NtfySender{Client: &http.Client{Timeout: cfg.Timeout}, Server: cfg.Server, Topic: cfg.Topic}
	}
	return &Service{
		log:     log,
		sender:  sender,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		seen:    make(map[uint64]time.Time),
	}
}

func (s *Service) Enabled() bool {
	return s != nil && s.cfg.Enabled && s.cfg.Topic != ""
}

// Notify delivers n. Errors are informational; callers drop them.
func (s *Service) Notify(ctx context.Context, n Notification) error {
	if !s.Enabled() {
		return ErrDisabled
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !s.firstSighting(fingerprint(n), time.Now()) {
		s.log.Debug("notification deduped", logx.String("title", n.Title))
		return nil
	}

	err := s.deliver(ctx, n)
	if err != nil {
		s.log.Warn("notification not delivered", logx.Err(err))
		return err
	}
	s.record(n.Text)
	return nil
}

func (s *Service) deliver(ctx context.Context, n Notification) error {
	var err error
	for retry := 0; ; retry++ {
		if err = s.sendOnce(ctx, n); err == nil {
			return nil
		}
		s.log.Debug("notify send failed", logx.Err(err), logx.Int("retry", retry))
		if retry >= s.cfg.RetryMax || !temporary(err) {
			return err
		}
		select {
		case <-time.After(s.backoff(retry)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Service) sendOnce(ctx context.Context, n Notification) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("notify: rate limit: %w", err)
	}
	return s.sender.Send(ctx, n)
}

// temporary treats everything except a non-retryable HTTP status as worth
// another try.
func temporary(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return true
}

// backoff doubles from RetryBase per retry, capped at RetryMaxDelay, with up
// to 30% jitter either way.
func (s *Service) backoff(retry int) time.Duration {
	base, ceiling := s.cfg.RetryBase, s.cfg.RetryMaxDelay
	if base <= 0 {
		base = defaultRetryBase
	}
	if ceiling <= 0 {
		ceiling = defaultRetryCap
	}
	d := ceiling
	if retry < 30 && base<<retry < ceiling {
		d = base << retry
	}
	d += time.Duration((rand.Float64()*0.6 - 0.3) * float64(d))
	return min(max(d, 0), ceiling)
}

func (s *Service) Snapshot() []HistoryItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) record(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) == historyMax {
		copy(s.history, s.history[1:])
		s.history = s.history[:historyMax-1]
	}
	s.history = append(s.history, HistoryItem{At: time.Now(), Text: text})
}

func fingerprint(n Notification) uint64 {
	h := fnv.New64a()
	for _, part := range []string{n.Title, strconv.Itoa(n.Priority), n.Text} {
		_, _ = h.Write([]byte(part))
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}

// firstSighting reports whether key has not been seen within DedupWindow of
// now, and remembers it.
func (s *Service) firstSighting(key uint64, now time.Time) bool {
	window := s.cfg.DedupWindow
	if window <= 0 {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, at := range s.seen {
		if now.Sub(at) >= window {
			delete(s.seen, k)
		}
	}
	if _, dup := s.seen[key]; dup {
		return false
	}
	s.seen[key] = now
	return true
}
