package notifier

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strings"
	"sync"
	"time"

	"winova/internal/eventbus"
	rtsup "winova/internal/runtime/supervisor"
	logx "winova/pkg/logx"

	"golang.org/x/time/rate"
)

type job struct {
	address string
	subject string
	body    string
}

// Service applies delivery policy on top of a Sender.
//
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log    logx.Logger
	sender Sender
	bus    eventbus.Bus

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	sendWG    sync.WaitGroup

	queue    chan job
	sup      *rtsup.Supervisor
	stopDone chan struct{} // non-nil while stopping

	// key -> suppress until
	dmu   sync.Mutex
	dedup map[string]time.Time

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, sender Sender, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		sender: sender,
		log:    log,
		bus:    bus,
		dedup:  map[string]time.Time{},
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 512
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}
	if cfg.DedupMaxEntries <= 0 {
		cfg.DedupMaxEntries = 2000
	}

	s.cfg = cfg
	// Burst = rate per sec so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Start launches the Notify workers. Send works without Start.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.queue != nil || !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}

	s.queue = make(chan job, s.cfg.QueueSize)
	s.accepting = true
	workers := s.cfg.Workers
	s.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "notifier"))),
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	q := s.queue
	s.mu.Unlock()

	for i := 0; i < workers; i++ {
		sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			s.workerLoop(c, q)
			s.mu.Lock()
			stopping := s.stopDone != nil
			s.mu.Unlock()
			if stopping {
				return context.Canceled
			}
			if c.Err() != nil {
				return c.Err()
			}
			return errors.New("notifier worker exited unexpectedly")
		}, rtsup.WithPublishFirstError(true))
	}
}

// Stop stops intake and drains the queue best-effort until ctx deadline.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	q := s.queue
	sup := s.sup
	if q == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	s.accepting = false
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.sendWG.Wait()
		close(q)
		if sup != nil {
			_ = sup.Wait(context.Background())
		}
		s.mu.Lock()
		s.queue = nil
		s.stopDone = nil
		s.sup = nil
		s.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		if sup != nil {
			sup.Cancel()
		}
	}
}

// Send delivers synchronously, retrying per config. It returns the last
// delivery error.
func (s *Service) Send(ctx context.Context, address, subject, body string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	if !en {
		return ErrDisabled
	}
	return s.sendWithRetry(ctx, job{address: address, subject: subject, body: body})
}

// Notify queues a message for the workers. Duplicates inside DedupWindow are
// dropped silently.
func (s *Service) Notify(ctx context.Context, address, subject, body string) error {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return ErrDisabled
	}
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	window := s.cfg.DedupWindow
	maxEntries := s.cfg.DedupMaxEntries
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	if window > 0 && !s.dedupAllow(dedupKey(address, subject, body), window, maxEntries) {
		return nil
	}

	select {
	case q <- job{address: address, subject: subject, body: body}:
		return nil
	default:
		s.publish(eventbus.NotifierFailed, job{address: address, subject: subject}, 0, ErrQueueFull)
		return ErrQueueFull
	}
}

// Forwarder returns a log forward hook that notifies address.
func (s *Service) Forwarder(address, subject string) logx.ForwardFunc {
	return func(ctx context.Context, text string) error {
		return s.Notify(ctx, address, subject, text)
	}
}

func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) appendHistory(it HistoryItem) {
	s.hmu.Lock()
	s.history = append(s.history, it)
	if len(s.history) > 300 {
		s.history = s.history[len(s.history)-300:]
	}
	s.hmu.Unlock()
}

func (s *Service) workerLoop(ctx context.Context, q <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			if err := s.sendWithRetry(ctx, j); err != nil {
				s.log.Debug("queued notification failed", logx.String("address", j.address), logx.Err(err))
			}
		}
	}
}

func (s *Service) sendWithRetry(runCtx context.Context, j job) error {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	snd := s.sender
	log := s.log
	s.mu.Unlock()

	if snd == nil {
		return ErrNoSender
	}
	if strings.TrimSpace(j.body) == "" && strings.TrimSpace(j.subject) == "" {
		return nil
	}

	maxAttempts := 1 + cfg.RetryMax
	var (
		lastErr  error
		attempts int
	)
retry:
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attempts = attempt
		if lim != nil {
			if err := lim.Wait(runCtx); err != nil {
				lastErr = err
				break
			}
		}

		callCtx, cancel := context.WithTimeout(runCtx, cfg.SendTimeout)
		err := snd.Send(callCtx, j.address, j.subject, j.body)
		cancel()
		if err == nil {
			s.appendHistory(HistoryItem{At: time.Now(), Address: j.address, Subject: j.subject, Attempts: attempt})
			s.publish(eventbus.NotifierSent, j, attempt, nil)
			return nil
		}
		lastErr = err
		log.Debug("notify send failed", logx.String("address", j.address), logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", maxAttempts))

		// Bad addresses and missing routes won't fix themselves.
		if errors.Is(err, ErrInvalidAddress) || errors.Is(err, ErrNoSender) || attempt >= maxAttempts {
			break
		}

		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-runCtx.Done():
			t.Stop()
			lastErr = runCtx.Err()
			break retry
		}
	}

	s.appendHistory(HistoryItem{At: time.Now(), Address: j.address, Subject: j.subject, Attempts: attempts, Error: lastErr.Error()})
	s.publish(eventbus.NotifierFailed, j, attempts, lastErr)
	return lastErr
}

func (s *Service) publish(typ string, j job, attempts int, err error) {
	ev := NotificationEvent{Address: j.address, Subject: j.subject, Attempts: attempts, At: time.Now()}
	if err != nil {
		ev.Error = err.Error()
	}
	eventbus.Publish(s.bus, typ, ev)
}

func dedupKey(address, subject, body string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(address))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(subject))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(body))
	return fmt.Sprintf("%x", h.Sum64())
}

func (s *Service) dedupAllow(key string, window time.Duration, maxEntries int) bool {
	now := time.Now()

	s.dmu.Lock()
	defer s.dmu.Unlock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		return false
	}
	s.dedup[key] = now.Add(window)

	for k, until := range s.dedup {
		if !now.Before(until) {
			delete(s.dedup, k)
		}
	}
	for maxEntries > 0 && len(s.dedup) > maxEntries {
		var (
			minKey string
			minT   time.Time
		)
		for k, t := range s.dedup {
			if minKey == "" || t.Before(minT) {
				minKey, minT = k, t
			}
		}
		delete(s.dedup, minKey)
	}
	return true
}

// retryDelay is the wait before attempt+1: base * 2^(attempt-1), capped,
// with 0.7..1.3 jitter.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	j := 0.7 + rand.Float64()*0.6
	d = time.Duration(float64(d) * j)
	if d < 0 {
		return 0
	}
	if d > cfg.RetryMaxDelay {
		d = cfg.RetryMaxDelay
	}
	return d
}
