package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	forwardQueue   = 256
	forwardTimeout = 15 * time.Second

	maxForwardText  = 3500
	maxForwardValue = 600
	maxForwardStack = 900
)

// ForwardConfig selects which lines reach the forward target.
type ForwardConfig struct {
	Enabled    bool
	MinLevel   string // default error
	RatePerSec int    // default 1
}

// ForwardFunc delivers one rendered line outside the process, such as an
// operator mailbox. It must not log at a forwarded level through the same
// Service.
type ForwardFunc func(ctx context.Context, text string) error

// forwarder is a zerolog.LevelWriter that renders qualifying lines as plain
// text and hands them to a single delivery goroutine. Logging never blocks on
// it; lines over the rate or queue limit are dropped.
type forwarder struct {
	queue chan string

	mu       sync.Mutex
	target   ForwardFunc
	minLevel zerolog.Level
	limiter  *rate.Limiter
	cancel   context.CancelFunc
	done     chan struct{}
}

func newForwarder() *forwarder {
	return &forwarder{queue: make(chan string, forwardQueue), minLevel: zerolog.ErrorLevel}
}

func (f *forwarder) setTarget(fn ForwardFunc) {
	f.mu.Lock()
	f.target = fn
	f.mu.Unlock()
}

// configure updates the filter and starts delivery on first enable.
func (f *forwarder) configure(cfg ForwardConfig) {
	rps := max(1, cfg.RatePerSec)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.minLevel = parseLevel(cfg.MinLevel, zerolog.ErrorLevel)
	f.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	if cfg.Enabled && f.cancel == nil {
		ctx, cancel := context.WithCancel(context.Background())
		f.cancel = cancel
		f.done = make(chan struct{})
		go f.deliver(ctx, f.done)
	}
}

func (f *forwarder) stop() {
	f.mu.Lock()
	cancel, done := f.cancel, f.done
	f.cancel, f.done = nil, nil
	f.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (f *forwarder) deliver(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-f.queue:
			f.mu.Lock()
			fn := f.target
			f.mu.Unlock()
			if fn == nil {
				continue
			}
			sendCtx, cancel := context.WithTimeout(ctx, forwardTimeout)
			_ = fn(sendCtx, text)
			cancel()
		}
	}
}

func (f *forwarder) Write(p []byte) (int, error) { return f.WriteLevel(zerolog.InfoLevel, p) }

func (f *forwarder) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	f.mu.Lock()
	ok := f.target != nil && f.limiter != nil && level >= f.minLevel && f.limiter.Allow()
	f.mu.Unlock()
	if !ok {
		return len(p), nil
	}
	if text := formatPlainJSON(p); text != "" {
		select {
		case f.queue <- text:
		default:
		}
	}
	return len(p), nil
}

// formatPlainJSON renders a zerolog JSON line as "[LEVEL] message" followed by
// one "- key=value" line per remaining field in key order. A line that is not
// JSON is passed through trimmed.
func formatPlainJSON(p []byte) string {
	p = bytes.TrimSpace(p)
	var fields map[string]any
	if err := json.Unmarshal(p, &fields); err != nil {
		return truncate(string(p), maxForwardText)
	}

	var b strings.Builder
	if lvl, _ := fields[zerolog.LevelFieldName].(string); lvl != "" {
		fmt.Fprintf(&b, "[%s] ", strings.ToUpper(lvl))
	}
	msg, _ := fields[zerolog.MessageFieldName].(string)
	b.WriteString(msg)

	delete(fields, zerolog.LevelFieldName)
	delete(fields, zerolog.MessageFieldName)
	delete(fields, zerolog.TimestampFieldName)
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		v := fmt.Sprint(fields[k])
		if k == "stack" {
			fmt.Fprintf(&b, "\n- stack=\n%s", truncate(v, maxForwardStack))
			continue
		}
		fmt.Fprintf(&b, "\n- %s=%s", k, truncate(v, maxForwardValue))
	}
	return truncate(b.String(), maxForwardText)
}

func truncate(s string, n int) string {
	switch {
	case n <= 0 || len(s) <= n:
		return s
	case n < 10:
		return s[:n]
	}
	return s[:n-3] + "..."
}
