package eventbus

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	logx "winova/pkg/logx"
)

func TestPublishFansOutAndDropsWhenFull(t *testing.T) {
	t.Parallel()

	b := New()
	a, unsubA := b.Subscribe(1)
	defer unsubA()
	c, unsubC := b.Subscribe(4)
	defer unsubC()

	Publish(b, JobFired, "a")
	Publish(b, JobFired, "b")

	if ev := <-a; ev.Data != "a" {
		t.Fatalf("first subscriber got %v", ev.Data)
	}
	select {
	case ev := <-a:
		t.Fatalf("expected drop on full buffer, got %v", ev.Data)
	default:
	}
	if got := len(c); got != 2 {
		t.Fatalf("second subscriber buffered %d events, want 2", got)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed")
	}
	b.Publish(Event{Type: JobFired})
}

func TestPublishNilBus(t *testing.T) {
	t.Parallel()
	Publish(nil, JobFired, nil)
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []string
	got  chan struct{}
}

func (p *recordingPublisher) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	p.mu.Lock()
	p.msgs = append(p.msgs, channel+"|"+string(message.([]byte)))
	p.mu.Unlock()
	p.got <- struct{}{}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(1)
	return cmd
}

func TestRedisForwarderFiltersByPrefix(t *testing.T) {
	t.Parallel()

	b := New()
	pub := &recordingPublisher{got: make(chan struct{}, 4)}
	fw := NewRedisForwarder(b, pub, "", []string{"job."}, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = fw.Run(ctx)
		close(done)
	}()

	// Wait for the forwarder to subscribe.
	deadline := time.Now().Add(2 * time.Second)
	for {
		Publish(b, TaskStarted, nil)
		Publish(b, JobCompleted, map[string]any{"job_id": "x"})
		select {
		case <-pub.got:
		case <-time.After(20 * time.Millisecond):
			if time.Now().After(deadline) {
				t.Fatal("forwarder never published")
			}
			continue
		}
		break
	}
	cancel()
	<-done

	pub.mu.Lock()
	defer pub.mu.Unlock()
	for _, m := range pub.msgs {
		var ev Event
		parts := m[len("winova.events|"):]
		if m[:len("winova.events|")] != "winova.events|" {
			t.Fatalf("unexpected channel in %q", m)
		}
		if err := json.Unmarshal([]byte(parts), &ev); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if ev.Type != JobCompleted {
			t.Fatalf("forwarded %q, want only job.* events", ev.Type)
		}
	}
}
