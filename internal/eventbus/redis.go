package eventbus

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/redis/go-redis/v9"

	logx "winova/pkg/logx"
)

// Publisher is the subset of *redis.Client used by RedisForwarder.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisForwarder republishes bus events as JSON on a Redis pub/sub channel so
// external consumers (dashboards, audit collectors) can follow job activity.
type RedisForwarder struct {
	bus     Bus
	pub     Publisher
	channel string
	prefix  []string
	log     logx.Logger
}

// NewRedisForwarder forwards every event whose Type starts with one of the
// given prefixes. No prefixes means every event.
func NewRedisForwarder(bus Bus, pub Publisher, channel string, prefixes []string, log logx.Logger) *RedisForwarder {
	if strings.TrimSpace(channel) == "" {
		channel = "winova.events"
	}
	return &RedisForwarder{bus: bus, pub: pub, channel: channel, prefix: prefixes, log: log}
}

// Run blocks until ctx is cancelled.
func (f *RedisForwarder) Run(ctx context.Context) error {
	if f == nil || f.bus == nil || f.pub == nil {
		return nil
	}
	ch, unsub := f.bus.Subscribe(256)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if !f.match(ev.Type) {
				continue
			}
			b, err := json.Marshal(ev)
			if err != nil {
				f.log.Debug("event encode failed", logx.String("type", ev.Type), logx.Err(err))
				continue
			}
			if err := f.pub.Publish(ctx, f.channel, b).Err(); err != nil {
				f.log.Warn("event forward failed", logx.String("type", ev.Type), logx.String("channel", f.channel), logx.Err(err))
			}
		}
	}
}

func (f *RedisForwarder) match(typ string) bool {
	if len(f.prefix) == 0 {
		return true
	}
	for _, p := range f.prefix {
		if strings.HasPrefix(typ, p) {
			return true
		}
	}
	return false
}
