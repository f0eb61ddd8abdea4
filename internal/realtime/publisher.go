package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/anandyadav-dev/HunarMitra-Backend/pkg/logger"
)

// Publisher emits status changes to interested collaborators. Publish is fire-and-forget:
// transport failures are logged and never returned.
type Publisher interface {
	Publish(ctx context.Context, channel string, message Message)
}

// Broadcaster is the subset of Hub used by publishers.
type Broadcaster interface {
	BroadcastStream(stream string, message Message)
}

// NopPublisher discards every message.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, string, Message) {}

// HubPublisher delivers messages to local websocket subscribers.
type HubPublisher struct {
	hub Broadcaster
}

// NewHubPublisher wraps a hub.
func NewHubPublisher(hub Broadcaster) *HubPublisher {
	return &HubPublisher{hub: hub}
}

// Publish implements Publisher.
func (p *HubPublisher) Publish(_ context.Context, channel string, message Message) {
	if p == nil || p.hub == nil {
		return
	}
	p.hub.BroadcastStream(channel, message)
}

// RedisPublisher sends messages over Redis pub/sub so every instance can relay them to
// its own websocket clients.
type RedisPublisher struct {
	client goredis.UniversalClient
	prefix string
	log    *zap.Logger
}

// NewRedisPublisher constructs a Redis publisher. Channels are namespaced by prefix.
func NewRedisPublisher(client goredis.UniversalClient, prefix string) *RedisPublisher {
	return &RedisPublisher{
		client: client,
		prefix: channelPrefix(prefix),
		log:    logger.WithModule("realtime"),
	}
}

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, channel string, message Message) {
	if p == nil || p.client == nil {
		return
	}
	channel = normalizeStream(channel)
	message.Stream = channel

	payload, err := json.Marshal(message)
	if err != nil {
		p.log.Warn("encode realtime message failed", zap.String("channel", channel), zap.Error(err))
		return
	}
	if err := p.client.Publish(ctx, p.prefix+channel, payload).Err(); err != nil {
		p.log.Warn("redis publish failed", zap.String("channel", channel), zap.Error(err))
	}
}

// RedisRelay forwards Redis pub/sub messages into a local Broadcaster.
type RedisRelay struct {
	client goredis.UniversalClient
	prefix string
	target Broadcaster
	log    *zap.Logger
}

// NewRedisRelay constructs a relay from Redis channels with the given prefix into target.
func NewRedisRelay(client goredis.UniversalClient, prefix string, target Broadcaster) *RedisRelay {
	return &RedisRelay{
		client: client,
		prefix: channelPrefix(prefix),
		target: target,
		log:    logger.WithModule("realtime"),
	}
}

// Run subscribes and relays until ctx is cancelled. The ready channel, when non-nil,
// is closed once the subscription is active.
func (r *RedisRelay) Run(ctx context.Context, ready chan<- struct{}) error {
	if r.client == nil || r.target == nil {
		return errors.New("realtime: relay requires a redis client and target")
	}

	sub := r.client.PSubscribe(ctx, r.prefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	if ready != nil {
		close(ready)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var message Message
			if err := json.Unmarshal([]byte(msg.Payload), &message); err != nil {
				r.log.Warn("invalid relayed message", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			r.target.BroadcastStream(strings.TrimPrefix(msg.Channel, r.prefix), message)
		}
	}
}

func channelPrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "hunarmitra"
	}
	return strings.TrimSuffix(prefix, ":") + ":"
}
