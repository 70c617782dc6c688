// Package redisbroker provides a Redis pub/sub implementation of
// broker.Broker so room events fan out across all nodes subscribed to the
// same channel prefix.
package redisbroker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"

	"github.com/collabhq/realtime-go/broker"
)

// Config for the Redis-backed broker. Defaults can be loaded via envdecode.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: REALTIME_REDIS_ADDR
	RedisAddr string `env:"REALTIME_REDIS_ADDR,default=localhost:6379"`
	// ChannelPrefix for all pub/sub channels. ENV: REALTIME_CHANNEL_PREFIX
	ChannelPrefix string `env:"REALTIME_CHANNEL_PREFIX,default=realtime:"`
}

// Broker implements broker.Broker over Redis pub/sub. Delivery is
// fire-and-forget: Redis drops messages for channels with no subscriber and
// does not replay.
type Broker struct {
	client *redis.Client
	prefix string
}

// New dials Redis and verifies the connection.
func New(cfg Config) (*Broker, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	prefix := cfg.ChannelPrefix
	if prefix == "" {
		prefix = "realtime:"
	}
	return &Broker{client: cl, prefix: prefix}, nil
}

// NewFromEnv builds a Broker using envdecode to populate Config.
func NewFromEnv() (*Broker, error) {
	var cfg Config
	// Use envdecode; defaults are provided via struct tags.
	_ = envdecode.Decode(&cfg)
	return New(cfg)
}

// Close closes the Redis client.
func (b *Broker) Close() error { return b.client.Close() }

func (b *Broker) channel(topic string) string { return b.prefix + topic }

// Publish implements broker.Broker.
func (b *Broker) Publish(ctx context.Context, topic string, data []byte) (string, error) {
	env := broker.Envelope{ID: uuid.NewString(), Data: data}
	raw, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel(topic), raw).Err(); err != nil {
		return "", fmt.Errorf("publish to %q: %w", topic, err)
	}
	return env.ID, nil
}

// Subscribe implements broker.Broker.
func (b *Broker) Subscribe(ctx context.Context, topic string, handler broker.HandlerFunc) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	pubsub := b.client.Subscribe(ctx, b.channel(topic))
	defer func() { _ = pubsub.Close() }()

	// Wait for the subscription confirmation so publishes after Subscribe
	// returns to the caller's goroutine are not lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %q: %w", topic, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("subscription channel closed")
			}
			var env broker.Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				// Foreign or corrupt payload on our channel; skip it rather
				// than kill the subscription.
				continue
			}
			if err := handler(ctx, env); err != nil {
				return err
			}
		}
	}
}

var _ broker.Broker = (*Broker)(nil)
