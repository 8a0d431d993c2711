package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/amirasaad/ledger/pkg/eventbus"
	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis Streams bus.
type RedisConfig struct {
	Stream   string
	Group    string
	Consumer string
	MaxLen   int64
	Block    time.Duration
}

// RedisEventBus publishes envelopes to a Redis stream and consumes them
// through a consumer group.
type RedisEventBus struct {
	client   redis.Cmdable
	cfg      RedisConfig
	logger   *slog.Logger
	mu       sync.RWMutex
	handlers map[string][]eventbus.HandlerFunc
}

// NewWithRedis creates a Redis-backed event bus on an existing client.
func NewWithRedis(client redis.Cmdable, cfg RedisConfig, logger *slog.Logger) (*RedisEventBus, error) {
	if client == nil || cfg.Stream == "" || cfg.Group == "" {
		return nil, errors.New("redis event bus: client, stream, and group are required")
	}
	if cfg.Consumer == "" {
		cfg.Consumer = fmt.Sprintf("consumer-%d", time.Now().UnixNano())
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisEventBus{
		client:   client,
		cfg:      cfg,
		logger:   logger.With("component", "redis-event-bus", "stream", cfg.Stream),
		handlers: make(map[string][]eventbus.HandlerFunc),
	}, nil
}

func (b *RedisEventBus) addArgs(env eventbus.Envelope) (*redis.XAddArgs, error) {
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("redis event bus: envelope marshal failed: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: b.cfg.Stream,
		Values: map[string]any{"event": string(raw)},
	}
	if b.cfg.MaxLen > 0 {
		args.MaxLen = b.cfg.MaxLen
		args.Approx = true
	}
	return args, nil
}

// Emit appends the envelope to the stream.
func (b *RedisEventBus) Emit(ctx context.Context, env eventbus.Envelope) error {
	args, err := b.addArgs(env)
	if err != nil {
		return err
	}
	if err := b.client.XAdd(ctx, args).Err(); err != nil {
		b.logger.Error("failed to emit event", "error", err, "type", env.Type)
		return fmt.Errorf("redis event bus: emit failed: %w", err)
	}
	b.logger.Debug("event emitted", "type", env.Type, "event_id", env.ID)
	return nil
}

// Register adds a handler. Handlers run when Consume is active.
func (b *RedisEventBus) Register(eventType string, handler eventbus.HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Consume reads the stream through the consumer group until ctx is cancelled.
func (b *RedisEventBus) Consume(ctx context.Context) error {
	if err := b.client.XGroupCreateMkStream(ctx, b.cfg.Stream, b.cfg.Group, "0").Err(); err != nil &&
		err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return fmt.Errorf("redis event bus: create group: %w", err)
	}
	b.logger.Info("consumer started", "group", b.cfg.Group, "consumer", b.cfg.Consumer)
	for {
		if err := b.consumeOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			b.logger.Error("error reading from stream", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
	}
}

func (b *RedisEventBus) consumeOnce(ctx context.Context) error {
	res, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    b.cfg.Group,
		Consumer: b.cfg.Consumer,
		Streams:  []string{b.cfg.Stream, ">"},
		Count:    10,
		Block:    b.cfg.Block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	}

	for _, stream := range res {
		for _, msg := range stream.Messages {
			b.handle(ctx, msg)
			if err := b.client.XAck(ctx, b.cfg.Stream, b.cfg.Group, msg.ID).Err(); err != nil {
				b.logger.Error("failed to acknowledge message", "error", err, "msg_id", msg.ID)
			}
		}
	}
	return nil
}

func (b *RedisEventBus) handle(ctx context.Context, msg redis.XMessage) {
	raw, ok := msg.Values["event"].(string)
	if !ok {
		b.pushToDLQ(ctx, msg.Values)
		return
	}
	var env eventbus.Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		b.logger.Error("failed to unmarshal envelope", "error", err)
		b.pushToDLQ(ctx, msg.Values)
		return
	}

	b.mu.RLock()
	handlers := append([]eventbus.HandlerFunc(nil), b.handlers[env.Type]...)
	b.mu.RUnlock()

	for _, handler := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("handler panic recovered", "panic", r, "event_type", env.Type)
					b.pushToDLQ(ctx, msg.Values)
				}
			}()
			if err := handler(ctx, env); err != nil {
				b.logger.Error("handler error", "error", err, "event_type", env.Type)
				b.pushToDLQ(ctx, msg.Values)
			}
		}()
	}
}

// pushToDLQ copies the raw message to "<stream>-DLQ" for inspection or reprocessing.
func (b *RedisEventBus) pushToDLQ(ctx context.Context, values map[string]any) {
	dlqStream := b.cfg.Stream + "-DLQ"
	if err := b.client.XAdd(ctx, &redis.XAddArgs{Stream: dlqStream, Values: values}).Err(); err != nil {
		b.logger.Error("failed to push to DLQ", "error", err, "stream", dlqStream)
		return
	}
	b.logger.Warn("event pushed to DLQ", "stream", dlqStream)
}

var _ eventbus.Bus = (*RedisEventBus)(nil)
