// Package redishost is a stream.Host backed by Redis Streams.
package redishost

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"

	"github.com/ggoodman/mcp-peer-go/transport/stream"
)

const (
	defaultAddr      = "localhost:6379"
	defaultKeyPrefix = "mcp:stream:"
	readBlock        = 500 * time.Millisecond
	readCount        = 64
)

// Config for the Redis-backed Host. Defaults can be loaded via envdecode.
type Config struct {
	// Addr like "localhost:6379". ENV: REDIS_ADDR
	Addr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all keys. ENV: STREAM_KEY_PREFIX
	KeyPrefix string `env:"STREAM_KEY_PREFIX,default=mcp:stream:"`
}

// Host implements stream.Host with XADD / XREAD.
type Host struct {
	client    *redis.Client
	keyPrefix string
}

var _ stream.Host = (*Host)(nil)

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Host, error) {
	addr := cfg.Addr
	if addr == "" {
		addr = defaultAddr
	}
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(ctx).Err(); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &Host{client: cl, keyPrefix: prefix}, nil
}

// NewFromEnv builds a Host using envdecode to populate Config.
func NewFromEnv(ctx context.Context) (*Host, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode redis config: %w", err)
	}
	return New(ctx, cfg)
}

// Close closes the Redis client.
func (h *Host) Close() error { return h.client.Close() }

func (h *Host) streamKey(key string) string { return h.keyPrefix + key }

// Publish implements stream.Host.
func (h *Host) Publish(ctx context.Context, key string, data []byte) (string, error) {
	id, err := h.client.XAdd(ctx, &redis.XAddArgs{
		Stream: h.streamKey(key),
		Values: map[string]any{"d": data},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}
	return id, nil
}

// Subscribe implements stream.Host.
func (h *Host) Subscribe(ctx context.Context, key string, lastEventID string, handler stream.Handler) error {
	sk := h.streamKey(key)
	start := "0"
	if lastEventID != "" {
		found, err := h.client.XRangeN(ctx, sk, lastEventID, lastEventID, 1).Result()
		if err != nil {
			return fmt.Errorf("xrange: %w", err)
		}
		if len(found) == 0 {
			return stream.ErrUnknownEventID
		}
		start = lastEventID
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := h.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{sk, start},
			Count:   readCount,
			Block:   readBlock,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("xread: %w", err)
		}
		for _, s := range res {
			for _, m := range s.Messages {
				start = m.ID
				if err := handler(ctx, m.ID, payload(m.Values["d"])); err != nil {
					return err
				}
			}
		}
	}
}

// Cleanup implements stream.Host. Subscribers block on XREAD and notice the
// deletion only through their context.
func (h *Host) Cleanup(ctx context.Context, key string) error {
	if err := h.client.Del(context.WithoutCancel(ctx), h.streamKey(key)).Err(); err != nil {
		return fmt.Errorf("del: %w", err)
	}
	return nil
}

func payload(v any) []byte {
	switch v := v.(type) {
	case string:
		return []byte(v)
	case []byte:
		return v
	case nil:
		return nil
	default:
		return fmt.Appendf(nil, "%v", v)
	}
}
