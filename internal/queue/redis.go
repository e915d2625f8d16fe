package queue

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
)

const reservePollTimeout = time.Second

// RedisConfig holds the connection settings for the Redis-backed engine.
type RedisConfig struct {
	URL      string
	Host     string
	Port     string
	Password string
	DB       int
}

// RedisEngine is a reliable-queue on two Redis lists: Push LPUSHes onto the
// pending list, Reserve atomically moves an element onto the processing
// list, Ack removes it there. Recover moves stranded processing entries back
// to pending after a restart, which is what makes transfers survive a crash.
type RedisEngine struct {
	client     *redis.Client
	pending    string
	processing string
}

// NewRedisEngine connects to Redis and verifies the connection.
func NewRedisEngine(cfg RedisConfig, namespace string) (*RedisEngine, error) {
	opts, err := buildRedisOptions(cfg)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisEngine{
		client:     client,
		pending:    namespace + ":pending",
		processing: namespace + ":processing",
	}, nil
}

func buildRedisOptions(cfg RedisConfig) (*redis.Options, error) {
	if cfg.URL != "" {
		opt, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		return opt, nil
	}

	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port == "" {
		port = "6379"
	}

	return &redis.Options{
		Addr:     net.JoinHostPort(host, port),
		Password: cfg.Password,
		DB:       cfg.DB,
	}, nil
}

// Recover requeues every payload stranded on the processing list by a
// previous process. Call once on startup, before workers begin reserving.
func (e *RedisEngine) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := e.client.LMove(ctx, e.processing, e.pending, "RIGHT", "LEFT").Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("redis recover failed: %w", err)
		}
		moved++
	}
}

func (e *RedisEngine) Push(ctx context.Context, payload []byte) error {
	if err := e.client.LPush(ctx, e.pending, payload).Err(); err != nil {
		return fmt.Errorf("redis push failed: %w", err)
	}
	return nil
}

func (e *RedisEngine) Reserve(ctx context.Context) (*Delivery, error) {
	for {
		res, err := e.client.BLMove(ctx, e.pending, e.processing, "RIGHT", "LEFT", reservePollTimeout).Result()
		if errors.Is(err, redis.Nil) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("redis reserve failed: %w", err)
		}

		payload := []byte(res)
		return &Delivery{
			Payload: payload,
			ack: func(ctx context.Context) error {
				return e.client.LRem(ctx, e.processing, 1, res).Err()
			},
			requeue: func(ctx context.Context) error {
				pipe := e.client.TxPipeline()
				pipe.LRem(ctx, e.processing, 1, res)
				pipe.LPush(ctx, e.pending, res)
				_, err := pipe.Exec(ctx)
				return err
			},
		}, nil
	}
}

func (e *RedisEngine) Depth(ctx context.Context) (int64, error) {
	n, err := e.client.LLen(ctx, e.pending).Result()
	if err != nil {
		return 0, fmt.Errorf("redis depth failed: %w", err)
	}
	return n, nil
}

// Close releases the underlying Redis connection.
func (e *RedisEngine) Close() error {
	return e.client.Close()
}

var _ Engine = (*RedisEngine)(nil)
