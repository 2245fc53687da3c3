package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPersister stores session state in Redis under a key prefix
type RedisPersister struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisOptions configures RedisPersister
type RedisOptions struct {
	Address  string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration // 0 keeps keys until cleared
}

// NewRedisPersister connects to Redis and verifies the connection
func NewRedisPersister(ctx context.Context, opts RedisOptions) (*RedisPersister, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisPersister{
		client: client,
		prefix: opts.Prefix,
		ttl:    opts.TTL,
	}, nil
}

func (p *RedisPersister) key(name string) string {
	return p.prefix + name
}

// Load reads both keys in one round trip
func (p *RedisPersister) Load(ctx context.Context) (string, bool, error) {
	values, err := p.client.MGet(ctx, p.key(TokenKey), p.key(LoggedInKey)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to load session: %w", err)
	}

	token, _ := values[0].(string)
	flag, _ := values[1].(string)
	return token, flag == "true", nil
}

// Save writes both keys atomically
func (p *RedisPersister) Save(ctx context.Context, token string) error {
	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, p.key(TokenKey), token, p.ttl)
		pipe.Set(ctx, p.key(LoggedInKey), "true", p.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Clear deletes both keys
func (p *RedisPersister) Clear(ctx context.Context) error {
	if err := p.client.Del(ctx, p.key(TokenKey), p.key(LoggedInKey)).Err(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// HealthCheck verifies Redis connectivity
func (p *RedisPersister) HealthCheck(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (p *RedisPersister) Close() error {
	return p.client.Close()
}
