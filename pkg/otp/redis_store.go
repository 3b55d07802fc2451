package otp

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisCodeStore keeps pending codes in Redis so verification survives
// process restarts and works across replicas. TTLs do the expiry.
type RedisCodeStore struct {
	client *redis.Client
}

var _ CodeStore = &RedisCodeStore{}

func NewRedisCodeStore(addr string) (*RedisCodeStore, error) {
	if addr == "" {
		return nil, errors.New("otp: empty redis addr")
	}
	return &RedisCodeStore{client: redis.NewClient(&redis.Options{Addr: addr})}, nil
}

func codeKey(phone string) string     { return "otp:code:" + phone }
func attemptsKey(phone string) string { return "otp:attempts:" + phone }

func (s *RedisCodeStore) SetCode(ctx context.Context, phone, code string, ttl time.Duration) error {
	if s == nil || s.client == nil {
		return errors.New("otp: redis store is not initialized")
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, codeKey(phone), code, ttl)
	pipe.Del(ctx, attemptsKey(phone))
	_, err := pipe.Exec(ctx)
	return errors.Wrap(err, "otp: redis set code")
}

func (s *RedisCodeStore) GetCode(ctx context.Context, phone string) (string, error) {
	if s == nil || s.client == nil {
		return "", errors.New("otp: redis store is not initialized")
	}
	code, err := s.client.Get(ctx, codeKey(phone)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "otp: redis get code")
	}
	return code, nil
}

func (s *RedisCodeStore) BumpAttempts(ctx context.Context, phone string, ttl time.Duration) (int, error) {
	if s == nil || s.client == nil {
		return 0, errors.New("otp: redis store is not initialized")
	}
	n, err := s.client.Incr(ctx, attemptsKey(phone)).Result()
	if err != nil {
		return 0, errors.Wrap(err, "otp: redis incr attempts")
	}
	if n == 1 {
		_ = s.client.Expire(ctx, attemptsKey(phone), ttl).Err()
	}
	return int(n), nil
}

func (s *RedisCodeStore) Clear(ctx context.Context, phone string) error {
	if s == nil || s.client == nil {
		return errors.New("otp: redis store is not initialized")
	}
	err := s.client.Del(ctx, codeKey(phone), attemptsKey(phone)).Err()
	return errors.Wrap(err, "otp: redis clear")
}

func (s *RedisCodeStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
