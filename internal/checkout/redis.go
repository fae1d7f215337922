package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mmeshcher/webagency/internal/model"
)

const redisKeyPrefix = "checkout:"

// RedisStore хранит сессии оформления в Redis, истечение обеспечивается TTL ключа.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

// NewRedisClient создаёт клиента Redis и проверяет соединение.
func NewRedisClient(ctx context.Context, addr, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// NewRedisStore создаёт хранилище сессий поверх клиента Redis.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl, now: time.Now}
}

func redisKey(token string) string {
	return redisKeyPrefix + token
}

// Create сохраняет новую сессию и возвращает её токен.
func (s *RedisStore) Create(ctx context.Context, cs *model.CheckoutSession) (string, error) {
	if err := stamp(cs, s.ttl, s.now().UTC()); err != nil {
		return "", err
	}

	data, err := json.Marshal(cs)
	if err != nil {
		return "", fmt.Errorf("marshal session: %w", err)
	}

	ok, err := s.rdb.SetNX(ctx, redisKey(cs.Token), data, s.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("store session: token collision")
	}
	return cs.Token, nil
}

// Get читает сессию, не изменяя её.
func (s *RedisStore) Get(ctx context.Context, token string) (*model.CheckoutSession, error) {
	if token == "" {
		return nil, model.ErrNotFound
	}

	data, err := s.rdb.Get(ctx, redisKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	var cs model.CheckoutSession
	if err := json.Unmarshal(data, &cs); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &cs, nil
}

// Update перезаписывает сессию (побеждает последняя запись) и продлевает её срок жизни.
func (s *RedisStore) Update(ctx context.Context, token string, cs *model.CheckoutSession) error {
	cs.Token = token
	cs.ExpiresAt = s.now().UTC().Add(s.ttl)

	data, err := json.Marshal(cs)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	// SET XX не воскрешает уже истёкшую сессию.
	ok, err := s.rdb.SetXX(ctx, redisKey(token), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if !ok {
		return model.ErrNotFound
	}
	return nil
}

// Take забирает сессию через GETDEL.
func (s *RedisStore) Take(ctx context.Context, token string) (*model.CheckoutSession, error) {
	if token == "" {
		return nil, model.ErrNotFound
	}

	data, err := s.rdb.GetDel(ctx, redisKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("take session: %w", err)
	}

	var cs model.CheckoutSession
	if err := json.Unmarshal(data, &cs); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &cs, nil
}
