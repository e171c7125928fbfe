package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ashki:conv:"

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore stores conversations as JSON under ashki:conv:<id>. A zero
// ttl keeps them until they are cleared.
func NewRedisStore(addr string, password string, db int, ttl time.Duration) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Conversation, error) {
	val, err := s.client.Get(ctx, redisKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var c Conversation
	if err := json.Unmarshal(val, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *RedisStore) Save(ctx context.Context, c *Conversation) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, redisKeyPrefix+c.ID, payload, s.ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, redisKeyPrefix+id).Err()
}
