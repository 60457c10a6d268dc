package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type Idempotency struct {
	client *redis.Client
}

func NewIdempotency(client *redis.Client) *Idempotency {
	return &Idempotency{client: client}
}

// Get returns the stored response for key, or nil when there is none.
func (i *Idempotency) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := i.client.Get(ctx, "idemp:"+key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return val, err
}

func (i *Idempotency) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	pipe := i.client.TxPipeline()
	pipe.Set(ctx, "idemp:"+key, data, ttl)
	pipe.Del(ctx, "idemp:lock:"+key)
	_, err := pipe.Exec(ctx)
	return err
}

// Lock marks key as in flight. It reports false when another request holds it.
func (i *Idempotency) Lock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	res := i.client.SetNX(ctx, "idemp:lock:"+key, "1", ttl)
	return res.Val(), res.Err()
}

func (i *Idempotency) Unlock(ctx context.Context, key string) error {
	return i.client.Del(ctx, "idemp:lock:"+key).Err()
}
