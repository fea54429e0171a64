package gamestate

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

var _ PrimitiveStorage[string] = &RedisStorage{}

type RedisStorage struct {
	currentClient redis.Cmdable
}

func NewRedisPrimitiveStorage(client redis.Cmdable) PrimitiveStorage[string] {
	return &RedisStorage{
		currentClient: client,
	}
}

// wrapRedisErr translates redis sentinel errors into storage-level errors so
// callers never need to know which backend is in use.
func wrapRedisErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return eris.Wrap(ErrNoValue, "")
	}
	return eris.Wrap(err, "")
}

func (r *RedisStorage) GetFloat64(ctx context.Context, key string) (float64, error) {
	res, err := r.currentClient.Get(ctx, key).Float64()
	if err != nil {
		return 0, wrapRedisErr(err)
	}
	return res, nil
}

func (r *RedisStorage) GetUInt64(ctx context.Context, key string) (uint64, error) {
	res, err := r.currentClient.Get(ctx, key).Uint64()
	if err != nil {
		return 0, wrapRedisErr(err)
	}
	return res, nil
}

func (r *RedisStorage) GetInt64(ctx context.Context, key string) (int64, error) {
	res, err := r.currentClient.Get(ctx, key).Int64()
	if err != nil {
		return 0, wrapRedisErr(err)
	}
	return res, nil
}

func (r *RedisStorage) GetInt(ctx context.Context, key string) (int, error) {
	res, err := r.currentClient.Get(ctx, key).Int()
	if err != nil {
		return 0, wrapRedisErr(err)
	}
	return res, nil
}

func (r *RedisStorage) GetBool(ctx context.Context, key string) (bool, error) {
	res, err := r.currentClient.Get(ctx, key).Bool()
	if err != nil {
		return false, wrapRedisErr(err)
	}
	return res, nil
}

func (r *RedisStorage) GetBytes(ctx context.Context, key string) ([]byte, error) {
	bz, err := r.currentClient.Get(ctx, key).Bytes()
	if err != nil {
		return nil, wrapRedisErr(err)
	}
	return bz, nil
}

// Get returns the raw value at the key. The underlying type is a string; this
// is the most generic value redis can return.
func (r *RedisStorage) Get(ctx context.Context, key string) (any, error) {
	res, err := r.currentClient.Get(ctx, key).Result()
	if err != nil {
		return nil, wrapRedisErr(err)
	}
	return res, nil
}

func (r *RedisStorage) Set(ctx context.Context, key string, value any) error {
	return wrapRedisErr(r.currentClient.Set(ctx, key, value, 0).Err())
}

func (r *RedisStorage) Incr(ctx context.Context, key string) error {
	return wrapRedisErr(r.currentClient.Incr(ctx, key).Err())
}

func (r *RedisStorage) Decr(ctx context.Context, key string) error {
	return wrapRedisErr(r.currentClient.Decr(ctx, key).Err())
}

func (r *RedisStorage) Delete(ctx context.Context, key string) error {
	return wrapRedisErr(r.currentClient.Del(ctx, key).Err())
}

func (r *RedisStorage) Keys(ctx context.Context) ([]string, error) {
	return r.currentClient.Keys(ctx, "*").Result()
}

func (r *RedisStorage) Clear(ctx context.Context) error {
	return wrapRedisErr(r.currentClient.FlushAll(ctx).Err())
}

func (r *RedisStorage) Close(ctx context.Context) error {
	err := wrapRedisErr(r.currentClient.Shutdown(ctx).Err())
	if eris.Is(eris.Cause(err), redis.ErrClosed) {
		// Multiple shutdown pathways may try to close the storage; already
		// closed is not an error.
		return nil
	}
	return err
}

func (r *RedisStorage) StartTransaction(_ context.Context) (PrimitiveStorage[string], error) {
	pipeline := r.currentClient.TxPipeline()
	return NewRedisPrimitiveStorage(pipeline), nil
}

func (r *RedisStorage) EndTransaction(ctx context.Context) error {
	pipeline, ok := r.currentClient.(redis.Pipeliner)
	if !ok {
		return eris.New("current storage is not a transaction")
	}
	if _, err := pipeline.Exec(ctx); err != nil {
		return eris.Wrap(err, "")
	}
	return nil
}
