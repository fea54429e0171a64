package gamestate

import (
	"context"

	"github.com/rotisserie/eris"
)

// ErrNoValue is returned by a PrimitiveStorage when there is no value at the
// requested key.
var ErrNoValue = eris.New("no value at storage key")

// PrimitiveStorage is the durable key/value layer that committed state lives
// in. The concrete implementation is redis; tests run against miniredis.
type PrimitiveStorage[K comparable] interface {
	GetFloat64(ctx context.Context, key K) (float64, error)
	GetUInt64(ctx context.Context, key K) (uint64, error)
	GetInt64(ctx context.Context, key K) (int64, error)
	GetInt(ctx context.Context, key K) (int, error)
	GetBool(ctx context.Context, key K) (bool, error)
	GetBytes(ctx context.Context, key K) ([]byte, error)
	Get(ctx context.Context, key K) (any, error)
	Set(ctx context.Context, key K, value any) error
	Incr(ctx context.Context, key K) error
	Decr(ctx context.Context, key K) error
	Delete(ctx context.Context, key K) error
	Keys(ctx context.Context) ([]K, error)
	Clear(ctx context.Context) error
	Close(ctx context.Context) error

	// StartTransaction returns a staged view of this storage. Writes against
	// the returned storage are queued and only hit the underlying layer when
	// EndTransaction is called, atomically.
	StartTransaction(ctx context.Context) (PrimitiveStorage[K], error)
	EndTransaction(ctx context.Context) error
}
