package gamestate

// VolatileStorage is the in-memory layer used for caches and pending state.
// Its contents never outlive the process.
type VolatileStorage[K comparable, V any] interface {
	Get(key K) (V, error)
	Set(key K, value V) error
	Delete(key K) error
	Keys() ([]K, error)
	Len() int
	Clear() error
}
