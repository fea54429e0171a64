package simcore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// TestWorld manages a World instance for tests. Ticks are stepped manually
// with DoTick, and resources are released when the test ends.
type TestWorld struct {
	testing.TB
	*World

	Redis *miniredis.Miniredis
}

// TestWorldConfig returns a config pointed at the given miniredis, with debug
// checks on and a fixed seed so test runs are reproducible.
func TestWorldConfig(redis *miniredis.Miniredis) WorldConfig {
	return WorldConfig{
		RedisAddress: redis.Addr(),
		WorldID:      "testworld",
		Seed:         42,
		TickRate:     20,
		HistoryTicks: 128,
		ReceiptTicks: 16,
		DebugChecks:  true,
	}
}

// NewTestWorld creates a world backed by miniredis. Pass nil to get a fresh
// redis; pass an existing one to simulate a restart against the same storage.
func NewTestWorld(t testing.TB, redis *miniredis.Miniredis, opts ...WorldOption) *TestWorld {
	if redis == nil {
		redis = miniredis.RunT(t)
	}

	defaultOpts := []WorldOption{
		WithLogger(zerolog.Nop()),
	}
	w, err := NewWorld(TestWorldConfig(redis), append(defaultOpts, opts...)...)
	require.NoError(t, err)

	tw := &TestWorld{
		TB:    t,
		World: w,
		Redis: redis,
	}
	t.Cleanup(func() {
		require.NoError(t, w.Shutdown())
	})
	return tw
}

// StartWorld finishes registration and brings the world to Ready.
func (tw *TestWorld) StartWorld() {
	require.NoError(tw, tw.Startup(context.Background()))
}

// DoTick executes one tick and fails the test on any tick error.
func (tw *TestWorld) DoTick() {
	require.NoError(tw, tw.Tick(context.Background()))
}
