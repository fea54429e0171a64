package receipt_test

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pkg.voidrun.dev/voidrun/simcore/receipt"
	"pkg.voidrun.dev/voidrun/simcore/types"
)

func TestHistoryRoundTrip(t *testing.T) {
	h, err := receipt.NewHistory(8)
	require.NoError(t, err)

	for tick := types.Tick(0); tick < 20; tick++ {
		h.Set(receipt.Receipt{Tick: tick, Checksum: uint64(tick) * 7})
	}

	// The last eight ticks are available.
	for tick := types.Tick(12); tick < 20; tick++ {
		r, err := h.Get(tick)
		require.NoError(t, err)
		assert.Equal(t, uint64(tick)*7, r.Checksum)
	}

	_, err = h.Get(11)
	assert.True(t, eris.Is(eris.Cause(err), receipt.ErrOldTick))
	_, err = h.Get(20)
	assert.True(t, eris.Is(eris.Cause(err), receipt.ErrFutureTick))

	latest, ok := h.Latest()
	require.True(t, ok)
	assert.Equal(t, types.Tick(19), latest.Tick)
}

func TestEmptyHistory(t *testing.T) {
	_, err := receipt.NewHistory(0)
	assert.Error(t, err)

	h, err := receipt.NewHistory(4)
	require.NoError(t, err)
	_, ok := h.Latest()
	assert.False(t, ok)
	_, err = h.Get(0)
	assert.True(t, eris.Is(eris.Cause(err), receipt.ErrFutureTick))
}
