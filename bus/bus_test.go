package bus_test

import (
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pkg.voidrun.dev/voidrun/simcore/bus"
	"pkg.voidrun.dev/voidrun/simcore/types"
)

type moveCmd struct {
	Entity types.EntityID `json:"entity"`
	DX     float64        `json:"dx"`
}

func TestRegisterTopicRejectsDuplicates(t *testing.T) {
	b := bus.New(zerolog.Nop())
	_, err := bus.RegisterTopic[moveCmd](b, "move", types.DirectionPresentationToSim)
	require.NoError(t, err)
	_, err = bus.RegisterTopic[moveCmd](b, "move", types.DirectionPresentationToSim)
	assert.True(t, eris.Is(eris.Cause(err), bus.ErrTopicAlreadyRegistered))
}

func TestMessagesAreInvisibleUntilNextTick(t *testing.T) {
	b := bus.New(zerolog.Nop())
	topic, err := bus.RegisterTopic[moveCmd](b, "move", types.DirectionPresentationToSim)
	require.NoError(t, err)
	require.NoError(t, topic.RegisterReader("movement"))

	topic.Publish(bus.ExternalSource, moveCmd{Entity: 1, DX: 2})

	// Still tick 0: nothing sealed, nothing readable.
	got, err := topic.Read("movement")
	require.NoError(t, err)
	assert.Empty(t, got)

	b.EndTick(0)

	got, err = topic.Read("movement")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, types.Tick(0), got[0].Tick)
	assert.Equal(t, uint64(0), got[0].Seq)
	assert.Equal(t, moveCmd{Entity: 1, DX: 2}, got[0].Payload)
}

func TestReadAdvancesCursorPeekDoesNot(t *testing.T) {
	b := bus.New(zerolog.Nop())
	topic, err := bus.RegisterTopic[moveCmd](b, "move", types.DirectionInternal)
	require.NoError(t, err)
	require.NoError(t, topic.RegisterReader("r"))

	topic.Publish(0, moveCmd{Entity: 1})
	b.EndTick(0)

	peeked, err := topic.Peek("r")
	require.NoError(t, err)
	assert.Len(t, peeked, 1)
	peeked, err = topic.Peek("r")
	require.NoError(t, err)
	assert.Len(t, peeked, 1)

	got, err := topic.Read("r")
	require.NoError(t, err)
	assert.Len(t, got, 1)
	got, err = topic.Read("r")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadRequiresRegisteredReader(t *testing.T) {
	b := bus.New(zerolog.Nop())
	topic, err := bus.RegisterTopic[moveCmd](b, "move", types.DirectionInternal)
	require.NoError(t, err)
	_, err = topic.Read("ghost")
	assert.True(t, eris.Is(eris.Cause(err), bus.ErrReaderNotRegistered))
	require.NoError(t, topic.RegisterReader("r"))
	err = topic.RegisterReader("r")
	assert.True(t, eris.Is(eris.Cause(err), bus.ErrReaderAlreadyRegistered))
}

func TestSealOrderIsDeterministicAcrossConcurrentPublishers(t *testing.T) {
	// Two "domains" publish concurrently; the sealed order must come out
	// keyed by source slot no matter how the goroutines interleave.
	for trial := 0; trial < 20; trial++ {
		b := bus.New(zerolog.Nop())
		topic, err := bus.RegisterTopic[moveCmd](b, "move", types.DirectionInternal)
		require.NoError(t, err)
		require.NoError(t, topic.RegisterReader("r"))

		var wg sync.WaitGroup
		for source := uint16(0); source < 2; source++ {
			source := source
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 5; i++ {
					topic.Publish(source, moveCmd{Entity: types.EntityID(i), DX: float64(source)})
				}
			}()
		}
		wg.Wait()
		b.EndTick(0)

		got, err := topic.Read("r")
		require.NoError(t, err)
		require.Len(t, got, 10)
		for i, env := range got {
			assert.Equal(t, uint64(i), env.Seq)
			if i < 5 {
				assert.Equal(t, uint16(0), env.Source)
			} else {
				assert.Equal(t, uint16(1), env.Source)
			}
			assert.Equal(t, types.EntityID(i%5), env.Payload.Entity)
		}
	}
}

func TestRetentionOutlivesConsumptionByTwoTicks(t *testing.T) {
	b := bus.New(zerolog.Nop())
	topic, err := bus.RegisterTopic[moveCmd](b, "move", types.DirectionInternal)
	require.NoError(t, err)
	require.NoError(t, topic.RegisterReader("r"))

	topic.Publish(0, moveCmd{Entity: 7})
	b.EndTick(0)

	_, err = topic.Read("r")
	require.NoError(t, err)

	// Consumed, but only one tick old: still retained.
	b.EndTick(1)
	assert.Equal(t, 1, b.Retained())

	// Two ticks old and consumed: reclaimed.
	b.EndTick(2)
	assert.Equal(t, 0, b.Retained())
}

func TestRetentionWaitsForSlowReaders(t *testing.T) {
	b := bus.New(zerolog.Nop())
	topic, err := bus.RegisterTopic[moveCmd](b, "move", types.DirectionInternal)
	require.NoError(t, err)
	require.NoError(t, topic.RegisterReader("fast"))
	require.NoError(t, topic.RegisterReader("slow"))

	topic.Publish(0, moveCmd{Entity: 7})
	b.EndTick(0)

	_, err = topic.Read("fast")
	require.NoError(t, err)

	for tick := types.Tick(1); tick < 10; tick++ {
		b.EndTick(tick)
	}
	// The slow reader has not consumed; the message survives well past the
	// two-tick floor.
	assert.Equal(t, 1, b.Retained())

	got, err := topic.Read("slow")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	b.EndTick(10)
	assert.Equal(t, 0, b.Retained())
}

func TestStalledReaderCannotPinMessagesPastTheCap(t *testing.T) {
	b := bus.New(zerolog.Nop(), bus.WithRetentionCap(4))
	topic, err := bus.RegisterTopic[moveCmd](b, "move", types.DirectionInternal)
	require.NoError(t, err)
	require.NoError(t, topic.RegisterReader("stalled"))

	topic.Publish(0, moveCmd{Entity: 1})
	b.EndTick(0)
	topic.Publish(0, moveCmd{Entity: 2})
	b.EndTick(1)

	// The stalled reader never reads. Inside the cap both messages are
	// retained on its behalf.
	b.EndTick(2)
	b.EndTick(3)
	assert.Equal(t, 2, b.Retained())

	// Tick 4 puts the first message past the cap; tick 5 the second.
	b.EndTick(4)
	assert.Equal(t, 1, b.Retained())
	b.EndTick(5)
	assert.Equal(t, 0, b.Retained())

	// The reader resumes at the oldest retained message: nothing is left,
	// and the gap is simply lost rather than fatal.
	got, err := topic.Read("stalled")
	require.NoError(t, err)
	assert.Empty(t, got)

	// Fresh traffic still reaches it.
	topic.Publish(0, moveCmd{Entity: 3})
	b.EndTick(6)
	got, err = topic.Read("stalled")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, types.EntityID(3), got[0].Payload.Entity)
}
