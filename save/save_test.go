package save_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pkg.voidrun.dev/voidrun/simcore/component"
	"pkg.voidrun.dev/voidrun/simcore/gamestate"
	"pkg.voidrun.dev/voidrun/simcore/save"
	"pkg.voidrun.dev/voidrun/simcore/types"
)

type Energy struct {
	Amount int `json:"amount"`
}

func (Energy) Name() string { return "test.energy" }

type Label struct {
	Tag string `json:"tag"`
}

func (Label) Name() string { return "test.label" }

// driftedEnergy shares Energy's name but not its shape, standing in for a
// component struct that changed between the save and the load.
type driftedEnergy struct {
	Amount int  `json:"amount"`
	Shield bool `json:"shield"`
}

func (driftedEnergy) Name() string { return "test.energy" }

func register[T types.Component](t *testing.T, state *gamestate.State) {
	meta, err := component.NewComponentMetadata[T]()
	require.NoError(t, err)
	require.NoError(t, state.RegisterComponent(meta))
}

// newState opens an uninitialized state on fresh storage. registerAll
// controls whether Label is registered alongside Energy.
func newState(t *testing.T, registerAll bool) (*gamestate.State, *gamestate.DiffBuffer) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	state, err := gamestate.New(gamestate.NewRedisPrimitiveStorage(client))
	require.NoError(t, err)
	register[Energy](t, state)
	if registerAll {
		register[Label](t, state)
	}
	alloc, err := state.RegisterDomainSequence("physics", 0)
	require.NoError(t, err)
	return state, gamestate.NewDiffBuffer("physics", alloc)
}

// populate initializes the state and commits a couple of entities.
func populate(t *testing.T, state *gamestate.State, buffer *gamestate.DiffBuffer) {
	ctx := context.Background()
	require.NoError(t, state.Init(ctx, 42))

	energyMeta, err := state.ComponentByName(Energy{}.Name())
	require.NoError(t, err)
	labelMeta, err := state.ComponentByName(Label{}.Name())
	require.NoError(t, err)

	_, err = buffer.Spawn(
		[]types.ComponentMetadata{energyMeta, labelMeta},
		[]any{Energy{Amount: 7}, Label{Tag: "alpha"}},
	)
	require.NoError(t, err)
	_, err = buffer.Spawn([]types.ComponentMetadata{energyMeta}, []any{Energy{Amount: 9}})
	require.NoError(t, err)

	logger := zerolog.Nop()
	_, err = state.ECB().ApplyDiffs(&logger, buffer)
	require.NoError(t, err)
	require.NoError(t, state.ECB().FinalizeTick(ctx, 17))
	state.Committed().Invalidate()
}

func TestSaveRoundTripIsBitExact(t *testing.T) {
	ctx := context.Background()
	source, buffer := newState(t, true)
	populate(t, source, buffer)

	data, err := save.Encode(ctx, source)
	require.NoError(t, err)

	restored, _ := newState(t, true)
	require.NoError(t, save.Load(ctx, restored, data))

	again, err := save.Encode(ctx, restored)
	require.NoError(t, err)
	assert.Equal(t, data, again, "a loaded save must re-encode to the identical bytes")

	wantSum, err := source.Committed().Checksum()
	require.NoError(t, err)
	gotSum, err := restored.Committed().Checksum()
	require.NoError(t, err)
	assert.Equal(t, wantSum, gotSum)

	tick, err := restored.ECB().GetTickNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.Tick(1), tick)
	cursor, err := restored.RNGCursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(17), cursor)
	assert.Equal(t, source.Lineage(), restored.Lineage())
}

func TestRestoredStateKeepsAllocatingFreshIDs(t *testing.T) {
	ctx := context.Background()
	source, buffer := newState(t, true)
	populate(t, source, buffer)
	data, err := save.Encode(ctx, source)
	require.NoError(t, err)

	restored, restoredBuffer := newState(t, true)
	require.NoError(t, save.Load(ctx, restored, data))

	energyMeta, err := restored.ComponentByName(Energy{}.Name())
	require.NoError(t, err)
	id, err := restoredBuffer.Spawn([]types.ComponentMetadata{energyMeta}, []any{Energy{Amount: 1}})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), id.Sequence(), "restored allocator must continue past saved IDs")
}

func TestDecodeFailsClosed(t *testing.T) {
	_, err := save.Decode([]byte(`{not json`))
	assert.True(t, eris.Is(eris.Cause(err), save.ErrDecode))

	_, err = save.Decode([]byte(`{"version":99,"lineage":"b6a07ef0-0c5a-4b52-b37a-6a89f0a1f3a1"}`))
	assert.True(t, eris.Is(eris.Cause(err), save.ErrDecode))

	_, err = save.Decode([]byte(`{"version":1,"lineage":""}`))
	assert.True(t, eris.Is(eris.Cause(err), save.ErrDecode))

	_, err = save.Decode([]byte(`{"version":1,"lineage":"not-a-uuid"}`))
	assert.True(t, eris.Is(eris.Cause(err), save.ErrDecode))
}

func TestLoadRejectsSchemaDrift(t *testing.T) {
	ctx := context.Background()
	source, buffer := newState(t, true)
	populate(t, source, buffer)
	data, err := save.Encode(ctx, source)
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	drifted, err := gamestate.New(gamestate.NewRedisPrimitiveStorage(client))
	require.NoError(t, err)
	register[driftedEnergy](t, drifted)
	register[Label](t, drifted)
	_, err = drifted.RegisterDomainSequence("physics", 0)
	require.NoError(t, err)

	err = save.Load(ctx, drifted, data)
	require.Error(t, err)
	assert.True(t, eris.Is(eris.Cause(err), save.ErrDecode))
}

func TestLoadRejectsUnregisteredComponent(t *testing.T) {
	ctx := context.Background()
	source, buffer := newState(t, true)
	populate(t, source, buffer)
	data, err := save.Encode(ctx, source)
	require.NoError(t, err)

	partial, _ := newState(t, false) // Label never registered
	err = save.Load(ctx, partial, data)
	require.Error(t, err)
	assert.True(t, eris.Is(eris.Cause(err), save.ErrDecode))
}

func TestInputStreamOrdering(t *testing.T) {
	var stream save.InputStream
	require.NoError(t, stream.Append(save.InputRecord{Tick: 1, Topic: "move", Payload: json.RawMessage(`{}`)}))
	require.NoError(t, stream.Append(save.InputRecord{Tick: 1, Topic: "move", Payload: json.RawMessage(`{}`)}))
	require.NoError(t, stream.Append(save.InputRecord{Tick: 3, Topic: "move", Payload: json.RawMessage(`{}`)}))

	err := stream.Append(save.InputRecord{Tick: 2, Topic: "move", Payload: json.RawMessage(`{}`)})
	assert.True(t, eris.Is(eris.Cause(err), save.ErrInputOrder))

	assert.Len(t, stream.ForTick(1), 2)
	assert.Empty(t, stream.ForTick(2))
	assert.Len(t, stream.ForTick(3), 1)
}

func TestInputStreamRoundTrip(t *testing.T) {
	var stream save.InputStream
	require.NoError(t, stream.Append(save.InputRecord{Tick: 5, Entity: 9, Topic: "fire", Payload: json.RawMessage(`{"x":1}`)}))

	data, err := save.EncodeInputs(&stream)
	require.NoError(t, err)
	decoded, err := save.DecodeInputs(data)
	require.NoError(t, err)
	assert.Equal(t, stream.Records, decoded.Records)

	_, err = save.DecodeInputs([]byte(`{"records":[{"tick":5,"topic":"a","payload":{}},{"tick":4,"topic":"a","payload":{}}]}`))
	assert.True(t, eris.Is(eris.Cause(err), save.ErrDecode))
}
