package component_test

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pkg.voidrun.dev/voidrun/simcore/component"
	"pkg.voidrun.dev/voidrun/simcore/types"
)

type Stamina struct {
	Current float64 `json:"current"`
	Max     float64 `json:"max"`
}

func (Stamina) Name() string { return "test.stamina" }

func TestMetadataRoundTripsValues(t *testing.T) {
	meta, err := component.NewComponentMetadata[Stamina]()
	require.NoError(t, err)
	assert.Equal(t, "test.stamina", meta.Name())

	bz, err := meta.Encode(Stamina{Current: 3, Max: 10})
	require.NoError(t, err)
	value, err := meta.Decode(bz)
	require.NoError(t, err)
	assert.Equal(t, Stamina{Current: 3, Max: 10}, value)
}

func TestDefaultValueIsEncodedByNew(t *testing.T) {
	meta, err := component.NewComponentMetadata[Stamina](
		component.WithDefault(Stamina{Current: 10, Max: 10}),
	)
	require.NoError(t, err)

	bz, err := meta.New()
	require.NoError(t, err)
	value, err := meta.Decode(bz)
	require.NoError(t, err)
	assert.Equal(t, Stamina{Current: 10, Max: 10}, value)
}

func TestIDCanOnlyBeSetOnce(t *testing.T) {
	meta, err := component.NewComponentMetadata[Stamina]()
	require.NoError(t, err)
	require.NoError(t, meta.SetID(4))
	require.NoError(t, meta.SetID(4), "setting the same id again is allowed")
	assert.Error(t, meta.SetID(5))
	assert.Equal(t, types.ComponentID(4), meta.ID())
}

type renamedStamina struct {
	Current float64 `json:"energy"`
	Max     float64 `json:"max"`
}

func (renamedStamina) Name() string { return "test.stamina" }

func TestSchemaValidationCatchesDrift(t *testing.T) {
	meta, err := component.NewComponentMetadata[Stamina]()
	require.NoError(t, err)
	require.NoError(t, meta.ValidateAgainstSchema(meta.GetSchema()))

	drifted, err := component.NewComponentMetadata[renamedStamina]()
	require.NoError(t, err)
	err = meta.ValidateAgainstSchema(drifted.GetSchema())
	require.Error(t, err)
	assert.True(t, eris.Is(eris.Cause(err), types.ErrComponentSchemaMismatch))
}
