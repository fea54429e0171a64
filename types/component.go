package types

import (
	"github.com/invopop/jsonschema"
	"github.com/rotisserie/eris"
	"github.com/wI2L/jsondiff"
)

// ComponentID is the engine-assigned numeric ID of a registered component type.
type ComponentID int

// ComponentName is the user-declared name of a component type.
type ComponentName = string

// StorageClass describes how a component type is accessed, not how it is
// stored in memory. Hot components are iterated on every fast-cadence pass;
// sparse components are attached and detached rarely.
type StorageClass int

const (
	StorageClassHot StorageClass = iota
	StorageClassSparse
)

var ErrComponentSchemaMismatch = eris.New("component schema does not match the stored schema")

// Component is the interface a user-defined struct must implement to be
// attached to entities.
type Component interface {
	// Name returns the canonical name of the component type.
	Name() string
}

// ComponentMetadata wraps a user-defined Component struct with the
// functionality the engine needs internally: a stable numeric ID, a JSON
// schema for save compatibility checks, and an encoder/decoder pair.
type ComponentMetadata interface {
	// SetID assigns the engine ID of this component type. It may only be set once.
	SetID(ComponentID) error
	// ID returns the engine ID of this component type.
	ID() ComponentID
	// New returns the encoded bytes of the zero (or configured default) value.
	New() ([]byte, error)
	Encode(any) ([]byte, error)
	Decode([]byte) (any, error)
	GetSchema() []byte
	// StorageClass reports the declared access pattern for this component type.
	StorageClass() StorageClass
	// ValidateAgainstSchema returns ErrComponentSchemaMismatch if the given
	// stored schema is not equivalent to this component's current schema.
	ValidateAgainstSchema(storedSchema []byte) error

	Component
}

// SerializeComponentSchema reflects the JSON schema for a component type.
func SerializeComponentSchema(component Component) ([]byte, error) {
	schema, err := jsonschema.Reflect(component).MarshalJSON()
	if err != nil {
		return nil, eris.Wrap(err, "component must be json serializable")
	}
	return schema, nil
}

// IsSchemaValid reports whether two serialized JSON schemas are equivalent.
func IsSchemaValid(schema1 []byte, schema2 []byte) (bool, error) {
	patch, err := jsondiff.CompareJSON(schema1, schema2)
	if err != nil {
		return false, eris.Wrap(err, "")
	}
	return patch.String() == "", nil
}

// ComponentInfo is a human-readable summary of a registered component type.
type ComponentInfo struct {
	ID   ComponentID `json:"id"`
	Name string      `json:"name"`
}

// ConvertComponentMetadatasToComponents casts a slice of ComponentMetadata to
// a slice of Component.
func ConvertComponentMetadatasToComponents(comps []ComponentMetadata) []Component {
	ret := make([]Component, len(comps))
	for i, comp := range comps {
		ret[i] = comp
	}
	return ret
}
