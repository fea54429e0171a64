package component

import (
	"reflect"

	"github.com/invopop/jsonschema"
	"github.com/rotisserie/eris"

	"pkg.voidrun.dev/voidrun/simcore/codec"
	"pkg.voidrun.dev/voidrun/simcore/types"
)

// Interface guard
var _ types.ComponentMetadata = (*componentMetadata[types.Component])(nil)

// Option augments the creation of a component type.
type Option[T types.Component] func(c *componentMetadata[T])

// WithDefault sets the value new entities receive when the component is
// attached without an explicit value.
func WithDefault[T types.Component](defaultVal T) Option[T] {
	return func(c *componentMetadata[T]) {
		c.defaultVal = defaultVal
	}
}

// WithStorageClass declares the access pattern of the component type. Hot is
// the default.
func WithStorageClass[T types.Component](class types.StorageClass) Option[T] {
	return func(c *componentMetadata[T]) {
		c.storageClass = class
	}
}

// componentMetadata represents a registered component type. It is used to
// identify a component when getting or setting the component of an entity.
type componentMetadata[T types.Component] struct {
	isIDSet      bool
	id           types.ComponentID
	compType     reflect.Type
	name         string
	schema       []byte
	storageClass types.StorageClass
	defaultVal   types.Component
}

// NewComponentMetadata creates the metadata for a new component type.
func NewComponentMetadata[T types.Component](opts ...Option[T]) (types.ComponentMetadata, error) {
	var t T
	compType := reflect.TypeOf(t)

	schema, err := jsonschema.ReflectFromType(compType).MarshalJSON()
	if err != nil {
		return nil, eris.Wrap(err, "component must be json serializable")
	}

	compMetadata := &componentMetadata[T]{
		compType:     compType,
		name:         t.Name(),
		schema:       schema,
		storageClass: types.StorageClassHot,
	}
	for _, opt := range opts {
		opt(compMetadata)
	}

	return compMetadata, nil
}

// SetID sets this component type's ID. It must be unique across the world object.
func (c *componentMetadata[T]) SetID(id types.ComponentID) error {
	if c.isIDSet {
		// Components are only initialized once in a real game, but tests often
		// reuse the same component across multiple worlds. Re-initialization is
		// allowed as long as the ID does not change.
		if id == c.id {
			return nil
		}
		return eris.Errorf("id for component %q is already set to %v, cannot change to %v", c.name, c.id, id)
	}
	c.id = id
	c.isIDSet = true
	return nil
}

func (c *componentMetadata[T]) String() string {
	return c.name
}

// Name returns the component type name.
func (c *componentMetadata[T]) Name() string {
	return c.name
}

// ID returns the component type id.
func (c *componentMetadata[T]) ID() types.ComponentID {
	return c.id
}

func (c *componentMetadata[T]) StorageClass() types.StorageClass {
	return c.storageClass
}

func (c *componentMetadata[T]) GetSchema() []byte {
	return c.schema
}

// New returns the encoded bytes of the default value for this component type.
func (c *componentMetadata[T]) New() ([]byte, error) {
	if c.defaultVal != nil {
		return codec.Encode(c.defaultVal)
	}
	var t T
	return codec.Encode(t)
}

func (c *componentMetadata[T]) Encode(v any) ([]byte, error) {
	return codec.Encode(v)
}

func (c *componentMetadata[T]) Decode(bz []byte) (any, error) {
	return codec.Decode[T](bz)
}

// ValidateAgainstSchema returns types.ErrComponentSchemaMismatch if the stored
// schema is not equivalent to this component's current schema.
func (c *componentMetadata[T]) ValidateAgainstSchema(storedSchema []byte) error {
	valid, err := types.IsSchemaValid(c.schema, storedSchema)
	if err != nil {
		return err
	}
	if !valid {
		return eris.Wrap(types.ErrComponentSchemaMismatch, c.name)
	}
	return nil
}
