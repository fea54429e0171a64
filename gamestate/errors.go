package gamestate

import "github.com/rotisserie/eris"

var (
	ErrArchetypeNotFound                 = eris.New("archetype for components not found")
	ErrEntityDoesNotExist                = eris.New("entity does not exist")
	ErrComponentAlreadyOnEntity          = eris.New("component already on entity")
	ErrComponentNotOnEntity              = eris.New("component not on entity")
	ErrComponentNotRegistered            = eris.New("component not registered")
	ErrEntityMustHaveAtLeastOneComponent = eris.New("entities must have at least 1 component")
	ErrDomainSequenceMissing             = eris.New("domain sequence has not been registered")
	ErrInvalidComponentValue             = eris.New("component value failed validation")
)
