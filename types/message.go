package types

// Direction declares which way a message flows across the simulation boundary.
type Direction int

const (
	// DirectionInternal messages travel between cadence domains inside the
	// simulation.
	DirectionInternal Direction = iota
	// DirectionSimToPresentation messages carry high-level intents out to the
	// presentation layer ("play animation", "attach visual prefab").
	DirectionSimToPresentation
	// DirectionPresentationToSim messages report externally observed facts
	// back into the simulation ("player input received", "transform settled").
	DirectionPresentationToSim
)

func (d Direction) String() string {
	switch d {
	case DirectionInternal:
		return "internal"
	case DirectionSimToPresentation:
		return "sim_to_presentation"
	case DirectionPresentationToSim:
		return "presentation_to_sim"
	}
	return "unknown"
}

// Message is the interface a payload must implement to travel on the bus.
// Exactly one message type should represent one semantic cross-domain action,
// and consumers must treat repeated delivery of the same logical message as
// idempotent.
type Message interface {
	// Name returns the canonical name of the message type.
	Name() string
}
