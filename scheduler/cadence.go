package scheduler

import (
	"fmt"

	"pkg.voidrun.dev/voidrun/simcore/types"
)

// CadencePolicy decides on which ticks a domain runs.
type CadencePolicy interface {
	// Fires reports whether a domain with this policy runs on the given tick.
	// triggered is true if the domain was explicitly triggered since its last
	// pass.
	Fires(tick types.Tick, triggered bool) bool
	fmt.Stringer
}

type fixedPeriod struct {
	period uint64
}

// FixedPeriod runs a domain once every n ticks, starting at tick 0. A fast
// combat domain uses FixedPeriod(1); a slow economy domain might use
// FixedPeriod(100).
func FixedPeriod(n uint64) CadencePolicy {
	return fixedPeriod{period: n}
}

func (p fixedPeriod) Fires(tick types.Tick, _ bool) bool {
	return uint64(tick)%p.period == 0
}

func (p fixedPeriod) String() string {
	return fmt.Sprintf("fixed_period(%d)", p.period)
}

type eventTriggered struct{}

// EventTriggered runs a domain only on ticks where it has been explicitly
// triggered, typically because a message arrived for it.
func EventTriggered() CadencePolicy {
	return eventTriggered{}
}

func (eventTriggered) Fires(_ types.Tick, triggered bool) bool {
	return triggered
}

func (eventTriggered) String() string {
	return "event_triggered"
}
