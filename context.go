package simcore

import (
	"github.com/rs/zerolog"

	"pkg.voidrun.dev/voidrun/simcore/gamestate"
	"pkg.voidrun.dev/voidrun/simcore/rng"
	"pkg.voidrun.dev/voidrun/simcore/types"
)

// WorldContext is the handle a domain pass works through for one tick. Reads
// come from the committed view of the previous apply point; writes stage into
// the domain's diff buffer and become visible only after this tick's apply
// point. The context is valid only for the duration of the pass.
type WorldContext struct {
	world  *World
	tick   types.Tick
	source uint16
	buffer *gamestate.DiffBuffer
	logger zerolog.Logger
}

// Tick returns the tick currently executing.
func (ctx WorldContext) Tick() types.Tick { return ctx.tick }

// Logger returns a logger annotated with the domain and tick.
func (ctx WorldContext) Logger() *zerolog.Logger { return &ctx.logger }

// Rand returns the seeded random service. Draws advance the single shared
// stream; a domain that draws must be ordered against every other drawing
// domain or runs stop being reproducible.
func (ctx WorldContext) Rand() *rng.Service { return ctx.world.rand }

// Committed returns the read view of state as of the last apply point.
func (ctx WorldContext) Committed() gamestate.Reader { return ctx.world.state.Committed() }

// Buffer returns the domain's staging buffer for this tick.
func (ctx WorldContext) Buffer() *gamestate.DiffBuffer { return ctx.buffer }

// Source returns the publisher slot for messages this domain sends.
func (ctx WorldContext) Source() uint16 { return ctx.source }
