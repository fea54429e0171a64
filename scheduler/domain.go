package scheduler

import (
	"time"

	"pkg.voidrun.dev/voidrun/simcore/types"
)

// Pass is a single execution of a domain's simulation logic for one tick.
type Pass func(tick types.Tick) error

// Domain is a named unit of simulation logic with its own cadence. Domains
// are the scheduling granularity: ordering constraints, budgets and failure
// policy all attach here.
type Domain struct {
	name     string
	policy   CadencePolicy
	pass     Pass
	runAfter []string
	critical bool
	budget   time.Duration

	// index is the declaration order, used as the deterministic tie-break
	// for topological ordering and as the domain component of entity IDs.
	index uint16
	// level is the dependency depth, assigned by Finalize. Domains on the
	// same level have no ordering constraints between them and may run
	// concurrently.
	level int
}

func (d *Domain) Name() string          { return d.name }
func (d *Domain) Policy() CadencePolicy { return d.policy }
func (d *Domain) Index() uint16         { return d.index }
func (d *Domain) Critical() bool        { return d.critical }

// DomainOption configures a domain at registration time.
type DomainOption func(*Domain)

// RunAfter constrains the domain to execute after the named domains on any
// tick where both fire. Constraints only order execution; they do not force
// the named domains to fire.
func RunAfter(names ...string) DomainOption {
	return func(d *Domain) {
		d.runAfter = append(d.runAfter, names...)
	}
}

// Critical marks a domain whose pass failure halts the tick loop instead of
// being skipped.
func Critical() DomainOption {
	return func(d *Domain) {
		d.critical = true
	}
}

// WithBudget sets a soft wall-clock budget for the domain's pass. Exceeding
// it is reported, never enforced; determinism forbids cutting a pass short.
func WithBudget(budget time.Duration) DomainOption {
	return func(d *Domain) {
		d.budget = budget
	}
}
