package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"pkg.voidrun.dev/voidrun/simcore/types"
)

var (
	// ErrInvalidConfig is returned when the registered domains do not form a
	// valid schedule (duplicate names, unknown constraint targets, cyclic
	// constraints, zero cadence periods).
	ErrInvalidConfig = eris.New("invalid scheduler configuration")

	// ErrDomainNotFound is returned when triggering an unregistered domain.
	ErrDomainNotFound = eris.New("domain not found")

	// ErrCriticalDomainFailed is returned from RunTick when a domain marked
	// Critical returns an error, halting the tick loop.
	ErrCriticalDomainFailed = eris.New("critical domain pass failed")
)

// Scheduler owns domain registration and per-tick execution order. The order
// is fixed at Finalize time: a deterministic topological sort of the
// ordering constraints with registration order breaking ties. Domains on the
// same dependency level run concurrently; levels execute as sequential
// stages with a barrier between them.
type Scheduler struct {
	logger zerolog.Logger

	domains []*Domain
	byName  map[string]*Domain
	// order is the finalized topological order of all domains.
	order []*Domain
	// stages groups order by dependency level.
	stages    [][]*Domain
	finalized bool

	mu        sync.Mutex
	triggered map[string]bool
}

func New(logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		logger:    logger,
		byName:    map[string]*Domain{},
		triggered: map[string]bool{},
	}
}

// RegisterDomain adds a domain to the schedule. Registration order is
// significant: it is the deterministic tie-break between unconstrained
// domains and the domain component of the entity IDs the domain allocates.
// Registration is rejected after Finalize.
func (s *Scheduler) RegisterDomain(
	name string, policy CadencePolicy, pass Pass, opts ...DomainOption,
) (*Domain, error) {
	if s.finalized {
		return nil, eris.Wrap(ErrInvalidConfig, "cannot register domains after finalize")
	}
	if name == "" {
		return nil, eris.Wrap(ErrInvalidConfig, "domain name must not be empty")
	}
	if _, ok := s.byName[name]; ok {
		return nil, eris.Wrapf(ErrInvalidConfig, "duplicate domain %q", name)
	}
	if fp, ok := policy.(fixedPeriod); ok && fp.period == 0 {
		return nil, eris.Wrapf(ErrInvalidConfig, "domain %q has a zero cadence period", name)
	}
	if pass == nil {
		return nil, eris.Wrapf(ErrInvalidConfig, "domain %q has no pass function", name)
	}

	d := &Domain{
		name:   name,
		policy: policy,
		pass:   pass,
		index:  uint16(len(s.domains)),
	}
	for _, opt := range opts {
		opt(d)
	}
	s.domains = append(s.domains, d)
	s.byName[name] = d
	return d, nil
}

// Finalize validates the ordering constraints and fixes the execution order.
// After Finalize the schedule is immutable.
func (s *Scheduler) Finalize() error {
	if s.finalized {
		return nil
	}
	for _, d := range s.domains {
		for _, dep := range d.runAfter {
			if _, ok := s.byName[dep]; !ok {
				return eris.Wrapf(ErrInvalidConfig,
					"domain %q runs after unknown domain %q", d.name, dep)
			}
		}
	}

	order, err := s.topoSort()
	if err != nil {
		return err
	}
	s.order = order

	maxLevel := 0
	for _, d := range s.order {
		d.level = 0
		for _, dep := range d.runAfter {
			if lvl := s.byName[dep].level + 1; lvl > d.level {
				d.level = lvl
			}
		}
		if d.level > maxLevel {
			maxLevel = d.level
		}
	}
	s.stages = make([][]*Domain, maxLevel+1)
	for _, d := range s.order {
		s.stages[d.level] = append(s.stages[d.level], d)
	}

	s.finalized = true
	for i, stage := range s.stages {
		names := make([]string, 0, len(stage))
		for _, d := range stage {
			names = append(names, d.name)
		}
		s.logger.Debug().Int("stage", i).Strs("domains", names).Msg("scheduler stage finalized")
	}
	return nil
}

// topoSort is Kahn's algorithm with registration order as the tie-break, so
// the resulting order is identical on every run for the same registrations.
func (s *Scheduler) topoSort() ([]*Domain, error) {
	indegree := make(map[string]int, len(s.domains))
	dependents := make(map[string][]*Domain, len(s.domains))
	for _, d := range s.domains {
		indegree[d.name] = len(d.runAfter)
		for _, dep := range d.runAfter {
			dependents[dep] = append(dependents[dep], d)
		}
	}

	var ready []*Domain
	for _, d := range s.domains {
		if indegree[d.name] == 0 {
			ready = append(ready, d)
		}
	}

	order := make([]*Domain, 0, len(s.domains))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return ready[i].index < ready[j].index })
		d := ready[0]
		ready = ready[1:]
		order = append(order, d)
		for _, dep := range dependents[d.name] {
			indegree[dep.name]--
			if indegree[dep.name] == 0 {
				ready = append(ready, dep)
			}
		}
	}
	if len(order) != len(s.domains) {
		var cyclic []string
		for name, deg := range indegree {
			if deg > 0 {
				cyclic = append(cyclic, name)
			}
		}
		sort.Strings(cyclic)
		return nil, eris.Wrapf(ErrInvalidConfig, "cyclic ordering constraints among domains %v", cyclic)
	}
	return order, nil
}

// Trigger marks an event-triggered domain to fire on the next tick. Safe to
// call from any goroutine.
func (s *Scheduler) Trigger(name string) error {
	d, ok := s.byName[name]
	if !ok {
		return eris.Wrapf(ErrDomainNotFound, "%q", name)
	}
	if _, ok := d.policy.(eventTriggered); !ok {
		return eris.Wrapf(ErrInvalidConfig, "domain %q is not event-triggered", name)
	}
	s.mu.Lock()
	s.triggered[name] = true
	s.mu.Unlock()
	return nil
}

// Domains returns all registered domains in registration order.
func (s *Scheduler) Domains() []*Domain {
	return s.domains
}

// Domain returns a registered domain by name.
func (s *Scheduler) Domain(name string) (*Domain, bool) {
	d, ok := s.byName[name]
	return d, ok
}

// PlanTick returns the domains that fire on the given tick, in execution
// order, without consuming anything.
func (s *Scheduler) PlanTick(tick types.Tick) []*Domain {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firing []*Domain
	for _, d := range s.order {
		if d.policy.Fires(tick, s.triggered[d.name]) {
			firing = append(firing, d)
		}
	}
	return firing
}

// DomainReport records one domain pass's outcome for a tick.
type DomainReport struct {
	Name           string        `json:"name"`
	Duration       time.Duration `json:"duration"`
	Budget         time.Duration `json:"budget,omitempty"`
	BudgetExceeded bool          `json:"budget_exceeded,omitempty"`
	Skipped        bool          `json:"skipped,omitempty"`
	Err            error         `json:"-"`
}

// TickReport records the outcome of every domain that fired on a tick.
type TickReport struct {
	Tick    types.Tick     `json:"tick"`
	Reports []DomainReport `json:"reports"`
}

// RunTick executes every firing domain for the tick. Domains within a stage
// run concurrently; a barrier separates stages. A non-critical pass error is
// logged and reported, and the rest of the tick proceeds — its staged
// mutations are expected to be discarded by the caller. A critical pass
// error aborts the tick with ErrCriticalDomainFailed.
func (s *Scheduler) RunTick(ctx context.Context, tick types.Tick) (*TickReport, error) {
	if !s.finalized {
		return nil, eris.Wrap(ErrInvalidConfig, "scheduler has not been finalized")
	}

	s.mu.Lock()
	fired := make(map[string]bool, len(s.triggered))
	for _, d := range s.order {
		if d.policy.Fires(tick, s.triggered[d.name]) {
			fired[d.name] = true
			delete(s.triggered, d.name)
		}
	}
	s.mu.Unlock()

	report := &TickReport{Tick: tick}
	var criticalErr error
	for _, stage := range s.stages {
		var firing []*Domain
		for _, d := range stage {
			if fired[d.name] {
				firing = append(firing, d)
			}
		}
		if len(firing) == 0 {
			continue
		}

		reports := make([]DomainReport, len(firing))
		eg, _ := errgroup.WithContext(ctx)
		for i, d := range firing {
			i, d := i, d
			eg.Go(func() error {
				start := time.Now()
				err := d.pass(tick)
				elapsed := time.Since(start)
				reports[i] = DomainReport{
					Name:           d.name,
					Duration:       elapsed,
					Budget:         d.budget,
					BudgetExceeded: d.budget > 0 && elapsed > d.budget,
					Err:            err,
				}
				return nil
			})
		}
		_ = eg.Wait()

		for _, r := range reports {
			if r.BudgetExceeded {
				s.logger.Warn().
					Str("domain", r.Name).
					Dur("duration", r.Duration).
					Dur("budget", r.Budget).
					Uint64("tick", uint64(tick)).
					Msg("domain pass exceeded its budget")
			}
			if r.Err != nil {
				d := s.byName[r.Name]
				if d.critical {
					s.logger.Error().Err(r.Err).
						Str("domain", r.Name).
						Uint64("tick", uint64(tick)).
						Msg("critical domain pass failed")
					if criticalErr == nil {
						criticalErr = eris.Wrapf(ErrCriticalDomainFailed, "domain %q: %v", r.Name, r.Err)
					}
				} else {
					s.logger.Warn().Err(r.Err).
						Str("domain", r.Name).
						Uint64("tick", uint64(tick)).
						Msg("domain pass failed; skipping its mutations this tick")
				}
			}
			report.Reports = append(report.Reports, r)
		}
		if criticalErr != nil {
			return report, criticalErr
		}
	}
	return report, nil
}
