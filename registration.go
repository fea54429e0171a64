package simcore

import (
	"github.com/rotisserie/eris"

	"pkg.voidrun.dev/voidrun/simcore/bus"
	"pkg.voidrun.dev/voidrun/simcore/component"
	"pkg.voidrun.dev/voidrun/simcore/gamestate"
	"pkg.voidrun.dev/voidrun/simcore/scheduler"
	"pkg.voidrun.dev/voidrun/simcore/types"
	"pkg.voidrun.dev/voidrun/simcore/worldstage"
)

// RegisterComponent registers a component type with the world's state store.
// Must be called before Startup.
func RegisterComponent[T types.Component](w *World, opts ...component.Option[T]) error {
	if w.worldStage.Current() != worldstage.Init {
		return eris.New("components must be registered before startup")
	}
	compMetadata, err := component.NewComponentMetadata[T](opts...)
	if err != nil {
		return err
	}
	return w.state.RegisterComponent(compMetadata)
}

// RegisterDomain registers a cadence domain and its pass. The configured
// cadence table can override a fixed period per domain name, so operators can
// retune cadences without a code change. Declaration order is the
// deterministic tie-break at the apply point and within scheduler stages.
func (w *World) RegisterDomain(
	name string, policy scheduler.CadencePolicy, pass DomainPass, opts ...scheduler.DomainOption,
) error {
	if w.worldStage.Current() != worldstage.Init {
		return eris.New("domains must be registered before startup")
	}
	if override, ok := w.config.CadenceTable[name]; ok {
		policy = scheduler.FixedPeriod(override)
	}

	allocator, err := w.state.RegisterDomainSequence(name, uint16(len(w.domains)))
	if err != nil {
		return err
	}
	dr := &domainRuntime{
		buffer: gamestate.NewDiffBuffer(name, allocator),
		pass:   pass,
	}

	domain, err := w.scheduler.RegisterDomain(name, policy, w.wrapPass(dr), opts...)
	if err != nil {
		return err
	}
	dr.domain = domain
	w.domains = append(w.domains, dr)
	w.domainByName[name] = dr
	return nil
}

// wrapPass adapts a DomainPass to the scheduler, pinning the RNG pass guard
// around it and converting a failure (error or panic) into a clean forfeit of
// the domain's staged mutations for the tick.
func (w *World) wrapPass(dr *domainRuntime) scheduler.Pass {
	return func(tick types.Tick) (err error) {
		w.rand.BeginPass()
		defer w.rand.EndPass()
		defer func() {
			if r := recover(); r != nil {
				err = eris.Errorf("domain %q panicked: %v", dr.buffer.Domain(), r)
			}
			if err != nil {
				dr.buffer.Reset()
			}
		}()

		wCtx := WorldContext{
			world:  w,
			tick:   tick,
			source: dr.domain.Index(),
			buffer: dr.buffer,
			logger: w.logger.With().
				Str("domain", dr.buffer.Domain()).
				Uint64("tick", uint64(tick)).
				Logger(),
		}
		return dr.pass(wCtx)
	}
}

// RegisterTopic registers a typed message topic. Must be called before
// Startup so replayed inputs always find their topics.
func RegisterTopic[T any](w *World, name string, direction types.Direction) (*bus.Topic[T], error) {
	if w.worldStage.Current() != worldstage.Init {
		return nil, eris.New("topics must be registered before startup")
	}
	return bus.RegisterTopic[T](w.bus, name, direction)
}

// BindTopicToDomain wakes the named event-triggered domain on the tick after
// any message lands on the topic. A topic wakes at most one domain; fan-out
// belongs in the domain's pass, not the wiring.
func (w *World) BindTopicToDomain(topic, domain string) error {
	if w.worldStage.Current() != worldstage.Init {
		return eris.New("topic bindings must be made before startup")
	}
	if _, ok := w.domainByName[domain]; !ok {
		return eris.Wrap(scheduler.ErrDomainNotFound, domain)
	}
	if bound, ok := w.topicDomains[topic]; ok {
		return eris.Errorf("topic %q is already bound to domain %q", topic, bound)
	}
	w.topicDomains[topic] = domain
	return nil
}

// Trigger requests that the named event-triggered domain fire on the next
// tick.
func (w *World) Trigger(domain string) error {
	return w.scheduler.Trigger(domain)
}
