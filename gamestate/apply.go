package gamestate

import (
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"pkg.voidrun.dev/voidrun/simcore/types"
)

// DroppedMutation describes a staged mutation that could not be applied, most
// often because its target entity was despawned earlier in the same merge.
// Dropped mutations are diagnostics, never fatal: the rest of the batch still
// commits.
type DroppedMutation struct {
	Domain    string         `json:"domain"`
	Kind      string         `json:"kind"`
	Entity    types.EntityID `json:"entity"`
	Component string         `json:"component,omitempty"`
	Reason    string         `json:"reason"`
}

// Conflict records two domains writing the same (entity, component) pair in
// one tick. The later domain in declaration order wins.
type Conflict struct {
	Entity      types.EntityID `json:"entity"`
	Component   string         `json:"component"`
	LosingWrite string         `json:"losingWrite"`
	Winner      string         `json:"winner"`
}

// ApplyReport summarizes one apply point.
type ApplyReport struct {
	Dropped   []DroppedMutation
	Conflicts []Conflict
	Spawned   []types.EntityID
	Despawned []types.EntityID
}

// ApplyDiffs merges the given diff buffers into the command buffer, in the
// order given. The caller passes buffers in domain declaration order, which
// makes the merge deterministic: conflicting writes to the same
// (entity, component) pair resolve to the last writer in that order.
//
// Individual mutations that cannot apply (for example, a write targeting an
// entity despawned by an earlier buffer) are dropped with a diagnostic; the
// rest of the merge proceeds. Only storage-level failures abort the apply.
func (m *EntityCommandBuffer) ApplyDiffs(logger *zerolog.Logger, buffers ...*DiffBuffer) (*ApplyReport, error) {
	report := &ApplyReport{}
	lastWriter := map[compKey]string{}

	for _, buffer := range buffers {
		for i := range buffer.ops {
			op := &buffer.ops[i]
			err := m.applyMutation(op, buffer.domain, lastWriter, report)
			if err == nil {
				continue
			}
			if isDroppableApplyError(err) {
				report.Dropped = append(report.Dropped, DroppedMutation{
					Domain:    buffer.domain,
					Kind:      op.kind.String(),
					Entity:    op.entity,
					Component: componentNameOf(op.comp),
					Reason:    eris.Cause(err).Error(),
				})
				logger.Warn().
					Str("domain", buffer.domain).
					Str("mutation", op.kind.String()).
					Uint64("entity", uint64(op.entity)).
					Str("reason", eris.Cause(err).Error()).
					Msg("dropped mutation")
				continue
			}
			return nil, err
		}
		buffer.ops = buffer.ops[:0]
	}

	for _, conflict := range report.Conflicts {
		logger.Debug().
			Str("losing_write", conflict.LosingWrite).
			Str("winner", conflict.Winner).
			Uint64("entity", uint64(conflict.Entity)).
			Str("component", conflict.Component).
			Msg("write conflict resolved by domain order")
	}

	return report, nil
}

func (m *EntityCommandBuffer) applyMutation(
	op *mutation, domain string, lastWriter map[compKey]string, report *ApplyReport,
) error {
	switch op.kind {
	case mutationSpawn:
		if err := m.createEntity(op.entity, op.comps, op.values); err != nil {
			return err
		}
		report.Spawned = append(report.Spawned, op.entity)
		for _, comp := range op.comps {
			lastWriter[compKey{comp.ID(), op.entity}] = domain
		}
		return nil

	case mutationDespawn:
		if err := m.removeEntity(op.entity); err != nil {
			return err
		}
		report.Despawned = append(report.Despawned, op.entity)
		return nil

	case mutationSet:
		key := compKey{op.comp.ID(), op.entity}
		if prev, ok := lastWriter[key]; ok && prev != domain {
			report.Conflicts = append(report.Conflicts, Conflict{
				Entity:      op.entity,
				Component:   op.comp.Name(),
				LosingWrite: prev,
				Winner:      domain,
			})
		}
		if err := m.setComponent(op.comp, op.entity, op.value); err != nil {
			return err
		}
		lastWriter[key] = domain
		return nil

	case mutationAddComponent:
		if err := m.addComponent(op.comp, op.entity, op.value); err != nil {
			return err
		}
		lastWriter[compKey{op.comp.ID(), op.entity}] = domain
		return nil

	case mutationRemoveComponent:
		return m.removeComponent(op.comp, op.entity)
	}
	return eris.Errorf("unknown mutation kind %d", op.kind)
}

// isDroppableApplyError reports whether the error invalidates only this
// mutation rather than the whole apply.
func isDroppableApplyError(err error) bool {
	cause := eris.Cause(err)
	switch {
	case eris.Is(cause, ErrEntityDoesNotExist),
		eris.Is(cause, ErrComponentNotOnEntity),
		eris.Is(cause, ErrComponentAlreadyOnEntity),
		eris.Is(cause, ErrEntityMustHaveAtLeastOneComponent):
		return true
	}
	return false
}

func componentNameOf(comp types.ComponentMetadata) string {
	if comp == nil {
		return ""
	}
	return comp.Name()
}
