package simcore

import (
	"context"

	"github.com/rotisserie/eris"

	"pkg.voidrun.dev/voidrun/simcore/combat"
	"pkg.voidrun.dev/voidrun/simcore/filter"
	"pkg.voidrun.dev/voidrun/simcore/gamestate"
	"pkg.voidrun.dev/voidrun/simcore/receipt"
	"pkg.voidrun.dev/voidrun/simcore/types"
)

// doTick runs one complete tick: the scheduled domain passes, the single
// apply point, message sealing, and post-apply bookkeeping (combat history,
// receipts, checksums). Nothing a pass staged is visible before the apply
// point; nothing published is readable before the seal.
func (w *World) doTick(ctx context.Context) error {
	tick := w.currentTick

	report, err := w.scheduler.RunTick(ctx, tick)
	if err != nil {
		// A critical failure voids the whole tick. Staged work from the
		// passes that did run must not leak into a later tick.
		for _, dr := range w.domains {
			dr.buffer.Reset()
		}
		return err
	}

	// A failed non-critical pass forfeits its mutations for the tick; the
	// pass wrapper already reset its buffer. Buffers merge in declaration
	// order so conflicting writes resolve the same way on every run.
	buffers := make([]*gamestate.DiffBuffer, 0, len(w.domains))
	for _, dr := range w.domains {
		buffers = append(buffers, dr.buffer)
	}
	applyReport, err := w.state.ECB().ApplyDiffs(&w.logger, buffers...)
	if err != nil {
		return eris.Wrapf(err, "apply point failed on tick %d", tick)
	}
	if err := w.state.ECB().FinalizeTick(ctx, w.rand.Cursor()); err != nil {
		return eris.Wrapf(err, "commit failed on tick %d", tick)
	}
	w.state.Committed().Invalidate()

	// Teardown is announced, never called back into: interested domains
	// read this topic on a later tick and release their references then.
	for _, id := range applyReport.Despawned {
		w.despawnTopic.Publish(applySource, EntityDespawned{Entity: id, Tick: tick})
	}

	sealed := w.bus.EndTick(tick)
	for topic, n := range sealed {
		if n == 0 {
			continue
		}
		if domain, ok := w.topicDomains[topic]; ok {
			if err := w.scheduler.Trigger(domain); err != nil {
				return err
			}
		}
	}

	w.currentTick = tick + 1

	// History writes happen strictly after the apply point, so a rewind to
	// this tick sees exactly what a pass on the next tick would read.
	if err := w.recordCombatHistory(tick); err != nil {
		return err
	}

	var checksum uint64
	if w.config.DebugChecks {
		checksum, err = w.state.Committed().Checksum()
		if err != nil {
			return err
		}
		if err := w.state.StoreChecksum(ctx, checksum); err != nil {
			return err
		}
	}

	w.receipts.Set(receipt.Receipt{
		Tick:      tick,
		Domains:   report.Reports,
		Dropped:   applyReport.Dropped,
		Conflicts: applyReport.Conflicts,
		Spawned:   applyReport.Spawned,
		Despawned: applyReport.Despawned,
		Checksum:  checksum,
	})
	return nil
}

// combatWiring gates the combat history recorder. Resolution is lazy: a
// world that never registers the combat components simply records no history.
type combatWiring struct {
	resolved bool
	active   bool
}

func (w *World) resolveCombatWiring() {
	w.combat.resolved = true
	for _, name := range []types.ComponentName{
		Position{}.Name(), Facing{}.Name(),
		combat.Stance{}.Name(), combat.Weapon{}.Name(), combat.HitboxSet{}.Name(),
	} {
		if _, err := w.state.ComponentByName(name); err != nil {
			return
		}
	}
	w.combat.active = true
}

// recordCombatHistory snapshots every fully equipped combatant into the lag
// compensation ring for the just-committed tick.
func (w *World) recordCombatHistory(tick types.Tick) error {
	if !w.combat.resolved {
		w.resolveCombatWiring()
	}
	if !w.combat.active {
		return nil
	}

	committed := w.state.Committed()
	ids, err := committed.Query(filter.Contains(
		Position{}, Facing{}, combat.Stance{}, combat.Weapon{}, combat.HitboxSet{},
	))
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	combatants := make([]combat.Combatant, 0, len(ids))
	for _, id := range ids {
		c := combat.Combatant{ID: id}
		pos, err := committed.GetComponentForEntity(Position{}, id)
		if err != nil {
			return err
		}
		c.Position = pos.(Position).Value
		facing, err := committed.GetComponentForEntity(Facing{}, id)
		if err != nil {
			return err
		}
		c.Facing = facing.(Facing).Value
		stance, err := committed.GetComponentForEntity(combat.Stance{}, id)
		if err != nil {
			return err
		}
		c.Stance = stance.(combat.Stance)
		weapon, err := committed.GetComponentForEntity(combat.Weapon{}, id)
		if err != nil {
			return err
		}
		c.Weapon = weapon.(combat.Weapon)
		hitboxes, err := committed.GetComponentForEntity(combat.HitboxSet{}, id)
		if err != nil {
			return err
		}
		c.Hitboxes = hitboxes.(combat.HitboxSet)
		combatants = append(combatants, c)
	}
	w.reconciler.RecordTick(tick, combatants)
	return nil
}
