package lagcomp

import (
	"sort"

	"github.com/rs/zerolog"
	"pkg.voidrun.dev/voidrun/simcore/combat"
	"pkg.voidrun.dev/voidrun/simcore/types"
)

// Request is a hit query anchored to the client's perceived time. OriginTick
// is the tick the client saw when it fired; PredictedTick is the tick at
// which the client optimistically displayed the outcome; PredictedHits is
// the client's optimistic claim, to be confirmed or denied against the
// authoritative resolution.
type Request struct {
	OriginTick    types.Tick
	PredictedTick types.Tick
	Projectiles   []combat.Projectile
	PredictedHits []combat.RangedHit
}

// Resolution is the authoritative answer to a Request. Compensated is false
// when the origin tick fell outside the history ring, in which case the
// query was resolved against current state — a degraded but never wrong
// answer. Confirmed and Denied partition the client's predicted hits; the
// presentation layer applies Denied entries as corrections to what it
// already displayed.
type Resolution struct {
	Compensated bool
	RewindTick  types.Tick
	Hits        []combat.RangedHit
	Confirmed   []combat.RangedHit
	Denied      []combat.RangedHit
}

// Reconciler rewinds authoritative combatant history and resolves hit
// queries against it.
type Reconciler struct {
	logger  zerolog.Logger
	history *History[combat.Combatant]
}

func NewReconciler(logger zerolog.Logger, capacity uint64) (*Reconciler, error) {
	history, err := NewHistory[combat.Combatant](capacity)
	if err != nil {
		return nil, err
	}
	return &Reconciler{logger: logger, history: history}, nil
}

// RecordTick stores the committed combat state of every combatant for the
// tick. Called by the tick loop after the apply point.
func (r *Reconciler) RecordTick(tick types.Tick, combatants []combat.Combatant) {
	for _, c := range combatants {
		r.history.Record(tick, c.ID, c)
	}
}

// History exposes the underlying ring, mainly for diagnostics.
func (r *Reconciler) History() *History[combat.Combatant] { return r.history }

// Resolve answers a compensation request. The origin tick is rewound within
// the ring's capacity; an origin older than the ring (or never recorded)
// falls back to current-tick state and is reported as uncompensated, never
// as an error — gameplay keeps flowing on degraded fairness.
func (r *Reconciler) Resolve(currentTick types.Tick, req Request, current []combat.Combatant) Resolution {
	res := Resolution{RewindTick: req.OriginTick}

	targets, ok := r.rewind(currentTick, req.OriginTick)
	if !ok {
		r.logger.Debug().
			Uint64("origin_tick", uint64(req.OriginTick)).
			Uint64("current_tick", uint64(currentTick)).
			Uint64("capacity", r.history.Capacity()).
			Msg("compensation unavailable; resolving against current state")
		res.RewindTick = currentTick
		targets = current
	} else {
		res.Compensated = true
	}

	res.Hits = combat.ResolveRanged(req.Projectiles, targets)
	res.Confirmed, res.Denied = partitionPredictions(req.PredictedHits, res.Hits)
	return res
}

// rewind returns the combatant states at origin, or ok=false when the tick
// is out of the compensatable window.
func (r *Reconciler) rewind(currentTick, origin types.Tick) ([]combat.Combatant, bool) {
	if origin > currentTick {
		return nil, false
	}
	if uint64(currentTick-origin) >= r.history.Capacity() {
		return nil, false
	}
	states, ok := r.history.Frame(origin)
	if !ok {
		return nil, false
	}
	combatants := make([]combat.Combatant, 0, len(states))
	for _, c := range states {
		combatants = append(combatants, c)
	}
	sort.Slice(combatants, func(i, j int) bool { return combatants[i].ID < combatants[j].ID })
	return combatants, true
}

// partitionPredictions confirms each predicted hit that the authoritative
// resolution agrees with (same projectile striking the same target) and
// denies the rest.
func partitionPredictions(predicted, actual []combat.RangedHit) (confirmed, denied []combat.RangedHit) {
	type key struct {
		projectile types.EntityID
		target     types.EntityID
	}
	landed := make(map[key]bool, len(actual))
	for _, hit := range actual {
		landed[key{hit.Projectile, hit.Target}] = true
	}
	for _, p := range predicted {
		if landed[key{p.Projectile, p.Target}] {
			confirmed = append(confirmed, p)
		} else {
			denied = append(denied, p)
		}
	}
	return confirmed, denied
}
