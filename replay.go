package simcore

import (
	"context"

	"github.com/rotisserie/eris"

	"pkg.voidrun.dev/voidrun/simcore/save"
	"pkg.voidrun.dev/voidrun/simcore/worldstage"
)

// ReplayInputs re-executes recorded external inputs against this world until
// targetTick. With the same seed and registration, the resulting state is
// bit-identical to the run that recorded the stream. The world must be Ready
// and at a tick no later than the stream's first record.
func (w *World) ReplayInputs(ctx context.Context, stream save.InputStream, targetTick uint64) error {
	if err := stream.Validate(); err != nil {
		return err
	}
	if ok := w.worldStage.CompareAndSwap(worldstage.Ready, worldstage.Replaying); !ok {
		return eris.Errorf("cannot replay from stage %s", w.worldStage.Current())
	}
	defer w.worldStage.Store(worldstage.Ready)

	for uint64(w.currentTick) < targetTick {
		for _, rec := range stream.ForTick(w.currentTick) {
			if err := w.InjectInput(rec.Topic, rec.Entity, rec.Payload); err != nil {
				return eris.Wrapf(err, "replaying input for tick %d", rec.Tick)
			}
		}
		if err := w.doTick(ctx); err != nil {
			return err
		}
	}
	return nil
}
