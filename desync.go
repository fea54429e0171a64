package simcore

import (
	"github.com/rotisserie/eris"
)

// ErrDesyncDetected indicates two runs that should be identical have diverged.
var ErrDesyncDetected = eris.New("state checksum mismatch between runs")

// VerifySync compares the committed-state checksum against an expected value
// from another run of the same seed and inputs. When the world runs with
// debug checks, a mismatch is fatal; otherwise it publishes a resync request
// to the presentation layer and keeps ticking, since the authoritative state
// is still internally consistent.
func (w *World) VerifySync(expected uint64) error {
	actual, err := w.state.Committed().Checksum()
	if err != nil {
		return err
	}
	if actual == expected {
		return nil
	}

	if w.config.DebugChecks {
		return eris.Wrapf(ErrDesyncDetected,
			"tick %d: expected %x, got %x", w.currentTick, expected, actual)
	}
	w.logger.Error().
		Uint64("tick", uint64(w.currentTick)).
		Uint64("expected", expected).
		Uint64("actual", actual).
		Msg("desync detected; requesting presentation resync")
	w.resyncTopic.Publish(applySource, ResyncRequested{
		Tick:     w.currentTick,
		Expected: expected,
		Actual:   actual,
	})
	return nil
}
