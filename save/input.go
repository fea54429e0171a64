package save

import (
	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"

	"pkg.voidrun.dev/voidrun/simcore/codec"
	"pkg.voidrun.dev/voidrun/simcore/types"
)

// ErrInputOrder is returned when an input stream is not totally ordered by
// tick. Replays consume inputs strictly in tick order; an out-of-order
// stream cannot reproduce the run that recorded it.
var ErrInputOrder = eris.New("input stream is not ordered by tick")

// InputRecord is one externally-originated message captured during a live
// run: the tick it was published on, the topic it went to, and the raw
// payload. Entity is the addressed entity, or zero for global inputs.
type InputRecord struct {
	Tick    types.Tick      `json:"tick"`
	Entity  types.EntityID  `json:"entity,omitempty"`
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// InputStream is the recorded external input of a run, the second half of
// the (seed, inputs) pair that makes a run reproducible.
type InputStream struct {
	Records []InputRecord `json:"records"`
}

// Append records an input. Records must arrive in non-decreasing tick order.
func (s *InputStream) Append(rec InputRecord) error {
	if n := len(s.Records); n > 0 && rec.Tick < s.Records[n-1].Tick {
		return eris.Wrapf(ErrInputOrder,
			"tick %d after tick %d", rec.Tick, s.Records[n-1].Tick)
	}
	s.Records = append(s.Records, rec)
	return nil
}

// ForTick returns the contiguous run of records for exactly the given tick.
func (s *InputStream) ForTick(tick types.Tick) []InputRecord {
	lo := 0
	for lo < len(s.Records) && s.Records[lo].Tick < tick {
		lo++
	}
	hi := lo
	for hi < len(s.Records) && s.Records[hi].Tick == tick {
		hi++
	}
	return s.Records[lo:hi]
}

// Validate checks total ordering of a stream assembled elsewhere (for
// example, decoded from disk).
func (s *InputStream) Validate() error {
	for i := 1; i < len(s.Records); i++ {
		if s.Records[i].Tick < s.Records[i-1].Tick {
			return eris.Wrapf(ErrInputOrder,
				"record %d (tick %d) after tick %d", i, s.Records[i].Tick, s.Records[i-1].Tick)
		}
	}
	return nil
}

// EncodeInputs serializes the stream.
func EncodeInputs(s *InputStream) ([]byte, error) {
	return codec.Encode(s)
}

// DecodeInputs parses and validates a recorded stream. Failures are
// ErrDecode, consistent with save records.
func DecodeInputs(data []byte) (*InputStream, error) {
	s, err := codec.Decode[InputStream](data)
	if err != nil {
		return nil, eris.Wrap(ErrDecode, eris.Cause(err).Error())
	}
	if err := s.Validate(); err != nil {
		return nil, eris.Wrap(ErrDecode, eris.Cause(err).Error())
	}
	return &s, nil
}
