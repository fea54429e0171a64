package bus

import (
	"sort"
	"sync"

	"github.com/rotisserie/eris"
	"pkg.voidrun.dev/voidrun/simcore/codec"
	"pkg.voidrun.dev/voidrun/simcore/types"
)

// retentionTicks is how many ticks a sealed message survives even after
// every registered reader has consumed it. Two ticks gives late joiners and
// the reconciler a window to re-read recent traffic.
const retentionTicks = 2

// Envelope is a sealed message on a topic. Seq is the topic-global sequence
// number; Tick is the tick the message was published on.
type Envelope[T any] struct {
	Seq     uint64     `json:"seq"`
	Tick    types.Tick `json:"tick"`
	Source  uint16     `json:"source"`
	Payload T          `json:"payload"`
}

type pending[T any] struct {
	source  uint16
	arrival uint64
	payload T
}

// Topic is a typed FIFO message channel. Publishing is safe from concurrent
// domain passes: the sealed order within a tick is by publisher slot first,
// arrival order second, so the same set of publishes always seals in the
// same order regardless of pass interleaving.
type Topic[T any] struct {
	name         string
	direction    types.Direction
	retentionCap types.Tick

	mu      sync.Mutex
	pending []pending[T]
	arrival uint64
	sealed  []Envelope[T]
	baseSeq uint64
	nextSeq uint64
	readers map[string]uint64
}

// RegisterTopic creates a typed topic on the bus. The direction is metadata
// carried on the topic for transport layering; the bus treats all
// directions identically.
func RegisterTopic[T any](b *Bus, name string, direction types.Direction) (*Topic[T], error) {
	t := &Topic[T]{
		name:         name,
		direction:    direction,
		retentionCap: b.retentionCap,
		readers:      map[string]uint64{},
	}
	if err := b.register(t); err != nil {
		return nil, err
	}
	b.logger.Debug().Str("topic", name).Str("direction", direction.String()).Msg("topic registered")
	return t, nil
}

func (t *Topic[T]) Name() string               { return t.name }
func (t *Topic[T]) Direction() types.Direction { return t.direction }

// Publish stages a message for sealing at the end of the current tick.
// source identifies the publishing domain (its registration index) or
// ExternalSource for out-of-band publishers.
func (t *Topic[T]) Publish(source uint16, payload T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = append(t.pending, pending[T]{
		source:  source,
		arrival: t.arrival,
		payload: payload,
	})
	t.arrival++
}

// publishRaw decodes an externally recorded payload and stages it like any
// other publish. Replays use this to feed a recorded input stream back into
// the same topics it originally flowed through.
func (t *Topic[T]) publishRaw(source uint16, payload []byte) error {
	value, err := codec.Decode[T](payload)
	if err != nil {
		return eris.Wrapf(err, "payload for topic %q", t.name)
	}
	t.Publish(source, value)
	return nil
}

// RegisterReader adds a named reader cursor positioned at the next sealed
// message. Messages sealed before registration are not replayed to it.
func (t *Topic[T]) RegisterReader(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.readers[name]; ok {
		return eris.Wrapf(ErrReaderAlreadyRegistered, "reader %q on topic %q", name, t.name)
	}
	t.readers[name] = t.nextSeq
	return nil
}

// Read returns every sealed message past the reader's cursor and advances
// the cursor. Pending (current-tick) messages are never returned.
func (t *Topic[T]) Read(reader string) ([]Envelope[T], error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cursor, ok := t.readers[reader]
	if !ok {
		return nil, eris.Wrapf(ErrReaderNotRegistered, "reader %q on topic %q", reader, t.name)
	}
	if cursor < t.baseSeq {
		// The cursor fell behind the hard retention cap; the reader resumes
		// at the oldest retained message and the gap is lost.
		cursor = t.baseSeq
	}
	start := cursor - t.baseSeq
	if int(start) >= len(t.sealed) {
		return nil, nil
	}
	out := make([]Envelope[T], len(t.sealed)-int(start))
	copy(out, t.sealed[start:])
	t.readers[reader] = t.nextSeq
	return out, nil
}

// Peek returns sealed messages past the reader's cursor without advancing
// it.
func (t *Topic[T]) Peek(reader string) ([]Envelope[T], error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cursor, ok := t.readers[reader]
	if !ok {
		return nil, eris.Wrapf(ErrReaderNotRegistered, "reader %q on topic %q", reader, t.name)
	}
	if cursor < t.baseSeq {
		cursor = t.baseSeq
	}
	start := cursor - t.baseSeq
	if int(start) >= len(t.sealed) {
		return nil, nil
	}
	out := make([]Envelope[T], len(t.sealed)-int(start))
	copy(out, t.sealed[start:])
	return out, nil
}

// seal assigns sequence numbers to everything published during the tick.
// Sort by (source, arrival) makes the sealed order a pure function of what
// each publisher published, not of goroutine interleaving.
func (t *Topic[T]) seal(tick types.Tick) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.pending) == 0 {
		return 0
	}
	sort.Slice(t.pending, func(i, j int) bool {
		if t.pending[i].source != t.pending[j].source {
			return t.pending[i].source < t.pending[j].source
		}
		return t.pending[i].arrival < t.pending[j].arrival
	})
	for _, p := range t.pending {
		t.sealed = append(t.sealed, Envelope[T]{
			Seq:     t.nextSeq,
			Tick:    tick,
			Source:  p.source,
			Payload: p.payload,
		})
		t.nextSeq++
	}
	n := len(t.pending)
	t.pending = t.pending[:0]
	return n
}

// reclaim drops sealed messages that every registered reader has consumed
// and that are at least retentionTicks old. Messages older than the hard
// retention cap are dropped even if a registered reader never consumed
// them: a stalled reader bounds how far it lags, not how much the topic
// retains.
func (t *Topic[T]) reclaim(tick types.Tick) {
	t.mu.Lock()
	defer t.mu.Unlock()
	minCursor := t.nextSeq
	for _, cursor := range t.readers {
		if cursor < minCursor {
			minCursor = cursor
		}
	}
	drop := 0
	for _, env := range t.sealed {
		if uint64(env.Tick)+retentionTicks > uint64(tick) {
			break
		}
		if env.Seq >= minCursor && uint64(env.Tick)+uint64(t.retentionCap) > uint64(tick) {
			break
		}
		drop++
	}
	if drop == 0 {
		return
	}
	t.sealed = append(t.sealed[:0:0], t.sealed[drop:]...)
	t.baseSeq += uint64(drop)
}

func (t *Topic[T]) retained() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sealed)
}
