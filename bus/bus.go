// Package bus carries commands and events between domains and across the
// simulation/presentation boundary. Topics are typed and FIFO. Messages
// published during tick T are sealed at the end of T and become readable at
// tick T+1 at the earliest, so a domain pass never observes messages
// produced in the same tick. Sealed messages are retained until every
// registered reader has consumed them and at least two ticks have elapsed,
// then reclaimed. A hard retention cap bounds how long an unconsumed
// message survives, so a stalled reader cannot pin a topic's memory.
package bus

import (
	"sync"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"pkg.voidrun.dev/voidrun/simcore/types"
)

var (
	// ErrTopicAlreadyRegistered is returned when registering a duplicate
	// topic name.
	ErrTopicAlreadyRegistered = eris.New("topic already registered")

	// ErrReaderNotRegistered is returned when reading with an unknown reader
	// name. Readers must register before the first message they care about
	// is published; retention is only guaranteed for registered readers.
	ErrReaderNotRegistered = eris.New("reader not registered")

	// ErrReaderAlreadyRegistered is returned when registering a duplicate
	// reader name on a topic.
	ErrReaderAlreadyRegistered = eris.New("reader already registered")

	// ErrTopicNotFound is returned when publishing to an unregistered topic
	// name.
	ErrTopicNotFound = eris.New("topic not found")
)

// ExternalSource is the publisher slot used for messages that originate
// outside any domain pass, such as presentation-thread input. External
// messages keep their arrival order; that order is recorded by the input
// stream so replays observe it identically.
const ExternalSource = uint16(0xFFFF)

// DefaultRetentionCap is how many ticks a sealed message survives at most,
// even when a registered reader has not consumed it. A reader that stalls
// for longer than this loses messages instead of pinning them forever.
const DefaultRetentionCap = 64

type topicHandle interface {
	Name() string
	Direction() types.Direction
	publishRaw(source uint16, payload []byte) error
	seal(tick types.Tick) int
	reclaim(tick types.Tick)
	retained() int
}

// Bus owns the topic registry and the tick-boundary sealing that gives
// messages their visibility latency.
type Bus struct {
	logger       zerolog.Logger
	retentionCap types.Tick

	mu     sync.RWMutex
	topics map[string]topicHandle
}

// Option configures a Bus at construction.
type Option func(*Bus)

// WithRetentionCap overrides the hard retention cap applied to every topic.
// The cap never drops below the two-tick visibility floor.
func WithRetentionCap(ticks types.Tick) Option {
	return func(b *Bus) {
		b.retentionCap = ticks
	}
}

func New(logger zerolog.Logger, opts ...Option) *Bus {
	b := &Bus{
		logger:       logger,
		retentionCap: DefaultRetentionCap,
		topics:       map[string]topicHandle{},
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.retentionCap < retentionTicks {
		b.retentionCap = retentionTicks
	}
	return b
}

func (b *Bus) register(h topicHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.topics[h.Name()]; ok {
		return eris.Wrapf(ErrTopicAlreadyRegistered, "%q", h.Name())
	}
	b.topics[h.Name()] = h
	return nil
}

// PublishRaw stages an encoded payload on the named topic. This is the entry
// point for recorded input streams, where payloads exist only as bytes.
func (b *Bus) PublishRaw(topic string, source uint16, payload []byte) error {
	b.mu.RLock()
	h, ok := b.topics[topic]
	b.mu.RUnlock()
	if !ok {
		return eris.Wrapf(ErrTopicNotFound, "%q", topic)
	}
	return h.publishRaw(source, payload)
}

// EndTick seals everything published during the given tick and reclaims
// messages that are both beyond the retention window and consumed by every
// registered reader, or older than the hard retention cap regardless of
// readers. Called once per tick, after all domain passes. Returns the
// number of messages sealed per topic, for topics that sealed any.
func (b *Bus) EndTick(tick types.Tick) map[string]int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	sealed := map[string]int{}
	for name, h := range b.topics {
		if n := h.seal(tick); n > 0 {
			sealed[name] = n
		}
		h.reclaim(tick)
	}
	return sealed
}

// Retained returns the total number of sealed, not-yet-reclaimed messages
// across all topics. Useful for backpressure monitoring.
func (b *Bus) Retained() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	total := 0
	for _, h := range b.topics {
		total += h.retained()
	}
	return total
}

// TopicNames returns the registered topic names in no particular order.
func (b *Bus) TopicNames() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.topics))
	for name := range b.topics {
		names = append(names, name)
	}
	return names
}
