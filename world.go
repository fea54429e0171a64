// Package simcore is the deterministic simulation core: a fixed-cadence tick
// loop over an entity-component state store, with staged mutations committed
// atomically once per tick, typed messaging across the simulation boundary,
// seeded randomness, combat resolution, lag compensation, and save/replay.
//
// The presentation layer (rendering, physics, input capture) lives outside
// this module and talks to it exclusively through the message bus.
package simcore

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"pkg.voidrun.dev/voidrun/simcore/bus"
	"pkg.voidrun.dev/voidrun/simcore/gamestate"
	"pkg.voidrun.dev/voidrun/simcore/lagcomp"
	"pkg.voidrun.dev/voidrun/simcore/receipt"
	"pkg.voidrun.dev/voidrun/simcore/rng"
	"pkg.voidrun.dev/voidrun/simcore/save"
	"pkg.voidrun.dev/voidrun/simcore/scheduler"
	"pkg.voidrun.dev/voidrun/simcore/types"
	"pkg.voidrun.dev/voidrun/simcore/worldstage"
)

const redisDialTimeout = 15 * time.Second

// applySource is the publisher slot for messages emitted by the apply point
// itself, such as entity teardown notifications.
const applySource = uint16(0xFFFE)

// World wires the simulation core together and owns the tick loop. All state
// access is threaded through explicit handles handed to domain passes; there
// is no ambient world singleton.
type World struct {
	config WorldConfig
	logger zerolog.Logger

	redisClient *redis.Client
	state       *gamestate.State

	scheduler  *scheduler.Scheduler
	bus        *bus.Bus
	rand       *rng.Service
	reconciler *lagcomp.Reconciler
	receipts   *receipt.History
	worldStage *worldstage.Manager

	domains      []*domainRuntime
	domainByName map[string]*domainRuntime

	// topicDomains maps a topic name to an event-triggered domain that is
	// woken whenever messages on the topic become visible.
	topicDomains map[string]string

	despawnTopic *bus.Topic[EntityDespawned]
	resyncTopic  *bus.Topic[ResyncRequested]

	currentTick types.Tick

	inputsMu sync.Mutex
	inputs   save.InputStream

	tickChannel <-chan time.Time
	shutdownCh  chan struct{}

	combat combatWiring
}

type domainRuntime struct {
	domain *scheduler.Domain
	buffer *gamestate.DiffBuffer
	pass   DomainPass
}

// DomainPass is one domain's simulation logic for a tick. It reads committed
// state and stages mutations through the context; nothing it does is visible
// to other domains until the apply point.
type DomainPass func(wCtx WorldContext) error

// WorldOption configures a World at construction time.
type WorldOption func(*World)

// WithLogger replaces the default stdout logger.
func WithLogger(logger zerolog.Logger) WorldOption {
	return func(w *World) {
		w.logger = logger
	}
}

// WithTickChannel drives ticks from the given channel instead of a wall-clock
// ticker. Tests and replay tooling use this to step manually.
func WithTickChannel(ch <-chan time.Time) WorldOption {
	return func(w *World) {
		w.tickChannel = ch
	}
}

// NewWorld assembles a world from resolved configuration. Registration
// (components, domains, topics) happens between NewWorld and Startup.
func NewWorld(cfg WorldConfig, opts ...WorldOption) (*World, error) {
	if cfg.TickRate == 0 {
		return nil, eris.Wrap(scheduler.ErrInvalidConfig, "tick rate must be positive")
	}

	w := &World{
		config: cfg,
		logger: zerolog.New(os.Stdout).With().
			Timestamp().
			Str("world", cfg.WorldID).
			Logger(),
		worldStage:   worldstage.NewManager(),
		domainByName: map[string]*domainRuntime{},
		topicDomains: map[string]string{},
		shutdownCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	w.redisClient = redis.NewClient(&redis.Options{
		Addr:        cfg.RedisAddress,
		Password:    cfg.RedisPassword,
		DialTimeout: redisDialTimeout,
	})
	state, err := gamestate.New(gamestate.NewRedisPrimitiveStorage(w.redisClient))
	if err != nil {
		return nil, err
	}
	w.state = state

	w.scheduler = scheduler.New(w.logger)
	var busOpts []bus.Option
	if cfg.BusRetentionCap > 0 {
		busOpts = append(busOpts, bus.WithRetentionCap(types.Tick(cfg.BusRetentionCap)))
	}
	w.bus = bus.New(w.logger, busOpts...)
	w.rand = rng.New(cfg.Seed, cfg.DebugChecks)

	w.reconciler, err = lagcomp.NewReconciler(w.logger, cfg.HistoryTicks)
	if err != nil {
		return nil, err
	}
	w.receipts, err = receipt.NewHistory(cfg.ReceiptTicks)
	if err != nil {
		return nil, err
	}

	w.despawnTopic, err = bus.RegisterTopic[EntityDespawned](w.bus, TopicEntityDespawned, types.DirectionInternal)
	if err != nil {
		return nil, err
	}
	w.resyncTopic, err = bus.RegisterTopic[ResyncRequested](w.bus, TopicResyncRequested, types.DirectionSimToPresentation)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// CurrentTick returns the tick the world will execute next.
func (w *World) CurrentTick() types.Tick { return w.currentTick }

// Stage returns the lifecycle stage of the world.
func (w *World) Stage() worldstage.Stage { return w.worldStage.Current() }

// Bus returns the message bus. Topic registration happens before Startup;
// publishing externally-sourced messages should go through InjectInput so
// the input stream records them.
func (w *World) Bus() *bus.Bus { return w.bus }

// Receipts returns the per-tick execution history.
func (w *World) Receipts() *receipt.History { return w.receipts }

// DespawnEvents returns the topic announcing entity teardown. Domains and
// presentation readers register on it to drop dangling entity references.
func (w *World) DespawnEvents() *bus.Topic[EntityDespawned] { return w.despawnTopic }

// Reconciler returns the lag compensation reconciler.
func (w *World) Reconciler() *lagcomp.Reconciler { return w.reconciler }

// StoreReader returns the committed read view of state, for callers outside
// any domain pass (servers, diagnostics).
func (w *World) StoreReader() gamestate.Reader { return w.state.Committed() }

// State returns the underlying state store. Exposed for the save codec and
// tests; domain passes use their WorldContext instead.
func (w *World) State() *gamestate.State { return w.state }

// Startup closes registration, loads or creates persistent state, and leaves
// the world Ready to tick. StartGame calls it; tests and replay drivers call
// it directly and then step with Tick.
func (w *World) Startup(ctx context.Context) error {
	if ok := w.worldStage.CompareAndSwap(worldstage.Init, worldstage.Starting); !ok {
		return eris.Errorf("cannot start up from stage %s", w.worldStage.Current())
	}
	if err := w.scheduler.Finalize(); err != nil {
		return err
	}
	if err := w.state.Init(ctx, w.config.Seed); err != nil {
		return err
	}
	return w.finishStartup(ctx)
}

// LoadGame is Startup from a save record: it restores the record into fresh
// storage instead of initializing empty state. Registration must match the
// world that produced the save.
func (w *World) LoadGame(ctx context.Context, data []byte) error {
	if ok := w.worldStage.CompareAndSwap(worldstage.Init, worldstage.Starting); !ok {
		return eris.Errorf("cannot load from stage %s", w.worldStage.Current())
	}
	if err := w.scheduler.Finalize(); err != nil {
		return err
	}
	if err := save.Load(ctx, w.state, data); err != nil {
		return err
	}
	return w.finishStartup(ctx)
}

func (w *World) finishStartup(ctx context.Context) error {
	cursor, err := w.state.RNGCursor(ctx)
	if err != nil {
		return err
	}
	w.rand.Restore(cursor)

	tick, err := w.state.ECB().GetTickNumber(ctx)
	if err != nil {
		return err
	}
	w.currentTick = tick

	w.worldStage.Store(worldstage.Ready)
	w.logger.Info().
		Uint64("tick", uint64(tick)).
		Uint64("seed", w.state.Seed()).
		Str("lineage", w.state.Lineage().String()).
		Msg("world ready")
	return nil
}

// Save captures the committed state at the current tick boundary.
func (w *World) Save(ctx context.Context) ([]byte, error) {
	stage := w.worldStage.Current()
	if stage == worldstage.Init || stage == worldstage.Starting {
		return nil, eris.Errorf("cannot save from stage %s", stage)
	}
	return save.Encode(ctx, w.state)
}

// SaveDelta captures the committed state as a delta against a previously
// saved baseline. Frequent saves stay small this way: the baseline carries
// the bulk, each delta only what moved since.
func (w *World) SaveDelta(ctx context.Context, baseline []byte) ([]byte, error) {
	stage := w.worldStage.Current()
	if stage == worldstage.Init || stage == worldstage.Starting {
		return nil, eris.Errorf("cannot save from stage %s", stage)
	}
	rec, err := save.Decode(baseline)
	if err != nil {
		return nil, err
	}
	return save.EncodeDelta(ctx, w.state, rec)
}

// LoadGameDelta is LoadGame from a baseline-plus-delta pair produced by Save
// and SaveDelta.
func (w *World) LoadGameDelta(ctx context.Context, baseline, delta []byte) error {
	if ok := w.worldStage.CompareAndSwap(worldstage.Init, worldstage.Starting); !ok {
		return eris.Errorf("cannot load from stage %s", w.worldStage.Current())
	}
	if err := w.scheduler.Finalize(); err != nil {
		return err
	}
	if err := save.LoadDelta(ctx, w.state, baseline, delta); err != nil {
		return err
	}
	return w.finishStartup(ctx)
}

// InputLog returns a copy of the external inputs recorded so far. Pairing it
// with the seed reproduces this run.
func (w *World) InputLog() save.InputStream {
	w.inputsMu.Lock()
	defer w.inputsMu.Unlock()
	records := make([]save.InputRecord, len(w.inputs.Records))
	copy(records, w.inputs.Records)
	return save.InputStream{Records: records}
}

// InjectInput publishes an externally-originated message (player input,
// presentation feedback) and records it in the input log. It is the only
// sanctioned entry point for outside messages: anything published behind the
// log's back will not survive a replay.
func (w *World) InjectInput(topic string, entity types.EntityID, payload []byte) error {
	if err := w.bus.PublishRaw(topic, bus.ExternalSource, payload); err != nil {
		return err
	}
	if w.worldStage.Current() == worldstage.Replaying {
		return nil
	}
	w.inputsMu.Lock()
	defer w.inputsMu.Unlock()
	return w.inputs.Append(save.InputRecord{
		Tick:    w.currentTick,
		Entity:  entity,
		Topic:   topic,
		Payload: payload,
	})
}

// StartGame runs the tick loop until a shutdown signal arrives. Each arrival
// on the tick channel (by default a ticker at the configured rate) advances
// one tick.
func (w *World) StartGame() error {
	ctx := context.Background()
	if err := w.Startup(ctx); err != nil {
		return err
	}

	if w.tickChannel == nil {
		ticker := time.NewTicker(time.Second / time.Duration(w.config.TickRate))
		defer ticker.Stop()
		w.tickChannel = ticker.C
	}

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	w.worldStage.Store(worldstage.Running)
	for {
		select {
		case <-signalCh:
			w.logger.Info().Msg("shutdown signal received")
			return w.Shutdown()
		case <-w.shutdownCh:
			return nil
		case <-w.tickChannel:
			if err := w.Tick(ctx); err != nil {
				w.logger.Error().Err(err).Msg("tick failed; shutting down")
				shutdownErr := w.Shutdown()
				if shutdownErr != nil {
					return eris.Wrap(err, shutdownErr.Error())
				}
				return err
			}
		}
	}
}

// Tick advances the world exactly one tick. The boundary process (StartGame,
// a test, or a replay) is the only caller; nothing inside a tick ever blocks
// on real time.
func (w *World) Tick(ctx context.Context) error {
	stage := w.worldStage.Current()
	switch stage {
	case worldstage.Ready:
		w.worldStage.CompareAndSwap(worldstage.Ready, worldstage.Running)
	case worldstage.Running, worldstage.Replaying, worldstage.ShuttingDown:
	default:
		return eris.Errorf("cannot tick from stage %s", stage)
	}
	return w.doTick(ctx)
}

// Shutdown stops the tick loop and releases storage. Safe to call once.
func (w *World) Shutdown() error {
	current := w.worldStage.Swap(worldstage.ShuttingDown)
	if current == worldstage.ShuttingDown || current == worldstage.ShutDown {
		return nil
	}
	close(w.shutdownCh)
	var err error
	if w.redisClient != nil {
		err = w.redisClient.Close()
	}
	w.worldStage.Store(worldstage.ShutDown)
	w.logger.Info().Msg("world shut down")
	return err
}
