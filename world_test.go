package simcore_test

import (
	"context"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pkg.voidrun.dev/voidrun/simcore"
	"pkg.voidrun.dev/voidrun/simcore/bus"
	"pkg.voidrun.dev/voidrun/simcore/combat"
	"pkg.voidrun.dev/voidrun/simcore/gamestate"
	"pkg.voidrun.dev/voidrun/simcore/rng"
	"pkg.voidrun.dev/voidrun/simcore/scheduler"
	"pkg.voidrun.dev/voidrun/simcore/types"
)

type moveCmd struct {
	Entity types.EntityID `json:"entity"`
	DX     float64        `json:"dx"`
}

var regenContext = rng.ContextID("test.regen")

// testGame is a small but complete game wired onto a test world: one
// fixed-cadence physics domain that spawns a single combat dummy on the first
// tick, applies move commands, and regenerates health with a seeded draw.
type testGame struct {
	*simcore.TestWorld
	move *bus.Topic[moveCmd]
}

func newTestGame(t *testing.T) *testGame {
	tw := simcore.NewTestWorld(t, nil)

	require.NoError(t, simcore.RegisterComponent[simcore.Position](tw.World))
	require.NoError(t, simcore.RegisterComponent[simcore.Health](tw.World))

	move, err := simcore.RegisterTopic[moveCmd](tw.World, "game.move", types.DirectionPresentationToSim)
	require.NoError(t, err)
	require.NoError(t, move.RegisterReader("physics"))

	err = tw.World.RegisterDomain("physics", scheduler.FixedPeriod(1), func(wCtx simcore.WorldContext) error {
		ids, err := simcore.QueryAll(wCtx, simcore.Position{})
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			_, err := simcore.Spawn(wCtx,
				simcore.Position{},
				simcore.Health{Current: 50, Max: 100},
			)
			return err
		}

		envelopes, err := move.Read("physics")
		if err != nil {
			return err
		}
		for _, env := range envelopes {
			pos, err := simcore.GetComponent[simcore.Position](wCtx, env.Payload.Entity)
			if err != nil {
				return err
			}
			pos.Value.X += env.Payload.DX
			if err := simcore.SetComponent(wCtx, env.Payload.Entity, pos); err != nil {
				return err
			}
		}

		for _, id := range ids {
			health, err := simcore.GetComponent[simcore.Health](wCtx, id)
			if err != nil {
				return err
			}
			health.Current += float64(wCtx.Rand().Range(regenContext, 3))
			if health.Current > health.Max {
				health.Current = health.Max
			}
			if err := simcore.SetComponent(wCtx, id, health); err != nil {
				return err
			}
		}
		return nil
	}, scheduler.Critical())
	require.NoError(t, err)

	return &testGame{TestWorld: tw, move: move}
}

func (g *testGame) injectMove(entity types.EntityID, dx float64) {
	payload, err := json.Marshal(moveCmd{Entity: entity, DX: dx})
	require.NoError(g, err)
	require.NoError(g, g.World.InjectInput("game.move", entity, payload))
}

func (g *testGame) checksum() uint64 {
	sum, err := g.World.State().Committed().Checksum()
	require.NoError(g, err)
	return sum
}

// dummyID is the ID the physics domain's first spawn always gets: domain
// index 0, sequence 0.
var dummyID = types.NewEntityID(0, 0)

func TestWorldLifecycle(t *testing.T) {
	g := newTestGame(t)
	g.StartWorld()
	assert.Equal(t, types.Tick(0), g.World.CurrentTick())

	g.DoTick()
	g.DoTick()
	assert.Equal(t, types.Tick(2), g.World.CurrentTick())

	receipt, err := g.World.Receipts().Get(0)
	require.NoError(t, err)
	assert.Equal(t, []types.EntityID{dummyID}, receipt.Spawned)
	require.Len(t, receipt.Domains, 1)
	assert.Equal(t, "physics", receipt.Domains[0].Name)
}

func TestIdenticalRunsProduceIdenticalState(t *testing.T) {
	run := func() uint64 {
		g := newTestGame(t)
		g.StartWorld()
		for tick := 0; tick < 10; tick++ {
			if tick%3 == 0 {
				g.injectMove(dummyID, 1.5)
			}
			g.DoTick()
		}
		return g.checksum()
	}
	assert.Equal(t, run(), run(), "same seed and same inputs must produce bit-identical state")
}

func TestRecordedInputsReplayToSameState(t *testing.T) {
	live := newTestGame(t)
	live.StartWorld()
	for tick := 0; tick < 8; tick++ {
		if tick == 2 || tick == 5 {
			live.injectMove(dummyID, 2.0)
		}
		live.DoTick()
	}
	want := live.checksum()
	log := live.World.InputLog()
	require.NotEmpty(t, log.Records)

	replayed := newTestGame(t)
	replayed.StartWorld()
	require.NoError(t, replayed.World.ReplayInputs(context.Background(), log, 8))

	assert.Equal(t, types.Tick(8), replayed.World.CurrentTick())
	assert.Equal(t, want, replayed.checksum(), "replaying the input log must reproduce the live run")
}

func TestMessagesAreNeverVisibleOnTheirPublishTick(t *testing.T) {
	g := newTestGame(t)
	g.StartWorld()
	g.DoTick() // spawns the dummy

	g.injectMove(dummyID, 3.0)
	g.DoTick() // move sealed at the end of this tick, not read during it

	pos, err := g.World.State().Committed().GetComponentForEntity(simcore.Position{}, dummyID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, pos.(simcore.Position).Value.X)

	g.DoTick() // now the physics pass reads it
	pos, err = g.World.State().Committed().GetComponentForEntity(simcore.Position{}, dummyID)
	require.NoError(t, err)
	assert.Equal(t, 3.0, pos.(simcore.Position).Value.X)
}

func TestFailedDomainForfeitsItsWrites(t *testing.T) {
	tw := simcore.NewTestWorld(t, nil)
	require.NoError(t, simcore.RegisterComponent[simcore.Health](tw.World))

	spawned := false
	require.NoError(t, tw.World.RegisterDomain("steady", scheduler.FixedPeriod(1),
		func(wCtx simcore.WorldContext) error {
			if !spawned {
				spawned = true
				_, err := simcore.Spawn(wCtx, simcore.Health{Current: 10, Max: 10})
				return err
			}
			return nil
		}))
	require.NoError(t, tw.World.RegisterDomain("flaky", scheduler.FixedPeriod(1),
		func(wCtx simcore.WorldContext) error {
			if wCtx.Tick() != 1 {
				return nil
			}
			// Stage a write, then fail. The write must never land.
			if err := simcore.SetComponent(wCtx, dummyID, simcore.Health{Current: 1, Max: 10}); err != nil {
				return err
			}
			return eris.New("flaky domain blew up")
		}))

	tw.StartWorld()
	tw.DoTick()
	tw.DoTick() // flaky fails here; the tick still completes
	tw.DoTick()

	health, err := tw.World.State().Committed().GetComponentForEntity(simcore.Health{}, dummyID)
	require.NoError(t, err)
	assert.Equal(t, simcore.Health{Current: 10, Max: 10}, health,
		"a failed pass must forfeit every mutation it staged")
}

func TestConflictsResolveTheSameWayEveryRun(t *testing.T) {
	run := func() (uint64, string) {
		tw := simcore.NewTestWorld(t, nil)
		require.NoError(t, simcore.RegisterComponent[simcore.Health](tw.World))

		writer := func(value float64) simcore.DomainPass {
			return func(wCtx simcore.WorldContext) error {
				if wCtx.Tick() == 0 {
					if wCtx.Source() == 0 {
						_, err := simcore.Spawn(wCtx, simcore.Health{Current: 1, Max: 100})
						return err
					}
					return nil
				}
				return simcore.SetComponent(wCtx, dummyID, simcore.Health{Current: value, Max: 100})
			}
		}
		require.NoError(t, tw.World.RegisterDomain("first", scheduler.FixedPeriod(1), writer(11)))
		require.NoError(t, tw.World.RegisterDomain("second", scheduler.FixedPeriod(1), writer(22)))

		tw.StartWorld()
		tw.DoTick()
		tw.DoTick()

		receipt, err := tw.World.Receipts().Get(1)
		require.NoError(t, err)
		require.Len(t, receipt.Conflicts, 1)

		sum, err := tw.World.State().Committed().Checksum()
		require.NoError(t, err)
		return sum, receipt.Conflicts[0].Winner
	}

	sumA, winnerA := run()
	sumB, winnerB := run()
	assert.Equal(t, "second", winnerA, "the later domain in declaration order wins")
	assert.Equal(t, winnerA, winnerB)
	assert.Equal(t, sumA, sumB)
}

func TestCadenceIsolation(t *testing.T) {
	tw := simcore.NewTestWorld(t, nil)
	require.NoError(t, simcore.RegisterComponent[simcore.Health](tw.World))

	fastRuns, slowRuns := 0, 0
	require.NoError(t, tw.World.RegisterDomain("fast", scheduler.FixedPeriod(1),
		func(wCtx simcore.WorldContext) error {
			fastRuns++
			return nil
		}))
	require.NoError(t, tw.World.RegisterDomain("slow", scheduler.FixedPeriod(4),
		func(wCtx simcore.WorldContext) error {
			slowRuns++
			return nil
		}))

	tw.StartWorld()
	for i := 0; i < 8; i++ {
		tw.DoTick()
	}
	assert.Equal(t, 8, fastRuns)
	assert.Equal(t, 2, slowRuns, "period-4 domain fires on ticks 0 and 4 only")
}

func TestEventTriggeredDomainWakesOnMessage(t *testing.T) {
	tw := simcore.NewTestWorld(t, nil)
	require.NoError(t, simcore.RegisterComponent[simcore.Health](tw.World))

	ping, err := simcore.RegisterTopic[moveCmd](tw.World, "game.ping", types.DirectionPresentationToSim)
	require.NoError(t, err)
	require.NoError(t, ping.RegisterReader("reaper"))

	var wokeOn []types.Tick
	require.NoError(t, tw.World.RegisterDomain("reaper", scheduler.EventTriggered(),
		func(wCtx simcore.WorldContext) error {
			wokeOn = append(wokeOn, wCtx.Tick())
			_, err := ping.Read("reaper")
			return err
		}))
	require.NoError(t, tw.World.BindTopicToDomain("game.ping", "reaper"))

	tw.StartWorld()
	tw.DoTick() // nothing published: the domain must not fire

	payload, err := json.Marshal(moveCmd{})
	require.NoError(t, err)
	require.NoError(t, tw.World.InjectInput("game.ping", 0, payload))
	tw.DoTick() // published during tick 1, sealed at its end
	tw.DoTick() // domain wakes here

	assert.Equal(t, []types.Tick{2}, wokeOn)
}

func TestDespawnIsAnnouncedNotCalledBack(t *testing.T) {
	tw := simcore.NewTestWorld(t, nil)
	require.NoError(t, simcore.RegisterComponent[simcore.Health](tw.World))

	require.NoError(t, tw.World.RegisterDomain("spawner", scheduler.FixedPeriod(1),
		func(wCtx simcore.WorldContext) error {
			switch wCtx.Tick() {
			case 0:
				_, err := simcore.Spawn(wCtx, simcore.Health{Current: 1, Max: 1})
				return err
			case 1:
				simcore.Despawn(wCtx, dummyID)
			}
			return nil
		}))

	require.NoError(t, tw.World.DespawnEvents().RegisterReader("watcher"))

	tw.StartWorld()
	tw.DoTick()
	tw.DoTick() // despawn applies at this tick's apply point

	receipt, err := tw.World.Receipts().Get(1)
	require.NoError(t, err)
	assert.Equal(t, []types.EntityID{dummyID}, receipt.Despawned)

	events, err := tw.World.DespawnEvents().Read("watcher")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, simcore.EntityDespawned{Entity: dummyID, Tick: 1}, events[0].Payload)

	exists, err := tw.World.State().Committed().ContainsEntity(dummyID)
	require.NoError(t, err)
	assert.False(t, exists)
}

// tagList carries a slice so its decoded value has a mutable backing array.
type tagList struct {
	Values []float64 `json:"values"`
}

func (tagList) Name() string { return "test.tag_list" }

func TestInPlaceEditsNeverLeakBetweenDomains(t *testing.T) {
	tw := simcore.NewTestWorld(t, nil)
	require.NoError(t, simcore.RegisterComponent[tagList](tw.World))

	var seenByB []float64
	require.NoError(t, tw.World.RegisterDomain("a", scheduler.FixedPeriod(1),
		func(wCtx simcore.WorldContext) error {
			if wCtx.Tick() == 0 {
				_, err := simcore.Spawn(wCtx, tagList{Values: []float64{1, 2}})
				return err
			}
			// Read the committed value and edit the slice element in place
			// before staging. The edit must stay private until apply.
			tags, err := simcore.GetComponent[tagList](wCtx, dummyID)
			if err != nil {
				return err
			}
			tags.Values[0] = 99
			return simcore.SetComponent(wCtx, dummyID, tags)
		}))
	require.NoError(t, tw.World.RegisterDomain("b", scheduler.FixedPeriod(1),
		func(wCtx simcore.WorldContext) error {
			if wCtx.Tick() == 0 {
				return nil
			}
			tags, err := simcore.GetComponent[tagList](wCtx, dummyID)
			if err != nil {
				return err
			}
			seenByB = append([]float64(nil), tags.Values...)
			return nil
		}, scheduler.RunAfter("a")))

	tw.StartWorld()
	tw.DoTick()
	tw.DoTick()

	assert.Equal(t, []float64{1, 2}, seenByB,
		"a sibling pass must see the committed value, not another domain's in-place edit")
}

func TestSpawnRejectsMalformedHitbox(t *testing.T) {
	tw := simcore.NewTestWorld(t, nil)
	require.NoError(t, simcore.RegisterComponent[combat.HitboxSet](tw.World))

	var spawnErr error
	require.NoError(t, tw.World.RegisterDomain("spawner", scheduler.FixedPeriod(1),
		func(wCtx simcore.WorldContext) error {
			if wCtx.Tick() != 0 {
				return nil
			}
			_, spawnErr = simcore.Spawn(wCtx, combat.HitboxSet{
				Parts: []combat.Hitbox{{
					Part:             "head",
					Shape:            combat.Sphere(combat.Vec3{}, -1),
					DamageMultiplier: 2,
				}},
			})
			return nil
		}))

	tw.StartWorld()
	tw.DoTick()

	require.Error(t, spawnErr)
	assert.True(t, eris.Is(eris.Cause(spawnErr), gamestate.ErrInvalidComponentValue))

	exists, err := tw.World.State().Committed().ContainsEntity(dummyID)
	require.NoError(t, err)
	assert.False(t, exists, "a rejected spawn must not land")
}

func TestSaveThenLoadResumesIdentically(t *testing.T) {
	g := newTestGame(t)
	g.StartWorld()
	for tick := 0; tick < 5; tick++ {
		if tick == 1 {
			g.injectMove(dummyID, 4.0)
		}
		g.DoTick()
	}
	data, err := g.World.Save(context.Background())
	require.NoError(t, err)
	want := g.checksum()

	loaded := newTestGame(t)
	require.NoError(t, loaded.World.LoadGame(context.Background(), data))

	assert.Equal(t, types.Tick(5), loaded.World.CurrentTick())
	assert.Equal(t, want, loaded.checksum())

	// The loaded world keeps ticking from where the save left off.
	loaded.DoTick()
	assert.Equal(t, types.Tick(6), loaded.World.CurrentTick())
}

func TestDeltaSaveResumesIdentically(t *testing.T) {
	g := newTestGame(t)
	g.StartWorld()
	for tick := 0; tick < 3; tick++ {
		g.DoTick()
	}
	baseline, err := g.World.Save(context.Background())
	require.NoError(t, err)

	g.injectMove(dummyID, 4.0)
	g.DoTick()
	g.DoTick()
	delta, err := g.World.SaveDelta(context.Background(), baseline)
	require.NoError(t, err)
	assert.Less(t, len(delta), len(baseline),
		"a delta over one touched entity must be smaller than the full record")
	want := g.checksum()

	loaded := newTestGame(t)
	require.NoError(t, loaded.World.LoadGameDelta(context.Background(), baseline, delta))

	assert.Equal(t, types.Tick(5), loaded.World.CurrentTick())
	assert.Equal(t, want, loaded.checksum())

	loaded.DoTick()
	assert.Equal(t, types.Tick(6), loaded.World.CurrentTick())
}

func TestVerifySyncFailsFatallyUnderDebugChecks(t *testing.T) {
	g := newTestGame(t)
	g.StartWorld()
	g.DoTick()

	require.NoError(t, g.World.VerifySync(g.checksum()))

	err := g.World.VerifySync(g.checksum() + 1)
	require.Error(t, err)
	assert.True(t, eris.Is(eris.Cause(err), simcore.ErrDesyncDetected))
}
