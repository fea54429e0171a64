package scheduler_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pkg.voidrun.dev/voidrun/simcore/scheduler"
	"pkg.voidrun.dev/voidrun/simcore/types"
)

func newScheduler() *scheduler.Scheduler {
	return scheduler.New(zerolog.Nop())
}

func noopPass(types.Tick) error { return nil }

func TestRegisterDomainRejectsDuplicates(t *testing.T) {
	s := newScheduler()
	_, err := s.RegisterDomain("combat", scheduler.FixedPeriod(1), noopPass)
	require.NoError(t, err)
	_, err = s.RegisterDomain("combat", scheduler.FixedPeriod(1), noopPass)
	assert.True(t, eris.Is(eris.Cause(err), scheduler.ErrInvalidConfig))
}

func TestRegisterDomainRejectsZeroPeriod(t *testing.T) {
	s := newScheduler()
	_, err := s.RegisterDomain("economy", scheduler.FixedPeriod(0), noopPass)
	assert.True(t, eris.Is(eris.Cause(err), scheduler.ErrInvalidConfig))
}

func TestFinalizeRejectsUnknownConstraintTarget(t *testing.T) {
	s := newScheduler()
	_, err := s.RegisterDomain("combat", scheduler.FixedPeriod(1), noopPass,
		scheduler.RunAfter("movement"))
	require.NoError(t, err)
	err = s.Finalize()
	assert.True(t, eris.Is(eris.Cause(err), scheduler.ErrInvalidConfig))
}

func TestFinalizeRejectsCyclicConstraints(t *testing.T) {
	s := newScheduler()
	_, err := s.RegisterDomain("a", scheduler.FixedPeriod(1), noopPass, scheduler.RunAfter("c"))
	require.NoError(t, err)
	_, err = s.RegisterDomain("b", scheduler.FixedPeriod(1), noopPass, scheduler.RunAfter("a"))
	require.NoError(t, err)
	_, err = s.RegisterDomain("c", scheduler.FixedPeriod(1), noopPass, scheduler.RunAfter("b"))
	require.NoError(t, err)
	err = s.Finalize()
	assert.True(t, eris.Is(eris.Cause(err), scheduler.ErrInvalidConfig))
}

func TestPlanTickHonorsCadenceAndOrder(t *testing.T) {
	s := newScheduler()
	_, err := s.RegisterDomain("economy", scheduler.FixedPeriod(10), noopPass)
	require.NoError(t, err)
	_, err = s.RegisterDomain("movement", scheduler.FixedPeriod(1), noopPass)
	require.NoError(t, err)
	_, err = s.RegisterDomain("combat", scheduler.FixedPeriod(1), noopPass,
		scheduler.RunAfter("movement"))
	require.NoError(t, err)
	require.NoError(t, s.Finalize())

	names := func(domains []*scheduler.Domain) []string {
		var out []string
		for _, d := range domains {
			out = append(out, d.Name())
		}
		return out
	}

	assert.Equal(t, []string{"economy", "movement", "combat"}, names(s.PlanTick(0)))
	assert.Equal(t, []string{"movement", "combat"}, names(s.PlanTick(7)))
	assert.Equal(t, []string{"economy", "movement", "combat"}, names(s.PlanTick(20)))
}

func TestEventTriggeredDomainFiresOnce(t *testing.T) {
	s := newScheduler()
	var runs atomic.Int64
	_, err := s.RegisterDomain("chat", scheduler.EventTriggered(), func(types.Tick) error {
		runs.Add(1)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, s.Finalize())

	ctx := context.Background()
	_, err = s.RunTick(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), runs.Load())

	require.NoError(t, s.Trigger("chat"))
	_, err = s.RunTick(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), runs.Load())

	// The trigger is consumed by the tick it fired on.
	_, err = s.RunTick(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), runs.Load())
}

func TestTriggerRejectsFixedPeriodDomain(t *testing.T) {
	s := newScheduler()
	_, err := s.RegisterDomain("movement", scheduler.FixedPeriod(1), noopPass)
	require.NoError(t, err)
	err = s.Trigger("movement")
	assert.True(t, eris.Is(eris.Cause(err), scheduler.ErrInvalidConfig))
	err = s.Trigger("ghost")
	assert.True(t, eris.Is(eris.Cause(err), scheduler.ErrDomainNotFound))
}

func TestRunTickOrdersConstrainedDomains(t *testing.T) {
	s := newScheduler()
	var order []string
	record := func(name string) scheduler.Pass {
		return func(types.Tick) error {
			order = append(order, name)
			return nil
		}
	}
	// Constrained domains land on separate stages, so the later ones only
	// start after the earlier ones complete.
	_, err := s.RegisterDomain("movement", scheduler.FixedPeriod(1), record("movement"))
	require.NoError(t, err)
	_, err = s.RegisterDomain("combat", scheduler.FixedPeriod(1), record("combat"),
		scheduler.RunAfter("movement"))
	require.NoError(t, err)
	_, err = s.RegisterDomain("cleanup", scheduler.FixedPeriod(1), record("cleanup"),
		scheduler.RunAfter("combat"))
	require.NoError(t, err)
	require.NoError(t, s.Finalize())

	for tick := types.Tick(0); tick < 3; tick++ {
		order = order[:0]
		_, err := s.RunTick(context.Background(), tick)
		require.NoError(t, err)
		assert.Equal(t, []string{"movement", "combat", "cleanup"}, order)
	}
}

func TestNonCriticalFailureDoesNotHaltTick(t *testing.T) {
	s := newScheduler()
	boom := eris.New("boom")
	_, err := s.RegisterDomain("flaky", scheduler.FixedPeriod(1), func(types.Tick) error {
		return boom
	})
	require.NoError(t, err)
	ran := false
	_, err = s.RegisterDomain("after", scheduler.FixedPeriod(1), func(types.Tick) error {
		ran = true
		return nil
	}, scheduler.RunAfter("flaky"))
	require.NoError(t, err)
	require.NoError(t, s.Finalize())

	report, err := s.RunTick(context.Background(), 0)
	require.NoError(t, err)
	assert.True(t, ran)
	require.Len(t, report.Reports, 2)
	assert.Error(t, report.Reports[0].Err)
	assert.NoError(t, report.Reports[1].Err)
}

func TestCriticalFailureHaltsTick(t *testing.T) {
	s := newScheduler()
	_, err := s.RegisterDomain("physics", scheduler.FixedPeriod(1), func(types.Tick) error {
		return eris.New("solver diverged")
	}, scheduler.Critical())
	require.NoError(t, err)
	ran := false
	_, err = s.RegisterDomain("after", scheduler.FixedPeriod(1), func(types.Tick) error {
		ran = true
		return nil
	}, scheduler.RunAfter("physics"))
	require.NoError(t, err)
	require.NoError(t, s.Finalize())

	_, err = s.RunTick(context.Background(), 0)
	assert.True(t, eris.Is(eris.Cause(err), scheduler.ErrCriticalDomainFailed))
	assert.False(t, ran)
}

func TestBudgetExceededIsReportedNotEnforced(t *testing.T) {
	s := newScheduler()
	_, err := s.RegisterDomain("slow", scheduler.FixedPeriod(1), func(types.Tick) error {
		time.Sleep(2 * time.Millisecond)
		return nil
	}, scheduler.WithBudget(time.Microsecond))
	require.NoError(t, err)
	require.NoError(t, s.Finalize())

	report, err := s.RunTick(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, report.Reports, 1)
	assert.True(t, report.Reports[0].BudgetExceeded)
	assert.NoError(t, report.Reports[0].Err)
}
