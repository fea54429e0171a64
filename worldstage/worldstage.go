// Package worldstage tracks the lifecycle of a simulation world. Stage
// transitions gate which operations are legal: registration only before
// starting, ticking only while running, exactly one shutdown.
package worldstage

import (
	"sync/atomic"
)

type Stage string

const (
	Init         Stage = "Init"         // Registration is open.
	Starting     Stage = "Starting"     // Registration is closed; state is loading.
	Ready        Stage = "Ready"        // State is loaded; ticking may begin.
	Running      Stage = "Running"      // The tick loop is live.
	Replaying    Stage = "Replaying"    // Ticks are driven by a recorded input stream.
	ShuttingDown Stage = "ShuttingDown" // A shutdown was requested; the current tick finishes.
	ShutDown     Stage = "ShutDown"     // The world has stopped and released its storage.
)

type Manager struct {
	current *atomic.Value
}

func NewManager() *Manager {
	m := &Manager{
		current: &atomic.Value{},
	}
	m.Store(Init)
	return m
}

func (m *Manager) CompareAndSwap(oldStage, newStage Stage) (swapped bool) {
	return m.current.CompareAndSwap(oldStage, newStage)
}

func (m *Manager) Current() Stage {
	return m.current.Load().(Stage)
}

func (m *Manager) Store(val Stage) {
	m.current.Store(val)
}

func (m *Manager) Swap(newStage Stage) (oldStage Stage) {
	return m.current.Swap(newStage).(Stage)
}
