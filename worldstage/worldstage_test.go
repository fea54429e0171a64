package worldstage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStartsAtInit(t *testing.T) {
	stage := NewManager()
	assert.Equal(t, Init, stage.Current())

	old := stage.Swap(ShutDown)
	assert.Equal(t, Init, old)
	assert.Equal(t, ShutDown, stage.Current())
}

func TestCompareAndSwap(t *testing.T) {
	stage := NewManager()
	assert.False(t, stage.CompareAndSwap(Running, ShutDown))
	assert.True(t, stage.CompareAndSwap(Init, Starting))
	assert.Equal(t, Starting, stage.Current())
}

func TestOnlyOneCompareAndSwapSucceeds(t *testing.T) {
	stage := NewManager()
	successCh := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			successCh <- stage.CompareAndSwap(Init, ShuttingDown)
		}()
	}

	successes := 0
	for i := 0; i < 10; i++ {
		if <-successCh {
			successes++
		}
	}
	assert.Equal(t, 1, successes)
}
