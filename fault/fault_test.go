package fault

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVector(t *testing.T) {
	var v Vector
	assert.False(t, v.Check(CANBadTx))

	v.Set(CANBadTx)
	v.Set(CANBadRx)
	assert.True(t, v.Check(CANBadTx))
	assert.True(t, v.Check(CANBadRx|GPS))
	assert.False(t, v.Check(GPS))
	assert.Equal(t, CANBadTx|CANBadRx, v.Bits())

	v.Clear(CANBadTx)
	assert.False(t, v.Check(CANBadTx))
	assert.True(t, v.Check(CANBadRx))

	v.ClearAll()
	assert.Equal(t, Fault(0), v.Bits())
}

func TestFaultString(t *testing.T) {
	assert.Equal(t, "none", Fault(0).String())
	assert.Equal(t, "can_bad_tx", CANBadTx.String())
	assert.Equal(t, "core_apps|can_bad_rx", (CoreAPPS | CANBadRx).String())
	assert.Equal(t, "can|0x80000000", (CAN | Fault(1<<31)).String())
}

func TestVectorConcurrent(t *testing.T) {
	var v Vector
	v.Set(GPS)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(f Fault) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				v.Set(f)
				v.Clear(f)
				v.Set(f)
			}
		}(Fault(1 << (i % 16)))
	}
	wg.Wait()
	assert.True(t, v.Check(GPS))
	assert.Equal(t, Fault(0xFFFF), v.Bits()&0xFFFF)
}
