package ingestion_engine

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTenantLocksSerializeSameKey(t *testing.T) {
	locks := newTenantLocks()
	var inflight, peak int32
	var wg sync.WaitGroup
	for n := 0; n < 8; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("co-1")
			defer unlock()
			cur := atomic.AddInt32(&inflight, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if cur <= old || atomic.CompareAndSwapInt32(&peak, old, cur) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inflight, -1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), peak)
	assert.Zero(t, locks.size())
}

func TestTenantLocksIndependentKeys(t *testing.T) {
	locks := newTenantLocks()
	unlockA := locks.Lock("co-a")
	done := make(chan struct{})
	go func() {
		unlock := locks.Lock("co-b")
		unlock()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock for another tenant blocked")
	}
	unlockA()
}
