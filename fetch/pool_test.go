package fetch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPoolRunsAllWork(t *testing.T) {
	p := NewPool(context.Background(), 3)

	var done, inflight, peak int32
	p.Task(func(ctx context.Context) error {
		for i := 0; i < 50; i++ {
			p.Go(func(ctx context.Context) error {
				n := atomic.AddInt32(&inflight, 1)
				for {
					old := atomic.LoadInt32(&peak)
					if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inflight, -1)
				atomic.AddInt32(&done, 1)
				return nil
			})
		}
		return nil
	})

	assert.NoError(t, p.Wait())
	assert.Equal(t, int32(50), atomic.LoadInt32(&done))
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
}

func TestPoolFirstErrorCancels(t *testing.T) {
	p := NewPool(context.Background(), 2)
	boom := errors.New("decode failed")

	var cancelled int32
	started := make(chan struct{})
	p.Go(func(ctx context.Context) error {
		close(started)
		select {
		case <-ctx.Done():
			atomic.StoreInt32(&cancelled, 1)
		case <-time.After(5 * time.Second):
		}
		return nil
	})
	p.Go(func(ctx context.Context) error {
		<-started
		return boom
	})

	assert.ErrorIs(t, p.Wait(), boom)
	assert.Equal(t, int32(1), atomic.LoadInt32(&cancelled))

	var ran int32
	p.Go(func(ctx context.Context) error {
		atomic.StoreInt32(&ran, 1)
		return nil
	})
	_ = p.Wait()
	assert.Zero(t, atomic.LoadInt32(&ran), "work submitted after a failure is skipped")
}

func TestPoolSingleWorkerNestedSubmit(t *testing.T) {
	p := NewPool(context.Background(), 1)

	var done int32
	for i := 0; i < 3; i++ {
		p.Task(func(ctx context.Context) error {
			for j := 0; j < 3; j++ {
				p.Go(func(ctx context.Context) error {
					atomic.AddInt32(&done, 1)
					return nil
				})
			}
			return nil
		})
	}

	assert.NoError(t, p.Wait())
	assert.Equal(t, int32(9), atomic.LoadInt32(&done))
}

func TestPoolParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewPool(ctx, 2)
	p.Go(func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, p.Wait(), context.Canceled)
}
