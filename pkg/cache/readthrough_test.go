package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadThrough_Fetch(t *testing.T) {
	clock := newFakeClock()
	rt := NewReadThrough(newTestMemory(t, clock, 0), time.Second)
	ctx := context.Background()

	var loads int32
	load := func(context.Context) ([]byte, error) {
		atomic.AddInt32(&loads, 1)
		return []byte("payload"), nil
	}

	data, hit, err := rt.Fetch(ctx, "positions:page=1", time.Minute, load)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "payload", string(data))

	data, hit, err = rt.Fetch(ctx, "positions:page=1", time.Minute, load)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "payload", string(data))
	assert.Equal(t, int32(1), atomic.LoadInt32(&loads))

	clock.Advance(time.Minute)
	_, hit, err = rt.Fetch(ctx, "positions:page=1", time.Minute, load)
	require.NoError(t, err)
	assert.False(t, hit, "expired entry reloaded")
	assert.Equal(t, int32(2), atomic.LoadInt32(&loads))

	assert.Equal(t, 1, rt.InvalidatePrefix(ctx, "positions:"))
	_, hit, err = rt.Fetch(ctx, "positions:page=1", time.Minute, load)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestReadThrough_LoadErrorNotCached(t *testing.T) {
	rt := NewReadThrough(newTestMemory(t, newFakeClock(), 0), time.Second)
	ctx := context.Background()
	errStore := errors.New("store down")

	_, _, err := rt.Fetch(ctx, "k", time.Minute, func(context.Context) ([]byte, error) { return nil, errStore })
	require.ErrorIs(t, err, errStore)

	data, hit, err := rt.Fetch(ctx, "k", time.Minute, func(context.Context) ([]byte, error) { return []byte("ok"), nil })
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "ok", string(data))
}

func TestReadThrough_CoalescesConcurrentMisses(t *testing.T) {
	rt := NewReadThrough(newTestMemory(t, newFakeClock(), 0), time.Second)

	var loads int32
	release := make(chan struct{})
	load := func(context.Context) ([]byte, error) {
		atomic.AddInt32(&loads, 1)
		<-release
		return []byte("v"), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, _, err := rt.Fetch(context.Background(), "k", time.Minute, load)
			assert.NoError(t, err)
			assert.Equal(t, "v", string(data))
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&loads))
}

func TestReadThrough_CancelledCallerStillPopulates(t *testing.T) {
	m := newTestMemory(t, newFakeClock(), 0)
	rt := NewReadThrough(m, time.Second)

	release := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, _, err := rt.Fetch(ctx, "k", time.Minute, func(context.Context) ([]byte, error) {
			<-release
			return []byte("v"), nil
		})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	close(release)
	assert.Eventually(t, func() bool {
		v, ok := m.Get(context.Background(), "k")
		return ok && string(v) == "v"
	}, time.Second, 5*time.Millisecond)
}

func TestReadThrough_InvalidateDuringLoad(t *testing.T) {
	rt := NewReadThrough(newTestMemory(t, newFakeClock(), 0), time.Second)
	ctx := context.Background()

	started, release := make(chan struct{}), make(chan struct{})
	type result struct {
		data []byte
		err  error
	}
	first := make(chan result, 1)
	go func() {
		data, _, err := rt.Fetch(ctx, "pascal:count=5", time.Minute, func(context.Context) ([]byte, error) {
			close(started)
			<-release
			return []byte("old"), nil
		})
		first <- result{data: data, err: err}
	}()
	<-started

	assert.Equal(t, 0, rt.InvalidatePrefix(ctx, "pascal:"))

	// request after invalidation doesn't join the load in flight
	data, hit, err := rt.Fetch(ctx, "pascal:count=5", time.Minute, func(context.Context) ([]byte, error) {
		return []byte("new"), nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "new", string(data))

	close(release)
	res := <-first
	require.NoError(t, res.err)
	assert.Equal(t, "old", string(res.data), "caller of the earlier load gets its result")

	data, hit, err = rt.Fetch(ctx, "pascal:count=5", time.Minute, func(context.Context) ([]byte, error) {
		return []byte("reloaded"), nil
	})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "new", string(data), "result of the earlier load is not cached")
}
