package workpool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_DefaultSize(t *testing.T) {
	assert.Equal(t, DefaultSize, New(0).Size())
	assert.Equal(t, 2, New(2).Size())
}

func TestPool_LimitsConcurrency(t *testing.T) {
	p := New(2)

	var (
		running atomic.Int32
		peak    atomic.Int32
	)

	err := p.Each(context.Background(), 10, func(int) {
		n := running.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestPool_EachVisitsEveryIndex(t *testing.T) {
	p := New(3)

	var (
		mu   sync.Mutex
		seen = map[int]bool{}
	)
	require.NoError(t, p.Each(context.Background(), 7, func(i int) {
		mu.Lock()
		seen[i] = true
		mu.Unlock()
	}))
	assert.Len(t, seen, 7)
}

func TestPool_RunCancelled(t *testing.T) {
	p := New(1)

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = p.Run(context.Background(), func() {
			close(started)
			<-release
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := p.Run(ctx, func() { called = true })
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)

	close(release)
}

func TestPool_EachRecoversPanics(t *testing.T) {
	p := New(2)
	var done atomic.Int32

	err := p.Each(context.Background(), 4, func(i int) {
		if i == 1 {
			panic("bad item")
		}
		done.Add(1)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task 1 panicked: bad item")
	assert.Equal(t, int32(3), done.Load())
}
