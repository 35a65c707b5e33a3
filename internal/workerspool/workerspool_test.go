// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package workerspool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_Map(t *testing.T) {
	const maxParallelism = 3
	pool := New().SetMaxParallelism(maxParallelism)
	var running, maxRunning atomic.Int32
	results := make([]int, 20)
	pool.Map(len(results), func(i int) {
		current := running.Add(1)
		for {
			seen := maxRunning.Load()
			if current <= seen || maxRunning.CompareAndSwap(seen, current) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		results[i] = i * i
		running.Add(-1)
	})
	for i, r := range results {
		require.Equal(t, i*i, r)
	}
	assert.LessOrEqual(t, maxRunning.Load(), int32(maxParallelism))
	assert.Zero(t, running.Load())

	// No parallelism: tasks run inline, in order.
	var order []int
	New().SetMaxParallelism(0).Map(5, func(i int) { order = append(order, i) })
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)

	// Unlimited.
	var count atomic.Int32
	New().SetMaxParallelism(-1).Map(50, func(int) { count.Add(1) })
	assert.Equal(t, int32(50), count.Load())
}

func TestPool_StartIfAvailable(t *testing.T) {
	pool := New().SetMaxParallelism(1)
	assert.True(t, pool.IsEnabled())
	assert.False(t, pool.IsUnlimited())
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	require.True(t, pool.StartIfAvailable(func() {
		defer wg.Done()
		<-release
	}))
	assert.False(t, pool.StartIfAvailable(func() {}), "the only worker is busy")
	close(release)
	wg.Wait()

	// The worker count is decremented right after the task returns.
	require.Eventually(t, func() bool {
		started := pool.StartIfAvailable(func() {})
		return started
	}, time.Second, time.Millisecond)

	assert.False(t, New().SetMaxParallelism(0).StartIfAvailable(func() {}))
	assert.True(t, New().SetMaxParallelism(-1).IsUnlimited())
}
