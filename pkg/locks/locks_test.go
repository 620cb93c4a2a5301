package locks

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryAcquireAndRelease(t *testing.T) {
	reg := NewRegistry()

	lease, err := reg.TryAcquire("project-a")
	require.NoError(t, err)
	require.NotNil(t, lease)
	assert.Equal(t, "project-a", lease.Key())
	assert.True(t, reg.IsHeld("project-a"))

	lease.Release()
	assert.False(t, reg.IsHeld("project-a"))
}

func TestSecondAcquireRejected(t *testing.T) {
	reg := NewRegistry()

	first, err := reg.TryAcquire("project-a")
	require.NoError(t, err)

	_, err = reg.TryAcquire("project-a")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHeld)

	first.Release()

	// Released lease can be re-acquired.
	second, err := reg.TryAcquire("project-a")
	require.NoError(t, err)
	second.Release()
}

func TestIndependentKeys(t *testing.T) {
	reg := NewRegistry()

	a, err := reg.TryAcquire("project-a")
	require.NoError(t, err)
	b, err := reg.TryAcquire("project-b")
	require.NoError(t, err)

	a.Release()
	b.Release()
}

func TestReleaseIsIdempotent(t *testing.T) {
	reg := NewRegistry()

	lease, err := reg.TryAcquire("project-a")
	require.NoError(t, err)

	lease.Release()
	lease.Release()

	// A stale double-release must not evict a new holder.
	fresh, err := reg.TryAcquire("project-a")
	require.NoError(t, err)
	lease.Release()
	assert.True(t, reg.IsHeld("project-a"))
	fresh.Release()
}

func TestEmptyKeyRejected(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.TryAcquire("")
	assert.Error(t, err)
}

func TestConcurrentAcquireExactlyOneWinner(t *testing.T) {
	reg := NewRegistry()

	const goroutines = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	var winners []*Lease

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if lease, err := reg.TryAcquire("project-a"); err == nil {
				mu.Lock()
				winners = append(winners, lease)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, winners, 1)
	winners[0].Release()
}
