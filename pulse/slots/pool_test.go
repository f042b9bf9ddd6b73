package slots

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveWithinCapacity(t *testing.T) {
	p, err := NewPool(512)
	require.NoError(t, err)

	assert.True(t, p.TryReserve("a", 256))
	assert.True(t, p.TryReserve("b", 256))
	assert.Equal(t, 0, p.Available())
	assert.False(t, p.TryReserve("c", 256), "third 256-slot task must wait")
	assert.False(t, p.TryReserve("d", 1))

	n, ok := p.Release("a")
	assert.True(t, ok)
	assert.Equal(t, 256, n)
	assert.True(t, p.TryReserve("c", 256))
}

func TestReleaseIsIdempotent(t *testing.T) {
	p, _ := NewPool(10)
	require.True(t, p.TryReserve("a", 4))

	n, ok := p.Release("a")
	assert.Equal(t, 4, n)
	assert.True(t, ok)

	n, ok = p.Release("a")
	assert.Equal(t, 0, n)
	assert.False(t, ok)
	assert.Equal(t, 10, p.Available())

	_, ok = p.Release("never-reserved")
	assert.False(t, ok)
	assert.Equal(t, 10, p.Available())
}

func TestReserveRejectsDuplicatesAndNonPositive(t *testing.T) {
	p, _ := NewPool(10)
	require.True(t, p.TryReserve("a", 2))
	assert.False(t, p.TryReserve("a", 2), "a task holds at most one reservation")
	assert.False(t, p.TryReserve("b", 0))
	assert.False(t, p.TryReserve("c", -3))
	assert.Equal(t, 8, p.Available())

	held, ok := p.Reserved("a")
	assert.True(t, ok)
	assert.Equal(t, 2, held)
}

func TestNewPoolRejectsNegativeCapacity(t *testing.T) {
	_, err := NewPool(-1)
	assert.Error(t, err)

	empty, err := NewPool(0)
	require.NoError(t, err)
	assert.False(t, empty.TryReserve("a", 1))
}

func TestSlotConservation(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	p, _ := NewPool(100)

	var held []string
	for i := 0; i < 2000; i++ {
		if len(held) > 0 && rng.Intn(2) == 0 {
			idx := rng.Intn(len(held))
			p.Release(held[idx])
			p.Release(held[idx]) // double release must not inflate capacity
			held = append(held[:idx], held[idx+1:]...)
			continue
		}
		id := fmt.Sprintf("t%d", i)
		if p.TryReserve(id, 1+rng.Intn(30)) {
			held = append(held, id)
		}
		snap := p.Snapshot()
		sum := 0
		for _, n := range snap.Reservations {
			sum += n
		}
		require.Equal(t, snap.Capacity-sum, snap.Available)
		require.GreaterOrEqual(t, snap.Available, 0)
	}

	for _, id := range held {
		p.Release(id)
	}
	assert.Equal(t, 100, p.Available())
}

func TestConcurrentReserveNeverOverbooks(t *testing.T) {
	p, _ := NewPool(64)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if p.TryReserve(fmt.Sprintf("t%d", i), 4) {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 16, admitted)
	assert.Equal(t, 0, p.Available())
}

func TestSnapshotString(t *testing.T) {
	p, _ := NewPool(8)
	p.TryReserve("a", 3)
	assert.Equal(t, "5/8 slots free, 1 reservations", p.Snapshot().String())
}
