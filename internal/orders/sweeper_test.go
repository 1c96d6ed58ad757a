package orders

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct{ ids []string }

func (f *fakeLister) ExpiredOrderIDs(_ context.Context, limit int) ([]string, error) {
	if len(f.ids) > limit {
		return f.ids[:limit], nil
	}
	return f.ids, nil
}

// guardedCanceller mimics the repo's status-guarded cancel: the first caller
// wins, every later caller is a no-op.
type guardedCanceller struct {
	mu        sync.Mutex
	cancelled map[string]int
}

func (g *guardedCanceller) Cancel(_ context.Context, orderID, reason string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancelled == nil {
		g.cancelled = map[string]int{}
	}
	g.cancelled[orderID]++
	return g.cancelled[orderID] == 1, nil
}

func TestSweepReleasesExpired(t *testing.T) {
	c := &guardedCanceller{}
	s := &Sweeper{Store: &fakeLister{ids: []string{"a", "b", "c"}}, Transitions: c}

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

// Two sweeps racing over the same expired orders: stock is released exactly
// once per order.
func TestConcurrentSweepsReleaseOnce(t *testing.T) {
	c := &guardedCanceller{}
	s := &Sweeper{Store: &fakeLister{ids: []string{"a", "b"}}, Transitions: c}

	var wg sync.WaitGroup
	results := make([]int, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n, err := s.Sweep(context.Background())
			assert.NoError(t, err)
			results[i] = n
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 2, results[0]+results[1], "each order released exactly once across both sweeps")
}
