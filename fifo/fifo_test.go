package fifo

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestEnqueueDequeueOrder(t *testing.T) {
	q := New[int]()

	for i := 0; i < 5; i++ {
		q.Enqueue(i)
	}
	require.Equal(t, 5, q.Len())

	for i := 0; i < 5; i++ {
		v, ok := q.Dequeue()
		require.True(t, ok)
		require.Equal(t, i, v)
	}

	_, ok := q.Dequeue()
	require.False(t, ok)
	require.Zero(t, q.Len())
}

func TestConcurrentEnqueueDequeuePreservesCount(t *testing.T) {
	q := New[int]()

	const workers = 8
	const perWorker = 1000

	var grp errgroup.Group
	for w := 0; w < workers; w++ {
		grp.Go(func() error {
			for i := 0; i < perWorker; i++ {
				q.Enqueue(i)
			}
			return nil
		})
	}
	require.NoError(t, grp.Wait())
	require.Equal(t, workers*perWorker, q.Len())

	got := 0
	for {
		if _, ok := q.Dequeue(); !ok {
			break
		}
		got++
	}
	require.Equal(t, workers*perWorker, got)
}
