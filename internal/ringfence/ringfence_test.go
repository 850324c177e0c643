package ringfence

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestQuiescentOnlyWhenEnterCountIsZero(t *testing.T) {
	var tr Tracker
	tr.Advance(0)

	require.True(t, tr.Quiescent(0))

	tk := tr.Enter(0)
	require.False(t, tr.Quiescent(0))

	tr.Exit(tk)
	require.True(t, tr.Quiescent(0))
}

func TestConcurrentEntersAreCountedAndReleased(t *testing.T) {
	var tr Tracker
	tr.Advance(1)

	const n = 500
	var grp errgroup.Group
	for i := 0; i < n; i++ {
		grp.Go(func() error {
			tk := tr.Enter(1)
			tr.Exit(tk)
			return nil
		})
	}
	require.NoError(t, grp.Wait())
	require.True(t, tr.Quiescent(1))
}

func TestAdvanceAndCurrentRoundTrip(t *testing.T) {
	var tr Tracker
	tr.Advance(3)
	require.Equal(t, uint32(3), tr.Current())
}

func TestSlotsWrapAroundWidth(t *testing.T) {
	var tr Tracker
	tk := tr.Enter(Width)
	require.False(t, tr.Quiescent(0), "generation Width should alias slot 0")
	tr.Exit(tk)
	require.True(t, tr.Quiescent(0))
}
