package skiplist

import (
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/lockfree-go/epochset/epoch"
)

func newTestSet(t *testing.T) (*epoch.Global, *Set[int]) {
	t.Helper()
	cfg := epoch.DefaultConfig()
	cfg.NumLevels = 8
	cfg.BlksPerChunk = 4
	cfg.AllocChunksPerList = 2
	cfg.EntriesPerReclaimAttempt = 16
	g := epoch.New(cfg)
	return g, New[int](g)
}

func TestUpdateLookupRoundTrip(t *testing.T) {
	g, s := newTestSet(t)
	h := g.NewHandle()

	input := []uint64{3, 8, 4, 8, 5, 9, 2, 6}
	want := map[uint64]int{}
	for i, k := range input {
		h.Critical(func() {
			prev := s.Update(h, k, i, true)
			if old, ok := want[k]; ok {
				require.NotNil(t, prev)
				require.Equal(t, old, *prev)
			} else {
				require.Nil(t, prev)
			}
		})
		want[k] = i
	}

	var gotKeys []uint64
	got := map[uint64]int{}
	h.Critical(func() {
		s.ForEach(h, func(key uint64, value *int) {
			gotKeys = append(gotKeys, key)
			got[key] = *value
		})
	})

	require.True(t, sort.SliceIsSorted(gotKeys, func(i, j int) bool { return gotKeys[i] < gotKeys[j] }))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ForEach contents mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateWithoutOverwriteKeepsFirstValue(t *testing.T) {
	g, s := newTestSet(t)
	h := g.NewHandle()

	h.Critical(func() {
		prev := s.Update(h, 42, 1, true)
		require.Nil(t, prev)
	})

	h.Critical(func() {
		prev := s.Update(h, 42, 2, false)
		require.NotNil(t, prev)
		require.Equal(t, 1, *prev)
	})

	h.Critical(func() {
		v, ok := s.Lookup(h, 42)
		require.True(t, ok)
		require.Equal(t, 1, *v)
	})
}

func TestRemoveReturnsPreviousValueThenNilOnSecondAttempt(t *testing.T) {
	g, s := newTestSet(t)
	h := g.NewHandle()

	h.Critical(func() {
		s.Update(h, 7, 100, true)
	})

	var first, second *int
	h.Critical(func() {
		first = s.Remove(h, 7)
	})
	h.Critical(func() {
		second = s.Remove(h, 7)
	})

	require.NotNil(t, first)
	require.Equal(t, 100, *first)
	require.Nil(t, second)

	h.Critical(func() {
		_, ok := s.Lookup(h, 7)
		require.False(t, ok)
	})
}

func TestForEachSkipsRemovedKeys(t *testing.T) {
	g, s := newTestSet(t)
	h := g.NewHandle()

	for i := uint64(2); i < 12; i++ {
		h.Critical(func() {
			s.Update(h, i, int(i), true)
		})
	}
	for i := uint64(2); i < 12; i += 2 {
		h.Critical(func() {
			s.Remove(h, i)
		})
	}

	var seen []uint64
	h.Critical(func() {
		s.ForEach(h, func(key uint64, value *int) {
			seen = append(seen, key)
		})
	})

	require.Equal(t, []uint64{3, 5, 7, 9, 11}, seen)
}

func TestConcurrentUpdateAndRemove(t *testing.T) {
	g, s := newTestSet(t)

	const workers = 8
	const perWorker = 2000

	var grp errgroup.Group
	for w := 0; w < workers; w++ {
		w := w
		grp.Go(func() error {
			h := g.NewHandle()
			base := uint64(w*perWorker) + 2
			for i := uint64(0); i < perWorker; i++ {
				k := base + i
				h.Critical(func() {
					s.Update(h, k, int(k), true)
				})
				h.Critical(func() {
					v, ok := s.Lookup(h, k)
					if !ok || *v != int(k) {
						t.Errorf("worker %d: lookup(%d) = (%v, %v), want (%d, true)", w, k, v, ok, k)
					}
				})
				h.Critical(func() {
					prev := s.Remove(h, k)
					if prev == nil || *prev != int(k) {
						t.Errorf("worker %d: remove(%d) = %v, want %d", w, k, prev, k)
					}
				})
			}
			return nil
		})
	}
	require.NoError(t, grp.Wait())

	h := g.NewHandle()
	var remaining int
	h.Critical(func() {
		s.ForEach(h, func(key uint64, value *int) { remaining++ })
	})
	require.Zero(t, remaining)
}

// TestReaderSurvivesReclaimDuringConcurrentRemoves pins a reader inside
// a single critical section while other goroutines repeatedly insert,
// look up, and remove keys — forcing several reclaim cycles to run
// concurrently with the reader's traversal. The node the reader holds
// a pointer to must stay readable for the whole critical section, even
// after other handles have moved the global epoch forward.
func TestReaderSurvivesReclaimDuringConcurrentRemoves(t *testing.T) {
	g, s := newTestSet(t)
	reader := g.NewHandle()

	reader.Critical(func() {
		s.Update(reader, 2, 111, true)
	})

	var grp errgroup.Group
	stop := make(chan struct{})
	for w := 0; w < 4; w++ {
		w := w
		grp.Go(func() error {
			h := g.NewHandle()
			k := uint64(100 + w)
			for {
				select {
				case <-stop:
					return nil
				default:
				}
				h.Critical(func() {
					s.Update(h, k, int(k), true)
				})
				h.Critical(func() {
					s.Remove(h, k)
				})
			}
		})
	}

	reader.Critical(func() {
		var v *int
		var ok bool
		for i := 0; i < 10000; i++ {
			v, ok = s.Lookup(reader, 2)
			require.True(t, ok)
			require.Equal(t, 111, *v)
		}
	})
	close(stop)
	require.NoError(t, grp.Wait())
}

// TestForEachVisitorMayRemoveCurrentKey exercises the case ForEach's
// doc comment calls out explicitly: a visitor removing the very key
// it was just handed. markNext preserves a marked link's destination
// and the node stays pinned for the whole critical section, so the
// traversal must still reach every later key even though one it just
// visited was deleted mid-walk.
func TestForEachVisitorMayRemoveCurrentKey(t *testing.T) {
	g, s := newTestSet(t)
	h := g.NewHandle()

	for i := uint64(2); i < 8; i++ {
		h.Critical(func() {
			s.Update(h, i, int(i), true)
		})
	}

	var seen []uint64
	h.Critical(func() {
		s.ForEach(h, func(key uint64, value *int) {
			seen = append(seen, key)
			if key%2 == 0 {
				s.Remove(h, key)
			}
		})
	})
	require.Equal(t, []uint64{2, 3, 4, 5, 6, 7}, seen)

	var remaining []uint64
	h.Critical(func() {
		s.ForEach(h, func(key uint64, value *int) {
			remaining = append(remaining, key)
		})
	})
	require.Equal(t, []uint64{3, 5, 7}, remaining)
}
