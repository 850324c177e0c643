package objcache

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lockfree-go/epochset/epoch"
)

type point struct {
	x, y int64
}

func newTestGlobal(t *testing.T) *epoch.Global {
	t.Helper()
	cfg := epoch.DefaultConfig()
	cfg.BlksPerChunk = 4
	cfg.AllocChunksPerList = 2
	cfg.EntriesPerReclaimAttempt = 8
	return epoch.New(cfg)
}

func TestAllocFreeRoundTrip(t *testing.T) {
	g := newTestGlobal(t)
	c, err := Create[point](g, "point")
	require.NoError(t, err)
	require.Equal(t, "point", c.Tag())

	h := g.NewHandle()
	p := c.Alloc(h)
	p.x, p.y = 3, 4
	require.Equal(t, int64(3), p.x)
	c.Free(h, p)
	c.Destroy()
}

func TestAllocCriticalRequiresCallerManagedSection(t *testing.T) {
	g := newTestGlobal(t)
	c, err := Create[point](g, "point")
	require.NoError(t, err)

	h := g.NewHandle()
	h.Enter()
	p := c.AllocCritical(h)
	p.x = 9
	c.FreeCritical(h, p)
	h.Exit()
}

func TestCreateReturnsErrorPastMaxSizes(t *testing.T) {
	cfg := epoch.DefaultConfig()
	cfg.MaxSizes = 1
	cfg.AllocChunksPerList = 1
	cfg.BlksPerChunk = 2
	g := epoch.New(cfg)

	_, err := Create[point](g, "first")
	require.NoError(t, err)

	_, err = Create[int](g, "second")
	require.Error(t, err)
}
