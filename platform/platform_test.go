package platform

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestFencesAndBarrierDoNotPanic(t *testing.T) {
	require.NotPanics(t, func() {
		FullFence()
		WriteFence()
		ReadFence()
		AsyncBarrier()
	})
}

func TestPadDoesNotShrinkCacheLine(t *testing.T) {
	var p Pad
	require.Equal(t, CacheLineSize, int(unsafe.Sizeof(p)))
}
