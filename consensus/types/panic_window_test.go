package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputePanicWindow(t *testing.T) {
	tests := []struct {
		f, n       int
		panicCount int32
		start, end int
		saturated  bool
	}{
		// N=4, f=1: first panic asks index 3
		{1, 4, 1, 3, 3, true},
		{1, 4, 0, 3, 3, true},
		{1, 7, 1, 4, 5, false},
		{1, 7, 2, 5, 6, false},
		{1, 7, 3, 6, 6, true},
		{2, 10, 1, 7, 9, false},
		{2, 10, 2, 9, 9, true},
		{0, 1, 5, 0, 0, true},
		{0, 2, 1, 1, 1, true},
	}
	for _, tc := range tests {
		w := ComputePanicWindow(tc.f, tc.panicCount, tc.n)
		assert.Equal(t, tc.start, w.Start, "f=%d n=%d panic=%d", tc.f, tc.n, tc.panicCount)
		assert.Equal(t, tc.end, w.End, "f=%d n=%d panic=%d", tc.f, tc.n, tc.panicCount)
		assert.Equal(t, tc.saturated, w.Saturated, "f=%d n=%d panic=%d", tc.f, tc.n, tc.panicCount)
	}
}

func TestPanicWindowNeverExceedsRoster(t *testing.T) {
	for n := 1; n <= 22; n++ {
		f := DefaultMaxFaulty(n)
		var last PanicWindow
		for c := int32(0); c < 20; c++ {
			w := ComputePanicWindow(f, c, n)
			assert.True(t, w.Start <= n-1 && w.End <= n-1, "n=%d c=%d %v", n, c, w)
			assert.True(t, w.Start >= last.Start, "start must not shrink")
			last = w
		}
	}
}

func TestQuorumAndProxyTail(t *testing.T) {
	tests := []struct {
		n, f, quorum, tail int
	}{
		{1, 0, 1, 0},
		{2, 0, 1, 1},
		{4, 1, 3, 3},
		{7, 2, 5, 5},
		{10, 3, 7, 7},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.f, DefaultMaxFaulty(tc.n))
		assert.Equal(t, tc.quorum, Quorum(tc.f))
		assert.Equal(t, tc.tail, ProxyTailIndex(tc.f, tc.n))
	}
}
