package types

import "fmt"

// PanicWindow is the range of chain positions asked to sign after a panic.
type PanicWindow struct {
	Start int
	End   int
	// Saturated is set once both ends reached N-1; expanding further is not
	// possible.
	Saturated bool
}

// ComputePanicWindow returns
//
//	start = 2f+1 + f*panicCount
//	end   = start + f
//
// both clamped to [0, N-1].
func ComputePanicWindow(maxFaulty int, panicCount int32, numPeers int) PanicWindow {
	start := 2*maxFaulty + 1 + maxFaulty*int(panicCount)
	end := start + maxFaulty
	w := PanicWindow{
		Start: clamp(start, numPeers),
		End:   clamp(end, numPeers),
	}
	w.Saturated = w.Start >= numPeers-1 && w.End >= numPeers-1
	return w
}

func (w PanicWindow) Contains(idx int) bool {
	return idx >= w.Start && idx <= w.End
}

func (w PanicWindow) String() string {
	return fmt.Sprintf("[%d,%d] saturated:%v", w.Start, w.End, w.Saturated)
}
