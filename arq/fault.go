package arq

import (
	"math/rand/v2"
	"sync"
)

// FaultInjector decides, per arriving segment, whether the receiver treats
// it as corrupted. The decision never looks at the payload.
type FaultInjector interface {
	Reject() bool
}

// FaultFunc adapts a plain function.
type FaultFunc func() bool

func (f FaultFunc) Reject() bool { return f() }

// NoFault accepts every segment.
var NoFault FaultInjector = FaultFunc(func() bool { return false })

// RandomFault rejects each segment independently with probability Rate.
type RandomFault struct {
	Rate float64
	rng  *rand.Rand
}

// NewRandomFault clamps rate to [0,1]. A nil src draws from the runtime's
// global generator.
func NewRandomFault(rate float64, src rand.Source) *RandomFault {
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	f := &RandomFault{Rate: rate}
	if src != nil {
		f.rng = rand.New(src)
	}
	return f
}

func (f *RandomFault) Reject() bool {
	switch {
	case f.Rate <= 0:
		return false
	case f.Rate >= 1:
		return true
	}
	if f.rng != nil {
		return f.rng.Float64() < f.Rate
	}
	return rand.Float64() < f.Rate
}

// FaultSequence replays scripted decisions, then accepts everything.
type FaultSequence struct {
	mu        sync.Mutex
	decisions []bool
	calls     int
}

func NewFaultSequence(decisions ...bool) *FaultSequence {
	return &FaultSequence{decisions: decisions}
}

func (f *FaultSequence) Reject() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := f.calls
	f.calls++
	if i < len(f.decisions) {
		return f.decisions[i]
	}
	return false
}

// Calls reports how many decisions have been asked for.
func (f *FaultSequence) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
