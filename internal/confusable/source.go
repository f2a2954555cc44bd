package confusable

import "math/rand/v2"

// Source picks candidate indexes. IntN returns a value in [0, n).
type Source interface {
	IntN(n int) int
}

// NewSource returns a deterministic source for seed. It is not safe for
// concurrent use; give each engine its own.
func NewSource(seed uint64) Source {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

type globalSource struct{}

func (globalSource) IntN(n int) int { return rand.IntN(n) }

// DefaultSource draws from the process-wide generator.
func DefaultSource() Source {
	return globalSource{}
}

// FixedSource always returns the same index, clamped to the candidate count.
// Tests and hosts that want substitution disabled in effect use it.
type FixedSource int

func (f FixedSource) IntN(n int) int {
	if int(f) >= n {
		return n - 1
	}
	if f < 0 {
		return 0
	}
	return int(f)
}
