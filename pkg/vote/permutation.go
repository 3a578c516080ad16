package vote

import (
	"fmt"
	"math/rand/v2"
)

// Permutation maps a presented (shuffled) position to an original candidate index:
// p[pos] == original index. Positions are 0-based here; voters see them 1-based.
type Permutation []int

// Identity returns the unshuffled permutation of n candidates.
func Identity(n int) Permutation {
	p := make(Permutation, n)
	for i := range p {
		p[i] = i
	}
	return p
}

// Shuffle returns a fresh random permutation of n candidates.
// Call it once per voter; ballots must never share a permutation.
func Shuffle(n int, r *rand.Rand) Permutation {
	if r == nil {
		return Permutation(rand.Perm(n))
	}
	return Permutation(r.Perm(n))
}

// Original maps a 0-based presented position back to the original index.
func (p Permutation) Original(pos int) (int, error) {
	if pos < 0 || pos >= len(p) {
		return -1, fmt.Errorf("position %d out of range [0,%d)", pos, len(p))
	}
	return p[pos], nil
}

// Position returns the 0-based presented position of an original index, or -1.
func (p Permutation) Position(orig int) int {
	for pos, o := range p {
		if o == orig {
			return pos
		}
	}
	return -1
}

// Apply returns items in presented order.
func (p Permutation) Apply(items []string) []string {
	out := make([]string, len(p))
	for pos, orig := range p {
		out[pos] = items[orig]
	}
	return out
}

// Valid reports whether p is a bijection over [0, len(p)).
func (p Permutation) Valid() bool {
	seen := make([]bool, len(p))
	for _, o := range p {
		if o < 0 || o >= len(p) || seen[o] {
			return false
		}
		seen[o] = true
	}
	return true
}
