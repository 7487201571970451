package draw

import (
	"errors"
	"fmt"
)

// Ranks is the number of ordered positions in a draw.
const Ranks = 10

var ErrMalformedResult = errors.New("malformed draw result")

// Result holds the value drawn at each rank; Result[0] is rank 1.
// A valid result is a permutation of 1..10.
type Result [Ranks]int

// At returns the value at a 1-based rank.
func (r Result) At(rank int) int { return r[rank-1] }

func (r Result) Validate() error {
	var seen [Ranks + 1]bool
	for i, v := range r {
		if v < 1 || v > Ranks {
			return fmt.Errorf("%w: rank %d has value %d", ErrMalformedResult, i+1, v)
		}
		if seen[v] {
			return fmt.Errorf("%w: value %d repeated", ErrMalformedResult, v)
		}
		seen[v] = true
	}
	return nil
}

// FromSlice converts and validates a stored or submitted sequence.
func FromSlice(values []int) (Result, error) {
	var r Result
	if len(values) != Ranks {
		return r, fmt.Errorf("%w: %d values", ErrMalformedResult, len(values))
	}
	copy(r[:], values)
	return r, r.Validate()
}
