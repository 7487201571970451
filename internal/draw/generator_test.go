package draw

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seeded(pool int) *Generator {
	return NewGenerator(pool, rand.NewPCG(20250717, 42))
}

func TestUniformDistribution(t *testing.T) {
	g := seeded(DefaultCandidatePool)
	const draws = 10000

	var counts [Ranks][Ranks + 1]int
	for i := 0; i < draws; i++ {
		out := g.Generate(nil, Bias{})
		require.NoError(t, out.Result.Validate())
		require.False(t, out.Controlled)
		for rank, v := range out.Result {
			counts[rank][v]++
		}
	}
	for rank := 0; rank < Ranks; rank++ {
		for v := 1; v <= Ranks; v++ {
			c := counts[rank][v]
			assert.Truef(t, c > 850 && c < 1150, "rank %d value %d drawn %d times", rank+1, v, c)
		}
	}
}

func TestInactiveBiasIsUniform(t *testing.T) {
	g := seeded(DefaultCandidatePool)
	l := LiabilityFunc(func(r Result) float64 { t.Fatal("liability must not be priced"); return 0 })
	for i := 0; i < 100; i++ {
		g.Generate(l, Bias{Active: true, Percent: 0})
		g.Generate(l, Bias{Active: false, Percent: 100})
	}
}

// A member covering 7 of the 10 values at rank 1 under full house bias: the uncovered
// values dominate, yet covered values still come up whenever every candidate in the pool
// lands on a covered value (0.7^8, about 6% of draws).
func TestCoverageSaturation(t *testing.T) {
	g := seeded(DefaultCandidatePool)
	covered := map[int]bool{1: true, 2: true, 3: true, 4: true, 5: true, 6: true, 7: true}
	l := LiabilityFunc(func(r Result) float64 {
		if covered[r.At(1)] {
			return 9.59 * 100
		}
		return 0
	})

	const draws = 1000
	coveredHits := 0
	for i := 0; i < draws; i++ {
		out := g.Generate(l, Bias{Active: true, Percent: 100})
		require.True(t, out.Controlled)
		if covered[out.Result.At(1)] {
			coveredHits++
		}
	}
	uncoveredFreq := float64(draws-coveredHits) / draws
	assert.Greater(t, uncoveredFreq, 0.5, "control effect must be measurable")
	assert.Greater(t, coveredHits, 0, "broad coverage cannot be fully avoided")
	assert.Less(t, coveredHits, 150)
}

func TestPartialBias(t *testing.T) {
	g := seeded(DefaultCandidatePool)
	l := LiabilityFunc(func(r Result) float64 { return float64(r.At(1)) })

	controlled := 0
	for i := 0; i < 2000; i++ {
		if g.Generate(l, Bias{Active: true, Percent: 30}).Controlled {
			controlled++
		}
	}
	assert.InDelta(t, 600, controlled, 90)
}

func TestFavorTarget(t *testing.T) {
	g := seeded(DefaultCandidatePool)
	l := LiabilityFunc(func(r Result) float64 {
		if r.At(1) == 10 {
			return 1000
		}
		return 0
	})

	hits := 0
	for i := 0; i < 1000; i++ {
		if g.Generate(l, Bias{Active: true, Percent: 100, Favor: true}).Result.At(1) == 10 {
			hits++
		}
	}
	// 1 - 0.9^8 is about 57%
	assert.Greater(t, hits, 450)
}

func TestPoolSizeDefaults(t *testing.T) {
	assert.Equal(t, 12, seeded(12).PoolSize())
	assert.Equal(t, DefaultCandidatePool, seeded(0).PoolSize())
}
