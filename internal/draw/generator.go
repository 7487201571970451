package draw

import (
	crand "crypto/rand"
	"math/rand/v2"
	"sync"
)

// DefaultCandidatePool is how many uniform permutations a controlled draw compares.
// Larger pools strengthen control and weaken the chance a fully covered bettor still wins.
const DefaultCandidatePool = 8

// Liability prices a candidate result from the point of view of the bets being controlled.
type Liability interface {
	Payout(r Result) float64
}

type LiabilityFunc func(r Result) float64

func (f LiabilityFunc) Payout(r Result) float64 { return f(r) }

// Bias is the generator's view of a resolved control policy.
type Bias struct {
	Active  bool
	Percent int  // 0-100: probability the draw is picked from the candidate pool
	Favor   bool // pick the highest payout instead of the lowest
}

type Outcome struct {
	Result     Result
	Controlled bool // the pool was consulted for this draw
	Payout     float64
}

type Generator struct {
	mu       sync.Mutex
	rng      *rand.Rand
	poolSize int
}

func NewGenerator(poolSize int, src rand.Source) *Generator {
	if poolSize < 1 {
		poolSize = DefaultCandidatePool
	}
	return &Generator{rng: rand.New(src), poolSize: poolSize}
}

// NewSecureGenerator seeds a ChaCha8 stream from the OS entropy source.
func NewSecureGenerator(poolSize int) *Generator {
	var seed [32]byte
	_, _ = crand.Read(seed[:])
	return NewGenerator(poolSize, rand.NewChaCha8(seed))
}

func (g *Generator) PoolSize() int { return g.poolSize }

// Uniform returns a uniformly random permutation.
func (g *Generator) Uniform() Result {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.uniform()
}

func (g *Generator) uniform() Result {
	var r Result
	for i, v := range g.rng.Perm(Ranks) {
		r[i] = v + 1
	}
	return r
}

// Generate draws one result. Without an active bias, or when the bias roll misses, the
// result is uniform. Otherwise poolSize uniform candidates are priced against l and the
// cheapest (or dearest, when favouring) is returned; with broad coverage every candidate
// may pay out and the least bad one wins.
func (g *Generator) Generate(l Liability, b Bias) Outcome {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !b.Active || l == nil || b.Percent <= 0 || g.rng.IntN(100) >= b.Percent {
		return Outcome{Result: g.uniform()}
	}

	best := g.uniform()
	bestPay := l.Payout(best)
	for i := 1; i < g.poolSize; i++ {
		c := g.uniform()
		p := l.Payout(c)
		if (b.Favor && p > bestPay) || (!b.Favor && p < bestPay) {
			best, bestPay = c, p
		}
	}
	return Outcome{Result: best, Controlled: true, Payout: bestPay}
}
