package control

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"lottery_service/internal/bet"
	"lottery_service/internal/draw"
	"lottery_service/internal/exposure"
	"lottery_service/internal/shared/db/dbtest"
)

type fakeDirectory map[string][]string

func (d fakeDirectory) SubtreeMemberIDs(ctx context.Context, agentID string) ([]string, error) {
	if agentID == "broken" {
		return nil, errors.New("directory unavailable")
	}
	return d[agentID], nil
}

func strPtr(s string) *string { return &s }

func setup(t *testing.T, det Detector) (*Resolver, ControlRepository) {
	repo := NewControlRepositoryImpl(dbtest.New(t, &WinLossControlConfig{}))
	dir := fakeDirectory{"agent-1": {"m1", "m2"}, "agent-empty": nil}
	if det == nil {
		det = NewSimulationDetector(draw.NewGenerator(draw.DefaultCandidatePool, rand.NewPCG(1, 2)))
	}
	return NewResolver(repo, dir, det, zaptest.NewLogger(t)), repo
}

func bookWith(members ...string) *exposure.Book {
	b := exposure.NewBook("20250717010")
	for _, m := range members {
		e := exposure.New()
		e.Add(bet.Selection{Category: bet.CategoryNumber, RankA: 1, Number: 3}, 1, 10, 95.9)
		b.ByMember[m] = e
		b.Total.Merge(e)
	}
	return b
}

func TestResolveNoConfig(t *testing.T) {
	r, _ := setup(t, nil)
	p, err := r.Resolve(context.Background(), "20250717010", time.Now())
	require.NoError(t, err)
	assert.False(t, p.Active)
	assert.Nil(t, p.Liability(bookWith("m1")))
	assert.False(t, p.GeneratorBias().Active)
}

func TestResolveSingleMember(t *testing.T) {
	r, repo := setup(t, nil)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &WinLossControlConfig{
		Mode: ModeSingleMember, TargetMemberID: strPtr("m1"), BiasPercent: 90, IsActive: true,
	}))

	p, err := r.Resolve(ctx, "20250717010", time.Now())
	require.NoError(t, err)
	require.True(t, p.Active)
	assert.Equal(t, FavorPlatform, p.Direction)
	assert.Equal(t, []string{"m1"}, p.Scope)

	final := r.Finalize("20250717010", p, bookWith("m1", "m3"))
	require.True(t, final.Active)
	assert.Equal(t, draw.Bias{Active: true, Percent: 90}, final.GeneratorBias())

	// scoped liability only prices m1's bets
	assert.InDelta(t, 95.9, final.Liability(bookWith("m1", "m3")).Payout(draw.Result{3, 1, 2, 4, 5, 6, 7, 8, 9, 10}), 1e-9)

	idle := r.Finalize("20250717010", p, bookWith("m3"))
	assert.False(t, idle.Active, "target without bets resolves to no control")
}

func TestResolveAgentLine(t *testing.T) {
	r, repo := setup(t, nil)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &WinLossControlConfig{
		Mode: ModeAgentLine, TargetAgentID: strPtr("agent-1"), Direction: FavorTarget, BiasPercent: 50, IsActive: true,
	}))

	p, err := r.Resolve(ctx, "20250717010", time.Now())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"m1", "m2"}, p.Scope)

	final := r.Finalize("20250717010", p, bookWith("m2", "m9"))
	assert.Equal(t, []string{"m2"}, final.Scope)
	assert.True(t, final.GeneratorBias().Favor)
}

func TestResolveAmbiguityAndEdgeCases(t *testing.T) {
	ctx := context.Background()

	t.Run("two active configs", func(t *testing.T) {
		r, repo := setup(t, nil)
		require.NoError(t, repo.Create(ctx, &WinLossControlConfig{Mode: ModeAutoDetect, BiasPercent: 50, IsActive: true}))
		require.NoError(t, repo.Create(ctx, &WinLossControlConfig{Mode: ModeSingleMember, TargetMemberID: strPtr("m1"), BiasPercent: 50, IsActive: true}))
		p, err := r.Resolve(ctx, "20250717010", time.Now())
		require.NoError(t, err)
		assert.False(t, p.Active)
		assert.Contains(t, p.Reason, "ambiguous")
	})

	t.Run("not yet effective", func(t *testing.T) {
		r, repo := setup(t, nil)
		require.NoError(t, repo.Create(ctx, &WinLossControlConfig{Mode: ModeSingleMember, TargetMemberID: strPtr("m1"), BiasPercent: 50, IsActive: true, StartPeriod: "20250717011"}))
		p, err := r.Resolve(ctx, "20250717010", time.Now())
		require.NoError(t, err)
		assert.False(t, p.Active)

		p, err = r.Resolve(ctx, "20250717011", time.Now())
		require.NoError(t, err)
		assert.True(t, p.Active)
	})

	t.Run("empty agent line", func(t *testing.T) {
		r, repo := setup(t, nil)
		require.NoError(t, repo.Create(ctx, &WinLossControlConfig{Mode: ModeAgentLine, TargetAgentID: strPtr("agent-empty"), BiasPercent: 50, IsActive: true}))
		p, err := r.Resolve(ctx, "20250717010", time.Now())
		require.NoError(t, err)
		assert.False(t, p.Active)
	})

	t.Run("deactivated", func(t *testing.T) {
		r, repo := setup(t, nil)
		cfg := &WinLossControlConfig{Mode: ModeAutoDetect, BiasPercent: 50, IsActive: true}
		require.NoError(t, repo.Create(ctx, cfg))
		require.NoError(t, repo.SetActive(ctx, cfg.ID, false))
		p, err := r.Resolve(ctx, "20250717010", time.Now())
		require.NoError(t, err)
		assert.False(t, p.Active)
		require.ErrorIs(t, repo.SetActive(ctx, "missing", true), ErrConfigNotFound)
	})

	t.Run("directory failure is an error", func(t *testing.T) {
		r, repo := setup(t, nil)
		require.NoError(t, repo.Create(ctx, &WinLossControlConfig{Mode: ModeAgentLine, TargetAgentID: strPtr("broken"), BiasPercent: 50, IsActive: true}))
		_, err := r.Resolve(ctx, "20250717010", time.Now())
		require.Error(t, err)
	})
}

func TestCreateValidates(t *testing.T) {
	_, repo := setup(t, nil)
	ctx := context.Background()
	require.ErrorIs(t, repo.Create(ctx, &WinLossControlConfig{Mode: ModeAutoDetect, BiasPercent: 101}), ErrInvalidConfig)
	require.ErrorIs(t, repo.Create(ctx, &WinLossControlConfig{Mode: ModeSingleMember, BiasPercent: 10}), ErrInvalidConfig)
	require.ErrorIs(t, repo.Create(ctx, &WinLossControlConfig{Mode: "house_always_wins", BiasPercent: 10}), ErrInvalidConfig)
	require.ErrorIs(t, repo.Create(ctx, &WinLossControlConfig{Mode: ModeAutoDetect, BiasPercent: 10, Direction: "sideways"}), ErrInvalidConfig)
}

type stubDetector struct{ apply bool }

func (s stubDetector) Detect(e *exposure.Exposure) Detection {
	return Detection{Apply: s.apply, Reason: "stub"}
}

func TestAutoDetectUsesDetector(t *testing.T) {
	ctx := context.Background()
	for _, apply := range []bool{true, false} {
		r, repo := setup(t, stubDetector{apply: apply})
		require.NoError(t, repo.Create(ctx, &WinLossControlConfig{Mode: ModeAutoDetect, Direction: FavorTarget, BiasPercent: 70, IsActive: true}))

		p, err := r.Resolve(ctx, "20250717010", time.Now())
		require.NoError(t, err)
		require.True(t, p.Active)
		assert.Equal(t, FavorPlatform, p.Direction)

		final := r.Finalize("20250717010", p, bookWith("m1"))
		assert.Equal(t, apply, final.Active)
		if apply {
			assert.Nil(t, final.Scope)
		}
	}
}
