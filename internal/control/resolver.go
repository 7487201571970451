package control

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"lottery_service/internal/exposure"
	"lottery_service/internal/period"
)

// Directory is the read-only view of the agent tree the resolver needs.
type Directory interface {
	SubtreeMemberIDs(ctx context.Context, agentID string) ([]string, error)
}

type Resolver struct {
	repo     ControlRepository
	dir      Directory
	detector Detector
	log      *zap.Logger
}

func NewResolver(repo ControlRepository, dir Directory, detector Detector, log *zap.Logger) *Resolver {
	return &Resolver{repo: repo, dir: dir, detector: detector, log: log}
}

// Resolve picks the control policy for periodID. Ambiguity never fails the round: more
// than one eligible config, or a target that cannot be scoped, resolves to no control.
func (r *Resolver) Resolve(ctx context.Context, periodID string, now time.Time) (Policy, error) {
	cfgs, err := r.repo.Active(ctx)
	if err != nil {
		return Policy{}, fmt.Errorf("failed to load control configs: %w", err)
	}

	var eligible []WinLossControlConfig
	for _, c := range cfgs {
		if c.StartPeriod == "" || period.Compare(c.StartPeriod, periodID) <= 0 {
			eligible = append(eligible, c)
		}
	}
	switch len(eligible) {
	case 0:
		return NoControl("no active config"), nil
	case 1:
	default:
		ids := make([]string, len(eligible))
		for i, c := range eligible {
			ids[i] = c.ID
		}
		r.log.Warn("more than one control config active; no control this period",
			zap.String("period_id", periodID), zap.Strings("config_ids", ids))
		return NoControl("ambiguous: multiple active configs"), nil
	}

	cfg := eligible[0]
	if cfg.Mode == ModeNormal || cfg.BiasPercent == 0 {
		return NoControl("config " + cfg.ID + " applies no bias"), nil
	}
	if err := Validate(&cfg); err != nil {
		r.log.Warn("active control config is invalid; no control this period",
			zap.String("period_id", periodID), zap.String("config_id", cfg.ID), zap.Error(err))
		return NoControl("invalid config"), nil
	}

	p := Policy{
		Active:    true,
		ConfigID:  cfg.ID,
		Mode:      cfg.Mode,
		Direction: cfg.Direction,
		Bias:      cfg.BiasPercent,
	}
	switch cfg.Mode {
	case ModeSingleMember:
		p.Scope = []string{*cfg.TargetMemberID}
	case ModeAgentLine:
		members, err := r.dir.SubtreeMemberIDs(ctx, *cfg.TargetAgentID)
		if err != nil {
			return Policy{}, fmt.Errorf("failed to scope agent line %s: %w", *cfg.TargetAgentID, err)
		}
		if len(members) == 0 {
			r.log.Warn("agent line has no members; no control this period",
				zap.String("period_id", periodID), zap.String("agent_id", *cfg.TargetAgentID))
			return NoControl("empty target scope"), nil
		}
		p.Scope = members
	case ModeAutoDetect:
		// the whole house is the target; only the platform can be favoured
		p.Direction = FavorPlatform
		p.Reason = "pending detection"
	}

	r.log.Debug("control policy resolved",
		zap.String("period_id", periodID), zap.String("mode", p.Mode),
		zap.Int("bias", p.Bias), zap.Int("scope", len(p.Scope)), zap.Time("at", now))
	return p, nil
}

// Finalize narrows a resolved policy against the period's exposure: targets without bets
// this period drop the policy, and auto_detect consults the Detector.
func (r *Resolver) Finalize(periodID string, p Policy, book *exposure.Book) Policy {
	if !p.Active {
		return p
	}

	if p.Mode == ModeAutoDetect {
		det := r.detector.Detect(book.Total)
		r.log.Info("auto detect evaluated",
			zap.String("period_id", periodID),
			zap.Bool("apply", det.Apply),
			zap.Float64("expected_margin", det.ExpectedMargin),
			zap.Float64("player_win_rate", det.PlayerWinRate),
			zap.Float64("tail_rate", det.TailRate),
		)
		if !det.Apply {
			return NoControl("auto detect: " + det.Reason)
		}
		p.Reason = "auto detect: " + det.Reason
		return p
	}

	var scoped []string
	for _, id := range p.Scope {
		if _, ok := book.ByMember[id]; ok {
			scoped = append(scoped, id)
		}
	}
	if len(scoped) == 0 {
		r.log.Warn("control target placed no bets; no control this period",
			zap.String("period_id", periodID), zap.String("config_id", p.ConfigID), zap.String("mode", p.Mode))
		return NoControl("target scope has no bets this period")
	}
	p.Scope = scoped
	p.Reason = fmt.Sprintf("%s over %d bettor(s)", p.Mode, len(scoped))
	return p
}
