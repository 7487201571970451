package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Service struct {
	repo AgentRepository
	log  *zap.Logger
}

func NewService(repo AgentRepository, log *zap.Logger) *Service {
	return &Service{repo: repo, log: log}
}

func (s *Service) GetAgent(ctx context.Context, id string) (*Agent, error) {
	return s.repo.GetAgent(ctx, id)
}

func (s *Service) GetMember(ctx context.Context, id string) (*Member, error) {
	return s.repo.GetMember(ctx, id)
}

// CreateAgent builds the new node and hands it to the repository, which checks it against
// its locked parent. Roots are capped by their market's rebate rate; children inherit the
// parent's market and may never offer more than the parent's own rate.
func (s *Service) CreateAgent(ctx context.Context, req CreateAgentRequest) (*Agent, error) {
	if req.RebatePercentage.IsNegative() {
		return nil, ErrRebateNegative
	}

	now := time.Now()
	a := &Agent{
		ID:               uuid.New().String(),
		ParentID:         req.ParentID,
		Username:         req.Username,
		RebatePercentage: req.RebatePercentage,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if req.ParentID == nil {
		market, err := LookupMarket(req.Market)
		if err != nil {
			return nil, err
		}
		a.Level = 1
		a.Market = market.Code
		a.MaxRebatePercentage = market.RebateRate
	}

	if err := s.repo.CreateAgent(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}
	return a, nil
}

func (s *Service) CreateMember(ctx context.Context, req CreateMemberRequest) (*Member, error) {
	if _, err := s.repo.GetAgent(ctx, req.AgentID); err != nil {
		return nil, err
	}
	now := time.Now()
	m := &Member{
		ID:        uuid.New().String(),
		AgentID:   req.AgentID,
		Username:  req.Username,
		Balance:   req.Balance,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateMember(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to create member: %w", err)
	}
	return m, nil
}

// UpdateRebatePercentage is the single mutation point for agent rebate rates.
func (s *Service) UpdateRebatePercentage(ctx context.Context, agentID string, req UpdateRebateRequest) ([]RebateChange, error) {
	if req.RebatePercentage.IsNegative() {
		return nil, ErrRebateNegative
	}
	mode := req.Mode
	if mode == "" {
		mode = RebateModeReject
	}
	if mode != RebateModeReject && mode != RebateModeCascade {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	changes, err := s.repo.UpdateRebate(ctx, agentID, req.RebatePercentage, mode)
	if err != nil {
		return nil, err
	}
	for _, c := range changes[1:] {
		s.log.Info("cascaded agent rebate",
			zap.String("root_change", agentID),
			zap.String("agent_id", c.AgentID),
			zap.String("old_rebate", c.OldRebate.String()),
			zap.String("new_rebate", c.NewRebate.String()),
			zap.String("new_max_rebate", c.NewMaxRebate.String()),
		)
	}
	return changes, nil
}

// ChainForMember returns the member's agent chain, direct agent first.
func (s *Service) ChainForMember(ctx context.Context, memberID string) ([]Agent, error) {
	m, err := s.repo.GetMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	return s.repo.Chain(ctx, m.AgentID)
}

func (s *Service) SubtreeMemberIDs(ctx context.Context, agentID string) ([]string, error) {
	return s.repo.SubtreeMemberIDs(ctx, agentID)
}

// Verify scans the whole tree and reports every agent breaking a rebate invariant.
// It never repairs anything.
func (s *Service) Verify(ctx context.Context) ([]Violation, error) {
	agents, err := s.repo.ListAgents(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*Agent, len(agents))
	for i := range agents {
		byID[agents[i].ID] = &agents[i]
	}

	var out []Violation
	for i := range agents {
		a := &agents[i]
		if a.Level > MaxDepth {
			out = append(out, Violation{AgentID: a.ID, Kind: ViolationTooDeep, Detail: fmt.Sprintf("level %d", a.Level)})
		}
		if a.ParentID == nil {
			market, err := LookupMarket(a.Market)
			if err != nil {
				out = append(out, Violation{AgentID: a.ID, Kind: ViolationExceedsMarket, Detail: err.Error()})
				continue
			}
			if a.RebatePercentage.GreaterThan(market.RebateRate) {
				out = append(out, Violation{AgentID: a.ID, Kind: ViolationExceedsMarket,
					Detail: fmt.Sprintf("%s > %s", a.RebatePercentage, market.RebateRate)})
			}
			continue
		}
		p, ok := byID[*a.ParentID]
		if !ok {
			out = append(out, Violation{AgentID: a.ID, Kind: ViolationMissingParent, Detail: *a.ParentID})
			continue
		}
		if a.RebatePercentage.GreaterThan(p.RebatePercentage) {
			out = append(out, Violation{AgentID: a.ID, Kind: ViolationExceedsParent,
				Detail: fmt.Sprintf("%s > parent %s", a.RebatePercentage, p.RebatePercentage)})
		}
		if !a.MaxRebatePercentage.Equal(p.RebatePercentage) {
			out = append(out, Violation{AgentID: a.ID, Kind: ViolationMaxDrift,
				Detail: fmt.Sprintf("max %s != parent %s", a.MaxRebatePercentage, p.RebatePercentage)})
		}
	}

	for _, v := range out {
		s.log.Error("agent tree violation", zap.String("agent_id", v.AgentID), zap.String("kind", v.Kind), zap.String("detail", v.Detail))
	}
	return out, nil
}

// Margin is the share an agent keeps from a stake after ceding childRate to the tier below.
func Margin(stake, rate, childRate decimal.Decimal) decimal.Decimal {
	return stake.Mul(rate.Sub(childRate))
}
