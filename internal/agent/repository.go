package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrAgentNotFound   = errors.New("agent not found")
	ErrMemberNotFound  = errors.New("member not found")
	ErrUnknownMarket   = errors.New("unknown market")
	ErrRebateTooHigh   = errors.New("rebate percentage exceeds allowed maximum")
	ErrRebateNegative  = errors.New("rebate percentage must not be negative")
	ErrRebateInvariant = errors.New("agent rebate invariant violated")
	ErrChainTooDeep    = errors.New("agent chain exceeds maximum depth")
	ErrChainCycle      = errors.New("agent chain contains a cycle")
	ErrUnknownMode     = errors.New("unknown rebate update mode")
)

type AgentRepository interface {
	GetAgent(ctx context.Context, id string) (*Agent, error)
	GetMember(ctx context.Context, id string) (*Member, error)
	ListAgents(ctx context.Context) ([]Agent, error)
	CreateAgent(ctx context.Context, a *Agent) error
	CreateMember(ctx context.Context, m *Member) error
	Chain(ctx context.Context, agentID string) ([]Agent, error)
	SubtreeMemberIDs(ctx context.Context, agentID string) ([]string, error)
	UpdateRebate(ctx context.Context, agentID string, rate decimal.Decimal, mode string) ([]RebateChange, error)
}

type AgentRepositoryImpl struct {
	db *gorm.DB
}

func NewAgentRepositoryImpl(db *gorm.DB) AgentRepository {
	return &AgentRepositoryImpl{db: db}
}

func (r *AgentRepositoryImpl) GetAgent(ctx context.Context, id string) (*Agent, error) {
	var a Agent
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAgentNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *AgentRepositoryImpl) GetMember(ctx context.Context, id string) (*Member, error) {
	var m Member
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *AgentRepositoryImpl) ListAgents(ctx context.Context) ([]Agent, error) {
	var agents []Agent
	if err := r.db.WithContext(ctx).Order("level, id").Find(&agents).Error; err != nil {
		return nil, err
	}
	return agents, nil
}

// CreateAgent inserts a. A child is placed under its parent row locked in the same
// transaction: level, market and max rebate come from that row, so a concurrent rebate
// change on the parent either lands first and is seen here, or waits for the insert and
// then cascades over the new child. Roots arrive with their market cap already set.
func (r *AgentRepositoryImpl) CreateAgent(ctx context.Context, a *Agent) error {
	return r.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		if a.ParentID != nil {
			var parent Agent
			err := dbtx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", *a.ParentID).First(&parent).Error
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("failed to load parent agent: %w", ErrAgentNotFound)
				}
				return err
			}
			if parent.Level+1 > MaxDepth {
				return fmt.Errorf("%w: parent %s is at level %d", ErrChainTooDeep, parent.ID, parent.Level)
			}
			a.Level = parent.Level + 1
			a.Market = parent.Market
			a.MaxRebatePercentage = parent.RebatePercentage
		}
		if a.RebatePercentage.GreaterThan(a.MaxRebatePercentage) {
			return fmt.Errorf("%w: %s > %s", ErrRebateTooHigh, a.RebatePercentage, a.MaxRebatePercentage)
		}
		return dbtx.Create(a).Error
	})
}

func (r *AgentRepositoryImpl) CreateMember(ctx context.Context, m *Member) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *AgentRepositoryImpl) Chain(ctx context.Context, agentID string) ([]Agent, error) {
	return LoadChain(ctx, r.db, agentID)
}

func (r *AgentRepositoryImpl) SubtreeMemberIDs(ctx context.Context, agentID string) ([]string, error) {
	return LoadSubtreeMemberIDs(ctx, r.db, agentID)
}

// LoadChain walks from agentID up to the root and returns the agents nearest first.
// A parent that no longer exists ends the walk as if the last agent were the root.
// db may be a transaction handle.
func LoadChain(ctx context.Context, db *gorm.DB, agentID string) ([]Agent, error) {
	var chain []Agent
	seen := make(map[string]bool)
	next := agentID

	for {
		if seen[next] {
			return nil, fmt.Errorf("%w: at %s", ErrChainCycle, next)
		}
		seen[next] = true

		var a Agent
		err := db.WithContext(ctx).Where("id = ?", next).First(&a).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				if len(chain) == 0 {
					return nil, ErrAgentNotFound
				}
				break
			}
			return nil, err
		}

		chain = append(chain, a)
		if len(chain) > MaxDepth {
			return nil, fmt.Errorf("%w: starting at %s", ErrChainTooDeep, agentID)
		}
		if a.ParentID == nil {
			break
		}
		next = *a.ParentID
	}
	return chain, nil
}

// LoadSubtreeMemberIDs returns the members of agentID and of every agent below it.
func LoadSubtreeMemberIDs(ctx context.Context, db *gorm.DB, agentID string) ([]string, error) {
	agentIDs := []string{agentID}
	frontier := []string{agentID}

	for depth := 0; len(frontier) > 0; depth++ {
		if depth > MaxDepth {
			return nil, fmt.Errorf("%w: below %s", ErrChainTooDeep, agentID)
		}
		var children []string
		if err := db.WithContext(ctx).Model(&Agent{}).Where("parent_id IN ?", frontier).Pluck("id", &children).Error; err != nil {
			return nil, err
		}
		agentIDs = append(agentIDs, children...)
		frontier = children
	}

	var memberIDs []string
	if err := db.WithContext(ctx).Model(&Member{}).Where("agent_id IN ?", agentIDs).Order("id").Pluck("id", &memberIDs).Error; err != nil {
		return nil, err
	}
	return memberIDs, nil
}

// UpdateRebate changes an agent's rebate percentage and re-establishes the tree invariant
// below it in the same transaction: every child's max rebate follows its parent's rate, and a
// child whose rate now exceeds its parent's is either clamped (cascade) or aborts the change (reject).
func (r *AgentRepositoryImpl) UpdateRebate(ctx context.Context, agentID string, rate decimal.Decimal, mode string) ([]RebateChange, error) {
	var changes []RebateChange

	err := r.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		var a Agent
		if err := dbtx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", agentID).First(&a).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAgentNotFound
			}
			return err
		}
		if rate.GreaterThan(a.MaxRebatePercentage) {
			return fmt.Errorf("%w: %s > %s", ErrRebateTooHigh, rate, a.MaxRebatePercentage)
		}

		if err := setRebate(dbtx, a.ID, rate, a.MaxRebatePercentage); err != nil {
			return err
		}
		changes = append(changes, RebateChange{AgentID: a.ID, OldRebate: a.RebatePercentage, NewRebate: rate, NewMaxRebate: a.MaxRebatePercentage})

		type node struct {
			id   string
			rate decimal.Decimal
		}
		queue := []node{{id: a.ID, rate: rate}}
		for len(queue) > 0 {
			parent := queue[0]
			queue = queue[1:]

			var children []Agent
			if err := dbtx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("parent_id = ?", parent.id).Order("id").Find(&children).Error; err != nil {
				return err
			}
			for _, c := range children {
				newRate := c.RebatePercentage
				if newRate.GreaterThan(parent.rate) {
					if mode != RebateModeCascade {
						return fmt.Errorf("%w: child %s has %s above new parent rate %s", ErrRebateTooHigh, c.ID, c.RebatePercentage, parent.rate)
					}
					newRate = parent.rate
				}
				if newRate.Equal(c.RebatePercentage) && parent.rate.Equal(c.MaxRebatePercentage) {
					continue
				}
				if err := setRebate(dbtx, c.ID, newRate, parent.rate); err != nil {
					return err
				}
				changes = append(changes, RebateChange{AgentID: c.ID, OldRebate: c.RebatePercentage, NewRebate: newRate, NewMaxRebate: parent.rate})
				if !newRate.Equal(c.RebatePercentage) {
					queue = append(queue, node{id: c.ID, rate: newRate})
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return changes, nil
}

func setRebate(dbtx *gorm.DB, id string, rate, maxRate decimal.Decimal) error {
	return dbtx.Model(&Agent{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"rebate_percentage":     rate,
			"max_rebate_percentage": maxRate,
			"updated_at":            time.Now(),
		}).Error
}
