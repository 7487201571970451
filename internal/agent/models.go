package agent

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxDepth is the deepest level an agent may sit at; the root is level 1.
const MaxDepth = 15

const (
	RebateModeReject  = "reject"
	RebateModeCascade = "cascade"
)

// Agent is a node of the reseller tree. Rebate percentages are fractions (0.0090 = 0.9%).
type Agent struct {
	ID                  string          `gorm:"column:id;primaryKey;type:varchar(36)"`
	ParentID            *string         `gorm:"column:parent_id;type:varchar(36);index"`
	Username            string          `gorm:"column:username;type:varchar(64);not null;uniqueIndex"`
	Level               int             `gorm:"column:level;not null"`
	Market              string          `gorm:"column:market;type:varchar(4);not null"`
	RebatePercentage    decimal.Decimal `gorm:"column:rebate_percentage;type:numeric(5,4);not null"`
	MaxRebatePercentage decimal.Decimal `gorm:"column:max_rebate_percentage;type:numeric(5,4);not null"`
	Balance             decimal.Decimal `gorm:"column:balance;type:numeric(24,6);not null;default:0"`
	Version             int             `gorm:"column:version;not null;default:1"`
	CreatedAt           time.Time       `gorm:"column:created_at;not null"`
	UpdatedAt           time.Time       `gorm:"column:updated_at;not null"`
}

func (Agent) TableName() string { return "agents" }

func (a *Agent) IsRoot() bool { return a.ParentID == nil }

type Member struct {
	ID        string          `gorm:"column:id;primaryKey;type:varchar(36)"`
	AgentID   string          `gorm:"column:agent_id;type:varchar(36);not null;index"`
	Username  string          `gorm:"column:username;type:varchar(64);not null;uniqueIndex"`
	Balance   decimal.Decimal `gorm:"column:balance;type:numeric(24,6);not null;default:0"`
	Version   int             `gorm:"column:version;not null;default:1"`
	CreatedAt time.Time       `gorm:"column:created_at;not null"`
	UpdatedAt time.Time       `gorm:"column:updated_at;not null"`
}

func (Member) TableName() string { return "members" }

type CreateAgentRequest struct {
	ParentID         *string         `json:"parent_id"`
	Username         string          `json:"username" binding:"required"`
	RebatePercentage decimal.Decimal `json:"rebate_percentage"`
	Market           string          `json:"market"` // roots only; children inherit
}

type CreateMemberRequest struct {
	AgentID  string          `json:"agent_id" binding:"required"`
	Username string          `json:"username" binding:"required"`
	Balance  decimal.Decimal `json:"balance"`
}

type UpdateRebateRequest struct {
	RebatePercentage decimal.Decimal `json:"rebate_percentage"`
	Mode             string          `json:"mode"` // "reject" (default) | "cascade"
}

// RebateChange describes one agent touched by a rebate update.
type RebateChange struct {
	AgentID      string          `json:"agent_id"`
	OldRebate    decimal.Decimal `json:"old_rebate"`
	NewRebate    decimal.Decimal `json:"new_rebate"`
	NewMaxRebate decimal.Decimal `json:"new_max_rebate"`
}

const (
	ViolationExceedsParent = "rebate_exceeds_parent"
	ViolationMaxDrift      = "max_rebate_drift"
	ViolationExceedsMarket = "rebate_exceeds_market"
	ViolationMissingParent = "missing_parent"
	ViolationTooDeep       = "too_deep"
)

type Violation struct {
	AgentID string `json:"agent_id"`
	Kind    string `json:"kind"`
	Detail  string `json:"detail"`
}
