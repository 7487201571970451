package control

import "time"

const (
	ModeNormal       = "normal"
	ModeAgentLine    = "agent_line"
	ModeSingleMember = "single_member"
	ModeAutoDetect   = "auto_detect"
)

const (
	FavorPlatform = "favor_platform" // loss control for the target
	FavorTarget   = "favor_target"   // win control for the target
)

// WinLossControlConfig is written by the admin console; the engine only reads active rows.
type WinLossControlConfig struct {
	ID             string    `gorm:"column:id;primaryKey;type:varchar(36)"`
	Mode           string    `gorm:"column:mode;type:varchar(20);not null"`
	TargetAgentID  *string   `gorm:"column:target_agent_id;type:varchar(36)"`
	TargetMemberID *string   `gorm:"column:target_member_id;type:varchar(36)"`
	Direction      string    `gorm:"column:direction;type:varchar(20);not null"`
	BiasPercent    int       `gorm:"column:bias_percent;not null"`
	StartPeriod    string    `gorm:"column:start_period;type:varchar(16)"` // empty = immediately
	IsActive       bool      `gorm:"column:is_active;not null;index"`
	CreatedAt      time.Time `gorm:"column:created_at;not null"`
	UpdatedAt      time.Time `gorm:"column:updated_at;not null"`
}

func (WinLossControlConfig) TableName() string { return "win_loss_control" }
