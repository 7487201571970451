package period

import "time"

const (
	StatusWaiting  = "waiting"
	StatusBetting  = "betting"
	StatusDrawing  = "drawing"
	StatusSettled  = "settled"
	StatusMaintain = "maintenance" // clock pseudo-state, never stored on a period
)

const (
	ModeRunning     = "running"
	ModeMaintenance = "maintenance"
)

type Period struct {
	ID        string     `gorm:"column:id;primaryKey;type:varchar(16)"`
	GameDay   string     `gorm:"column:game_day;type:varchar(8);not null;index"`
	Seq       int        `gorm:"column:seq;not null"`
	Status    string     `gorm:"column:status;type:varchar(12);not null;index"` // "waiting", "betting", "drawing", "settled"
	Deadline  time.Time  `gorm:"column:deadline;not null"`                      // end of the current phase
	OpenedAt  *time.Time `gorm:"column:opened_at"`
	DrawnAt   *time.Time `gorm:"column:drawn_at"`
	SettledAt *time.Time `gorm:"column:settled_at"`
	CreatedAt time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt time.Time  `gorm:"column:updated_at;not null"`
}

func (Period) TableName() string { return "periods" }

// ClockState is the single persisted row the clock resumes from after a restart.
type ClockState struct {
	ID              int       `gorm:"column:id;primaryKey"`
	Mode            string    `gorm:"column:mode;type:varchar(12);not null"`
	CurrentPeriodID string    `gorm:"column:current_period_id;type:varchar(16)"`
	NextPeriodID    string    `gorm:"column:next_period_id;type:varchar(16)"`
	UpdatedAt       time.Time `gorm:"column:updated_at;not null"`
}

func (ClockState) TableName() string { return "clock_state" }

// Snapshot is the read model of the clock handed to the API and to event subscribers.
type Snapshot struct {
	PeriodID         string    `json:"period_id"`
	Status           string    `json:"status"`
	Deadline         time.Time `json:"deadline"`
	RemainingSeconds int       `json:"remaining_seconds"`
	NextPeriodID     string    `json:"next_period_id,omitempty"`
	At               time.Time `json:"at"`
}
