package control

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrConfigNotFound = errors.New("control config not found")
	ErrInvalidConfig  = errors.New("invalid control config")
)

type ControlRepository interface {
	Active(ctx context.Context) ([]WinLossControlConfig, error)
	Create(ctx context.Context, cfg *WinLossControlConfig) error
	SetActive(ctx context.Context, id string, active bool) error
}

type ControlRepositoryImpl struct {
	db *gorm.DB
}

func NewControlRepositoryImpl(db *gorm.DB) ControlRepository {
	return &ControlRepositoryImpl{db: db}
}

func (r *ControlRepositoryImpl) Active(ctx context.Context) ([]WinLossControlConfig, error) {
	var out []WinLossControlConfig
	err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("created_at").Find(&out).Error
	return out, err
}

func (r *ControlRepositoryImpl) Create(ctx context.Context, cfg *WinLossControlConfig) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	now := time.Now()
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}
	cfg.CreatedAt, cfg.UpdatedAt = now, now
	return r.db.WithContext(ctx).Create(cfg).Error
}

func (r *ControlRepositoryImpl) SetActive(ctx context.Context, id string, active bool) error {
	res := r.db.WithContext(ctx).Model(&WinLossControlConfig{}).Where("id = ?", id).
		Updates(map[string]interface{}{"is_active": active, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConfigNotFound
	}
	return nil
}

func Validate(cfg *WinLossControlConfig) error {
	if cfg.BiasPercent < 0 || cfg.BiasPercent > 100 {
		return fmt.Errorf("%w: bias %d outside 0-100", ErrInvalidConfig, cfg.BiasPercent)
	}
	if cfg.Direction == "" {
		cfg.Direction = FavorPlatform
	}
	if cfg.Direction != FavorPlatform && cfg.Direction != FavorTarget {
		return fmt.Errorf("%w: direction %q", ErrInvalidConfig, cfg.Direction)
	}
	switch cfg.Mode {
	case ModeNormal, ModeAutoDetect:
	case ModeAgentLine:
		if cfg.TargetAgentID == nil || *cfg.TargetAgentID == "" {
			return fmt.Errorf("%w: agent_line needs a target agent", ErrInvalidConfig)
		}
	case ModeSingleMember:
		if cfg.TargetMemberID == nil || *cfg.TargetMemberID == "" {
			return fmt.Errorf("%w: single_member needs a target member", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: mode %q", ErrInvalidConfig, cfg.Mode)
	}
	return nil
}
