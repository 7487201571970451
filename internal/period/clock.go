package period

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"lottery_service/internal/shared/metrics"
)

// RoundRunner draws, settles and rebates one period. It must be safe to call again for a
// period whose previous attempt failed part way.
type RoundRunner interface {
	RunRound(ctx context.Context, periodID string) error
}

type Timing struct {
	Betting time.Duration
	Drawing time.Duration
	Retry   time.Duration // wait between failed round attempts
}

// Clock is the single sequencer of the period lifecycle. All state it acts on is
// persisted on every transition and reloaded by Recover.
type Clock struct {
	repo    PeriodRepository
	runner  RoundRunner
	cal     Calendar
	timing  Timing
	log     *zap.Logger
	metrics *metrics.Engine
	hub     *Hub

	stepMu      sync.Mutex
	mu          sync.RWMutex
	mode        string
	current     *Period
	next        *Period
	nextAttempt time.Time
}

func NewClock(repo PeriodRepository, runner RoundRunner, cal Calendar, timing Timing, log *zap.Logger, m *metrics.Engine, hub *Hub) *Clock {
	if timing.Retry <= 0 {
		timing.Retry = 5 * time.Second
	}
	return &Clock{
		repo:    repo,
		runner:  runner,
		cal:     cal,
		timing:  timing,
		log:     log,
		metrics: m,
		hub:     hub,
		mode:    ModeRunning,
	}
}

// Recover rebuilds the in-memory view from storage. Betting or drawing periods found here
// continue from their stored deadline on the next Step.
func (c *Clock) Recover(ctx context.Context) error {
	c.stepMu.Lock()
	defer c.stepMu.Unlock()

	state, err := c.repo.LoadState(ctx)
	if err != nil {
		return fmt.Errorf("failed to load clock state: %w", err)
	}

	var current, next *Period
	mode := ModeRunning
	if state != nil {
		mode = state.Mode
		if current, err = c.optional(ctx, state.CurrentPeriodID); err != nil {
			return err
		}
		if next, err = c.optional(ctx, state.NextPeriodID); err != nil {
			return err
		}
	} else if current, err = c.repo.Latest(ctx); err != nil {
		return fmt.Errorf("failed to load latest period: %w", err)
	}

	c.mu.Lock()
	c.mode, c.current, c.next = mode, current, next
	c.nextAttempt = time.Time{}
	c.mu.Unlock()

	if current != nil {
		c.log.Info("period clock recovered",
			zap.String("period_id", current.ID),
			zap.String("status", current.Status),
			zap.Time("deadline", current.Deadline),
			zap.String("mode", mode),
		)
	} else {
		c.log.Info("period clock starting fresh")
	}
	return nil
}

func (c *Clock) optional(ctx context.Context, id string) (*Period, error) {
	if id == "" {
		return nil, nil
	}
	p, err := c.repo.Get(ctx, id)
	if errors.Is(err, ErrPeriodNotFound) {
		return nil, nil
	}
	return p, err
}

// Run steps the clock once a second until ctx is cancelled.
func (c *Clock) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		if err := c.Step(ctx, time.Now()); err != nil {
			c.log.Warn("period clock step failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Step advances the state machine as far as now allows.
func (c *Clock) Step(ctx context.Context, now time.Time) error {
	c.stepMu.Lock()
	defer c.stepMu.Unlock()

	// A single step can cover several transitions, e.g. betting closes and the round settles.
	for i := 0; i < 4; i++ {
		moved, err := c.advance(ctx, now)
		if err != nil || !moved {
			return err
		}
	}
	return nil
}

func (c *Clock) advance(ctx context.Context, now time.Time) (bool, error) {
	cur := c.current
	switch {
	case cur == nil, cur.Status == StatusSettled && !now.Before(cur.Deadline), cur.Status == StatusWaiting:
		return c.open(ctx, now)
	case cur.Status == StatusBetting && !now.Before(cur.Deadline):
		return true, c.closeBetting(ctx, now)
	case cur.Status == StatusDrawing && !now.Before(c.nextAttempt):
		return c.runRound(ctx, now)
	}
	return false, nil
}

func (c *Clock) closeBetting(ctx context.Context, now time.Time) error {
	cur := *c.current
	cur.Status = StatusDrawing
	cur.Deadline = now.Add(c.timing.Drawing)
	cur.UpdatedAt = now

	nextID := c.cal.NextID(cur.ID, now)
	day, seq, _ := ParseID(nextID)
	next := &Period{
		ID:        nextID,
		GameDay:   day,
		Seq:       seq,
		Status:    StatusWaiting,
		Deadline:  cur.Deadline,
		CreatedAt: now,
		UpdatedAt: now,
	}

	state := &ClockState{Mode: ModeRunning, CurrentPeriodID: cur.ID, NextPeriodID: next.ID, UpdatedAt: now}
	if err := c.repo.Commit(ctx, state, "", &cur, next); err != nil {
		return fmt.Errorf("failed to close betting for %s: %w", cur.ID, err)
	}

	c.set(ModeRunning, &cur, next)
	c.nextAttempt = time.Time{}
	c.log.Info("betting closed", zap.String("period_id", cur.ID), zap.String("next_period_id", next.ID))
	c.metrics.PeriodTransition.WithLabelValues(StatusDrawing).Inc()
	c.publish(now)
	return nil
}

func (c *Clock) runRound(ctx context.Context, now time.Time) (bool, error) {
	cur := *c.current
	if err := c.runner.RunRound(ctx, cur.ID); err != nil {
		c.nextAttempt = now.Add(c.timing.Retry)
		c.log.Error("round failed; period held in drawing",
			zap.String("period_id", cur.ID),
			zap.Time("next_attempt", c.nextAttempt),
			zap.Error(err),
		)
		return false, nil
	}

	cur.Status = StatusSettled
	cur.SettledAt = &now
	cur.UpdatedAt = now
	if cur.Deadline.Before(now) {
		cur.Deadline = now
	}

	state := &ClockState{Mode: ModeRunning, CurrentPeriodID: cur.ID, NextPeriodID: c.nextID(), UpdatedAt: now}
	if err := c.repo.Commit(ctx, state, "", &cur); err != nil {
		return false, fmt.Errorf("failed to mark %s settled: %w", cur.ID, err)
	}

	c.set(ModeRunning, &cur, c.next)
	c.log.Info("period settled", zap.String("period_id", cur.ID))
	c.metrics.PeriodTransition.WithLabelValues(StatusSettled).Inc()
	c.publish(now)
	return true, nil
}

// open starts the next betting window, or parks the clock in maintenance when the
// calendar forbids opening. A waiting period whose identifier went stale (the gaming
// day rolled over while parked) is replaced before opening.
func (c *Clock) open(ctx context.Context, now time.Time) (bool, error) {
	if !c.cal.CanOpen(now) {
		if c.mode == ModeMaintenance {
			return false, nil
		}
		state := &ClockState{Mode: ModeMaintenance, CurrentPeriodID: c.currentID(), NextPeriodID: c.nextID(), UpdatedAt: now}
		if err := c.repo.Commit(ctx, state, ""); err != nil {
			return false, fmt.Errorf("failed to enter maintenance: %w", err)
		}
		c.set(ModeMaintenance, c.current, c.next)
		c.log.Info("period clock entered maintenance", zap.Time("at", now))
		c.metrics.PeriodTransition.WithLabelValues(StatusMaintain).Inc()
		c.publish(now)
		return false, nil
	}

	var candidate *Period
	prevID := ""
	switch {
	case c.current != nil && c.current.Status == StatusWaiting:
		candidate = c.current
	case c.next != nil && c.next.Status == StatusWaiting:
		candidate = c.next
		prevID = c.currentID()
	default:
		prevID = c.currentID()
	}

	wantID := c.cal.NextID(prevID, now)
	removeID := ""
	if candidate != nil && candidate.ID != wantID && prevID != "" {
		removeID = candidate.ID
	} else if candidate != nil {
		wantID = candidate.ID
	}

	day, seq, _ := ParseID(wantID)
	p := &Period{ID: wantID, GameDay: day, Seq: seq, CreatedAt: now}
	if candidate != nil && candidate.ID == wantID {
		*p = *candidate
	}
	p.Status = StatusBetting
	p.Deadline = now.Add(c.timing.Betting)
	p.OpenedAt = &now
	p.UpdatedAt = now

	state := &ClockState{Mode: ModeRunning, CurrentPeriodID: p.ID, UpdatedAt: now}
	if err := c.repo.Commit(ctx, state, removeID, p); err != nil {
		return false, fmt.Errorf("failed to open period %s: %w", p.ID, err)
	}

	c.set(ModeRunning, p, nil)
	c.log.Info("betting opened", zap.String("period_id", p.ID), zap.Time("deadline", p.Deadline))
	c.metrics.PeriodTransition.WithLabelValues(StatusBetting).Inc()
	c.publish(now)
	// nothing else can happen until the betting deadline
	return false, nil
}

func (c *Clock) set(mode string, current, next *Period) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode, c.current, c.next = mode, current, next
}

func (c *Clock) currentID() string {
	if c.current == nil {
		return ""
	}
	return c.current.ID
}

func (c *Clock) nextID() string {
	if c.next == nil {
		return ""
	}
	return c.next.ID
}

// Snapshot reports the clock as seen at now.
func (c *Clock) Snapshot(now time.Time) Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{At: now}
	if c.current != nil {
		s.PeriodID = c.current.ID
		s.Status = c.current.Status
		s.Deadline = c.current.Deadline
		if remaining := c.current.Deadline.Sub(now); remaining > 0 {
			s.RemainingSeconds = int(remaining.Round(time.Second) / time.Second)
		}
	}
	if c.next != nil {
		s.NextPeriodID = c.next.ID
	}
	if c.mode == ModeMaintenance {
		s.Status = StatusMaintain
	}
	return s
}

func (c *Clock) publish(now time.Time) {
	if c.hub != nil {
		c.hub.Notify(c.Snapshot(now))
	}
}
