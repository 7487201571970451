package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"lottery_service/internal/agent"
	"lottery_service/internal/control"
	"lottery_service/internal/draw"
	"lottery_service/internal/events"
	"lottery_service/internal/exposure"
	"lottery_service/internal/period"
	"lottery_service/internal/rebate"
	"lottery_service/internal/settlement"
	"lottery_service/internal/shared/logger"
	"lottery_service/internal/shared/metrics"
)

var (
	ErrResultNotPersisted = errors.New("draw result could not be persisted")
	ErrIntegrity          = errors.New("data integrity violation")
)

type ExposureSource interface {
	Aggregate(ctx context.Context, periodID string) (*exposure.Book, error)
}

type PolicyResolver interface {
	Resolve(ctx context.Context, periodID string, now time.Time) (control.Policy, error)
	Finalize(periodID string, p control.Policy, book *exposure.Book) control.Policy
}

type Settler interface {
	Settle(ctx context.Context, periodID string, result draw.Result) (*settlement.Summary, error)
}

type RebateDistributor interface {
	DistributePeriod(ctx context.Context, periodID string) (*rebate.Summary, error)
}

type Options struct {
	PersistMaxAttempts int
	PersistTimeout     time.Duration
	PersistBackoff     time.Duration // first wait; doubles per attempt
}

func (o *Options) defaults() {
	if o.PersistMaxAttempts < 1 {
		o.PersistMaxAttempts = 5
	}
	if o.PersistTimeout <= 0 {
		o.PersistTimeout = 2 * time.Second
	}
	if o.PersistBackoff <= 0 {
		o.PersistBackoff = 100 * time.Millisecond
	}
}

type Deps struct {
	Results   draw.ResultRepository
	Exposure  ExposureSource
	Resolver  PolicyResolver
	Generator *draw.Generator
	Settler   Settler
	Rebates   RebateDistributor
	Publisher events.Publisher
	Log       *zap.Logger
	Metrics   *metrics.Engine
}

// Engine runs the draw of one period end to end. It implements period.RoundRunner.
type Engine struct {
	Deps
	opts Options
	now  func() time.Time
}

func New(d Deps, opts Options) *Engine {
	opts.defaults()
	d.Log = logger.Or(d.Log)
	if d.Metrics == nil {
		d.Metrics = metrics.NewNop()
	}
	if d.Publisher == nil {
		d.Publisher = events.Nop{}
	}
	return &Engine{Deps: d, opts: opts, now: time.Now}
}

// RunRound draws, settles and rebates periodID. Every stage is safe to repeat: a result
// already persisted for the period is reused, and settlement and rebates skip work that a
// previous attempt committed.
func (e *Engine) RunRound(ctx context.Context, periodID string) error {
	start := e.now()
	log := e.Log.With(zap.String("period_id", periodID))

	rec, err := e.result(ctx, periodID, log)
	if err != nil {
		return err
	}
	result, err := rec.Result()
	if err != nil {
		return e.fail(log, "draw", err)
	}

	settled, err := e.Settler.Settle(ctx, periodID, result)
	if err != nil {
		return e.fail(log, "settle", err)
	}
	rebates, err := e.Rebates.DistributePeriod(ctx, periodID)
	if err != nil {
		return e.fail(log, "rebate", err)
	}

	e.Metrics.RoundsSettled.Inc()
	e.Metrics.RoundDuration.Observe(e.now().Sub(start).Seconds())
	log.Info("round complete",
		zap.Ints("result", result[:]),
		zap.Bool("controlled", rec.Controlled),
		zap.Int("bets", settled.Bets),
		zap.Int("winners", settled.Winners),
		zap.Int("rebate_records", rebates.Records),
	)

	ev := events.PeriodEvent{
		Type:       events.TypeResult,
		PeriodID:   periodID,
		Status:     period.StatusSettled,
		Result:     rec.Positions,
		Controlled: rec.Controlled,
		Bets:       settled.Bets,
		Winners:    settled.Winners,
		Stake:      settled.Stake,
		Payout:     settled.Payout,
		Rebates:    rebates.Total,
		At:         e.now(),
	}
	if err := e.Publisher.Publish(ctx, ev); err != nil {
		log.Warn("result event not delivered", zap.Error(err))
	}
	return nil
}

// result returns the persisted draw for the period, generating and saving one if needed.
func (e *Engine) result(ctx context.Context, periodID string, log *zap.Logger) (*draw.Record, error) {
	rec, err := e.Results.Get(ctx, periodID)
	if err == nil {
		log.Info("reusing persisted draw result")
		return rec, nil
	}
	if !errors.Is(err, draw.ErrResultNotFound) {
		return nil, e.fail(log, "draw", fmt.Errorf("failed to load draw result: %w", err))
	}

	var (
		book   *exposure.Book
		policy control.Policy
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		book, err = e.Exposure.Aggregate(gctx, periodID)
		return err
	})
	g.Go(func() error {
		var err error
		policy, err = e.Resolver.Resolve(gctx, periodID, e.now())
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, e.fail(log, "draw", err)
	}

	policy = e.Resolver.Finalize(periodID, policy, book)
	out := e.Generator.Generate(policy.Liability(book), policy.GeneratorBias())

	rec, err = draw.NewRecord(periodID, out.Result, out.Controlled, policy.Mode)
	if err != nil {
		return nil, e.fail(log, "draw", err)
	}
	if err := e.persist(ctx, rec, log); err != nil {
		return nil, err
	}

	if out.Controlled {
		e.Metrics.ControlApplied.WithLabelValues(policy.Mode).Inc()
	}
	log.Info("draw result persisted",
		zap.Ints("result", out.Result[:]),
		zap.String("policy_mode", policy.Mode),
		zap.Bool("controlled", out.Controlled),
		zap.String("policy_reason", policy.Reason),
		zap.Int("bettors", len(book.ByMember)),
	)
	return rec, nil
}

// persist saves rec with a per-attempt timeout and exponential backoff. When another
// writer got there first the stored result wins.
func (e *Engine) persist(ctx context.Context, rec *draw.Record, log *zap.Logger) error {
	wait := e.opts.PersistBackoff
	var lastErr error
attempts:
	for attempt := 1; attempt <= e.opts.PersistMaxAttempts; attempt++ {
		e.Metrics.PersistAttempts.Inc()

		actx, cancel := context.WithTimeout(ctx, e.opts.PersistTimeout)
		err := e.Results.Save(actx, rec)
		cancel()
		if err == nil {
			return nil
		}
		if errors.Is(err, draw.ErrResultExists) {
			stored, gerr := e.Results.Get(ctx, rec.PeriodID)
			if gerr == nil {
				log.Warn("draw result already stored; keeping it")
				*rec = *stored
				return nil
			}
			err = gerr
		}

		lastErr = err
		log.Warn("draw result persist failed", zap.Int("attempt", attempt), zap.Error(err))
		if attempt == e.opts.PersistMaxAttempts {
			break attempts
		}
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
			break attempts
		case <-time.After(wait):
			wait *= 2
		}
	}

	e.Metrics.RoundFailures.WithLabelValues("persist").Inc()
	log.Error("draw result not persisted; operator intervention required",
		zap.Bool("fatal", true),
		zap.Int("attempts", e.opts.PersistMaxAttempts),
		zap.Error(lastErr),
	)
	return fmt.Errorf("%w: %w", ErrResultNotPersisted, lastErr)
}

// fail counts a failed stage and marks contract violations as integrity errors.
func (e *Engine) fail(log *zap.Logger, stage string, err error) error {
	e.Metrics.RoundFailures.WithLabelValues(stage).Inc()
	if isIntegrity(err) {
		log.Error("integrity violation; period halted", zap.String("stage", stage), zap.Error(err))
		return fmt.Errorf("%w: %s: %w", ErrIntegrity, stage, err)
	}
	log.Warn("round stage failed", zap.String("stage", stage), zap.Error(err))
	return fmt.Errorf("failed to %s: %w", stage, err)
}

func isIntegrity(err error) bool {
	for _, target := range []error{
		agent.ErrRebateInvariant,
		agent.ErrChainTooDeep,
		agent.ErrChainCycle,
		draw.ErrMalformedResult,
		settlement.ErrDuplicateSettlement,
		settlement.ErrCorruptBet,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
