package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"lottery_service/internal/agent"
	"lottery_service/internal/api"
	"lottery_service/internal/bet"
	"lottery_service/internal/control"
	"lottery_service/internal/draw"
	"lottery_service/internal/engine"
	"lottery_service/internal/events"
	"lottery_service/internal/exposure"
	"lottery_service/internal/period"
	"lottery_service/internal/rebate"
	"lottery_service/internal/settlement"
	"lottery_service/internal/shared/cache"
	"lottery_service/internal/shared/config"
	"lottery_service/internal/shared/db"
	"lottery_service/internal/shared/kafka"
	"lottery_service/internal/shared/logger"
	"lottery_service/internal/shared/metrics"
	"lottery_service/internal/wallet"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Open(cfg.DBDriver, cfg.DBConnStr)
	if err != nil {
		log.Fatal("failed to connect database", zap.String("driver", cfg.DBDriver), zap.Error(err))
	}
	if cfg.DBAutoMigrate {
		err := db.Migrate(gdb, log,
			&agent.Agent{}, &agent.Member{}, &wallet.TransactionRecord{},
			&period.Period{}, &period.ClockState{}, &bet.Bet{},
			&draw.Record{}, &control.WinLossControlConfig{},
		)
		if err != nil {
			log.Fatal("migration failed", zap.Error(err))
		}
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		log.Fatal("failed to get sql db", zap.Error(err))
	}
	defer sqlDB.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewEngine(reg)

	// repositories and services
	agentRepo := agent.NewAgentRepositoryImpl(gdb)
	agentService := agent.NewService(agentRepo, log)
	walletRepo := wallet.NewWalletRepositoryImpl(gdb)
	walletService := wallet.NewService(walletRepo)
	betService := bet.NewService(bet.NewBetRepositoryImpl(gdb, walletRepo), log, m)
	periodRepo := period.NewPeriodRepositoryImpl(gdb)
	resultRepo := draw.NewResultRepositoryImpl(gdb)

	if violations, err := agentService.Verify(ctx); err != nil {
		log.Error("agent tree verification failed", zap.Error(err))
	} else {
		log.Info("agent tree verified", zap.Int("violations", len(violations)))
	}

	// period event sinks
	var sinks events.Fanout
	if cfg.RedisAddr != "" {
		rdb, err := cache.ConnectRedis(cfg.RedisAddr)
		if err != nil {
			log.Fatal("failed to connect redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		defer rdb.Close()
		sinks = append(sinks, events.NewRedisBroadcaster(rdb, cfg.RedisPeriodChannel))
	}
	if cfg.KafkaBrokers != "" {
		w := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicPeriodEvents)
		defer w.Close()
		sinks = append(sinks, events.NewKafkaPublisher(w, log))
	}
	var pub events.Publisher = events.Nop{}
	if len(sinks) > 0 {
		pub = sinks
	}

	gen := draw.NewSecureGenerator(cfg.CandidatePoolSize)
	log.Info("draw generator ready", zap.Int("candidate_pool", gen.PoolSize()))
	eng := engine.New(engine.Deps{
		Results:   resultRepo,
		Exposure:  exposure.NewAggregator(gdb, 0),
		Resolver:  control.NewResolver(control.NewControlRepositoryImpl(gdb), agentRepo, control.NewSimulationDetector(gen), log),
		Generator: gen,
		Settler:   settlement.NewProcessor(gdb, walletRepo, log, m),
		Rebates:   rebate.NewDistributor(gdb, walletRepo, log, m),
		Publisher: pub,
		Log:       log,
		Metrics:   m,
	}, engine.Options{
		PersistMaxAttempts: cfg.PersistMaxAttempts,
		PersistTimeout:     cfg.PersistTimeout,
	})

	cal := period.Calendar{
		Location:         cfg.Location(),
		DayBoundaryHour:  cfg.DayBoundaryHour,
		MaintenanceStart: cfg.MaintenanceStartHour,
		MaintenanceEnd:   cfg.MaintenanceEndHour,
		LastOpenCutoff:   cfg.LastOpenCutoff,
	}
	hub := period.NewHub()
	clock := period.NewClock(periodRepo, eng, cal, period.Timing{
		Betting: cfg.BettingWindow,
		Drawing: cfg.DrawingWindow,
		Retry:   cfg.SettlementRetry,
	}, log, m, hub)
	if err := clock.Recover(ctx); err != nil {
		log.Fatal("failed to recover period clock", zap.Error(err))
	}
	go events.Relay(ctx, hub.Subscribe(), pub, log)

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}
	metricsSrv := metrics.Serve(cfg.MetricsPort, reg, sqlDB.PingContext, log)
	srv := api.NewServer(log, clock, periodRepo, resultRepo, betService, walletService, agentService)
	httpSrv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: srv.Router(),
	}
	go func() {
		log.Info("http server listening", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	if err := clock.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("period clock stopped", zap.Error(err))
	}

	log.Info("shutting down")
	hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
}
