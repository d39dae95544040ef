package commands

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/wonny/argus/internal/decision"
	"github.com/wonny/argus/internal/marketdata"
	"github.com/wonny/argus/internal/outcome"
	"github.com/wonny/argus/internal/policy"
	"github.com/wonny/argus/internal/replay"
	"github.com/wonny/argus/internal/scoreboard"
	"github.com/wonny/argus/internal/snapshot"
	"github.com/wonny/argus/pkg/config"
	"github.com/wonny/argus/pkg/database"
	"github.com/wonny/argus/pkg/httputil"
	"github.com/wonny/argus/pkg/logger"
	"github.com/wonny/argus/pkg/metrics"
	"github.com/wonny/argus/pkg/redis"
)

// app bundles the wired pipeline components shared by all commands.
// ⭐ SSOT: 컴포넌트 조립(wiring)은 여기서만
type app struct {
	cfg        *config.Config
	log        *logger.Logger
	db         *database.DB
	redis      *redis.Client
	policy     *policy.Evaluation
	policyHash string
	recorder   *metrics.Recorder

	candles   *marketdata.Repository
	vendor    *marketdata.VendorClient
	syncer    *marketdata.SyncService
	states    *replay.StateRepository
	registry  *replay.PostgresRegistry
	baselines *scoreboard.BaselineRepository
	labeler   *outcome.Labeler

	// orchestrator is built per command because the scheduler collaborator
	// differs between the API daemon and one-shot CLI runs.
}

// initApp loads config and wires the full pipeline
func initApp() (*app, error) {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	// 3. Connect to database
	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// 4. Connect to Redis (optional, for the shared vendor quota window)
	rdb, err := redis.New(cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	// 5. Load evaluation policy
	pol, err := policy.Load(cfg.Replay.PolicyPath)
	if err != nil {
		db.Close()
		rdb.Close()
		return nil, fmt.Errorf("load policy: %w", err)
	}
	policyHash, err := policy.Hash(pol)
	if err != nil {
		db.Close()
		rdb.Close()
		return nil, fmt.Errorf("hash policy: %w", err)
	}

	// 6. Create HTTP client with pacing, breaker and the shared window
	httpClient := httputil.NewWithTimeout(cfg, log, cfg.Vendor.Timeout).
		WithPacing(rate.Limit(float64(cfg.Vendor.RequestsPerMinute)/60.0), 1).
		WithBreaker("vendor")
	if rdb.Enabled() {
		limiter := redis.NewRateLimiter(rdb, "argus")
		httpClient = httpClient.WithRateLimiter(limiter, redis.RateLimitConfig{
			Key:    "vendor",
			Limit:  cfg.Vendor.RequestsPerMinute,
			Window: time.Minute,
		})
	}

	// 7. Create stores and vendor access
	rec := metrics.New()
	candles := marketdata.NewRepository(db.Pool)
	vendor := marketdata.NewVendorClient(httpClient, cfg, rec, log)
	syncer := marketdata.NewSyncService(vendor, candles, cfg.Vendor.Venue, log)

	// 8. Create replay persistence
	states := replay.NewStateRepository(db.Pool)
	registry := replay.NewPostgresRegistry(db.Pool)
	baselines := scoreboard.NewBaselineRepository(db.Pool)

	// 9. Create labeler
	labeler := outcome.NewLabeler(states, candles, pol, rec, cfg.Vendor.Venue, log)

	return &app{
		cfg:        cfg,
		log:        log,
		db:         db,
		redis:      rdb,
		policy:     pol,
		policyHash: policyHash,
		recorder:   rec,
		candles:    candles,
		vendor:     vendor,
		syncer:     syncer,
		states:     states,
		registry:   registry,
		baselines:  baselines,
		labeler:    labeler,
	}, nil
}

// newOrchestrator builds the batch orchestrator. sched may be nil for
// one-shot CLI runs with no background jobs to pause.
func (a *app) newOrchestrator(sched replay.SchedulerControl) *replay.Orchestrator {
	builder := snapshot.NewBuilder(a.candles, a.log)
	engine := decision.NewEngine(a.log)
	executor := replay.NewExecutor(
		builder, engine, a.states, a.recorder,
		replay.DefaultExecutorConfig(a.cfg.Vendor.Venue), a.log,
	)

	orchCfg := replay.DefaultOrchestratorConfig()
	orchCfg.VendorCallDelay = a.cfg.Replay.VendorCallDelay
	orchCfg.RateLimitCooldown = a.cfg.Vendor.RateLimitCooldown
	orchCfg.MaxSampleRetries = a.cfg.Replay.MaxSampleRetries
	if h, err := a.policy.Horizon(orchCfg.AutoLabelHorizon); err == nil {
		orchCfg.AutoLabelMaturity = h.Span() + h.Maturation
	}

	return replay.NewOrchestrator(
		executor, a.registry, a.syncer, a.labeler, sched,
		a.recorder, orchCfg, a.log,
	)
}

// Close releases all connections
func (a *app) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
