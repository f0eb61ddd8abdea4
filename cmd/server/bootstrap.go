package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/anandyadav-dev/HunarMitra-Backend/internal/api"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/app"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/app/maintenance"
	iauth "github.com/anandyadav-dev/HunarMitra-Backend/internal/auth"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/cache"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/database"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/middleware"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/monitoring"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/monitoring/checks"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/push"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/queue"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/realtime"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/services"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/timeline"
	"github.com/anandyadav-dev/HunarMitra-Backend/pkg/backoff"
	"github.com/anandyadav-dev/HunarMitra-Backend/pkg/logger"
)

const probeTimeout = 2 * time.Second

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB          *gorm.DB
	Redis       *goredis.Client
	Mongo       *timeline.MongoRecorder
	Hub         *realtime.Hub
	Runner      *queue.Runner
	Cleaner     *maintenance.Cleaner
	Health      *monitoring.HealthManager
	Router      *gin.Engine
	stopRelay   context.CancelFunc
	relayClosed chan struct{}
}

// bootstrapRuntime initialises storage, background workers, services and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{Hub: realtime.NewHub(), Health: monitoring.NewHealthManager()}
	success := false

	defer func() {
		if !success {
			if err := stack.Shutdown(context.Background()); err != nil {
				log.Warn("partial bootstrap cleanup failed", zap.Error(err))
			}
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	var err error
	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Cache.Redis.Enabled {
		if stack.Redis, err = cache.NewRedisClient(ctx, cfg.Cache.RedisClientConfig()); err != nil {
			log.Warn("redis unavailable; falling back to database-backed operations", zap.Error(err))
			stack.Redis = nil
		} else {
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	// Shared counters and TTL keys live in Redis when available.
	var (
		store       cache.Store
		cachePurger maintenance.CachePurger
		redisStore  *cache.RedisStore
	)
	if stack.Redis != nil {
		redisStore = cache.NewRedisStore(stack.Redis)
		store = redisStore
	} else {
		dbStore := cache.NewDatabaseStore(stack.DB)
		store = dbStore
		cachePurger = dbStore
	}

	tasks, taskPurger, err := selectQueue(cfg, stack.DB, stack.Redis, log)
	if err != nil {
		return nil, err
	}

	recorder, err := stack.selectTimeline(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	publisher := stack.startPublisher(cfg, log)

	gateway, err := selectGateway(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	pushSettings := cfg.Push.Settings()
	dispatchSettings := cfg.Emergency.DispatchSettings()
	shared := []services.Option{services.WithPublisher(publisher), services.WithTimeline(recorder)}

	fanout, err := services.NewFanoutService(stack.DB, tasks)
	if err != nil {
		return nil, err
	}
	notifications, err := services.NewNotificationService(stack.DB, stack.Hub, services.WithPushFanout(fanout, pushSettings))
	if err != nil {
		return nil, err
	}
	dispatch, err := services.NewDispatchService(stack.DB, notifications, shared...)
	if err != nil {
		return nil, err
	}
	emergencies, err := services.NewEmergencyService(stack.DB, tasks, notifications, shared...)
	if err != nil {
		return nil, err
	}
	emergencies.WithRateStore(store)

	delivery, err := services.NewPushDeliveryService(stack.DB, gateway, tasks)
	if err != nil {
		return nil, err
	}
	delivery.WithRateStore(store).WithBatchSize(pushSettings.BatchSize)

	monitor, err := services.NewTimeoutMonitor(stack.DB, shared...)
	if err != nil {
		return nil, err
	}
	devices, err := services.NewDeviceService(stack.DB)
	if err != nil {
		return nil, err
	}
	directory, err := services.NewWorkerDirectory(stack.DB)
	if err != nil {
		return nil, err
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	stack.Runner = queue.NewRunner(tasks,
		queue.WithConcurrency(cfg.Queue.Concurrency),
		queue.WithPollInterval(cfg.Queue.PollInterval),
		queue.WithBatchSize(cfg.Queue.Batch),
		queue.WithRetry(cfg.Queue.MaxAttempts, backoff.NewExponential(cfg.Queue.RetryBase, cfg.Queue.RetryMax)),
	)
	services.RegisterTaskHandlers(stack.Runner, dispatch, delivery, dispatchSettings, pushSettings)
	if err := stack.Runner.Start(ctx); err != nil {
		return nil, fmt.Errorf("start task runner: %w", err)
	}

	cleanerOpts := []maintenance.Option{
		maintenance.WithSweepSchedule(cfg.Emergency.SweepSchedule),
		maintenance.WithResponseTimeout(cfg.Emergency.ResponseTimeout),
		maintenance.WithTaskRetention(cfg.Queue.Retention),
	}
	if pushSettings.Enabled {
		cleanerOpts = append(cleanerOpts, maintenance.WithPushRequeue(delivery, cfg.Push.RequeueAfter, cfg.Push.RequeueSchedule))
	}
	stack.Cleaner = maintenance.NewCleaner(monitor, cachePurger, taskPurger, cleanerOpts...)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	stack.registerChecks(cfg, redisStore)

	stack.Router, err = api.NewRouter(cfg, api.Dependencies{
		JWT:           jwtSvc,
		Emergencies:   emergencies,
		Devices:       devices,
		Notifications: notifications,
		Directory:     directory,
		Hub:           stack.Hub,
		Health:        stack.Health,
		RateStore:     middleware.NewCacheRateStore(store),
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// selectQueue returns the configured task queue and, when it keeps finished rows, its purger.
func selectQueue(cfg *app.Config, db *gorm.DB, redis *goredis.Client, log *zap.Logger) (queue.Queue, maintenance.TaskPurger, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Queue.Backend))
	switch backend {
	case "memory":
		return queue.NewMemoryQueue(nil), nil, nil
	case "redis":
		if redis != nil {
			q, err := queue.NewRedisQueue(redis, cfg.Realtime.RedisChannelPrefix+":queue:", nil)
			if err != nil {
				return nil, nil, fmt.Errorf("initialise redis queue: %w", err)
			}
			return q, nil, nil
		}
		log.Warn("redis queue requested without a redis connection; using database queue")
	case "", "database":
	default:
		return nil, nil, fmt.Errorf("unsupported queue backend %q", cfg.Queue.Backend)
	}

	q, err := queue.NewDatabaseQueue(db, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("initialise database queue: %w", err)
	}
	return q, q, nil
}

func (s *runtimeStack) selectTimeline(ctx context.Context, cfg *app.Config, log *zap.Logger) (timeline.Recorder, error) {
	if strings.EqualFold(strings.TrimSpace(cfg.Timeline.Backend), "mongo") {
		recorder, err := timeline.ConnectMongo(ctx, cfg.Timeline.MongoURI, cfg.Timeline.MongoDatabase)
		if err != nil {
			return nil, err
		}
		log.Info("timeline stored in mongo", zap.String("database", cfg.Timeline.MongoDatabase))
		s.Mongo = recorder
		return recorder, nil
	}
	return timeline.NewGormRecorder(s.DB)
}

// startPublisher picks local fan-out, or Redis pub/sub relayed back into the hub so every
// instance sees the same emergency stream.
func (s *runtimeStack) startPublisher(cfg *app.Config, log *zap.Logger) realtime.Publisher {
	if s.Redis == nil {
		return realtime.NewHubPublisher(s.Hub)
	}

	relayCtx, cancel := context.WithCancel(context.Background())
	s.stopRelay = cancel
	s.relayClosed = make(chan struct{})
	relay := realtime.NewRedisRelay(s.Redis, cfg.Realtime.RedisChannelPrefix, s.Hub)
	go func() {
		defer close(s.relayClosed)
		if err := relay.Run(relayCtx, nil); err != nil {
			log.Warn("realtime relay stopped", zap.Error(err))
		}
	}()
	return realtime.NewRedisPublisher(s.Redis, cfg.Realtime.RedisChannelPrefix)
}

func selectGateway(ctx context.Context, cfg *app.Config, log *zap.Logger) (push.Gateway, error) {
	if !cfg.Push.Enabled {
		return push.NewLogGateway(), nil
	}
	gateway, err := push.NewFCMGateway(ctx, cfg.Push.FCMConfig())
	if err != nil {
		return nil, err
	}
	log.Info("firebase push gateway ready", zap.String("project_id", cfg.Push.ProjectID))
	return gateway, nil
}

func (s *runtimeStack) registerChecks(cfg *app.Config, redisStore *cache.RedisStore) {
	s.Health.RegisterLiveness(monitoring.NewCheck("process", func(context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusUp}
	}))

	s.Health.RegisterReadiness(checks.Database(s.DB, probeTimeout))

	var redisPinger checks.Pinger
	if redisStore != nil {
		redisPinger = redisStore
	}
	s.Health.RegisterReadiness(checks.Ping("redis", redisPinger, cfg.Cache.Redis.Enabled, probeTimeout))

	var mongoPinger checks.Pinger
	if s.Mongo != nil {
		mongoPinger = s.Mongo
	}
	mongoEnabled := strings.EqualFold(strings.TrimSpace(cfg.Timeline.Backend), "mongo")
	s.Health.RegisterReadiness(checks.Ping("mongo", mongoPinger, mongoEnabled, probeTimeout))
}

// Shutdown stops background work in dependency order and releases connections.
func (s *runtimeStack) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	var errs error

	if s.Cleaner != nil {
		<-s.Cleaner.Stop().Done()
	}

	if s.Runner != nil {
		errs = multierr.Append(errs, s.Runner.Stop(ctx))
	}

	if s.stopRelay != nil {
		s.stopRelay()
		select {
		case <-s.relayClosed:
		case <-ctx.Done():
		}
	}

	if s.Mongo != nil {
		errs = multierr.Append(errs, s.Mongo.Close(ctx))
	}

	if s.Redis != nil {
		errs = multierr.Append(errs, s.Redis.Close())
	}

	if s.DB != nil {
		errs = multierr.Append(errs, closeDatabase(s.DB))
	}

	return errs
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.OpenConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.Prepare(db); err != nil {
		_ = closeDatabase(db)
		return nil, fmt.Errorf("prepare database: %w", err)
	}

	logger.WithModule("database").Info("database connected", zap.String("driver", dbCfg.Driver))
	return db, nil
}

func closeDatabase(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("obtain sql handle: %w", err)
	}
	return sqlDB.Close()
}
