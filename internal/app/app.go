// Package app 提供 whale-sync 服务的应用入口
//
// ## 依赖
// - PostgreSQL: 市场、鲸鱼、成交、提醒、通知、同步记录
// - Redis: 任务分布式锁 (可选, 未配置时单实例运行)
// - Kafka: 邮件通知投递 (可选, 未配置时通知保持 pending 由外部发送)
// - 上游行情接口: 市场、成交、价格、排行榜
//
// ## 任务
// 1. market-sync: 市场同步 (每15分钟)
// 2. whale-sync: 鲸鱼成交同步, 分块错峰执行 (每15分钟)
// 3. leaderboard-sync: 排行榜同步 (每日凌晨4点)
// 4. alert-price-sync: 提醒市场价格同步 + 价格提醒检查 (每5分钟)
// 5. recent-whale-alerts: 鲸鱼提醒补偿检查 (默认关闭)
// 6. activity-cleanup: 过期成交清理 (每日凌晨3点)
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/eidos-exchange/eidos-whalesync/internal/client"
	"github.com/eidos-exchange/eidos-whalesync/internal/config"
	"github.com/eidos-exchange/eidos-whalesync/internal/handler"
	"github.com/eidos-exchange/eidos-whalesync/internal/jobs"
	"github.com/eidos-exchange/eidos-whalesync/internal/notify"
	"github.com/eidos-exchange/eidos-whalesync/internal/repository"
	"github.com/eidos-exchange/eidos-whalesync/internal/router"
	"github.com/eidos-exchange/eidos-whalesync/internal/scheduler"
	"github.com/eidos-exchange/eidos-whalesync/internal/service"
	"github.com/eidos-exchange/eidos-whalesync/migrations"
	"github.com/eidos-exchange/eidos-whalesync/pkg/logger"
	"github.com/eidos-exchange/eidos-whalesync/pkg/migrate"
	"github.com/eidos-exchange/eidos-whalesync/pkg/retry"
)

// App whale-sync 服务应用
type App struct {
	cfg   *config.Config
	clock service.Clock

	// 基础设施
	db          *gorm.DB
	redisClient redis.UniversalClient
	publisher   *notify.Publisher
	httpServer  *http.Server
	health      *handler.HealthHandler

	// 调度器
	scheduler *scheduler.Scheduler

	// 仓储层
	markets       *repository.MarketRepository
	whales        *repository.WhaleRepository
	activities    *repository.ActivityRepository
	alerts        *repository.AlertRepository
	users         *repository.UserRepository
	notifications *repository.NotificationRepository
	syncRuns      *repository.SyncRunRepository
	execRepo      *repository.ExecutionRepository

	// 服务层
	upstream     *client.Client
	engine       *service.AlertEngine
	ingestion    *service.IngestionService
	alertService *service.AlertService
	feedService  *service.FeedService
	notifService *service.NotificationService
}

// New 创建应用实例
func New(cfg *config.Config) *App {
	return &App{
		cfg:   cfg,
		clock: time.Now,
	}
}

// Run 启动应用
func (a *App) Run() error {
	// 1. 初始化数据库
	if err := a.initDB(); err != nil {
		return fmt.Errorf("failed to init database: %w", err)
	}

	// 2. 初始化 Redis (可选)
	if err := a.initRedis(); err != nil {
		return fmt.Errorf("failed to init redis: %w", err)
	}

	// 3. 初始化 Kafka 投递 (可选)
	if err := a.initPublisher(); err != nil {
		return fmt.Errorf("failed to init kafka publisher: %w", err)
	}

	// 4. 初始化仓储层与服务层
	a.initRepositories()
	a.initServices()

	// 5. 初始化调度器并注册任务
	a.initScheduler()
	if err := a.registerJobs(); err != nil {
		return fmt.Errorf("failed to register jobs: %w", err)
	}

	// 6. 启动调度器
	a.scheduler.Start()

	// 7. 启动 HTTP 服务
	a.startHTTP()
	a.health.SetReady(true)

	return nil
}

// Shutdown 优雅关闭
func (a *App) Shutdown(ctx context.Context) error {
	logger.Info("shutting down whale-sync service...")

	if a.health != nil {
		a.health.SetReady(false)
	}

	// 停止接收新请求
	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(ctx); err != nil {
			logger.Warn("http server shutdown", zap.Error(err))
		}
	}

	// 停止调度器, 等待运行中的任务和延迟任务结束
	if a.scheduler != nil {
		a.scheduler.Stop()
	}

	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			logger.Warn("close kafka publisher", zap.Error(err))
		}
	}

	if a.redisClient != nil {
		a.redisClient.Close()
	}

	if a.db != nil {
		sqlDB, _ := a.db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
	}

	logger.Info("whale-sync service stopped")
	return nil
}

// initDB 初始化数据库
func (a *App) initDB() error {
	pg := a.cfg.Postgres
	db, err := gorm.Open(postgres.Open(pg.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(pg.MaxConnections)
	sqlDB.SetMaxIdleConns(pg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(pg.ConnMaxLifetimeMinutes) * time.Minute)

	a.db = db
	logger.Info("database connected",
		zap.String("host", pg.Host),
		zap.String("database", pg.Database))

	if !pg.MigrateOnStart() {
		logger.Info("startup migration disabled")
		return nil
	}
	migrator := migrate.NewMigrator(sqlDB, a.cfg.Service.Name, logger.L())
	if err := migrator.Up(migrations.FS, "."); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// initRedis 初始化 Redis, host 为空时跳过
func (a *App) initRedis() error {
	if a.cfg.Redis.Host == "" {
		logger.Warn("redis not configured, job locks disabled")
		return nil
	}
	rc := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr(),
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
		PoolSize: a.cfg.Redis.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		rc.Close()
		return err
	}

	a.redisClient = rc
	logger.Info("redis connected",
		zap.String("addr", a.cfg.Redis.Addr()),
		zap.Int("db", a.cfg.Redis.DB))
	return nil
}

// initPublisher 初始化 Kafka 邮件投递
func (a *App) initPublisher() error {
	if !a.cfg.Kafka.Enabled {
		logger.Info("kafka disabled, email notifications stay pending")
		return nil
	}
	p, err := notify.NewPublisher(a.cfg.Kafka)
	if err != nil {
		return err
	}
	a.publisher = p
	return nil
}

// initRepositories 初始化仓储层
func (a *App) initRepositories() {
	a.markets = repository.NewMarketRepository(a.db)
	a.whales = repository.NewWhaleRepository(a.db)
	a.activities = repository.NewActivityRepository(a.db)
	a.alerts = repository.NewAlertRepository(a.db)
	a.users = repository.NewUserRepository(a.db)
	a.notifications = repository.NewNotificationRepository(a.db)
	a.syncRuns = repository.NewSyncRunRepository(a.db)
	a.execRepo = repository.NewExecutionRepository(a.db)

	logger.Info("repositories initialized")
}

// initServices 初始化上游客户端与服务层
func (a *App) initServices() {
	a.upstream = client.New(a.cfg.Upstream.ClientConfig())
	if err := a.upstream.CheckConfig(); err != nil {
		// 不阻止启动, 同步任务每次运行都会以配置错误失败并记录
		logger.Warn("upstream client misconfigured", zap.Error(err))
	}

	// Kafka 未启用时必须传 nil 接口, 而不是 nil 指针
	var dispatcher service.EmailDispatcher
	if a.publisher != nil {
		dispatcher = a.publisher
	}

	a.engine = service.NewAlertEngine(a.alerts, a.markets, a.whales, a.activities, a.users, a.notifications, repository.NewTransactor(a.db), dispatcher, a.clock)
	a.ingestion = service.NewIngestionService(a.markets, a.whales, a.activities, a.engine, a.clock)
	a.alertService = service.NewAlertService(a.alerts, a.users, a.markets, a.whales, a.clock)
	a.feedService = service.NewFeedService(a.activities, a.whales, a.markets, a.clock)
	a.notifService = service.NewNotificationService(a.notifications, a.clock)

	logger.Info("services initialized", zap.String("upstream", a.upstream.String()))
}

// initScheduler 初始化调度器
func (a *App) initScheduler() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// 上次进程异常退出遗留的 running 记录
	if n, err := a.execRepo.MarkStaleRunningAsFailed(ctx, a.cfg.Scheduler.StaleExecutionAfter); err != nil {
		logger.Warn("failed to mark stale executions", zap.Error(err))
	} else if n > 0 {
		logger.Info("marked stale executions as failed", zap.Int64("count", n))
	}

	schedCfg := &scheduler.SchedulerConfig{MaxConcurrentJobs: a.cfg.Scheduler.MaxConcurrentJobs}
	if a.redisClient != nil {
		schedCfg.RedisClient = a.redisClient
	}
	a.scheduler = scheduler.NewScheduler(schedCfg, a.execRepo)

	logger.Info("scheduler initialized",
		zap.Int("max_concurrent_jobs", a.cfg.Scheduler.MaxConcurrentJobs),
		zap.Bool("locks", a.redisClient != nil))
}

// registerJobs 注册任务
func (a *App) registerJobs() error {
	syncCfg := a.cfg.Sync
	tracker := jobs.NewSyncTracker(a.syncRuns, a.clock)
	deferred := a.scheduler.Deferred()

	all := []scheduler.Job{
		jobs.NewMarketSyncJob(a.upstream, a.ingestion, tracker, retry.New(a.cfg.Upstream.Retry), syncCfg),
		jobs.NewWhaleSyncJob(a.whales, a.upstream, a.ingestion, deferred, tracker, syncCfg),
		jobs.NewLeaderboardSyncJob(a.upstream, a.ingestion, tracker, syncCfg),
		jobs.NewAlertPriceSyncJob(a.alerts, a.markets, a.upstream, a.engine, tracker, a.clock, syncCfg),
		jobs.NewRecentWhaleAlertsJob(a.engine, syncCfg),
		jobs.NewActivityCleanupJob(a.activities, a.syncRuns, a.execRepo, deferred, a.clock, syncCfg),
	}

	for _, job := range all {
		// 关闭的任务也注册, 仍可手动触发
		def := a.cfg.Job(job.Name())
		if err := a.scheduler.RegisterJob(job, scheduler.JobConfig{Cron: def.Cron, Enabled: def.Enabled}); err != nil {
			return fmt.Errorf("register %s: %w", job.Name(), err)
		}
	}

	logger.Info("jobs registered")
	return nil
}

// startHTTP 启动管理与查询 HTTP 服务
func (a *App) startHTTP() {
	if a.cfg.Service.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	deps := map[string]handler.Pinger{
		"postgres": handler.PingFunc(func(ctx context.Context) error {
			sqlDB, err := a.db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}),
	}
	if a.redisClient != nil {
		deps["redis"] = handler.PingFunc(func(ctx context.Context) error {
			return a.redisClient.Ping(ctx).Err()
		})
	}
	a.health = handler.NewHealthHandler(deps)

	engine := router.New(&router.Handlers{
		Health:        a.health,
		Jobs:          handler.NewJobsHandler(a.scheduler, a.execRepo, a.syncRuns),
		Feed:          handler.NewFeedHandler(a.feedService),
		Alerts:        handler.NewAlertHandler(a.alertService),
		Notifications: handler.NewNotificationHandler(a.notifService),
	})

	addr := fmt.Sprintf(":%d", a.cfg.HTTP.Port)
	a.httpServer = &http.Server{
		Addr:         addr,
		Handler:      engine,
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
	}

	logger.Info("starting http server",
		zap.String("addr", addr),
		zap.String("service", a.cfg.Service.Name))

	go func() {
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", zap.Error(err))
		}
	}()
}

// GetConfig 获取配置
func (a *App) GetConfig() *config.Config {
	return a.cfg
}

// GetScheduler 获取调度器 (用于测试)
func (a *App) GetScheduler() *scheduler.Scheduler {
	return a.scheduler
}
