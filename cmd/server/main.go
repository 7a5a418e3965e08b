package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/hostpanel/backend/internal/config"
	"github.com/hostpanel/backend/internal/core/ports"
	"github.com/hostpanel/backend/internal/core/services"
	"github.com/hostpanel/backend/internal/core/services/evaluators"
	"github.com/hostpanel/backend/internal/core/services/notify"
	"github.com/hostpanel/backend/internal/infrastructure/db"
	"github.com/hostpanel/backend/internal/infrastructure/ledger"
	"github.com/hostpanel/backend/internal/infrastructure/logger"
	"github.com/hostpanel/backend/internal/infrastructure/remote"
	"github.com/hostpanel/backend/internal/infrastructure/system"
	transporthttp "github.com/hostpanel/backend/internal/transport/http"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type repositories struct {
	tasks        ports.TaskRepository
	certificates ports.CertificateRepository
	alerts       ports.AlertRecordRepository
	settings     ports.SystemSettingRepository
}

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	path := *configPath
	if path == "" {
		if _, err := os.Stat("config/config.yaml"); err == nil {
			path = "config/config.yaml"
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, repos, err := openRepositories(cfg, log)
	if err != nil {
		log.Fatalf("failed to open storage: %v", err)
	}

	cooldowns, redisClient, err := openLedger(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to open cooldown ledger: %v", err)
	}

	runner, err := remote.NewRunner(cfg.Runner)
	if err != nil {
		log.Fatalf("failed to create command runner: %v", err)
	}

	executor, err := services.NewTaskExecutor(services.TaskExecutorConfig{
		Repository:     repos.tasks,
		Logger:         log,
		Workers:        cfg.Executor.Workers,
		DefaultTimeout: cfg.Executor.DefaultTimeout,
		GracePeriod:    cfg.Executor.GracePeriod,
	})
	if err != nil {
		log.Fatalf("failed to create task executor: %v", err)
	}

	renewal, err := services.NewRenewalService(services.RenewalServiceConfig{
		Certificates: repos.certificates,
		Executor:     executor,
		Issuer:       system.NewCertbotIssuer(runner, system.CertbotConfig{Email: cfg.Renewal.Email}),
		Logger:       log,
		Schedule:     cfg.Renewal.Schedule,
		LeadTime:     cfg.Renewal.LeadTime,
		MaxAttempts:  cfg.Renewal.MaxAttempts,
		TaskTimeout:  cfg.Renewal.TaskTimeout,
		OwnerID:      cfg.Renewal.OwnerID,
	})
	if err != nil {
		log.Fatalf("failed to create renewal service: %v", err)
	}
	executor.OnTerminal(renewal.HandleTaskTerminal)
	if _, err := executor.Recover(ctx); err != nil {
		log.Fatalf("failed to recover unfinished tasks: %v", err)
	}

	thresholds := cfg.Alerts.Thresholds
	security := system.NewSecurityRecorder(2 * thresholds.SecurityWindow)
	snapshots, err := services.NewSnapshotProvider(services.SnapshotProviderConfig{
		Metrics:        system.NewHostMetrics(thresholds.DiskPath, time.Second),
		Probe:          system.NewSystemctlProbe(runner),
		Security:       security,
		Services:       thresholds.Services,
		SecurityWindow: thresholds.SecurityWindow,
		Tasks:          repos.tasks,
		Certificates:   repos.certificates,
		Logger:         log,
	})
	if err != nil {
		log.Fatalf("failed to create snapshot provider: %v", err)
	}

	settingService := services.NewSystemSettingService(repos.settings, log, cfg.Security.EncryptionKey)
	channelCfg, err := settingService.LoadChannelSettings(ctx, cfg.Notifications)
	if err != nil {
		log.Fatalf("failed to load notification settings: %v", err)
	}
	channels, err := notify.BuildChannels(channelCfg, &http.Client{Timeout: cfg.Notifications.Timeout})
	if err != nil {
		log.Fatalf("invalid notification channels: %v", err)
	}
	dispatcher := services.NewNotificationDispatcher(services.NotificationDispatcherConfig{
		Channels: channels,
		Logger:   log,
		Timeout:  cfg.Notifications.Timeout,
	})
	log.Infow("notification_channels_ready", "channels", dispatcher.Channels())

	pipeline, err := services.NewAlertPipeline(services.AlertPipelineConfig{
		Snapshots:   snapshots,
		Evaluators:  evaluators.Build(thresholds),
		Ledger:      cooldowns,
		Dispatcher:  dispatcher,
		Records:     repos.alerts,
		Logger:      log,
		Interval:    cfg.Alerts.Interval,
		Cooldown:    cfg.Alerts.Cooldown,
		PruneFactor: cfg.Alerts.PruneFactor,
	})
	if err != nil {
		log.Fatalf("failed to create alert pipeline: %v", err)
	}

	bgCtx, cancelBackground := context.WithCancel(context.Background())
	pipelineDone := make(chan struct{})
	if cfg.Alerts.Enabled {
		go func() {
			defer close(pipelineDone)
			if err := pipeline.Run(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Errorw("alert_pipeline_stopped", "error", err)
			}
		}()
	} else {
		close(pipelineDone)
		log.Warn("alert pipeline disabled")
	}

	if cfg.Renewal.Enabled {
		if err := renewal.Start(); err != nil {
			log.Fatalf("failed to start renewal scheduler: %v", err)
		}
	}

	cleanup, err := services.NewCleanupService(services.CleanupServiceConfig{
		Records:   repos.alerts,
		Logger:    log,
		Schedule:  cfg.Alerts.CleanupSchedule,
		Retention: cfg.Alerts.HistoryRetention,
	})
	if err != nil {
		log.Fatalf("failed to create cleanup service: %v", err)
	}
	if err := cleanup.Start(); err != nil {
		log.Fatalf("failed to start cleanup scheduler: %v", err)
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		ErrorHandler:          globalErrorHandler(log),
		DisableStartupMessage: true,
	})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))

	allowedOrigins := "http://localhost:3000"
	if len(cfg.Auth.AllowedOrigins) > 0 {
		allowedOrigins = strings.Join(cfg.Auth.AllowedOrigins, ",")
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Admin-Token",
		AllowMethods: "GET, POST, HEAD, PUT, DELETE",
	}))
	app.Use(accessLog(log))

	transporthttp.SetupRoutes(app, transporthttp.RouterConfig{
		Config:       cfg,
		Logger:       log,
		Executor:     executor,
		Pipeline:     pipeline,
		AlertRecords: repos.alerts,
		Certificates: renewal,
		Settings:     settingService,
		AuthFailures: security,
		Intrusions:   security,
	})

	go func() {
		if err := app.Listen(cfg.Server.Address()); err != nil {
			log.Errorw("server_listen_failed", "error", err)
			stop()
		}
	}()
	log.Infow("server_started", "address", cfg.Server.Address(), "database", cfg.Database.Driver, "redis", redisClient != nil)

	<-ctx.Done()
	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Errorf("server forced to shutdown: %v", err)
	}
	renewal.Stop(shutdownCtx)
	cleanup.Stop(shutdownCtx)
	cancelBackground()
	<-pipelineDone
	if err := executor.Shutdown(shutdownCtx); err != nil {
		log.Errorf("executor did not drain: %v", err)
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Errorf("failed to close redis client: %v", err)
		}
	}
	if err := db.Close(database); err != nil {
		log.Errorf("failed to close database connection: %v", err)
	}

	log.Info("server exited gracefully")
}

func openRepositories(cfg *config.Config, log *logger.Logger) (*gorm.DB, repositories, error) {
	if cfg.Database.Driver == "memory" {
		log.Warn("using in-memory storage; state is lost on restart")
		return nil, repositories{
			tasks:        db.NewMemoryTaskRepository(),
			certificates: db.NewMemoryCertificateRepository(),
			alerts:       db.NewMemoryAlertRecordRepository(),
			settings:     db.NewMemorySettingRepository(),
		}, nil
	}

	database, err := db.NewPostgresConnection(cfg.Database)
	if err != nil {
		return nil, repositories{}, err
	}
	log.Info("database connection established")

	if err := db.RunMigrations(database); err != nil {
		return nil, repositories{}, err
	}
	log.Info("database migrations completed")

	return database, repositories{
		tasks:        db.NewTaskRepository(database, log),
		certificates: db.NewCertificateRepository(database, log),
		alerts:       db.NewAlertRecordRepository(database, log),
		settings:     db.NewSystemSettingRepository(database, log),
	}, nil
}

func openLedger(ctx context.Context, cfg *config.Config) (ports.CooldownLedger, *redis.Client, error) {
	if !cfg.Redis.Enabled {
		return ledger.NewMemoryLedger(), nil, nil
	}
	rc, err := ledger.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	return ledger.NewRedisLedger(rc, cfg.Redis.Prefix), rc, nil
}

func accessLog(log *logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqID := c.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Locals("request_id", reqID)
		c.Set("X-Request-ID", reqID)

		start := time.Now()
		err := c.Next()
		routePath := ""
		if c.Route() != nil {
			routePath = c.Route().Path
		}
		log.Debugw("http_access",
			"method", c.Method(),
			"path", c.Path(),
			"route", routePath,
			"status", c.Response().StatusCode(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.IP(),
			"request_id", reqID,
		)
		return err
	}
}

func globalErrorHandler(log *logger.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}

		if code < fiber.StatusInternalServerError {
			log.Warnw("request failed",
				"method", c.Method(),
				"path", c.Path(),
				"status", code,
				"error", err.Error(),
				"request_id", c.Locals("request_id"),
			)
		} else {
			log.Errorw("request error",
				"method", c.Method(),
				"path", c.Path(),
				"status", code,
				"error", err.Error(),
				"request_id", c.Locals("request_id"),
			)
		}

		return c.Status(code).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}
