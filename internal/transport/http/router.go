package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/hostpanel/backend/internal/config"
	"github.com/hostpanel/backend/internal/core/ports"
	"github.com/hostpanel/backend/internal/infrastructure/logger"
	"github.com/hostpanel/backend/internal/transport/http/handlers"
	httpmw "github.com/hostpanel/backend/internal/transport/http/middleware"
)

type RouterConfig struct {
	Config         *config.Config
	Logger         *logger.Logger
	Executor       ports.TaskExecutor
	Pipeline       handlers.AlertCycleRunner
	AlertRecords   ports.AlertRecordRepository
	Certificates   handlers.CertificateManager
	Settings       handlers.SettingsStore
	// AuthFailures is optional; rejected admin requests are reported to it.
	AuthFailures   httpmw.AuthFailureRecorder
	// Intrusions is optional; scanner probes are reported to it.
	Intrusions     httpmw.IntrusionRecorder
	// StreamInterval is how often the task stream polls; zero uses the default.
	StreamInterval time.Duration
}

func SetupRoutes(app *fiber.App, cfg RouterConfig) {
	log := cfg.Logger.Named("http")

	taskHandler := handlers.NewTaskHandler(cfg.Executor, log)
	streamHandler := handlers.NewTaskStreamHandler(cfg.Executor, log, cfg.StreamInterval)
	alertHandler := handlers.NewAlertHandler(cfg.Pipeline, cfg.AlertRecords, log)
	certificateHandler := handlers.NewCertificateHandler(cfg.Certificates, log)
	settingHandler := handlers.NewSettingHandler(cfg.Settings, log)

	adminAuth := httpmw.AdminAuth(cfg.Config, cfg.AuthFailures)

	app.Use(httpmw.IntrusionWatch(cfg.Intrusions))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Task progress stream
	app.Use("/ws", adminAuth, func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return c.SendStatus(fiber.StatusUpgradeRequired)
	})
	app.Get("/ws/tasks/:id", websocket.New(streamHandler.Handle))

	api := app.Group("/api/v1", adminAuth)

	tasks := api.Group("/tasks")
	tasks.Get("/", taskHandler.ListTasks)
	tasks.Get("/:id", taskHandler.GetTask)
	tasks.Post("/:id/cancel", taskHandler.CancelTask)
	tasks.Post("/:id/retry", taskHandler.RetryTask)

	alerts := api.Group("/alerts")
	alerts.Get("/", alertHandler.GetHistory)
	alerts.Post("/run", alertHandler.RunCycle)
	alerts.Get("/last-cycle", alertHandler.GetLastReport)

	certs := api.Group("/certificates")
	certs.Get("/", certificateHandler.GetCertificates)
	certs.Get("/:id", certificateHandler.GetCertificate)
	certs.Post("/:id/renew", certificateHandler.RenewCertificate)
	certs.Post("/:id/revoke", certificateHandler.RevokeCertificate)

	settings := api.Group("/settings")
	settings.Get("/notifications", settingHandler.GetSettings)
	settings.Put("/notifications", settingHandler.UpdateSettings)
}
