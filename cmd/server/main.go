package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/fsnotify/fsnotify"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"mejohncorg/internal/config"
	"mejohncorg/internal/crypto"
	"mejohncorg/internal/database"
	"mejohncorg/internal/execution"
	"mejohncorg/internal/handlers"
	"mejohncorg/internal/jobs"
	"mejohncorg/internal/logging"
	"mejohncorg/internal/middleware"
	"mejohncorg/internal/services"
	"mejohncorg/internal/tools"
	"mejohncorg/pkg/auth"
)

func main() {
	logging.Init()

	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded", "error", err)
	}

	cfg := config.Load()
	slog.Info("Starting agent execution server", "port", cfg.Port)

	// MySQL holds agents and tool definitions.
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to MySQL", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Initialize(); err != nil {
		slog.Error("Database schema check failed", "error", err)
		os.Exit(1)
	}

	// MongoDB backs the audit trail and credential grants. The server runs
	// without it, with audit disabled and credentialed tools degraded.
	var mongoDB *database.MongoDB
	if cfg.MongoURI != "" {
		mongoDB, err = database.NewMongoDB(cfg.MongoURI)
		if err != nil {
			slog.Error("Failed to connect to MongoDB", "error", err)
			os.Exit(1)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := mongoDB.Initialize(ctx); err != nil {
			slog.Warn("Failed to initialize MongoDB indexes", "error", err)
		}
		cancel()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			mongoDB.Close(ctx)
			cancel()
		}()
	} else {
		slog.Warn("MONGODB_URI not set, audit trail and credential grants disabled")
	}

	redisService, err := services.NewRedisService(cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisService.Close()

	metrics := services.InitMetrics()

	auditService := services.NewAuditService(mongoDB)
	metrics.RegisterAuditQueueDepth(auditService.QueueDepth)
	defer auditService.Close()

	// Credential grants, AES-GCM encrypted per agent.
	var credentials tools.CredentialSource = tools.NoCredentials{}
	if mongoDB != nil && cfg.EncryptionMasterKey != "" {
		encryption, err := crypto.NewEncryptionService(cfg.EncryptionMasterKey)
		if err != nil {
			slog.Error("Invalid encryption master key", "error", err)
			os.Exit(1)
		}
		credentials = services.NewCredentialService(mongoDB, encryption, auditService)
	} else {
		slog.Warn("Credential store disabled, integration tools will be unavailable")
	}

	agentService := services.NewAgentService(db)
	registry := tools.NewRegistry(db.DB)

	executor := tools.NewExecutor(
		tools.NewTimeTool(),
		tools.NewWebRequestTool(),
		tools.NewCRMLookupTool(os.Getenv("CRM_BASE_URL"), credentials),
		tools.NewEmailSendTool(os.Getenv("EMAIL_API_URL"), os.Getenv("EMAIL_FROM_ADDRESS"), credentials),
		tools.NewDataExportTool(db.DB),
	)

	{
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := registry.EnsureBuiltins(ctx, executor.Definitions()); err != nil {
			slog.Error("Failed to seed tool definitions", "error", err)
			cancel()
			os.Exit(1)
		}
		cancel()
	}

	// The action policy is a closed table: every registered action must have
	// a rule before the server takes traffic.
	policy, err := tools.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		slog.Error("Failed to load action policy", "error", err, "path", cfg.PolicyPath)
		os.Exit(1)
	}
	{
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		actions, err := registry.RegisteredActions(ctx)
		cancel()
		if err != nil {
			slog.Error("Failed to enumerate registered actions", "error", err)
			os.Exit(1)
		}
		if err := policy.Validate(actions); err != nil {
			slog.Error("Action policy validation failed", "error", err)
			os.Exit(1)
		}
	}
	go watchPolicyFile(cfg.PolicyPath, policy)

	providerService := services.NewProviderService(cfg.ProviderBaseURL, cfg.ProviderAPIKey, cfg.ProviderModel)

	embedder := services.NewOpenAIEmbedder(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModel)
	vectorStore, err := services.NewQdrantStore(cfg.QdrantAddr)
	if err != nil {
		slog.Error("Failed to create Qdrant client", "error", err)
		os.Exit(1)
	}
	memoryService := services.NewMemoryService(embedder, vectorStore, cfg.QdrantCollection)
	{
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := memoryService.Init(ctx, uint64(cfg.EmbeddingDim)); err != nil {
			slog.Warn("Memory collection unavailable, running degraded", "error", err)
		}
		cancel()
	}

	loop := execution.NewLoop(providerService, executor, policy, auditService, cfg.MaxTurns, cfg.CommandTimeout)

	jwtAuth, err := auth.NewJWTAuth(cfg.JWTSecret, time.Hour)
	if err != nil {
		slog.Error("JWT_SECRET is required", "error", err)
		os.Exit(1)
	}

	// Background jobs.
	scheduler, err := jobs.NewScheduler()
	if err != nil {
		slog.Error("Failed to create job scheduler", "error", err)
		os.Exit(1)
	}
	auditMonitor := jobs.NewAuditMonitor(auditService)
	if err := scheduler.Register("audit-monitor", "* * * * *", auditMonitor.Run); err != nil {
		slog.Error("Failed to register audit monitor", "error", err)
		os.Exit(1)
	}
	healthChecker := jobs.NewHealthChecker(db, mongoDB, redisService)
	if err := scheduler.Register("health-checker", "*/5 * * * *", healthChecker.Run); err != nil {
		slog.Error("Failed to register health checker", "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// HTTP surface.
	app := fiber.New(fiber.Config{
		AppName:      "mejohncorg",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.CommandTimeout + 30*time.Second,
	})

	app.Use(recover.New())
	app.Use(logger.New())

	prometheus := fiberprometheus.New("mejohncorg")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowedOrigins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-Agent-Key",
	}))

	healthHandler := handlers.NewHealthHandler(db, mongoDB, redisService)
	executeHandler := handlers.NewAgentExecuteHandler(loop, registry, memoryService, auditService)
	adminHandler := handlers.NewAdminHandler(cfg, jwtAuth, agentService, registry)

	app.Get("/health", healthHandler.Handle)

	app.Post("/api/agents/execute",
		middleware.AgentAuth(agentService, redisService, auditService, cfg.DefaultRateLimitRPM),
		executeHandler.Handle)

	app.Post("/api/admin/login", adminHandler.Login)
	admin := app.Group("/api/admin", middleware.AdminAuth(jwtAuth))
	admin.Post("/agents", adminHandler.CreateAgent)
	admin.Get("/agents", adminHandler.ListAgents)
	admin.Post("/agents/:id/suspend", adminHandler.SuspendAgent)
	admin.Post("/agents/:id/activate", adminHandler.ActivateAgent)
	admin.Get("/tools", adminHandler.ListTools)

	// Graceful shutdown on SIGINT/SIGTERM.
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		slog.Info("Shutting down", "signal", sig.String())
		if err := app.Shutdown(); err != nil {
			slog.Error("Server shutdown failed", "error", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		slog.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

// watchPolicyFile hot-reloads the action policy on change. A bad file keeps
// the previous table; the server never runs without a valid policy.
func watchPolicyFile(path string, policy *tools.Policy) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("Failed to create policy watcher", "error", err)
		return
	}
	defer watcher.Close()

	absPath, err := filepath.Abs(path)
	if err != nil {
		slog.Warn("Failed to resolve policy path", "path", path, "error", err)
		return
	}
	dir := filepath.Dir(absPath)
	filename := filepath.Base(absPath)

	if err := watcher.Add(dir); err != nil {
		slog.Warn("Failed to watch policy directory", "dir", dir, "error", err)
		return
	}
	slog.Info("Watching action policy for changes", "path", path)

	var debounceTimer *time.Timer
	const debounceDuration = 500 * time.Millisecond

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDuration, func() {
					if err := policy.Reload(absPath); err != nil {
						slog.Error("Policy reload failed, keeping previous table", "error", err)
						return
					}
					slog.Info("Action policy reloaded", "path", path)
				})
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Policy watcher error", "error", err)
		}
	}
}
