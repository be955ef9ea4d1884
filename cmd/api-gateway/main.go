package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/techkwon/Qbot/api/swagger"
	"github.com/techkwon/Qbot/internal/handler"
	"github.com/techkwon/Qbot/internal/middleware"
	"github.com/techkwon/Qbot/internal/models"
	"github.com/techkwon/Qbot/internal/repository"
	"github.com/techkwon/Qbot/internal/service"
	"github.com/techkwon/Qbot/internal/worker"
	"github.com/techkwon/Qbot/pkg/cache"
	"github.com/techkwon/Qbot/pkg/config"
	"github.com/techkwon/Qbot/pkg/database"
	"github.com/techkwon/Qbot/pkg/events"
	"github.com/techkwon/Qbot/pkg/llm"
	"github.com/techkwon/Qbot/pkg/logger"
	corsmiddleware "github.com/techkwon/Qbot/pkg/middleware/cors"
	reqidmiddleware "github.com/techkwon/Qbot/pkg/middleware/requestid"
	"github.com/techkwon/Qbot/pkg/storage"
	"github.com/techkwon/Qbot/pkg/telemetry"
)

// @title Qbot API
// @version 1.0.0
// @description Chatbot access gate, attempt management and learning goal evaluation for ChatCat classrooms.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logr.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck
	}

	publisher, err := events.New(cfg.Events, logr)
	if err != nil {
		logr.Warn("nats unavailable, domain events disabled", zap.Error(err))
		publisher = events.Noop{}
	}
	defer publisher.Close()

	var objects *storage.S3Client
	if cfg.Storage.Endpoint != "" || cfg.Storage.AccessKey != "" {
		objects, err = storage.NewS3(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("init object storage: %w", err)
		}
	}

	evaluator := service.NewLLMGoalEvaluator(nil, logr)
	llmClient, err := llm.New(cfg.LLM, logr)
	switch {
	case err == nil:
		evaluator = service.NewLLMGoalEvaluator(llmClient, logr)
	case errors.Is(err, llm.ErrNotConfigured):
		logr.Warn("LLM_API_KEY not set, goal evaluations will stay pending")
	default:
		return fmt.Errorf("init llm client: %w", err)
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, "qbot")
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Dashboard.CacheTTL, logr)

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	classRepo := repository.NewClassRepository(db)
	chatbotRepo := repository.NewChatbotRepository(db)
	gateRepo := repository.NewUsageGateRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	evaluationRepo := repository.NewEvaluationRepository(db)
	materialRepo := repository.NewMaterialRepository(db)
	dashboardRepo := repository.NewDashboardRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	gateSvc := service.NewGateService(gateRepo, publisher, cacheSvc, metricsSvc, logr)
	attemptSvc := service.NewAttemptService(gateRepo, validate, publisher, cacheSvc, metricsSvc, logr)
	chatbotSvc := service.NewChatbotService(chatbotRepo, gateRepo, attemptSvc, cacheSvc, validate, logr)
	rosterSvc := service.NewRosterService(classRepo, studentRepo, validate, logr)
	conversationSvc := service.NewConversationService(messageRepo, gateRepo, validate, logr)
	evaluationSvc := service.NewEvaluationService(service.EvaluationServiceParams{
		Evaluations: evaluationRepo,
		Goals:       chatbotRepo,
		Transcripts: messageRepo,
		Students:    studentRepo,
		Ownership:   attemptSvc,
		Evaluator:   evaluator,
		Publisher:   publisher,
		Cache:       cacheSvc,
		Metrics:     metricsSvc,
		Validator:   validate,
		Logger:      logr,
	})
	exportSvc := service.NewExportService(evaluationRepo, attemptSvc, nil, logr)
	dashboardSvc := service.NewDashboardService(dashboardRepo, chatbotRepo, attemptSvc, cacheSvc, service.DashboardServiceConfig{CacheTTL: cfg.Dashboard.CacheTTL}, logr)

	evalWorker := worker.NewEvaluationWorker(evaluationSvc, worker.Config{
		Workers:       cfg.Evaluation.Workers,
		Retries:       cfg.Evaluation.Retries,
		RetryDelay:    cfg.Evaluation.RetryDelay,
		SweepSchedule: cfg.Evaluation.SweepSchedule,
	}, logr)
	if err := evalWorker.Start(ctx); err != nil {
		return err
	}
	defer evalWorker.Stop()
	evaluationSvc.SetScheduler(evalWorker)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	checks := []handler.ReadinessCheck{{Name: "postgres", Check: db.PingContext}}
	if redisClient != nil {
		checks = append(checks, handler.ReadinessCheck{Name: "redis", Check: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}})
	}
	metricsHandler := handler.NewMetricsHandler(metricsSvc, checks...)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	var materialHandler *handler.MaterialHandler
	if objects != nil {
		materialSvc := service.NewMaterialService(materialRepo, objects, attemptSvc, gateSvc, service.MaterialConfig{
			MaxFileSizeBytes: cfg.Storage.MaxFileSizeBytes,
			AllowedMIMEs:     cfg.Storage.AllowedMIMEs,
		}, validate, logr)
		materialHandler = handler.NewMaterialHandler(materialSvc)
	} else {
		logr.Warn("object storage not configured, material routes disabled")
	}

	registerRoutes(r.Group(cfg.APIPrefix, middleware.Timeout(cfg.RequestTimeout)), routeHandlers{
		auth:         handler.NewAuthHandler(authSvc),
		gate:         handler.NewGateHandler(gateSvc),
		attempts:     handler.NewAttemptHandler(attemptSvc),
		chatbots:     handler.NewChatbotHandler(chatbotSvc),
		roster:       handler.NewRosterHandler(rosterSvc),
		conversation: handler.NewConversationHandler(conversationSvc),
		evaluations:  handler.NewEvaluationHandler(evaluationSvc, exportSvc),
		materials:    materialHandler,
		dashboard:    dashboardHandler(cfg, dashboardSvc),
		tokens:       authSvc,
		audit:        auditRepo,
		logger:       logr,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           telemetry.Handler(r, cfg.Telemetry.ServiceName),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Error("server shutdown failed", zap.Error(err))
		}
	}()

	logr.Info("server starting", zap.String("addr", server.Addr), zap.String("env", cfg.Env))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type routeHandlers struct {
	auth         *handler.AuthHandler
	gate         *handler.GateHandler
	attempts     *handler.AttemptHandler
	chatbots     *handler.ChatbotHandler
	roster       *handler.RosterHandler
	conversation *handler.ConversationHandler
	evaluations  *handler.EvaluationHandler
	materials    *handler.MaterialHandler
	dashboard    *handler.DashboardHandler
	tokens       middleware.TokenValidator
	audit        middleware.AuditRecorder
	logger       *zap.Logger
}

func dashboardHandler(cfg *config.Config, svc *service.DashboardService) *handler.DashboardHandler {
	if !cfg.Dashboard.Enabled {
		return nil
	}
	return handler.NewDashboardHandler(svc)
}

func registerRoutes(api *gin.RouterGroup, h routeHandlers) {
	auth := middleware.JWT(h.tokens)
	audit := func(action, resource, param string) gin.HandlerFunc {
		return middleware.Audit(h.audit, h.logger, action, resource, param)
	}

	api.POST("/auth/login", h.auth.Login)
	api.GET("/auth/me", auth, h.auth.Me)

	admin := api.Group("/admin", auth, middleware.RequireRoles(models.RoleAdmin))
	admin.POST("/users", audit(models.AuditActionUserCreate, "user", ""), h.auth.CreateUser)

	student := api.Group("", auth, middleware.RequireRoles(models.RoleStudent))
	student.GET("/chatbots", h.chatbots.ListForStudent)
	student.POST("/chatbots/:chatbotId/sessions", h.gate.StartSession)
	student.GET("/chatbots/:chatbotId/sessions/usage", h.gate.Usage)
	student.POST("/sessions/:sessionId/messages", h.conversation.AppendMessage)

	teacher := api.Group("/teacher", auth, middleware.RequireRoles(models.RoleTeacher))
	teacher.GET("/chatbots", h.chatbots.List)
	teacher.POST("/chatbots", audit(models.AuditActionChatbotCreate, "chatbot", ""), h.chatbots.Create)
	teacher.GET("/chatbots/:chatbotId", h.chatbots.Get)
	teacher.PUT("/chatbots/:chatbotId", audit(models.AuditActionChatbotUpdate, "chatbot", "chatbotId"), h.chatbots.Update)
	teacher.DELETE("/chatbots/:chatbotId", audit(models.AuditActionChatbotDelete, "chatbot", "chatbotId"), h.chatbots.Delete)
	teacher.POST("/chatbots/:chatbotId/manage-attempts", audit(models.AuditActionAttemptsReset, "chatbot", "chatbotId"), h.attempts.Reset)
	teacher.POST("/chatbots/:chatbotId/evaluations", audit(models.AuditActionEvaluationRun, "chatbot", "chatbotId"), h.evaluations.Evaluate)
	teacher.GET("/chatbots/:chatbotId/evaluations", h.evaluations.List)
	teacher.GET("/chatbots/:chatbotId/evaluations/export", h.evaluations.Export)

	teacher.GET("/classes", h.roster.ListClasses)
	teacher.POST("/classes", audit(models.AuditActionClassCreate, "class", ""), h.roster.CreateClass)
	teacher.DELETE("/classes/:classId", audit(models.AuditActionClassDelete, "class", "classId"), h.roster.DeleteClass)
	teacher.GET("/students", h.roster.ListStudents)
	teacher.POST("/students", audit(models.AuditActionStudentCreate, "student", ""), h.roster.CreateStudent)
	teacher.PUT("/students/:studentId/class", audit(models.AuditActionStudentAssign, "student", "studentId"), h.roster.AssignClass)
	teacher.DELETE("/students/:studentId", audit(models.AuditActionStudentDelete, "student", "studentId"), h.roster.DeleteStudent)

	if h.dashboard != nil {
		teacher.GET("/chatbots/:chatbotId/dashboard", h.dashboard.ChatbotSummary)
	}

	if h.materials != nil {
		student.GET("/chatbots/:chatbotId/materials", h.materials.StudentList)
		student.GET("/chatbots/:chatbotId/materials/:materialId", h.materials.StudentDownload)
		teacher.GET("/chatbots/:chatbotId/materials", h.materials.List)
		teacher.POST("/chatbots/:chatbotId/materials", audit(models.AuditActionMaterialUpload, "chatbot", "chatbotId"), h.materials.PresignUpload)
		teacher.GET("/chatbots/:chatbotId/materials/:materialId", h.materials.Download)
		teacher.DELETE("/chatbots/:chatbotId/materials/:materialId", audit(models.AuditActionMaterialDelete, "material", "materialId"), h.materials.Delete)
	}
}
