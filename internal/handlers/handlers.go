package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"bermybanana/api/internal/clock"
	"bermybanana/api/internal/config"
	"bermybanana/api/internal/middleware"
	"bermybanana/api/internal/models"
	"bermybanana/api/internal/provider"
	"bermybanana/api/internal/queue"
	"bermybanana/api/internal/repository"
	"bermybanana/api/internal/service"
	"bermybanana/api/internal/storage"
)

type HandlerSet struct {
	log zerolog.Logger
	cfg *config.AppConfig

	authService       *service.AuthService
	creditService     *service.CreditService
	generationService *service.GenerationService
	outputService     *service.OutputService
	uploadService     *service.UploadService
	auditService      *service.AuditService

	db       *pgxpool.Pool
	cache    *redis.Client
	store    *storage.ObjectStore
	users    *repository.UserRepository
	sessions *repository.SessionRepository
	jobs     *repository.JobRepository
}

func NewHandlerSet(log zerolog.Logger, db *pgxpool.Pool, cache *redis.Client, store *storage.ObjectStore, cfg *config.AppConfig) HandlerSet {
	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	jobRepo := repository.NewJobRepository(db)
	outputRepo := repository.NewOutputRepository(db)
	referenceRepo := repository.NewReferenceRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	promoRepo := repository.NewPromoRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	events := queue.NewPublisher(cache)
	providers := provider.NewRegistry(
		provider.NewKling(cfg.Providers.Kling),
		provider.NewVeo(cfg.Providers.Veo),
	)

	audit := service.NewAuditService(auditRepo, log)
	auth := service.NewAuthService(userRepo, sessionRepo, ledgerRepo, cfg, log)
	credits := service.NewCreditService(ledgerRepo, promoRepo, audit, log)
	generation := service.NewGenerationService(jobRepo, outputRepo, referenceRepo, ledgerRepo, providers, store, events, clock.Real{}, cfg, log)
	outputs := service.NewOutputService(outputRepo, referenceRepo, events, audit, cfg, log)
	upload := service.NewUploadService(referenceRepo, store, log)

	return HandlerSet{
		log:               log,
		cfg:               cfg,
		authService:       auth,
		creditService:     credits,
		generationService: generation,
		outputService:     outputs,
		uploadService:     upload,
		auditService:      audit,
		db:                db,
		cache:             cache,
		store:             store,
		users:             userRepo,
		sessions:          sessionRepo,
		jobs:              jobRepo,
	}
}

// Generation returns the orchestrator so the process can stop its polling
// loops on shutdown.
func (h HandlerSet) Generation() *service.GenerationService {
	return h.generationService
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	v1 := router.Group("/v1")
	{
		auth := v1.Group("/auth")
		auth.POST("/register", h.RegisterUser)
		auth.POST("/login", h.Login)
		auth.POST("/refresh", h.Refresh)
		auth.POST("/logout", h.Logout)

		protected := v1.Group("/auth")
		protected.Use(middleware.Auth(h.cfg, h.users, h.sessions))
		protected.GET("/me", h.Me)
	}

	authed := middleware.Auth(h.cfg, h.users, h.sessions)

	generate := v1.Group("/generate", authed)
	generate.POST("/:provider", h.SubmitGeneration)
	generate.GET("/:provider", h.GenerationStatus)

	jobs := v1.Group("/jobs", authed)
	jobs.GET("", h.ListJobs)
	jobs.GET("/:id", h.GetJob)
	jobs.POST("/:id/cancel", h.CancelJob)

	outputs := v1.Group("/outputs", authed)
	outputs.GET("", h.ListOutputs)
	outputs.GET("/:id", h.GetOutput)
	outputs.POST("/:id/persist", h.PersistOutput)
	outputs.DELETE("/:id", h.RemoveOutput)
	outputs.POST("/:id/save-as-avatar", h.SaveAsAvatar)

	references := v1.Group("/references", authed)
	references.GET("", h.ListReferences)
	references.POST("/avatar", h.UploadAvatar)
	references.DELETE("/:id", h.DeleteReference)

	credits := v1.Group("/credits", authed)
	credits.GET("", h.CreditBalance)
	credits.POST("/redeem", h.RedeemPromo)

	webhooks := v1.Group("/webhooks")
	webhooks.POST("/billing", h.BillingWebhook)

	admin := v1.Group("/admin")
	admin.Use(
		authed,
		middleware.RequireRoles(models.UserRoleAdmin),
	)
	admin.GET("/jobs", h.AdminListJobs)
	admin.GET("/audit", h.AdminListAudit)
}
