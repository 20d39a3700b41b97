package router

import (
	"time"

	"tillbox/internal/config"
	"tillbox/internal/handler"
	"tillbox/internal/infra"
	"tillbox/internal/middleware"
	"tillbox/internal/model"
	"tillbox/internal/repository"
	"tillbox/internal/service"
	"tillbox/internal/worker"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// New wires all dependencies and returns a configured Gin engine.
// Dependency graph: Handler ← Service ← Repository ← DB/Redis
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client, smtpCB *infra.CircuitBreaker) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS(cfg.CORSOriginList()))
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.RateLimiter(1000, time.Minute)) // 1000 req/min per IP

	// ── Repositories ─────────────────────────────────────────────────────────
	operatorRepo := repository.NewOperatorRepository(db)
	drawerRepo := repository.NewDrawerRepository(db)

	// ── Services ─────────────────────────────────────────────────────────────
	// Worker dispatcher — injected into services that enqueue async jobs
	dispatcher := worker.NewDispatcher(rdb)
	locker := infra.NewDrawerLocker(rdb)

	authSvc := service.NewAuthService(operatorRepo, cfg)
	drawerSvc := service.NewDrawerService(drawerRepo, locker, dispatcher, cfg.AlertThresholdAmount())

	// ── Handlers ─────────────────────────────────────────────────────────────
	authH := handler.NewAuthHandler(authSvc)
	drawerH := handler.NewDrawerHandler(drawerSvc)

	// ── Routes ───────────────────────────────────────────────────────────────

	// Public
	r.GET("/health", handler.Health(db, rdb, smtpCB))

	// Auth (public)
	auth := r.Group("/v1/auth")
	{
		auth.POST("/login", middleware.LoginRateLimiter(), authH.Login)
		auth.POST("/refresh", authH.Refresh)
	}

	// Protected routes
	jwtMW := middleware.JWTAuth(cfg.JWTSecret)
	v1 := r.Group("/v1", jwtMW)
	{
		anyRole := middleware.RequireRole(model.RoleCashier, model.RoleSupervisor, model.RoleAdmin)

		drawer := v1.Group("/drawer", anyRole)
		{
			drawer.GET("/current", drawerH.Current)
			drawer.POST("/open", drawerH.Open)
			drawer.POST("/cash-in", drawerH.CashIn)
			drawer.POST("/cash-out", drawerH.CashOut)
			drawer.POST("/sale", drawerH.RecordSale)
			drawer.POST("/refund", drawerH.RecordRefund)
			// History is open to all roles; non-reporting callers are scoped
			// to their own sessions inside the service.
			drawer.GET("/history", drawerH.History)
			drawer.GET("/:id", drawerH.GetSession)
			drawer.GET("/:id/transactions", drawerH.GetTransactions)
			drawer.POST("/:id/close", drawerH.Close)
		}

		// Operator management — administrators only
		operators := v1.Group("/operators", middleware.RequireRole(model.RoleAdmin))
		{
			operators.POST("", authH.CreateOperator)
			operators.GET("", authH.ListOperators)
			operators.PUT("/:id", authH.UpdateOperator)
			operators.DELETE("/:id", authH.DeactivateOperator)
		}
	}

	// Swagger UI — only enabled outside production
	if cfg.Env != "production" {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	return r
}
