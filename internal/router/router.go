package router

import (
	"net/http"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/fenixctl/enroller/internal/config"
	"github.com/fenixctl/enroller/internal/handler"
	"github.com/fenixctl/enroller/internal/middleware"
	"github.com/fenixctl/enroller/internal/response"
	"github.com/fenixctl/enroller/internal/service"
)

// catalogueMaxAge is how long clients may reuse degree and offering listings.
const catalogueMaxAge = 5 * time.Minute

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth       *handler.AuthHandler
	Catalogue  *handler.CatalogueHandler
	Preference *handler.PreferenceHandler
	Schedule   *handler.ScheduleHandler
	Portal     *handler.PortalHandler
	Enrollment *handler.EnrollmentHandler
	WS         *handler.WSHandler
	System     *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// metricsHandler serves /metrics and may be nil.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	loginLimiter *middleware.RateLimiter,
	metricsHandler http.Handler,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())
	router.Use(response.AccessLog(log))

	router.GET("/health", handlers.System.Health)
	if metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(metricsHandler))
	}

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	if loginLimiter != nil {
		auth.Use(loginLimiter.Middleware())
	}
	{
		auth.POST("/login", handlers.Auth.Login)
	}

	// ─── 2. Operator Group (JWT) ───────────────────────────────────────
	api := router.Group("/api/v1")
	api.Use(middleware.RequireOperatorJWT(authService))
	{
		catalogue := api.Group("")
		catalogue.Use(middleware.Compress(brotli.DefaultCompression), middleware.CacheControl(catalogueMaxAge))
		{
			catalogue.GET("/degrees", handlers.Catalogue.Degrees)
			catalogue.GET("/degrees/:id/offerings", handlers.Catalogue.Offerings)
		}

		api.GET("/preferences", handlers.Preference.Get)
		api.PUT("/preferences", handlers.Preference.Update)

		api.GET("/goals", handlers.Preference.ListGoals)
		api.POST("/goals", handlers.Preference.AddGoal)
		api.DELETE("/goals", handlers.Preference.ClearGoals)
		api.DELETE("/goals/:index", handlers.Preference.RemoveGoal)

		api.POST("/schedule/board", handlers.Schedule.Board)
		api.POST("/schedule/confirm", handlers.Schedule.Confirm)

		api.GET("/portal", handlers.Portal.Status)
		api.POST("/portal/login", handlers.Portal.Login)

		api.GET("/enrollment/status", handlers.Enrollment.Status)
		api.POST("/enrollment/start", handlers.Enrollment.Start)
		api.POST("/enrollment/cancel", handlers.Enrollment.Cancel)

		api.GET("/system/metrics", handlers.System.SystemMetricsSSE)
	}

	// ─── 3. WebSocket Group (JWT via ?token=) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireOperatorJWT(authService))
	{
		ws.GET("/events", handlers.WS.Events)
	}

	router.NoRoute(func(c *gin.Context) {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	})

	return router
}
