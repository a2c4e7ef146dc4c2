package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/schoolgate/config"
	"github.com/cppla/schoolgate/controllers"
	"github.com/cppla/schoolgate/livefeed"
	"github.com/cppla/schoolgate/middleware"
	"github.com/cppla/schoolgate/services"
	"github.com/cppla/schoolgate/utils"
)

// SetupRouter wires routes, middlewares, and controllers. A nil hub leaves the
// live feed unmounted.
func SetupRouter(db *gorm.DB, engine *services.Engine, hub *livefeed.Hub) *gin.Engine {
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(utils.RequestID())
	accessLog := utils.Logger
	if cfg.GinPath != "" {
		if gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress); err == nil {
			accessLog = gl
		}
	}
	r.Use(utils.Ginzap(accessLog, time.RFC3339, true))
	r.Use(utils.RecoveryWithZap(accessLog, false))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", middleware.KioskKeyHeader, middleware.DeviceIDHeader},
		ExposeHeaders:    []string{"Content-Length", utils.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok", "time": engine.Now()})
	})

	authController := controllers.NewAuthController(engine)
	kioskController := controllers.NewKioskController(engine)
	individualController := controllers.NewIndividualController(engine)
	pointsController := controllers.NewPointsController(engine)
	backupController := controllers.NewBackupController(engine)
	settingsController := controllers.NewSettingsController(engine)
	autoExitController := controllers.NewAutoExitController(engine)

	api := r.Group("/api/v1")

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimit(cfg.RateLimitPerMinute, middleware.ByClientIP))
	authGroup.POST("/login", authController.Login)
	authGroup.POST("/logout", middleware.AdminRequired(), authController.Logout)
	authGroup.GET("/me", middleware.AdminRequired(), authController.Me)

	kiosk := api.Group("/kiosk")
	kiosk.Use(
		middleware.KioskRequired(cfg.KioskAPIKeys, cfg.KioskAllowedCIDRs),
		middleware.RateLimit(cfg.KioskRateLimitPerMinute, middleware.ByDevice),
		middleware.DeviceSeen(db),
	)
	kiosk.POST("/tap", kioskController.Tap)

	api.POST("/cron/auto-exit", middleware.CronRequired(cfg.CronSecret), autoExitController.RunScheduled)

	if hub != nil {
		api.GET("/live", middleware.AdminRequiredWebSocket(), controllers.NewLiveController(hub).Stream)
	}

	admin := api.Group("")
	admin.Use(middleware.AdminRequired(), middleware.RateLimit(cfg.RateLimitPerMinute, middleware.ByClientIP))

	admin.GET("/individuals", individualController.List)
	admin.POST("/individuals", individualController.Create)
	admin.GET("/individuals/:id", individualController.Get)
	admin.PATCH("/individuals/:id", individualController.Update)
	admin.POST("/individuals/:id/guardians", individualController.AddGuardian)
	admin.DELETE("/individuals/:id/guardians/:guardianId", individualController.RemoveGuardian)
	admin.GET("/individuals/:id/transactions", individualController.Transactions)
	admin.GET("/access-events", individualController.AccessEvents)
	admin.GET("/kiosk-devices", kioskController.Devices)

	points := admin.Group("/points")
	points.POST("/add", pointsController.Add)
	points.POST("/subtract", pointsController.Subtract)
	points.POST("/consume", pointsController.Consume)
	points.POST("/bulk-add", pointsController.BulkAdd)
	points.POST("/bulk-consume", pointsController.BulkConsume)
	points.POST("/reconcile", pointsController.Reconcile)
	points.GET("/backups", backupController.List)
	points.POST("/backups", backupController.Create)
	points.GET("/backups/:id", backupController.Get)
	points.DELETE("/backups/:id", backupController.Delete)
	points.POST("/backups/:id/restore", backupController.Restore)

	settings := admin.Group("/settings")
	settings.GET("/points", settingsController.GetPoints)
	settings.PUT("/points", settingsController.PutPoints)
	settings.GET("/access-times", settingsController.GetAccessTimes)
	settings.PUT("/access-times", settingsController.PutAccessTimes)
	settings.GET("/bonus", settingsController.GetBonus)
	settings.PUT("/bonus", settingsController.PutBonus)

	admin.POST("/auto-exit/run", autoExitController.RunManual)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "route not found")
	})

	return r
}
