package router

import (
	"net/http"

	"convoyhub/config"
	"convoyhub/internal/handler"
	"convoyhub/internal/logger"
	"convoyhub/internal/metrics"
	"convoyhub/internal/middleware"
	"convoyhub/internal/repository"
	"convoyhub/internal/service"
	"convoyhub/internal/ws"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Handlers is everything the route table needs.
type Handlers struct {
	Auth          *handler.AuthHandler
	Me            *handler.MeHandler
	Convoy        *handler.ConvoyHandler
	ConvoyWS      *handler.ConvoyWSHandler
	Notifications *handler.NotificationHandler
}

// Setup wires the MySQL-backed repositories and services and returns the engine.
func Setup(cfg *config.Config, db *gorm.DB, hub *ws.Hub, bus ws.Bus, log *logger.Logger) *gin.Engine {
	// Repositories
	userRepo := repository.NewUserRepository(db)
	convoyRepo := repository.NewConvoyRepository(db, cfg.Database.CallTimeout)
	notificationRepo := repository.NewNotificationRepository(db)

	// Services
	authSvc := service.NewAuthService(&cfg.JWT, userRepo)
	convoySvc := service.NewConvoyService(convoyRepo, userRepo, log,
		service.WithDefaultMaxMembers(cfg.Convoy.DefaultMaxMembers),
		service.WithNearbyLimits(cfg.Convoy.NearbyMaxRadiusKm, cfg.Convoy.NearbyMaxLimit),
	)
	notifSvc := service.NewNotificationService(notificationRepo, log)

	return New(cfg, Handlers{
		Auth:          handler.NewAuthHandler(authSvc, log),
		Me:            handler.NewMeHandler(userRepo, log),
		Convoy:        handler.NewConvoyHandler(convoySvc, notifSvc, bus, log, cfg.Convoy.LocationBroadcast),
		ConvoyWS:      handler.NewConvoyWSHandler(&cfg.JWT, convoySvc, hub, bus, log, cfg.Convoy.LocationBroadcast),
		Notifications: handler.NewNotificationHandler(notifSvc, log),
	})
}

// New registers the route table on a fresh engine.
func New(cfg *config.Config, h Handlers) *gin.Engine {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	authMw := middleware.AuthRequired(&cfg.JWT)

	api := r.Group("/api/v1")
	{
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", h.Auth.Register)
			authGroup.POST("/login", h.Auth.Login)
			authGroup.POST("/refresh", h.Auth.Refresh)
		}

		me := api.Group("/me")
		me.Use(authMw)
		{
			me.GET("/profile", h.Me.GetProfile)
			me.GET("/notifications", h.Notifications.List)
			me.PATCH("/notifications/:id/read", h.Notifications.MarkRead)
		}

		convoys := api.Group("/convoys")
		convoys.Use(authMw)
		{
			convoys.POST("", h.Convoy.Create)
			convoys.GET("", h.Convoy.ListMine)
			convoys.GET("/nearby", h.Convoy.Nearby)
			convoys.GET("/code/:code", h.Convoy.FindByCode)
			convoys.POST("/join", h.Convoy.Join)
			convoys.GET("/:id", h.Convoy.Get)
			convoys.PATCH("/:id", h.Convoy.Update)
			convoys.DELETE("/:id", h.Convoy.Delete)
			convoys.GET("/:id/members", h.Convoy.Members)
			convoys.POST("/:id/members", h.Convoy.Invite)
			convoys.DELETE("/:id/members/:userId", h.Convoy.Kick)
			convoys.POST("/:id/join", h.Convoy.JoinByID)
			convoys.POST("/:id/leave", h.Convoy.Leave)
			convoys.POST("/:id/start", h.Convoy.Start)
			convoys.POST("/:id/end", h.Convoy.End)
			convoys.PUT("/:id/location", h.Convoy.UpdateLocation)
			convoys.POST("/:id/join-code", h.Convoy.RegenerateJoinCode)
		}
	}

	// token travels in the query string, so no auth middleware here
	r.GET("/ws/convoys/:id", h.ConvoyWS.Serve)

	return r
}
