package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/atiendo/backend/internal/config"
	"github.com/atiendo/backend/internal/http/handlers"
	"github.com/atiendo/backend/internal/http/middleware"
	"github.com/atiendo/backend/internal/models"
	"github.com/atiendo/backend/internal/tracking"

	_ "github.com/atiendo/backend/docs"
)

type Deps struct {
	Store    handlers.Store
	Pipeline handlers.Processor
	Triage   handlers.Triager
	Tracker  tracking.Tracker
	Caps     models.Capabilities
}

func Router(cfg config.Config, deps Deps, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-Id", "X-Account-Key", "X-Tenant-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = []string{cfg.CORSAllowed}
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Store:             deps.Store,
		Pipeline:          deps.Pipeline,
		Triage:            deps.Triage,
		Tracker:           deps.Tracker,
		Validator:         validator.New(),
		Logger:            logger,
		Caps:              deps.Caps,
		JWTSecret:         cfg.JWTSecret,
		DefaultAccountKey: cfg.DefaultAccountKey,
	}

	r.GET("/healthz", h.Healthz)

	webhooks := r.Group("/webhooks")
	{
		webhooks.POST("/whatsapp-bot", h.BotWebhook)
		webhooks.POST("/voice-calls", h.VoiceWebhook)
	}

	r.POST("/ai/triage", h.TriageConversation)

	api := r.Group("/api")
	api.Use(middleware.Auth(cfg.JWTSecret))
	{
		api.GET("/tickets", h.TicketsList)
		api.GET("/tickets/:id", h.TicketDetails)
		api.PATCH("/tickets/:id", h.TicketUpdate)
		api.GET("/conversations", h.ConversationsList)
		api.GET("/conversations/:id", h.ConversationDetails)
		api.PATCH("/conversations/:id", h.ConversationUpdate)
		api.GET("/settings", h.SettingsGet)
		api.PUT("/settings", h.SettingsUpdate)
		api.GET("/events", h.EventsList)
		api.GET("/tracking/:number", h.TrackingLookup)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
