package blimp

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// statusResponse is the payload for GET /status.
type statusResponse struct {
	Started     time.Time `json:"started"`
	Uptime      string    `json:"uptime"`
	Connected   bool      `json:"connected"`
	ObjectCount int64     `json:"object_count"`
	AliasCount  int64     `json:"alias_count"`
}

// ginLogger emits one structured line per request.
func ginLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info(
			"request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}

// newAPIEngine builds the status API router. It exposes read-only
// health and status endpoints; all configuration happens over Discord.
func newAPIEngine(b *Bot) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	log := slog.New(newLogHandler(b.config.API.LogLevel)).With(loggerNameKey, "api")
	engine.Use(ginLogger(log), gin.Recovery())

	corsConfig := b.config.API.CORS.GINConfig()
	if len(corsConfig.AllowOrigins) > 0 {
		engine.Use(cors.New(corsConfig))
	}

	engine.GET(
		"/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		},
	)
	engine.GET(
		"/status", func(c *gin.Context) {
			ctx := c.Request.Context()
			c.JSON(
				http.StatusOK, statusResponse{
					Started:     b.started,
					Uptime:      time.Since(b.started).Round(time.Second).String(),
					Connected:   b.session.BotUserID() != "",
					ObjectCount: b.store.ObjectCount(ctx),
					AliasCount:  b.store.AliasCount(ctx),
				},
			)
		},
	)
	return engine
}

// newAPIServer wraps the router in an http.Server with the configured
// timeouts.
func newAPIServer(b *Bot) *http.Server {
	cfg := b.config.API
	return &http.Server{
		Addr:              cfg.Listen,
		Handler:           newAPIEngine(b),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}
