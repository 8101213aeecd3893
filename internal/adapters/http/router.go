package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Relay/internal/adapters/signal"
	"github.com/dkeye/Relay/internal/app/orch"
	"github.com/dkeye/Relay/internal/auth"
	"github.com/dkeye/Relay/internal/config"
)

type Deps struct {
	Orch     *orch.Orchestrator
	Gate     auth.Gate
	Backing  string
	Gatherer prometheus.Gatherer
	WebRTC   webrtc.Configuration
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"bus":         deps.Backing,
			"connections": deps.Orch.Registry.Count(),
		})
	})
	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	chat := signal.NewChatWSController(deps.Orch, deps.Gate)
	chat.ReadLimit = cfg.ReadLimit
	chat.PingPeriod = cfg.PingPeriod
	chat.SendBuffer = cfg.SendBuffer

	api := r.Group("/api/v1")
	api.GET("/ws/chat", func(c *gin.Context) {
		chat.HandleChat(ctx, c)
	})
	api.GET("/webrtc/ice-servers", RequireUser(deps.Gate), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ice_servers": deps.WebRTC.ICEServers})
	})

	internal := r.Group("/internal", InternalTokenMiddleware(cfg.InternalToken))
	internal.POST("/events", handleInternalEvent(deps.Orch))

	log.Info().Str("module", "adapters.http").Str("bus", deps.Backing).Bool("static", cfg.StaticPath != "").Msg("router setup")
	return r
}
