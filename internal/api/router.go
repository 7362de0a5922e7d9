package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/tilakp839-oss/chaiii/config"
	"github.com/tilakp839-oss/chaiii/internal/metrics"
	"github.com/tilakp839-oss/chaiii/internal/mw"
)

// NewRouter creates and configures a new Gin router. registry may be nil to
// disable the /metrics endpoint.
func NewRouter(handler *Handler, cfg *config.ServerConfig, registry *prometheus.Registry) *gin.Engine {
	r := gin.Default()

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst, cfg.RequestIPHeader)

	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 10*cacheTTL)
	// The active-session lookup applies a per-user role policy; it must
	// never be served from a shared cache.
	caching := mw.Cache(cacheStore, cacheTTL, "/api/sessions/active")

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.POST("/init", handler.Init)
		api.POST("/auth/login", handler.Login)

		api.GET("/users", handler.GetUsers)

		api.GET("/sessions", caching, handler.GetSessions)
		api.GET("/sessions/active", handler.GetActiveSession)
		api.POST("/sessions/start", handler.StartSession)
		api.POST("/sessions/:id/end", handler.EndSession)
		api.DELETE("/sessions/:id", handler.DeleteSession)

		api.GET("/votes", caching, handler.GetVotes)
		api.GET("/votes/session/:id", handler.GetVotesBySession)
		api.POST("/votes", handler.CreateVote)

		api.GET("/stats", caching, handler.GetStats)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	if registry != nil {
		r.GET("/metrics", metrics.Handler(registry))
	}

	return r
}
