package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/use-agent/pricescout/api/handler"
	"github.com/use-agent/pricescout/api/middleware"
	"github.com/use-agent/pricescout/cache"
	"github.com/use-agent/pricescout/config"
)

// Deps are the collaborators the routes are wired to.
type Deps struct {
	Searcher    handler.Searcher
	Cache       *cache.Cache // nil disables caching
	Batch       *handler.BatchRunner
	RateLimiter *middleware.RateLimiter
	Pools       []handler.StatsProvider
	StartTime   time.Time
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:    Recovery → Logger → CORS
//	Protected: Auth (if enabled) → RateLimit
//
// Root and health stay outside auth so monitoring probes always work.
func NewRouter(cfg *config.Config, d Deps) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())
	r.Use(cors.New(corsConfig(cfg.CORS)))

	r.GET("/", handler.Root(cfg.Site.Name))
	r.GET("/health", handler.Health(d.StartTime, d.Pools...))

	protected := r.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	if d.RateLimiter != nil {
		protected.Use(d.RateLimiter.Handler())
	}

	protected.GET("/scrape", handler.Scrape(d.Searcher, d.Cache, cfg.Cache.DefaultMaxAge))

	if d.Batch != nil {
		protected.POST("/batch/scrape", d.Batch.PostBatch())
		protected.GET("/batch/:id", d.Batch.GetBatch())
	}

	return r
}

func corsConfig(cfg config.CORSConfig) cors.Config {
	cc := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-API-Key"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			cc.AllowAllOrigins = true
			return cc
		}
	}
	if len(cfg.AllowOrigins) == 0 {
		cc.AllowAllOrigins = true
		return cc
	}
	cc.AllowOrigins = cfg.AllowOrigins
	return cc
}
