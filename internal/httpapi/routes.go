// Package httpapi is the gin surface over the message board, the visitor
// counters and the content files.
package httpapi

import (
	"github.com/gin-gonic/gin"

	"cms-go/internal/cms"
	"cms-go/internal/content"
	"cms-go/internal/metrics"
	"cms-go/internal/ratelimit"
	"cms-go/internal/records"
)

// Deps are the services the routes call into.
type Deps struct {
	Board    *records.Board
	Visitors *records.Visitors
	Files    *content.Files
	Limiter  *ratelimit.Limiter
	KeyFunc  ratelimit.KeyFunc
	Metrics  *metrics.Metrics
	Logger   cms.Logger
}

// NewRouter builds a gin engine with recovery, request logging and every
// route registered.
func NewRouter(d Deps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(d.Logger, d.Metrics))
	SetupRoutes(router, d)
	return router
}

// SetupRoutes registers the routes on router. Mutating routes sit behind
// the rate limiter.
func SetupRoutes(router *gin.Engine, d Deps) {
	limit := ratelimit.Middleware(d.Limiter, d.KeyFunc, func(dec ratelimit.Decision) {
		d.Metrics.RateLimitDecision(dec.Allowed)
	})

	router.GET("/health", HealthCheck)
	router.GET("/metrics", gin.WrapH(d.Metrics.Handler()))

	api := router.Group("/api")
	{
		api.GET("/messages", ListMessages(d.Board, d.Logger))
		api.POST("/messages", limit, PostMessage(d.Board, d.KeyFunc, d.Logger))

		api.GET("/visitors", GetVisitors(d.Visitors, d.Logger))
		api.POST("/visitors", limit, RecordVisit(d.Visitors, d.Logger))

		files := api.Group("/content")
		{
			files.GET("", ReadContent(d.Files, d.Logger))
			files.GET("/tree", ListContent(d.Files, d.Logger))
			files.PUT("", limit, WriteContent(d.Files, d.Logger))
			files.POST("", limit, CreateContent(d.Files, d.Logger))
			files.DELETE("/dir", limit, DeleteContentDir(d.Files, d.Logger))
		}
	}
}
