// internal/api/api.go
package api

import (
	"strings"
	"time"

	"github.com/bartek5186/barsync/internal/importer"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Watcher - stan watch folderu dla /health (opcjonalny)
type Watcher interface {
	IsRunning() bool
}

type Deps struct {
	Service        *importer.Service
	Watcher        Watcher
	AllowedOrigins []string
}

func NewRouter(log zerolog.Logger, deps Deps) *gin.Engine {
	router := gin.New()

	router.Use(RequestLogger(log))
	router.Use(Recovery(log))
	corsConfig := cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Operator"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(deps.AllowedOrigins) > 0 {
		origins, allowAll := normalizeAllowedOrigins(deps.AllowedOrigins)
		if allowAll {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowOriginFunc = func(origin string) bool { return true }
		} else if len(origins) > 0 {
			corsConfig.AllowOrigins = origins
		}
	}
	router.Use(cors.New(corsConfig))

	h := &handler{log: log, svc: deps.Service, watcher: deps.Watcher}
	router.GET("/health", h.health)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/templates/:kind", h.template)

		imports := v1.Group("/imports")
		{
			imports.GET("", h.listImports)
			imports.POST("", h.createImport)
			imports.POST("/:id/confirm", h.confirmImport)
			imports.GET("/:id", h.getImport)
			imports.DELETE("/:id", h.deleteImport)
		}

		v1.GET("/history", h.history)
		v1.GET("/history/:id", h.historyDetails)
		v1.POST("/costing/recipes", h.costRecipes)
	}
	return router
}

func normalizeAllowedOrigins(origins []string) ([]string, bool) {
	var (
		parsed   []string
		allowAll bool
	)
	for _, origin := range origins {
		for _, part := range strings.Split(origin, ",") {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if trimmed == "*" {
				allowAll = true
				continue
			}
			parsed = append(parsed, trimmed)
		}
	}
	return parsed, allowAll
}
