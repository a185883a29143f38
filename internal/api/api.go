package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/andresuchdata/autopo-py/replenish/internal/api/handlers"
	"github.com/andresuchdata/autopo-py/replenish/internal/api/middleware"
	"github.com/andresuchdata/autopo-py/replenish/internal/service"
)

type Services struct {
	RecommendationService *service.RecommendationService
	AnalysisService       *service.AnalysisService
}

func NewRouter(services *Services, allowedOrigins []string) *gin.Engine {
	router := gin.New()

	// Add middleware
	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	defaultOrigins := []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	corsConfig := cors.Config{
		AllowOrigins:     defaultOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "X-Failed-Branches"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) > 0 {
		normalizedOrigins, allowAll := normalizeAllowedOrigins(allowedOrigins)
		if allowAll {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowOriginFunc = func(origin string) bool { return true }
		} else if len(normalizedOrigins) > 0 {
			corsConfig.AllowOrigins = normalizedOrigins
		}
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})

	apiGroup := router.Group("/api/v1")

	if services != nil {
		if services.RecommendationService != nil {
			recHandler := handlers.NewRecommendationHandler(services.RecommendationService)
			apiGroup.GET("/branches", recHandler.GetBranches)

			recGroup := apiGroup.Group("/recommendations")
			{
				recGroup.GET("", recHandler.GetRecommendations)
				recGroup.GET("/export", recHandler.ExportRecommendations)
				recGroup.DELETE("/cache", recHandler.InvalidateCache)

				runGroup := recGroup.Group("/runs")
				{
					runGroup.POST("", recHandler.StartRun)
					runGroup.GET("/:id", recHandler.GetRun)
					runGroup.DELETE("/:id", recHandler.CancelRun)
				}
			}
		}

		if services.AnalysisService != nil {
			analysisHandler := handlers.NewAnalysisHandler(services.AnalysisService)
			apiGroup.GET("/analysis", analysisHandler.GetAnalysis)
		}
	}

	return router
}

func normalizeAllowedOrigins(origins []string) ([]string, bool) {
	var (
		parsed   []string
		allowAll bool
	)
	for _, origin := range origins {
		parts := strings.Split(origin, ",")
		for _, part := range parts {
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
