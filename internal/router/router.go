// internal/router/router.go
package router

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/jgalar/CanadianTracker/internal/handlers"
	"github.com/jgalar/CanadianTracker/internal/middleware"
	"github.com/jgalar/CanadianTracker/internal/query"
)

func Initialize(service *query.Service) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())

	// The API is read-only; let any origin chart price histories.
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "OPTIONS"}
	r.Use(cors.New(corsConfig))

	catalogHandler := handlers.NewCatalogHandler(service)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.GET("/products", catalogHandler.ListProducts)
		api.GET("/search", catalogHandler.Search)
		api.GET("/deals", catalogHandler.Deals)
		api.GET("/skus/:code/history", catalogHandler.History)
		api.GET("/skus/:code/stats", catalogHandler.Stats)
	}

	return r
}
