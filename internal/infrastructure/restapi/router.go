package restapi

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// SetupRouter builds the gin engine with CORS, request logging and all routes.
// Cross-origin requests are only allowed from allowedOrigins; with none, no CORS headers are sent.
func SetupRouter(h *Handler, logger *zap.Logger, allowedOrigins []string) *gin.Engine {
	router := gin.New()

	if len(allowedOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = allowedOrigins
		corsConfig.AllowMethods = []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
		router.Use(cors.New(corsConfig))
	}
	router.Use(ZapLoggerMiddleware(logger))
	router.Use(gin.Recovery())

	v1 := router.Group("/api/v1")
	{
		v1.GET("/session", h.GetSession)
		v1.POST("/session/connect", h.Connect)
		v1.POST("/session/disconnect", h.Disconnect)

		v1.GET("/schedules", h.ListSchedules)
		v1.POST("/schedules", h.CreateSchedule)
		v1.POST("/schedules/preview", h.Preview)
		v1.GET("/schedules/:id", h.GetSchedule)
		v1.POST("/schedules/:id/cancel", h.CancelSchedule)
		v1.GET("/stats", h.GetStats)

		v1.GET("/favorites", h.ListFavorites)
		v1.POST("/favorites", h.AddFavorite)
		v1.DELETE("/favorites/:address", h.RemoveFavorite)
		v1.PATCH("/favorites/:address", h.RenameFavorite)

		v1.GET("/notification", h.GetNotification)
		v1.GET("/intervals", h.ListIntervals)
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return router
}
