package api

import (
	"github.com/gin-gonic/gin"
)

// AuthMiddleware is a placeholder for the actual authentication middleware.
// In a real deployment, this would validate a JWT and set the "userID" in the context.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("userID", "operator")
		c.Next()
	}
}

// RegisterRoutes registers all the routes for the phone automation service.
func RegisterRoutes(router *gin.Engine, api *API) {
	v1 := router.Group("/api/v1/phone")
	v1.Use(AuthMiddleware())
	{
		tasks := v1.Group("/tasks")
		{
			tasks.POST("", api.StartTaskHandler)
			tasks.GET("", api.ListTasksHandler)
			tasks.GET("/:id", api.GetTaskHandler)
			tasks.POST("/:id/cancel", api.CancelTaskHandler)
		}

		v1.GET("/device/health", api.DeviceHealthHandler)
	}
}
