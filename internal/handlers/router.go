package handlers

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/sekolahku/backend/internal/app"
	"github.com/sekolahku/backend/internal/middleware"
)

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(db *gorm.DB, cfg *app.Config) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}

	r := gin.New()
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.NoRoute(middleware.NotFoundHandler)

	if cfg.Monitoring.Health.Enabled {
		r.GET("/health", Health(db))
	}
	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	userHandler, err := NewUserHandler(db)
	if err != nil {
		return nil, err
	}
	notificationHandler, err := NewNotificationHandler(db)
	if err != nil {
		return nil, err
	}
	fanoutHandler, err := NewUserNotificationHandler(db)
	if err != nil {
		return nil, err
	}

	api := r.Group("/api")

	users := api.Group("/users")
	{
		users.POST("", userHandler.Create)
		users.GET("", userHandler.List)
		users.GET("/:userId", userHandler.Get)
		users.PATCH("/:userId", userHandler.Update)
		users.DELETE("/:userId", userHandler.Delete)

		users.GET("/:userId/notifications", fanoutHandler.Feed)
		users.GET("/:userId/notifications/stats", fanoutHandler.Stats)
		users.POST("/:userId/notifications/read", fanoutHandler.MarkRead)
		users.POST("/:userId/notifications/read-all", fanoutHandler.MarkAllRead)
		users.DELETE("/:userId/notifications", fanoutHandler.RemoveAll)
		users.DELETE("/:userId/notifications/:id", fanoutHandler.Remove)
	}

	notifications := api.Group("/notifications")
	{
		notifications.POST("", notificationHandler.Create)
		notifications.POST("/bulk", notificationHandler.BulkCreate)
		notifications.GET("", notificationHandler.List)
		notifications.GET("/stats", notificationHandler.Stats)
		notifications.GET("/:id", notificationHandler.Get)
		notifications.PATCH("/:id", notificationHandler.Update)
		notifications.DELETE("/:id", notificationHandler.Delete)

		notifications.GET("/:id/recipients", fanoutHandler.Recipients)
	}

	assignments := api.Group("/assignments")
	{
		assignments.POST("", fanoutHandler.Assign)
		assignments.POST("/bulk", fanoutHandler.BulkAssign)
		assignments.POST("/roles", fanoutHandler.AssignByRole)
	}

	return r, nil
}
