package handlers

import (
	"agropres/internal/logger"
	"agropres/internal/service"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires the HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	log      *logger.Logger
}

// NewHandler constructs a new HTTP handler with dependencies.
func NewHandler(services *service.Service, log *logger.Logger) *Handler {
	return &Handler{services: services, log: log}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health endpoint
	router.GET("/health", h.health)

	// Versioned API endpoints
	h.registerAPIRoutes(router)

	// WebSocket snapshot stream (HTTP upgrade) on the same port
	router.GET("/ws", h.wsConnect)

	return router
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		h.registerDeviceRoutes(api)
		h.registerReminderRoutes(api)
		h.registerLogRoutes(api)
	}
}

func (h *Handler) registerDeviceRoutes(api *gin.RouterGroup) {
	device := api.Group("/device")
	{
		device.GET("/state", h.getState)
		// Body example: {"value":true}
		device.POST("/controls/:key/toggle", h.toggleControl)
		// Body example: {"value":512}
		device.POST("/controls/pwm", h.setPwm)
		// Body example: {"mode":"auto"}
		device.POST("/modes/:key", h.setMode)
		device.PUT("/schedules", h.saveSchedules)
	}
}

func (h *Handler) registerReminderRoutes(api *gin.RouterGroup) {
	reminders := api.Group("/reminders")
	{
		reminders.GET("/", h.listReminders)
		reminders.POST("/", h.addReminder)
		reminders.DELETE("/:id", h.deleteReminder)
	}
}

func (h *Handler) registerLogRoutes(api *gin.RouterGroup) {
	logs := api.Group("/logs")
	{
		logs.GET("/", h.getLogs)
	}
}
