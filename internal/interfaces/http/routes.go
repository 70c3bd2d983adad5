package http

import (
	"net/http"

	"botfleet/internal/interfaces"
	"botfleet/internal/scheduler"
	"botfleet/internal/usecases"

	"github.com/gin-gonic/gin"
)

// SetupRoutes mounts the operator API on r.
func SetupRoutes(r *gin.Engine, fleet *usecases.FleetService, auth *usecases.AdminAuth, billing *usecases.Billing, monitor *usecases.Monitor, store interfaces.Store, sched *scheduler.Scheduler, journal *scheduler.Journal, middleware *Middleware) {
	h := NewAdminHandler(fleet, billing, monitor, store, sched, journal)

	// Apply Security Middleware
	r.Use(SecurityHeaders())
	r.Use(RequestSizeLimiter(1 << 20)) // 1MB max request size
	r.Use(middleware.CORSMiddleware())

	// Public Routes
	r.GET("/health", h.Healthz)

	r.POST("/api/auth/login", func(c *gin.Context) {
		var loginReq struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := c.ShouldBindJSON(&loginReq); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		token, err := auth.Login(loginReq.Username, loginReq.Password)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token})
	})

	// Protected operator routes
	api := r.Group("/api")
	api.Use(middleware.AuthRequired())
	api.Use(middleware.RateLimitPerUser(5, 10))
	{
		api.GET("/stats", h.GetStats)

		api.GET("/bots", h.ListBots)
		api.POST("/bots", h.CreateBot)
		api.GET("/bots/:id", h.GetBot)
		api.POST("/bots/:id/start", h.StartBot)
		api.POST("/bots/:id/stop", h.StopBot)
		api.POST("/bots/:id/restart", h.RestartBot)
		api.DELETE("/bots/:id", h.DeleteBot)
		api.GET("/bots/:id/analytics", h.BotAnalytics)

		api.GET("/templates", h.ListTemplates)

		api.GET("/owners", h.ListOwners)
		api.POST("/owners", h.CreateOwner)
		api.POST("/owners/:id/topup", h.CreateTopup)

		api.GET("/payments", h.ListPayments)
		api.POST("/payments/:id/approve", h.ApprovePayment)

		api.GET("/system/health", h.SystemHealth)
		api.GET("/tasks", h.TaskRuns)
		api.POST("/tasks/cleanup", h.EmergencyCleanup)
	}
}
