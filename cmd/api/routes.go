package main

import (
	"database/sql"
	"time"

	"intake-platform/internal/auth"
	"intake-platform/internal/rbac"
	"intake-platform/internal/vapi"
	"intake-platform/pkg/utils"

	"github.com/gin-gonic/gin"
)

type registerDeps struct {
	db      *sql.DB
	auth    *auth.Manager
	ingest  *vapi.Service
	webhook string
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers delegate to internal modules.
func registerRoutes(r *gin.Engine, deps registerDeps) {
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), deps.db, 2*time.Second); err != nil {
			c.JSON(503, gin.H{"status": "degraded"})
			return
		}
		c.JSON(200, gin.H{"status": "ok"})
	})

	h := vapi.Handlers{
		Ingest:        deps.ingest,
		WebhookSecret: deps.webhook,
	}

	// Vendor webhook and client save share one endpoint; signature
	// verification inside the handler covers the vendor path.
	r.POST("/api/vapi/webhook", h.HandleWebhook)

	api := r.Group("/api")
	api.Use(auth.RequireAccessToken(deps.auth))
	api.Use(rbac.RequireUser())
	{
		api.POST("/vapi/initiate-call", h.HandleInitiateCall)
	}
}
