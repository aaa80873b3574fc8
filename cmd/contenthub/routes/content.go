package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/lyzr/contenthub/cmd/contenthub/container"
	"github.com/lyzr/contenthub/cmd/contenthub/handlers"
	"github.com/lyzr/contenthub/cmd/contenthub/middleware"
)

// RegisterContentRoutes registers the read and archival routes
func RegisterContentRoutes(e *echo.Echo, c *container.Container) {
	// Create handler using services from container
	h := handlers.NewContentHandler(c.Components, c.ResolverService, c.VersionService)
	d := handlers.NewDraftHandler(c.Components, c.LifecycleService)

	// Content routes with identity extraction middleware
	content := e.Group("/api/v1/content")
	content.Use(middleware.ExtractIdentity()) // Extract X-User-ID / X-Org-ID into context
	{
		content.GET("/:static_id", h.Resolve)          // GET /api/v1/content/{static_id}
		content.GET("/:static_id/history", h.History)  // GET /api/v1/content/{static_id}/history
		content.POST("/:static_id/remix", d.Remix)     // POST /api/v1/content/{static_id}/remix
	}

	versions := e.Group("/api/v1/versions")
	versions.Use(middleware.ExtractIdentity())
	{
		versions.GET("/:id", h.GetVersion)        // GET /api/v1/versions/{id}
		versions.POST("/:id/archive", h.Archive)  // POST /api/v1/versions/{id}/archive
		versions.DELETE("/:id", h.Delete)         // DELETE /api/v1/versions/{id}
	}
}
