package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/lyzr/contenthub/cmd/contenthub/container"
	"github.com/lyzr/contenthub/cmd/contenthub/handlers"
	"github.com/lyzr/contenthub/cmd/contenthub/middleware"
)

// RegisterDraftRoutes registers the draft lifecycle routes
func RegisterDraftRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewDraftHandler(c.Components, c.LifecycleService)

	drafts := e.Group("/api/v1/drafts")
	drafts.Use(middleware.ExtractIdentity())
	{
		drafts.POST("", h.CreateDraft)           // POST /api/v1/drafts
		drafts.POST("/:id/publish", h.Publish)   // POST /api/v1/drafts/{id}/publish
		drafts.POST("/:id/discard", h.Discard)   // POST /api/v1/drafts/{id}/discard
	}
}
