package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/lyzr/contenthub/cmd/contenthub/container"
	"github.com/lyzr/contenthub/cmd/contenthub/handlers"
	"github.com/lyzr/contenthub/cmd/contenthub/middleware"
)

// RegisterSuggestionRoutes registers the propose/review routes
func RegisterSuggestionRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewSuggestionHandler(c.Components, c.SuggestionService)

	suggestions := e.Group("/api/v1/suggestions")
	suggestions.Use(middleware.ExtractIdentity())
	{
		suggestions.POST("", h.Propose)               // POST /api/v1/suggestions
		suggestions.GET("/:id/preview", h.Preview)    // GET /api/v1/suggestions/{id}/preview
		suggestions.POST("/:id/accept", h.Accept)     // POST /api/v1/suggestions/{id}/accept
		suggestions.POST("/:id/reject", h.Reject)     // POST /api/v1/suggestions/{id}/reject
	}
}
