package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/lyzr/contenthub/cmd/contenthub/middleware"
	"github.com/lyzr/contenthub/cmd/contenthub/service"
	"github.com/lyzr/contenthub/common/bootstrap"
)

// ContentHandler handles the read surface: per-viewer resolution,
// history and version lookup, plus archival
type ContentHandler struct {
	components *bootstrap.Components
	resolver   *service.ResolverService
	versions   *service.VersionService
}

// NewContentHandler creates a new content handler
func NewContentHandler(components *bootstrap.Components, resolver *service.ResolverService, versions *service.VersionService) *ContentHandler {
	return &ContentHandler{
		components: components,
		resolver:   resolver,
		versions:   versions,
	}
}

// Resolve returns the authoritative revision of an item for the caller.
// The caller's own open draft or suggestion shadows the published head.
// GET /api/v1/content/:static_id
func (h *ContentHandler) Resolve(c echo.Context) error {
	staticID, err := uuid.Parse(c.Param("static_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid static_id format")
	}

	viewerID := middleware.GetUserID(c)

	view, err := h.resolver.Resolve(c.Request().Context(), staticID, viewerID)
	if err != nil {
		h.components.Logger.Error("failed to resolve content", "static_id", staticID, "error", err)
		return domainError(err)
	}

	return c.JSON(http.StatusOK, view)
}

// History returns every revision of an item in creation order
// GET /api/v1/content/:static_id/history?limit=50
func (h *ContentHandler) History(c echo.Context) error {
	staticID, err := uuid.Parse(c.Param("static_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid static_id format")
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		if err := echo.QueryParamsBinder(c).Int("limit", &limit).BindError(); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
	}

	records, err := h.versions.History(c.Request().Context(), staticID, limit)
	if err != nil {
		return domainError(err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"static_id": staticID,
		"versions":  records,
		"count":     len(records),
	})
}

// GetVersion retrieves a single revision by version id
// GET /api/v1/versions/:id
func (h *ContentHandler) GetVersion(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid version id format")
	}

	record, err := h.versions.Get(c.Request().Context(), id)
	if err != nil {
		return domainError(err)
	}

	return c.JSON(http.StatusOK, record)
}

// Archive marks a revision archived
// POST /api/v1/versions/:id/archive
func (h *ContentHandler) Archive(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid version id format")
	}

	actor, err := middleware.RequireUserID(c)
	if err != nil {
		return err
	}

	if err := h.versions.Archive(c.Request().Context(), id, actor); err != nil {
		h.components.Logger.Error("failed to archive version", "version_id", id, "error", err)
		return domainError(err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"version_id": id,
		"archived":   true,
	})
}

// Delete soft-deletes a revision
// DELETE /api/v1/versions/:id
func (h *ContentHandler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid version id format")
	}

	actor, err := middleware.RequireUserID(c)
	if err != nil {
		return err
	}

	if err := h.versions.SoftDelete(c.Request().Context(), id, actor); err != nil {
		h.components.Logger.Error("failed to delete version", "version_id", id, "error", err)
		return domainError(err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"version_id": id,
		"deleted":    true,
	})
}
